package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Querier is satisfied by *sqlx.DB, *sqlx.Tx and *database.DB.
type Querier interface {
	sqlx.ExtContext
}

// Store exposes ledger primitives over a Querier.
type Store struct {
	q   Querier
	now func() time.Time
}

// NewStore creates a Store bound to q.
func NewStore(q Querier) *Store {
	return &Store{q: q, now: time.Now}
}

// stamp is the current time as stored in created_at/updated_at columns.
func (s *Store) stamp() Timestamp {
	return Timestamp{Time: s.now().UTC()}
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, s.q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return n, nil
}

// notFound converts sql.ErrNoRows into ErrNotFound naming what missed.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("querying %s %q: %w", what, id, err)
}

// likePattern builds a case-insensitive substring pattern.
func likePattern(query string) string {
	return "%" + query + "%"
}
