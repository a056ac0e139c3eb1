package ledger

import (
	"context"
	"fmt"
)

const operatorColumns = `id, username, pin_hash, created_at`

// CreateOperator inserts a new operator. A taken username is ErrConflict.
func (s *Store) CreateOperator(ctx context.Context, o Operator) error {
	_, err := s.exec(ctx,
		`INSERT INTO operators (`+operatorColumns+`) VALUES (?, ?, ?, ?)`,
		o.ID, o.Username, o.PINHash, s.stamp(),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("operator %q: %w", o.Username, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating operator %q: %w", o.Username, err)
	}
	return nil
}

// GetOperator returns an operator by id.
func (s *Store) GetOperator(ctx context.Context, id string) (*Operator, error) {
	var o Operator
	if err := s.get(ctx, &o, `SELECT `+operatorColumns+` FROM operators WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "operator", id)
	}
	return &o, nil
}

// ListOperators returns all operators ordered by username, hashes included.
func (s *Store) ListOperators(ctx context.Context) ([]Operator, error) {
	operators := []Operator{}
	if err := s.selectAll(ctx, &operators,
		`SELECT `+operatorColumns+` FROM operators ORDER BY username`,
	); err != nil {
		return nil, fmt.Errorf("listing operators: %w", err)
	}
	return operators, nil
}

// CountOperators returns the number of operators.
func (s *Store) CountOperators(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM operators`); err != nil {
		return 0, fmt.Errorf("counting operators: %w", err)
	}
	return n, nil
}
