// Package audit records operator actions against the conveyor and the
// ledger in the audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Actions recorded by the API and the remote command listener.
const (
	ActionLogin    = "login"
	ActionCreate   = "create"
	ActionSlot     = "slot"
	ActionClear    = "clear"
	ActionComplete = "complete"
	ActionIngest   = "ingest"
	ActionCommand  = "command"
)

// Entity types.
const (
	EntitySlot     = "slot"
	EntityConveyor = "conveyor"
	EntityTicket   = "ticket"
	EntityOperator = "operator"
	EntityBatch    = "spot_batch"
)

// Sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout has fixed-width fractions so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// AuditLog is a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Operator   string         `json:"operator,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Operator   string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of entries.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Querier is satisfied by *sqlx.DB and *database.DB.
type Querier interface {
	sqlx.ExtContext
}

// Repository reads and writes audit_logs.
type Repository struct {
	q   Querier
	now func() time.Time
}

// NewRepository creates a Repository over q.
func NewRepository(q Querier) *Repository {
	return &Repository{q: q, now: time.Now}
}

type row struct {
	ID         string         `db:"id"`
	Action     string         `db:"action"`
	EntityType string         `db:"entity_type"`
	EntityID   sql.NullString `db:"entity_id"`
	Operator   sql.NullString `db:"operator"`
	Source     string         `db:"source"`
	Details    sql.NullString `db:"details"`
	CreatedAt  string         `db:"created_at"`
}

// Create inserts an entry. ID and CreatedAt are filled in when empty.
func (r *Repository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now().UTC()
	}

	var details *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		details = &s
	}

	_, err := r.q.ExecContext(ctx, r.q.Rebind(
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, operator, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		log.ID, log.Action, log.EntityType,
		nullable(log.EntityID), nullable(log.Operator),
		log.Source, details,
		log.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, most recent first.
func (r *Repository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"action", filter.Action},
		{"entity_type", filter.EntityType},
		{"entity_id", filter.EntityID},
		{"operator", filter.Operator},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from fixed column names with ? placeholders
	if err := sqlx.GetContext(ctx, r.q, &total, r.q.Rebind(countQuery), args...); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, entity_type, entity_id, operator, source, details, created_at FROM audit_logs " + //nolint:gosec // see countQuery
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	var rows []row
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}

	logs := make([]AuditLog, 0, len(rows))
	for _, rw := range rows {
		log, err := rw.toLog()
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (rw row) toLog() (AuditLog, error) {
	log := AuditLog{
		ID:         rw.ID,
		Action:     rw.Action,
		EntityType: rw.EntityType,
		EntityID:   rw.EntityID.String,
		Operator:   rw.Operator.String,
		Source:     rw.Source,
	}
	if rw.Details.Valid && rw.Details.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(rw.Details.String), &details) == nil {
			log.Details = details
		}
	}
	t, err := time.Parse(time.RFC3339Nano, rw.CreatedAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", rw.CreatedAt, err)
	}
	log.CreatedAt = t
	return log, nil
}
