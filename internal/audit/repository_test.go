package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	_ "github.com/nerrad567/conveyor-core/migrations"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepository(t)
	fixed := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	entry := &AuditLog{
		Action:     ActionClear,
		EntityType: EntitySlot,
		EntityID:   "3",
		Operator:   "counter",
		Source:     SourceAPI,
		Details:    map[string]any{"previous_state": "occupied"},
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Create() did not assign an ID")
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", entry.CreatedAt, fixed)
	}

	got, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 1 || len(got.Logs) != 1 {
		t.Fatalf("List() total = %d, logs = %d, want 1", got.Total, len(got.Logs))
	}
	log := got.Logs[0]
	if log.ID != entry.ID || log.Operator != "counter" || log.EntityID != "3" {
		t.Errorf("List()[0] = %+v", log)
	}
	if log.Details["previous_state"] != "occupied" {
		t.Errorf("Details = %v", log.Details)
	}
	if !log.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", log.CreatedAt, fixed)
	}
}

func TestCreate_EmptyOptionalFields(t *testing.T) {
	repo := newTestRepository(t)
	if err := repo.Create(context.Background(), &AuditLog{Action: ActionClear, EntityType: EntityConveyor, Source: SourceMQTT}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got.Logs) != 1 {
		t.Fatalf("List() logs = %d, want 1", len(got.Logs))
	}
	if got.Logs[0].EntityID != "" || got.Logs[0].Operator != "" || got.Logs[0].Details != nil {
		t.Errorf("List()[0] = %+v, want empty optional fields", got.Logs[0])
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	entries := []AuditLog{
		{Action: ActionSlot, EntityType: EntitySlot, EntityID: "1", Operator: "a", Source: SourceAPI},
		{Action: ActionClear, EntityType: EntitySlot, EntityID: "2", Operator: "b", Source: SourceAPI},
		{Action: ActionComplete, EntityType: EntityTicket, EntityID: "INV-1", Operator: "a", Source: SourceAPI},
		{Action: ActionCommand, EntityType: EntityConveyor, Source: SourceMQTT},
	}
	for i := range entries {
		entries[i].CreatedAt = base.Add(time.Duration(i) * 500 * time.Millisecond)
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
	}{
		{"all newest first", Filter{}, 4, entries[3].ID},
		{"by action", Filter{Action: ActionClear}, 1, entries[1].ID},
		{"by entity type", Filter{EntityType: EntitySlot}, 2, entries[1].ID},
		{"by entity id", Filter{EntityType: EntityTicket, EntityID: "INV-1"}, 1, entries[2].ID},
		{"by operator", Filter{Operator: "a"}, 2, entries[2].ID},
		{"offset", Filter{Limit: 1, Offset: 1}, 4, entries[2].ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", got.Total, tt.wantTotal)
			}
			if len(got.Logs) == 0 || got.Logs[0].ID != tt.wantFirst {
				t.Errorf("first = %+v, want ID %s", got.Logs, tt.wantFirst)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepository(t)
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{1000, maxLimit},
	}
	for _, tt := range tests {
		got, err := repo.List(context.Background(), Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got.Limit != tt.want || got.Offset != 0 {
			t.Errorf("List(limit=%d) limit = %d offset = %d, want %d 0", tt.in, got.Limit, got.Offset, tt.want)
		}
		if got.Logs == nil {
			t.Error("Logs = nil, want empty slice")
		}
	}
}
