package ledger

import (
	"context"
	"fmt"
)

// appStateID is the primary key of the singleton app_state row.
const appStateID = 1

// GetAppState returns the singleton state row.
func (s *Store) GetAppState(ctx context.Context) (*AppState, error) {
	var st AppState
	if err := s.get(ctx, &st, `
		SELECT last_used_slot, num_items_on_conveyor, updated_at
		FROM app_state WHERE id = ?`, appStateID,
	); err != nil {
		return nil, notFound(err, "app state", "1")
	}
	return &st, nil
}

// LastUsedSlot returns the allocation cursor.
func (s *Store) LastUsedSlot(ctx context.Context) (int, error) {
	st, err := s.GetAppState(ctx)
	if err != nil {
		return 0, err
	}
	return st.LastUsedSlot, nil
}

// SetLastUsedSlot moves the allocation cursor.
func (s *Store) SetLastUsedSlot(ctx context.Context, slot int) error {
	return s.updateAppState(ctx, `last_used_slot = ?`, slot)
}

// AdjustItemsOnConveyor adds delta to the on-conveyor item count, never
// going below zero.
func (s *Store) AdjustItemsOnConveyor(ctx context.Context, delta int) error {
	return s.updateAppState(ctx, `num_items_on_conveyor =
		CASE WHEN num_items_on_conveyor + ? < 0 THEN 0 ELSE num_items_on_conveyor + ? END`,
		delta, delta)
}

// ResetAppState zeroes the cursor and the on-conveyor count.
func (s *Store) ResetAppState(ctx context.Context) error {
	return s.updateAppState(ctx, `last_used_slot = 0, num_items_on_conveyor = 0`)
}

func (s *Store) updateAppState(ctx context.Context, set string, args ...any) error {
	args = append(args, s.stamp(), appStateID)
	n, err := s.exec(ctx, `UPDATE app_state SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating app state: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("app state: %w", ErrNotFound)
	}
	return nil
}
