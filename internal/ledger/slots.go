package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
)

const slotColumns = `slot_number, slot_state, assigned_ticket, item_id, created_at, updated_at`

// EnsureSlots provisions slots 1..count as Empty, leaving existing rows
// untouched. It returns how many rows were created.
func (s *Store) EnsureSlots(ctx context.Context, count int) (int, error) {
	created := 0
	now := s.stamp()
	for n := 1; n <= count; n++ {
		rows, err := s.exec(ctx, `
			INSERT INTO slots (`+slotColumns+`)
			VALUES (?, ?, NULL, NULL, ?, ?)
			ON CONFLICT (slot_number) DO NOTHING`,
			n, SlotEmpty, now, now,
		)
		if err != nil {
			return created, fmt.Errorf("provisioning slot %d: %w", n, err)
		}
		created += int(rows)
	}
	return created, nil
}

// GetSlot returns one slot.
func (s *Store) GetSlot(ctx context.Context, number int) (*Slot, error) {
	var slot Slot
	if err := s.get(ctx, &slot,
		`SELECT `+slotColumns+` FROM slots WHERE slot_number = ?`, number,
	); err != nil {
		return nil, notFound(err, "slot", strconv.Itoa(number))
	}
	return &slot, nil
}

// ListSlots returns every slot ordered by number.
func (s *Store) ListSlots(ctx context.Context) ([]Slot, error) {
	slots := []Slot{}
	if err := s.selectAll(ctx, &slots, `SELECT `+slotColumns+` FROM slots ORDER BY slot_number`); err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	return slots, nil
}

// EmptySlotNumbers returns the numbers of all Empty slots in ascending order.
func (s *Store) EmptySlotNumbers(ctx context.Context) ([]int, error) {
	numbers := []int{}
	if err := s.selectAll(ctx, &numbers,
		`SELECT slot_number FROM slots WHERE slot_state = ? ORDER BY slot_number`, SlotEmpty,
	); err != nil {
		return nil, fmt.Errorf("listing empty slots: %w", err)
	}
	return numbers, nil
}

// SlotForTicket returns the Reserved or Occupied slot assigned to a ticket.
// Blocked and Error slots do not count as holding the ticket.
func (s *Store) SlotForTicket(ctx context.Context, ticket string) (*Slot, error) {
	var slot Slot
	if err := s.get(ctx, &slot, `
		SELECT `+slotColumns+` FROM slots
		WHERE assigned_ticket = ? AND slot_state IN (?, ?)
		ORDER BY slot_number
		LIMIT 1`,
		ticket, SlotReserved, SlotOccupied,
	); err != nil {
		return nil, notFound(err, "slot for ticket", ticket)
	}
	return &slot, nil
}

// LockTicket holds a row lock on a ticket until the transaction ends, so
// concurrent reservations for the same ticket on PostgreSQL run one after
// the other. SQLite has a single writer and needs no lock. A missing ticket
// is not an error.
func (s *Store) LockTicket(ctx context.Context, invoice string) error {
	if s.q.DriverName() != database.DriverPostgres {
		return nil
	}
	var locked string
	err := s.get(ctx, &locked,
		`SELECT full_invoice_number FROM tickets WHERE full_invoice_number = ? FOR UPDATE`, invoice)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("locking ticket %s: %w", invoice, err)
	}
	return nil
}

// TryReserveSlot moves a slot from Empty to Reserved for ticket in one
// conditional statement. It reports false when the slot was no longer Empty,
// and ErrConflict when the ticket already holds another slot.
func (s *Store) TryReserveSlot(ctx context.Context, number int, ticket string) (bool, error) {
	var assigned any
	if ticket != "" {
		assigned = ticket
	}
	n, err := s.exec(ctx, `
		UPDATE slots
		SET slot_state = ?, assigned_ticket = ?, item_id = NULL, updated_at = ?
		WHERE slot_number = ? AND slot_state = ?`,
		SlotReserved, assigned, s.stamp(), number, SlotEmpty,
	)
	if isUniqueConstraintError(err) {
		return false, fmt.Errorf("reserving slot %d: ticket %s holds a slot: %w", number, ticket, ErrConflict)
	}
	if err != nil {
		return false, fmt.Errorf("reserving slot %d: %w", number, err)
	}
	return n == 1, nil
}

// FreeSlot moves a slot to Empty and clears its assignment, whatever its
// current state.
func (s *Store) FreeSlot(ctx context.Context, number int) error {
	n, err := s.exec(ctx, `
		UPDATE slots
		SET slot_state = ?, assigned_ticket = NULL, item_id = NULL, updated_at = ?
		WHERE slot_number = ?`,
		SlotEmpty, s.stamp(), number,
	)
	if err != nil {
		return fmt.Errorf("freeing slot %d: %w", number, err)
	}
	if n == 0 {
		return fmt.Errorf("slot %d: %w", number, ErrNotFound)
	}
	return nil
}

// OccupySlot marks a slot Occupied by ticket, optionally naming the item.
func (s *Store) OccupySlot(ctx context.Context, number int, ticket, itemID string) error {
	var assigned, item any
	if ticket != "" {
		assigned = ticket
	}
	if itemID != "" {
		item = itemID
	}
	n, err := s.exec(ctx, `
		UPDATE slots
		SET slot_state = ?, assigned_ticket = COALESCE(?, assigned_ticket), item_id = ?, updated_at = ?
		WHERE slot_number = ?`,
		SlotOccupied, assigned, item, s.stamp(), number,
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("occupying slot %d: ticket %s holds a slot: %w", number, ticket, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("occupying slot %d: %w", number, err)
	}
	if n == 0 {
		return fmt.Errorf("slot %d: %w", number, ErrNotFound)
	}
	return nil
}

// SetSlotState changes only the state of a slot, keeping its assignment.
// Used for the Blocked and Error side states.
func (s *Store) SetSlotState(ctx context.Context, number int, state SlotState) error {
	n, err := s.exec(ctx,
		`UPDATE slots SET slot_state = ?, updated_at = ? WHERE slot_number = ?`,
		state, s.stamp(), number,
	)
	if err != nil {
		return fmt.Errorf("setting slot %d to %s: %w", number, state, err)
	}
	if n == 0 {
		return fmt.Errorf("slot %d: %w", number, ErrNotFound)
	}
	return nil
}

// ResetAllSlots moves every slot to Empty and returns how many changed.
func (s *Store) ResetAllSlots(ctx context.Context) (int64, error) {
	n, err := s.exec(ctx, `
		UPDATE slots
		SET slot_state = ?, assigned_ticket = NULL, item_id = NULL, updated_at = ?
		WHERE slot_state <> ? OR assigned_ticket IS NOT NULL`,
		SlotEmpty, s.stamp(), SlotEmpty,
	)
	if err != nil {
		return 0, fmt.Errorf("resetting slots: %w", err)
	}
	return n, nil
}

// CountSlotsByState returns the number of slots in each state. States with
// no slots are present with zero.
func (s *Store) CountSlotsByState(ctx context.Context) (map[SlotState]int, error) {
	var rows []struct {
		State SlotState `db:"slot_state"`
		Count int       `db:"n"`
	}
	if err := s.selectAll(ctx, &rows,
		`SELECT slot_state, COUNT(*) AS n FROM slots GROUP BY slot_state`,
	); err != nil {
		return nil, fmt.Errorf("counting slots: %w", err)
	}

	counts := make(map[SlotState]int, len(AllSlotStates))
	for _, st := range AllSlotStates {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}
