package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// DefaultMaxAttempts bounds reservation retries when Config leaves it unset.
const DefaultMaxAttempts = 10

// Config holds engine settings.
type Config struct {
	// MaxAttempts is how many lost claims ReserveNext tolerates.
	MaxAttempts int
}

// Stats summarises the slot array.
type Stats struct {
	Total           int `json:"total"`
	Empty           int `json:"empty"`
	Reserved        int `json:"reserved"`
	Occupied        int `json:"occupied"`
	Blocked         int `json:"blocked"`
	Error           int `json:"error"`
	Cursor          int `json:"last_used_slot"`
	ItemsOnConveyor int `json:"items_on_conveyor"`
}

// Engine owns every slot state transition.
//
// Thread Safety: all methods are safe for concurrent use. Reservation is
// linearised by the database, not by the engine.
type Engine struct {
	db          *database.DB
	maxAttempts int
	logger      Logger

	mu        sync.RWMutex
	observers []Observer

	// beforeClaim runs inside the reservation transaction just before the
	// conditional update. Tests use it to simulate a concurrent winner.
	beforeClaim func(tx *sqlx.Tx, slot int) error
}

// NewEngine creates a slot engine over db.
func NewEngine(db *database.DB, cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return &Engine{db: db, maxAttempts: attempts, logger: logger}
}

// AddObserver registers o for transition notifications.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) notify(slot int, state ledger.SlotState, ticket string) {
	t := Transition{Slot: slot, State: state, Ticket: ticket, At: time.Now().UTC()}
	e.mu.RLock()
	observers := e.observers
	e.mu.RUnlock()
	for _, o := range observers {
		o.SlotChanged(t)
	}
}

// Provision makes sure slots 1..count exist and returns how many were added.
func (e *Engine) Provision(ctx context.Context, count int) (int, error) {
	return ledger.NewStore(e.db).EnsureSlots(ctx, count)
}

// ReserveNext returns a slot for ticket.
//
// If ticket already holds a Reserved or Occupied slot, that slot is returned
// unchanged. Otherwise the next Empty slot after the cursor is claimed with
// a conditional Empty → Reserved update and the cursor moves to it, both in
// one transaction. A lost claim drops that slot from the candidates and
// tries again, up to MaxAttempts times. An empty ticket reserves a slot with
// no assignment.
//
// Returns:
//   - int: The reserved slot number
//   - error: ErrNoAvailableSlots when nothing could be claimed
func (e *Engine) ReserveNext(ctx context.Context, ticket string) (int, error) {
	var (
		slot     int
		existing bool
	)
	err := e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		slot, existing, err = e.reserveTx(ctx, tx, ticket)
		return err
	})
	if err != nil {
		return 0, err
	}

	if existing {
		e.logger.Debug("ticket already holds slot", "ticket", ticket, "slot", slot)
		return slot, nil
	}
	e.logger.Info("slot reserved", "slot", slot, "ticket", ticket)
	e.notify(slot, ledger.SlotReserved, ticket)
	return slot, nil
}

// ReserveNextTx is ReserveNext inside a caller-owned transaction. Observers
// are not notified; the caller reports the transition after commit with
// Announce.
func (e *Engine) ReserveNextTx(ctx context.Context, tx *sqlx.Tx, ticket string) (slot int, existing bool, err error) {
	return e.reserveTx(ctx, tx, ticket)
}

// Announce notifies observers of a transition committed outside the engine.
func (e *Engine) Announce(slot int, state ledger.SlotState, ticket string) {
	e.notify(slot, state, ticket)
}

func (e *Engine) reserveTx(ctx context.Context, tx *sqlx.Tx, ticket string) (int, bool, error) {
	store := ledger.NewStore(tx)

	if ticket != "" {
		if err := store.LockTicket(ctx, ticket); err != nil {
			return 0, false, err
		}
		held, err := store.SlotForTicket(ctx, ticket)
		switch {
		case err == nil:
			return held.Number, true, nil
		case !errors.Is(err, ledger.ErrNotFound):
			return 0, false, err
		}
	}

	cursor, err := store.LastUsedSlot(ctx)
	if err != nil {
		return 0, false, err
	}

	lost := make(map[int]struct{})
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		empties, err := store.EmptySlotNumbers(ctx)
		if err != nil {
			return 0, false, err
		}
		candidate, ok := PickAfter(without(empties, lost), cursor)
		if !ok {
			return 0, false, ErrNoAvailableSlots
		}

		if e.beforeClaim != nil {
			if err := e.beforeClaim(tx, candidate); err != nil {
				return 0, false, err
			}
		}

		won, err := store.TryReserveSlot(ctx, candidate, ticket)
		if err != nil {
			return 0, false, err
		}
		if !won {
			e.logger.Debug("slot claim lost", "slot", candidate, "attempt", attempt)
			lost[candidate] = struct{}{}
			continue
		}

		if err := store.SetLastUsedSlot(ctx, candidate); err != nil {
			return 0, false, err
		}
		return candidate, false, nil
	}

	e.logger.Warn("slot reservation attempts exhausted", "attempts", e.maxAttempts, "ticket", ticket)
	return 0, false, ErrNoAvailableSlots
}

// Free moves a slot to Empty and clears its assignment. Garments of the
// ticket it held are marked as off the conveyor. Freeing an Empty slot is a
// no-op that still succeeds.
func (e *Engine) Free(ctx context.Context, slot int) error {
	if slot < 1 {
		return ErrInvalidSlot
	}
	err := e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return FreeTx(ctx, tx, slot)
	})
	if err != nil {
		return err
	}
	e.logger.Info("slot freed", "slot", slot)
	e.notify(slot, ledger.SlotEmpty, "")
	return nil
}

// FreeTx is Free inside a caller-owned transaction.
func FreeTx(ctx context.Context, tx *sqlx.Tx, slot int) error {
	store := ledger.NewStore(tx)
	current, err := store.GetSlot(ctx, slot)
	if err != nil {
		return err
	}
	if err := store.FreeSlot(ctx, slot); err != nil {
		return err
	}
	if ticket := current.Ticket(); ticket != "" {
		if err := store.SetTicketGarmentsSlot(ctx, ticket, ledger.NoSlot); err != nil {
			return err
		}
	}
	return nil
}

// SetOccupied marks a slot Occupied by ticket. itemID may be empty.
// Garments of the ticket record the slot as their location.
func (e *Engine) SetOccupied(ctx context.Context, slot int, ticket, itemID string) error {
	if slot < 1 {
		return ErrInvalidSlot
	}
	err := e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		store := ledger.NewStore(tx)
		if err := store.OccupySlot(ctx, slot, ticket, itemID); err != nil {
			return err
		}
		if ticket != "" {
			return store.SetTicketGarmentsSlot(ctx, ticket, slot)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.notify(slot, ledger.SlotOccupied, ticket)
	return nil
}

// SetBlocked takes a slot out of rotation until it is cleared.
func (e *Engine) SetBlocked(ctx context.Context, slot int) error {
	return e.setSideState(ctx, slot, ledger.SlotBlocked)
}

// SetError records a fault on a slot until it is cleared.
func (e *Engine) SetError(ctx context.Context, slot int) error {
	return e.setSideState(ctx, slot, ledger.SlotError)
}

func (e *Engine) setSideState(ctx context.Context, slot int, state ledger.SlotState) error {
	if slot < 1 {
		return ErrInvalidSlot
	}
	if err := ledger.NewStore(e.db).SetSlotState(ctx, slot, state); err != nil {
		return err
	}
	e.logger.Warn("slot taken out of rotation", "slot", slot, "state", state)
	e.notify(slot, state, "")
	return nil
}

// Clear returns a Blocked or Error slot to Empty.
func (e *Engine) Clear(ctx context.Context, slot int) error {
	if slot < 1 {
		return ErrInvalidSlot
	}
	err := e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := ledger.NewStore(tx).GetSlot(ctx, slot)
		if err != nil {
			return err
		}
		if current.State != ledger.SlotBlocked && current.State != ledger.SlotError {
			return fmt.Errorf("slot %d is %s: %w", slot, current.State, ErrNotFaulted)
		}
		return FreeTx(ctx, tx, slot)
	})
	if err != nil {
		return err
	}
	e.logger.Info("slot cleared", "slot", slot)
	e.notify(slot, ledger.SlotEmpty, "")
	return nil
}

// ClearConveyor resets the whole array in one transaction: every slot goes
// to Empty, every garment leaves the conveyor, and the cursor and
// items-on-conveyor count go to zero. Tickets are not touched.
//
// Returns the number of slots that changed.
func (e *Engine) ClearConveyor(ctx context.Context) (int64, error) {
	var changed int64
	err := e.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		store := ledger.NewStore(tx)
		n, err := store.ResetAllSlots(ctx)
		if err != nil {
			return err
		}
		changed = n
		if err := store.ClearGarmentSlots(ctx); err != nil {
			return err
		}
		return store.ResetAppState(ctx)
	})
	if err != nil {
		return 0, err
	}
	e.logger.Warn("conveyor cleared", "slots_reset", changed)
	e.notify(0, ledger.SlotEmpty, "")
	return changed, nil
}

// Get returns one slot.
func (e *Engine) Get(ctx context.Context, slot int) (*ledger.Slot, error) {
	if slot < 1 {
		return nil, ErrInvalidSlot
	}
	return ledger.NewStore(e.db).GetSlot(ctx, slot)
}

// List returns every slot.
func (e *Engine) List(ctx context.Context) ([]ledger.Slot, error) {
	return ledger.NewStore(e.db).ListSlots(ctx)
}

// Stats counts slots per state alongside the cursor.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	store := ledger.NewStore(e.db)
	counts, err := store.CountSlotsByState(ctx)
	if err != nil {
		return Stats{}, err
	}
	state, err := store.GetAppState(ctx)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		Empty:           counts[ledger.SlotEmpty],
		Reserved:        counts[ledger.SlotReserved],
		Occupied:        counts[ledger.SlotOccupied],
		Blocked:         counts[ledger.SlotBlocked],
		Error:           counts[ledger.SlotError],
		Cursor:          state.LastUsedSlot,
		ItemsOnConveyor: state.ItemsOnConveyor,
	}
	for _, n := range counts {
		s.Total += n
	}
	return s, nil
}
