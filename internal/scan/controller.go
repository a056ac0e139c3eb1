package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/ledger"
	"github.com/nerrad567/conveyor-core/internal/slots"
)

// MinCodeLength is the shortest barcode accepted as a scan.
const MinCodeLength = 4

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Router drives the conveyor to a slot.
type Router interface {
	RunToSlot(ctx context.Context, slot int) error
}

// HangerWaiter confirms that a hanger reached the load position.
type HangerWaiter interface {
	WaitForHanger(ctx context.Context) (bool, error)
}

// OutputLog records loads in the conveyor output file.
type OutputLog interface {
	LoadItem(invoice, itemID string, slot int) error
	LoadInvoice(invoice string, slot int) error
}

// Deps holds the collaborators of a Controller. DB and Slots are required.
type Deps struct {
	DB     *database.DB
	Slots  *slots.Engine
	Router Router
	Hanger HangerWaiter
	Output OutputLog
	Logger Logger
}

// Result is the outcome of a scan or a ticket completion. LastGarment is
// true when the garment of this call is the ticket's final one.
type Result struct {
	Code              string `json:"code"`
	Ticket            string `json:"ticket"`
	Slot              int    `json:"slot"`
	FirstOfTicket     bool   `json:"first_of_ticket"`
	LastGarment       bool   `json:"last_garment"`
	GarmentsProcessed int    `json:"garments_processed"`
	NumberOfItems     int    `json:"number_of_items"`
}

// Controller runs the scan workflow.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent scans
// of one ticket are serialised by the ledger transaction.
type Controller struct {
	db     *database.DB
	slots  *slots.Engine
	router Router
	hanger HangerWaiter
	output OutputLog
	logger Logger

	mu    sync.RWMutex
	hooks []Hook
}

// NewController creates a controller.
func NewController(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		db:     deps.DB,
		slots:  deps.Slots,
		router: deps.Router,
		hanger: deps.Hanger,
		output: deps.Output,
		logger: logger,
	}
}

// Scan handles one barcode. It counts the garment against its ticket and
// returns the slot the garment goes to: the ticket's current slot, or a
// newly reserved one for the first garment. sessionID, when set, gets its
// scan counter bumped in the same transaction.
//
// A ticket whose garments are all counted is rejected with
// ErrTicketComplete; it is finished with HandleLastScan. Every failure is
// an *Error naming the code and the stage.
func (c *Controller) Scan(ctx context.Context, code, sessionID string) (*Result, error) {
	if len(code) < MinCodeLength {
		return nil, stageError(code, StageValidate, ErrMalformedCode)
	}

	var res Result
	err := c.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		store := ledger.NewStore(tx)

		_, ticket, err := lookup(ctx, store, code)
		if err != nil {
			return err
		}
		if ticket.Status == ledger.StatusProcessed {
			return stageError(code, StageTicket, fmt.Errorf("%w: %s", ErrTicketProcessed, ticket.FullInvoiceNumber))
		}
		if ticket.GarmentsProcessed >= ticket.NumberOfItems {
			return stageError(code, StageTicket, fmt.Errorf("%w: %s has %d of %d",
				ErrTicketComplete, ticket.FullInvoiceNumber, ticket.GarmentsProcessed, ticket.NumberOfItems))
		}

		res = Result{
			Code:              code,
			Ticket:            ticket.FullInvoiceNumber,
			GarmentsProcessed: ticket.GarmentsProcessed + 1,
			NumberOfItems:     ticket.NumberOfItems,
			LastGarment:       lastGarment(ticket),
		}

		held, err := store.SlotForTicket(ctx, ticket.FullInvoiceNumber)
		switch {
		case err == nil:
			res.Slot = held.Number
		case errors.Is(err, ledger.ErrNotFound):
			res.FirstOfTicket = true
		default:
			return stageError(code, StageReservation, err)
		}

		if err := store.SaveTicketProgress(ctx, ticket.FullInvoiceNumber, res.GarmentsProcessed, ledger.StatusProcessing); err != nil {
			return stageError(code, StageUpdate, err)
		}

		if res.FirstOfTicket {
			slot, _, err := c.slots.ReserveNextTx(ctx, tx, ticket.FullInvoiceNumber)
			if err != nil {
				return stageError(code, StageReservation, err)
			}
			res.Slot = slot
		}

		if err := store.AdjustItemsOnConveyor(ctx, 1); err != nil {
			return stageError(code, StageUpdate, err)
		}
		if sessionID != "" {
			if err := store.IncrementGarmentsScanned(ctx, sessionID); err != nil {
				return stageError(code, StageSession, err)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("scan failed", "code", code, "error", err)
		return nil, asStageError(code, err)
	}

	if res.FirstOfTicket {
		c.slots.Announce(res.Slot, ledger.SlotReserved, res.Ticket)
	}
	if c.output != nil {
		if err := c.output.LoadItem(res.Ticket, code, res.Slot); err != nil {
			c.logger.Error("writing conveyor output", "op", "LOADITEM", "error", err)
		}
	}

	c.logger.Info("garment scanned",
		"code", code,
		"ticket", res.Ticket,
		"slot", res.Slot,
		"processed", res.GarmentsProcessed,
		"items", res.NumberOfItems,
	)
	c.emit(Event{Kind: EventScanned, Result: res})
	return &res, nil
}

// IsLastGarment reports whether scanning code would complete its ticket.
// Nothing is changed.
func (c *Controller) IsLastGarment(ctx context.Context, code string) (bool, error) {
	if len(code) < MinCodeLength {
		return false, stageError(code, StageValidate, ErrMalformedCode)
	}
	_, ticket, err := lookup(ctx, ledger.NewStore(c.db), code)
	if err != nil {
		return false, err
	}
	return lastGarment(ticket), nil
}

// HandleLastScan completes the ticket of code: the status becomes Processed,
// every item counts as processed and the ticket's slot is freed. A ticket
// that never held a slot, such as a single-item one, is given one first so
// the garment has a destination. The returned Result carries that slot.
// Completing a Processed ticket fails with ErrTicketProcessed and changes
// nothing.
func (c *Controller) HandleLastScan(ctx context.Context, code, sessionID string) (*Result, error) {
	if len(code) < MinCodeLength {
		return nil, stageError(code, StageValidate, ErrMalformedCode)
	}

	var res Result
	err := c.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		store := ledger.NewStore(tx)

		_, ticket, err := lookup(ctx, store, code)
		if err != nil {
			return err
		}
		if ticket.Status == ledger.StatusProcessed {
			return stageError(code, StageTicket, fmt.Errorf("%w: %s", ErrTicketProcessed, ticket.FullInvoiceNumber))
		}
		res = Result{
			Code:              code,
			Ticket:            ticket.FullInvoiceNumber,
			GarmentsProcessed: ticket.NumberOfItems,
			NumberOfItems:     ticket.NumberOfItems,
			LastGarment:       true,
		}

		held, err := store.SlotForTicket(ctx, ticket.FullInvoiceNumber)
		switch {
		case err == nil:
			res.Slot = held.Number
		case errors.Is(err, ledger.ErrNotFound):
			slot, _, err := c.slots.ReserveNextTx(ctx, tx, ticket.FullInvoiceNumber)
			switch {
			case err == nil:
				res.Slot = slot
				res.FirstOfTicket = true
			case errors.Is(err, slots.ErrNoAvailableSlots):
				c.logger.Warn("completing ticket without a slot", "ticket", ticket.FullInvoiceNumber)
			default:
				return stageError(code, StageReservation, err)
			}
		default:
			return stageError(code, StageReservation, err)
		}

		if err := store.SaveTicketProgress(ctx, ticket.FullInvoiceNumber, ticket.NumberOfItems, ledger.StatusProcessed); err != nil {
			return stageError(code, StageUpdate, err)
		}
		if res.Slot > 0 {
			if err := slots.FreeTx(ctx, tx, res.Slot); err != nil {
				return stageError(code, StageReservation, err)
			}
		}
		if err := store.AdjustItemsOnConveyor(ctx, -ticket.GarmentsProcessed); err != nil {
			return stageError(code, StageUpdate, err)
		}
		if sessionID != "" {
			// A garment already counted by Scan is not counted twice.
			if ticket.GarmentsProcessed < ticket.NumberOfItems {
				if err := store.IncrementGarmentsScanned(ctx, sessionID); err != nil {
					return stageError(code, StageSession, err)
				}
			}
			if err := store.IncrementTicketsCompleted(ctx, sessionID); err != nil {
				return stageError(code, StageSession, err)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("ticket completion failed", "code", code, "error", err)
		return nil, asStageError(code, err)
	}

	if res.Slot > 0 {
		c.slots.Announce(res.Slot, ledger.SlotEmpty, "")
	}
	if c.output != nil {
		if err := c.output.LoadInvoice(res.Ticket, res.Slot); err != nil {
			c.logger.Error("writing conveyor output", "op", "LOADINV", "error", err)
		}
	}

	c.logger.Info("ticket completed", "code", code, "ticket", res.Ticket, "slot", res.Slot)
	c.emit(Event{Kind: EventCompleted, Result: res})
	return &res, nil
}

// Route runs the conveyor to slot and waits for the hanger. It returns
// true when the hanger was seen before the wait timed out, in which case a
// Reserved slot is marked Occupied by its ticket.
func (c *Controller) Route(ctx context.Context, slot int) (bool, error) {
	code := fmt.Sprintf("slot %d", slot)
	if c.router == nil {
		return false, stageError(code, StageRouting, ErrNoConveyor)
	}
	if err := c.router.RunToSlot(ctx, slot); err != nil {
		return false, stageError(code, StageRouting, err)
	}
	if c.hanger == nil {
		return false, nil
	}

	hung, err := c.hanger.WaitForHanger(ctx)
	if err != nil {
		return false, stageError(code, StageHanger, err)
	}
	if !hung {
		c.logger.Warn("hanger not detected", "slot", slot)
	} else if err := c.occupy(ctx, slot); err != nil {
		c.logger.Error("marking slot occupied", "slot", slot, "error", err)
	}

	c.emit(Event{Kind: EventRouted, Result: Result{Slot: slot}, Hung: hung})
	return hung, nil
}

func (c *Controller) occupy(ctx context.Context, slot int) error {
	current, err := c.slots.Get(ctx, slot)
	if err != nil {
		return err
	}
	if current.State != ledger.SlotReserved {
		return nil
	}
	return c.slots.SetOccupied(ctx, slot, current.Ticket(), "")
}

// lookup resolves a barcode to its garment and owning ticket.
func lookup(ctx context.Context, store *ledger.Store, code string) (*ledger.Garment, *ledger.Ticket, error) {
	garment, err := store.GetGarment(ctx, code)
	if err != nil {
		return nil, nil, stageError(code, StageGarment, err)
	}
	ticket, err := store.GetTicket(ctx, garment.FullInvoiceNumber)
	if err != nil {
		return nil, nil, stageError(code, StageTicket, err)
	}
	return garment, ticket, nil
}

func lastGarment(t *ledger.Ticket) bool {
	return t.GarmentsProcessed+1 >= t.NumberOfItems
}

// asStageError keeps an *Error from inside the transaction and wraps
// anything else, such as a failed commit.
func asStageError(code string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return stageError(code, StageUpdate, err)
}
