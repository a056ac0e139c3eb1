package spot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/conveyor-core/internal/ledger"
)

func applyOp(ctx context.Context, store *ledger.Store, op Op) (Outcome, error) {
	switch o := op.(type) {
	case AddItem:
		return applyAddItem(ctx, store, o)
	case AddInvoice:
		return applyAddInvoice(ctx, store, o)
	case DeleteItem:
		return applyDeleteItem(ctx, store, o)
	case DeleteInvoice:
		return OutcomeNoop, nil
	default:
		return OutcomeFailed, fmt.Errorf("%w: %T", ErrUnsupportedOp, op)
	}
}

func customerFrom(h Header) ledger.Customer {
	return ledger.Customer{
		Identifier:  h.CustomerIdentifier,
		FirstName:   h.FirstName,
		LastName:    h.LastName,
		PhoneNumber: h.PhoneNumber,
	}
}

func ticketFrom(h Header, dropoff, pickup time.Time) ledger.Ticket {
	return ledger.Ticket{
		FullInvoiceNumber:    h.FullInvoiceNumber,
		DisplayInvoiceNumber: h.DisplayInvoiceNumber,
		NumberOfItems:        h.NumberOfItems,
		CustomerIdentifier:   h.CustomerIdentifier,
		CustomerFirstName:    h.FirstName,
		CustomerLastName:     h.LastName,
		CustomerPhoneNumber:  h.PhoneNumber,
		DropoffDate:          ledger.NewTimestamp(dropoff),
		PickupDate:           ledger.NewTimestamp(pickup),
		BalanceDue:           h.BalanceDue,
	}
}

// applyAddItem creates the customer, garment and ticket when unseen. A
// known ticket takes the new item count and any later dates; dates never
// move backward.
func applyAddItem(ctx context.Context, store *ledger.Store, op AddItem) (Outcome, error) {
	changed, err := store.CreateCustomer(ctx, customerFrom(op.Header))
	if err != nil {
		return OutcomeFailed, err
	}

	created, err := store.CreateGarment(ctx, ledger.Garment{
		ItemID:               op.ItemID,
		FullInvoiceNumber:    op.FullInvoiceNumber,
		DisplayInvoiceNumber: op.DisplayInvoiceNumber,
		Description:          op.Description,
		ItemComments:         op.ItemComments,
		InvoiceComments:      op.InvoiceComments,
		DropoffDate:          ledger.NewTimestamp(op.Dropoff),
		PickupDate:           ledger.NewTimestamp(op.Pickup),
	})
	if err != nil {
		return OutcomeFailed, err
	}
	changed = changed || created

	updated, err := upsertTicket(ctx, store, ticketFrom(op.Header, op.Dropoff, op.Pickup))
	if err != nil {
		return OutcomeFailed, err
	}
	return outcome(changed || updated), nil
}

// applyAddInvoice creates the customer and a ticket shell when unseen, or
// refreshes a known ticket's item count.
func applyAddInvoice(ctx context.Context, store *ledger.Store, op AddInvoice) (Outcome, error) {
	changed, err := store.CreateCustomer(ctx, customerFrom(op.Header))
	if err != nil {
		return OutcomeFailed, err
	}
	updated, err := upsertTicket(ctx, store, ticketFrom(op.Header, time.Time{}, time.Time{}))
	if err != nil {
		return OutcomeFailed, err
	}
	return outcome(changed || updated), nil
}

// upsertTicket inserts t, or applies its header, item count and later
// dates to the stored ticket. Empty header fields keep the stored value. It
// reports whether anything changed.
func upsertTicket(ctx context.Context, store *ledger.Store, t ledger.Ticket) (bool, error) {
	created, err := store.CreateTicket(ctx, t)
	if err != nil || created {
		return created, err
	}

	current, err := store.GetTicket(ctx, t.FullInvoiceNumber)
	if err != nil {
		return false, err
	}
	next := *current
	next.DisplayInvoiceNumber = orStored(t.DisplayInvoiceNumber, current.DisplayInvoiceNumber)
	next.CustomerIdentifier = orStored(t.CustomerIdentifier, current.CustomerIdentifier)
	next.CustomerFirstName = orStored(t.CustomerFirstName, current.CustomerFirstName)
	next.CustomerLastName = orStored(t.CustomerLastName, current.CustomerLastName)
	next.CustomerPhoneNumber = orStored(t.CustomerPhoneNumber, current.CustomerPhoneNumber)
	next.BalanceDue = t.BalanceDue
	next.NumberOfItems = t.NumberOfItems
	next.DropoffDate = later(current.DropoffDate, t.DropoffDate)
	next.PickupDate = later(current.PickupDate, t.PickupDate)

	if sameHeader(next, *current) {
		return false, nil
	}
	if err := store.UpdateTicketHeader(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

func orStored(incoming, stored string) string {
	if incoming == "" {
		return stored
	}
	return incoming
}

// sameHeader compares the fields a POS export can change.
func sameHeader(a, b ledger.Ticket) bool {
	return a.DisplayInvoiceNumber == b.DisplayInvoiceNumber &&
		a.CustomerIdentifier == b.CustomerIdentifier &&
		a.CustomerFirstName == b.CustomerFirstName &&
		a.CustomerLastName == b.CustomerLastName &&
		a.CustomerPhoneNumber == b.CustomerPhoneNumber &&
		a.BalanceDue == b.BalanceDue &&
		a.NumberOfItems == b.NumberOfItems &&
		a.DropoffDate.Equal(b.DropoffDate.Time) &&
		a.PickupDate.Equal(b.PickupDate.Time)
}

// later returns candidate when it is after stored, else stored.
func later(stored, candidate ledger.Timestamp) ledger.Timestamp {
	if candidate.IsZero() || (!stored.IsZero() && !candidate.After(stored.Time)) {
		return stored
	}
	return candidate
}

// applyDeleteItem deletes a garment unless its ticket is mid-processing.
func applyDeleteItem(ctx context.Context, store *ledger.Store, op DeleteItem) (Outcome, error) {
	ticket, err := store.GetTicket(ctx, op.FullInvoiceNumber)
	switch {
	case err == nil:
		if ticket.Status == ledger.StatusProcessing {
			return OutcomeSkippedProcessing, nil
		}
	case !errors.Is(err, ledger.ErrNotFound):
		return OutcomeFailed, err
	}

	n, err := store.DeleteGarment(ctx, op.ItemID)
	if err != nil {
		return OutcomeFailed, err
	}
	switch {
	case n == 0:
		return OutcomeNotFound, nil
	case n == 1:
		return OutcomeApplied, nil
	default:
		return OutcomeFailed, fmt.Errorf("garment %q: %d rows deleted: %w", op.ItemID, n, ledger.ErrIntegrity)
	}
}

func outcome(changed bool) Outcome {
	if changed {
		return OutcomeApplied
	}
	return OutcomeNoop
}
