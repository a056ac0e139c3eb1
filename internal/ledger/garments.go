package ledger

import (
	"context"
	"fmt"
)

const garmentColumns = `item_id, full_invoice_number, display_invoice_number,
	item_description, item_comments, invoice_comments, invoice_dropoff_date,
	invoice_pickup_date, slot_number, created_at`

// CreateGarment inserts g unless its item id is already known.
// New garments are not on the conveyor.
func (s *Store) CreateGarment(ctx context.Context, g Garment) (bool, error) {
	n, err := s.exec(ctx, `
		INSERT INTO garments (`+garmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id) DO NOTHING`,
		g.ItemID, g.FullInvoiceNumber, g.DisplayInvoiceNumber, g.Description,
		g.ItemComments, g.InvoiceComments, g.DropoffDate, g.PickupDate,
		NoSlot, s.stamp(),
	)
	if err != nil {
		return false, fmt.Errorf("creating garment %q: %w", g.ItemID, err)
	}
	return n == 1, nil
}

// GetGarment returns the garment with the given barcode.
func (s *Store) GetGarment(ctx context.Context, itemID string) (*Garment, error) {
	var g Garment
	if err := s.get(ctx, &g,
		`SELECT `+garmentColumns+` FROM garments WHERE item_id = ?`, itemID,
	); err != nil {
		return nil, notFound(err, "garment", itemID)
	}
	return &g, nil
}

// DeleteGarment deletes by item id and returns how many rows went.
// Interpreting zero or several rows is left to the caller.
func (s *Store) DeleteGarment(ctx context.Context, itemID string) (int64, error) {
	n, err := s.exec(ctx, `DELETE FROM garments WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, fmt.Errorf("deleting garment %q: %w", itemID, err)
	}
	return n, nil
}

// CountGarments returns the number of garments.
func (s *Store) CountGarments(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM garments`); err != nil {
		return 0, fmt.Errorf("counting garments: %w", err)
	}
	return n, nil
}

// ListGarmentsForTicket returns a ticket's garments ordered by item id.
func (s *Store) ListGarmentsForTicket(ctx context.Context, invoice string) ([]Garment, error) {
	garments := []Garment{}
	if err := s.selectAll(ctx, &garments, `
		SELECT `+garmentColumns+` FROM garments
		WHERE full_invoice_number = ?
		ORDER BY item_id`, invoice,
	); err != nil {
		return nil, fmt.Errorf("listing garments for ticket %q: %w", invoice, err)
	}
	return garments, nil
}

// SetTicketGarmentsSlot updates the cached slot of every garment on a
// ticket. Pass NoSlot when the ticket leaves the conveyor.
func (s *Store) SetTicketGarmentsSlot(ctx context.Context, invoice string, slot int) error {
	if _, err := s.exec(ctx,
		`UPDATE garments SET slot_number = ? WHERE full_invoice_number = ?`, slot, invoice,
	); err != nil {
		return fmt.Errorf("setting slot for garments of %q: %w", invoice, err)
	}
	return nil
}

// ClearGarmentSlots marks every garment as off the conveyor.
func (s *Store) ClearGarmentSlots(ctx context.Context) error {
	if _, err := s.exec(ctx, `UPDATE garments SET slot_number = ? WHERE slot_number <> ?`, NoSlot, NoSlot); err != nil {
		return fmt.Errorf("clearing garment slots: %w", err)
	}
	return nil
}
