package ledger

import (
	"context"
	"fmt"
)

const ticketColumns = `full_invoice_number, display_invoice_number, number_of_items,
	garments_processed, ticket_status, customer_identifier, customer_first_name,
	customer_last_name, customer_phone_number, invoice_dropoff_date,
	invoice_pickup_date, balance_due, created_at, updated_at`

// CreateTicket inserts t unless the invoice is already known.
// A new ticket starts Not Processed with nothing processed.
func (s *Store) CreateTicket(ctx context.Context, t Ticket) (bool, error) {
	now := s.stamp()
	n, err := s.exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (full_invoice_number) DO NOTHING`,
		t.FullInvoiceNumber, t.DisplayInvoiceNumber, t.NumberOfItems,
		StatusNotProcessed, t.CustomerIdentifier, t.CustomerFirstName,
		t.CustomerLastName, t.CustomerPhoneNumber, t.DropoffDate,
		t.PickupDate, t.BalanceDue, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("creating ticket %q: %w", t.FullInvoiceNumber, err)
	}
	return n == 1, nil
}

// GetTicket returns the ticket for a full invoice number.
func (s *Store) GetTicket(ctx context.Context, invoice string) (*Ticket, error) {
	var t Ticket
	if err := s.get(ctx, &t,
		`SELECT `+ticketColumns+` FROM tickets WHERE full_invoice_number = ?`, invoice,
	); err != nil {
		return nil, notFound(err, "ticket", invoice)
	}
	return &t, nil
}

// UpdateTicketHeader rewrites the POS-owned fields of a ticket: display
// number, item count, customer details, dates and balance. Progress and
// status are left alone.
func (s *Store) UpdateTicketHeader(ctx context.Context, t Ticket) error {
	n, err := s.exec(ctx, `
		UPDATE tickets SET
			display_invoice_number = ?,
			number_of_items = ?,
			customer_identifier = ?,
			customer_first_name = ?,
			customer_last_name = ?,
			customer_phone_number = ?,
			invoice_dropoff_date = ?,
			invoice_pickup_date = ?,
			balance_due = ?,
			updated_at = ?
		WHERE full_invoice_number = ?`,
		t.DisplayInvoiceNumber, t.NumberOfItems, t.CustomerIdentifier,
		t.CustomerFirstName, t.CustomerLastName, t.CustomerPhoneNumber,
		t.DropoffDate, t.PickupDate, t.BalanceDue, s.stamp(), t.FullInvoiceNumber,
	)
	if err != nil {
		return fmt.Errorf("updating ticket %q: %w", t.FullInvoiceNumber, err)
	}
	if n == 0 {
		return fmt.Errorf("ticket %q: %w", t.FullInvoiceNumber, ErrNotFound)
	}
	return nil
}

// SaveTicketProgress persists the processed count and status of a ticket.
func (s *Store) SaveTicketProgress(ctx context.Context, invoice string, processed int, status TicketStatus) error {
	n, err := s.exec(ctx, `
		UPDATE tickets SET garments_processed = ?, ticket_status = ?, updated_at = ?
		WHERE full_invoice_number = ?`,
		processed, status, s.stamp(), invoice,
	)
	if err != nil {
		return fmt.Errorf("saving progress for ticket %q: %w", invoice, err)
	}
	if n == 0 {
		return fmt.Errorf("ticket %q: %w", invoice, ErrNotFound)
	}
	return nil
}

// CountTickets returns the number of tickets.
func (s *Store) CountTickets(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM tickets`); err != nil {
		return 0, fmt.Errorf("counting tickets: %w", err)
	}
	return n, nil
}

// ListTickets returns tickets whose invoice numbers or customer name
// contain query (case-insensitive), newest first.
func (s *Store) ListTickets(ctx context.Context, query string) ([]Ticket, error) {
	tickets := []Ticket{}
	var err error
	if query == "" {
		err = s.selectAll(ctx, &tickets,
			`SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC, full_invoice_number`)
	} else {
		p := likePattern(query)
		err = s.selectAll(ctx, &tickets, `
			SELECT `+ticketColumns+` FROM tickets
			WHERE LOWER(full_invoice_number) LIKE LOWER(?)
			   OR LOWER(display_invoice_number) LIKE LOWER(?)
			   OR LOWER(customer_first_name) LIKE LOWER(?)
			   OR LOWER(customer_last_name) LIKE LOWER(?)
			ORDER BY created_at DESC, full_invoice_number`, p, p, p, p)
	}
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	return tickets, nil
}

// ListTicketsForCustomer returns a customer's tickets, newest first.
func (s *Store) ListTicketsForCustomer(ctx context.Context, identifier string) ([]Ticket, error) {
	tickets := []Ticket{}
	if err := s.selectAll(ctx, &tickets, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE customer_identifier = ?
		ORDER BY created_at DESC, full_invoice_number`, identifier,
	); err != nil {
		return nil, fmt.Errorf("listing tickets for customer %q: %w", identifier, err)
	}
	return tickets, nil
}
