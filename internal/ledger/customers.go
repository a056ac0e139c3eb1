package ledger

import (
	"context"
	"fmt"
)

const customerColumns = `customer_identifier, first_name, last_name, phone_number, created_at`

// CreateCustomer inserts c unless its identifier is already known.
// It reports whether a row was created.
func (s *Store) CreateCustomer(ctx context.Context, c Customer) (bool, error) {
	n, err := s.exec(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (customer_identifier) DO NOTHING`,
		c.Identifier, c.FirstName, c.LastName, c.PhoneNumber, s.stamp(),
	)
	if err != nil {
		return false, fmt.Errorf("creating customer %q: %w", c.Identifier, err)
	}
	return n == 1, nil
}

// GetCustomer returns the customer with the given identifier.
func (s *Store) GetCustomer(ctx context.Context, identifier string) (*Customer, error) {
	var c Customer
	if err := s.get(ctx, &c,
		`SELECT `+customerColumns+` FROM customers WHERE customer_identifier = ?`, identifier,
	); err != nil {
		return nil, notFound(err, "customer", identifier)
	}
	return &c, nil
}

// CountCustomers returns the number of customers.
func (s *Store) CountCustomers(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM customers`); err != nil {
		return 0, fmt.Errorf("counting customers: %w", err)
	}
	return n, nil
}

// ListCustomers returns customers whose identifier, name or phone contains
// query (case-insensitive). An empty query lists everyone.
func (s *Store) ListCustomers(ctx context.Context, query string) ([]Customer, error) {
	customers := []Customer{}
	var err error
	if query == "" {
		err = s.selectAll(ctx, &customers,
			`SELECT `+customerColumns+` FROM customers ORDER BY last_name, first_name`)
	} else {
		p := likePattern(query)
		err = s.selectAll(ctx, &customers, `
			SELECT `+customerColumns+` FROM customers
			WHERE LOWER(customer_identifier) LIKE LOWER(?)
			   OR LOWER(first_name) LIKE LOWER(?)
			   OR LOWER(last_name) LIKE LOWER(?)
			   OR phone_number LIKE ?
			ORDER BY last_name, first_name`, p, p, p, p)
	}
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return customers, nil
}
