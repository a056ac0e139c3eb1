package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TicketStatus is the physical handling state of a ticket.
type TicketStatus string

// Ticket statuses.
const (
	StatusNotProcessed TicketStatus = "Not Processed"
	StatusProcessing   TicketStatus = "Processing"
	StatusProcessed    TicketStatus = "Processed"
)

// SlotState is the lifecycle state of a physical slot.
type SlotState string

// Slot states. Empty → Reserved → Occupied → Empty is the normal cycle;
// Blocked and Error are side states that need manual clearance.
const (
	SlotEmpty    SlotState = "Empty"
	SlotReserved SlotState = "Reserved"
	SlotOccupied SlotState = "Occupied"
	SlotBlocked  SlotState = "Blocked"
	SlotError    SlotState = "Error"
)

// AllSlotStates lists every slot state in display order.
var AllSlotStates = []SlotState{SlotEmpty, SlotReserved, SlotOccupied, SlotBlocked, SlotError}

// Valid reports whether s is a known slot state.
func (s SlotState) Valid() bool {
	for _, known := range AllSlotStates {
		if s == known {
			return true
		}
	}
	return false
}

// NoSlot marks a garment that is not on the conveyor.
const NoSlot = -1

// Timestamp stores a time as RFC3339 text so SQLite and PostgreSQL agree.
// The zero value is stored as NULL.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Scan implements sql.Scanner.
func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time = time.Time{}
		return nil
	case time.Time:
		ts.Time = v
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("ledger: cannot scan %T into Timestamp", src)
	}
}

func (ts *Timestamp) parse(s string) error {
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("ledger: parsing timestamp %q: %w", s, err)
	}
	ts.Time = t
	return nil
}

// Value implements driver.Valuer.
func (ts Timestamp) Value() (driver.Value, error) {
	if ts.IsZero() {
		return nil, nil
	}
	return ts.Format(time.RFC3339), nil
}

// MarshalJSON renders the zero value as null.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Format(time.RFC3339))
}

// Customer is keyed by the identifier the POS assigns.
type Customer struct {
	Identifier  string    `db:"customer_identifier" json:"customer_identifier"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	CreatedAt   Timestamp `db:"created_at" json:"created_at"`
}

// Ticket is one customer invoice.
type Ticket struct {
	FullInvoiceNumber    string       `db:"full_invoice_number" json:"full_invoice_number"`
	DisplayInvoiceNumber string       `db:"display_invoice_number" json:"display_invoice_number"`
	NumberOfItems        int          `db:"number_of_items" json:"number_of_items"`
	GarmentsProcessed    int          `db:"garments_processed" json:"garments_processed"`
	Status               TicketStatus `db:"ticket_status" json:"status"`
	CustomerIdentifier   string       `db:"customer_identifier" json:"customer_identifier"`
	CustomerFirstName    string       `db:"customer_first_name" json:"customer_first_name"`
	CustomerLastName     string       `db:"customer_last_name" json:"customer_last_name"`
	CustomerPhoneNumber  string       `db:"customer_phone_number" json:"customer_phone_number"`
	DropoffDate          Timestamp    `db:"invoice_dropoff_date" json:"dropoff_date"`
	PickupDate           Timestamp    `db:"invoice_pickup_date" json:"pickup_date"`
	BalanceDue           float64      `db:"balance_due" json:"balance_due"`
	CreatedAt            Timestamp    `db:"created_at" json:"created_at"`
	UpdatedAt            Timestamp    `db:"updated_at" json:"updated_at"`
}

// Garment is one barcoded item belonging to a ticket.
type Garment struct {
	ItemID               string    `db:"item_id" json:"item_id"`
	FullInvoiceNumber    string    `db:"full_invoice_number" json:"full_invoice_number"`
	DisplayInvoiceNumber string    `db:"display_invoice_number" json:"display_invoice_number"`
	Description          string    `db:"item_description" json:"description"`
	ItemComments         string    `db:"item_comments" json:"item_comments"`
	InvoiceComments      string    `db:"invoice_comments" json:"invoice_comments"`
	DropoffDate          Timestamp `db:"invoice_dropoff_date" json:"dropoff_date"`
	PickupDate           Timestamp `db:"invoice_pickup_date" json:"pickup_date"`
	SlotNumber           int       `db:"slot_number" json:"slot_number"`
	CreatedAt            Timestamp `db:"created_at" json:"created_at"`
}

// Slot is one physical storage position.
type Slot struct {
	Number         int       `db:"slot_number" json:"slot_number"`
	State          SlotState `db:"slot_state" json:"state"`
	AssignedTicket *string   `db:"assigned_ticket" json:"assigned_ticket"`
	ItemID         *string   `db:"item_id" json:"item_id"`
	CreatedAt      Timestamp `db:"created_at" json:"created_at"`
	UpdatedAt      Timestamp `db:"updated_at" json:"updated_at"`
}

// Ticket returns the assigned ticket or "".
func (s Slot) Ticket() string {
	if s.AssignedTicket == nil {
		return ""
	}
	return *s.AssignedTicket
}

// AppState is the singleton row holding the allocation cursor.
type AppState struct {
	LastUsedSlot    int       `db:"last_used_slot" json:"last_used_slot"`
	ItemsOnConveyor int       `db:"num_items_on_conveyor" json:"items_on_conveyor"`
	UpdatedAt       Timestamp `db:"updated_at" json:"updated_at"`
}

// Operator is a person allowed to run the machine.
type Operator struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	PINHash   string    `db:"pin_hash" json:"-"`
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
}

// Session is one operator shift with running counters.
type Session struct {
	ID               string    `db:"id" json:"id"`
	OperatorID       string    `db:"operator_id" json:"operator_id"`
	LoginAt          Timestamp `db:"login_at" json:"login_at"`
	LogoutAt         Timestamp `db:"logout_at" json:"logout_at"`
	GarmentsScanned  int       `db:"garments_scanned" json:"garments_scanned"`
	TicketsCompleted int       `db:"tickets_completed" json:"tickets_completed"`
}

// Open reports whether the session has not been logged out.
func (s Session) Open() bool {
	return s.LogoutAt.IsZero()
}
