package spot

import (
	"strconv"
	"strings"
	"time"
)

// Code is a SPOT opcode.
type Code string

// Supported opcodes.
const (
	CodeAddItem       Code = "ADDITEM"
	CodeDeleteItem    Code = "DELITEM"
	CodeAddInvoice    Code = "ADDINV"
	CodeDeleteInvoice Code = "DELINV"
)

// Minimum field counts per opcode, opcode included.
const (
	minAddItemFields    = 15
	minDeleteItemFields = 3
	minAddInvoiceFields = 10

	// extendedAddItemFields switches ADDITEM to the layout that carries
	// separate item and invoice comments ahead of the dates.
	extendedAddItemFields = 17
)

// DateLayout is the SPOT timestamp format, interpreted in the site's zone.
const DateLayout = "2006-01-02T15:04:05"

// Op is one parsed SPOT operation: AddItem, DeleteItem, AddInvoice or
// DeleteInvoice. Values are only built by ParseLine.
type Op interface {
	Code() Code
	isOp()
}

// Header is the invoice and customer block shared by ADDITEM and ADDINV.
type Header struct {
	FullInvoiceNumber    string
	DisplayInvoiceNumber string
	NumberOfItems        int
	SlotOccupancy        int
	BalanceDue           float64
	CustomerIdentifier   string
	FirstName            string
	LastName             string
	PhoneNumber          string
}

// AddItem upserts one garment with its ticket and customer.
type AddItem struct {
	Header
	ItemID          string
	Description     string
	ItemComments    string
	InvoiceComments string
	Dropoff         time.Time
	Pickup          time.Time
}

// DeleteItem removes one garment unless its ticket is being processed.
type DeleteItem struct {
	FullInvoiceNumber string
	ItemID            string
}

// AddInvoice upserts a ticket header and its customer.
type AddInvoice struct {
	Header
	CustomerPIN string
}

// DeleteInvoice is accepted and ignored.
type DeleteInvoice struct {
	FullInvoiceNumber string
}

// Code implements Op.
func (AddItem) Code() Code { return CodeAddItem }

// Code implements Op.
func (DeleteItem) Code() Code { return CodeDeleteItem }

// Code implements Op.
func (AddInvoice) Code() Code { return CodeAddInvoice }

// Code implements Op.
func (DeleteInvoice) Code() Code { return CodeDeleteInvoice }

func (AddItem) isOp()       {}
func (DeleteItem) isOp()    {}
func (AddInvoice) isOp()    {}
func (DeleteInvoice) isOp() {}

// Parser turns lines into operations.
type Parser struct {
	// Location interprets SPOT timestamps. Nil means time.Local.
	Location *time.Location
}

// ParseLine parses one line. Validation failures are *LineError wrapping
// ErrValidation; an unknown opcode is a *LineError wrapping
// ErrUnsupportedOp.
func (p Parser) ParseLine(line string) (Op, error) {
	fields := Tokenize(line)
	if len(fields) == 0 {
		return nil, rowError(CodeEmptyField(0), line)
	}

	switch Code(strings.ToUpper(fields[0])) {
	case CodeAddItem:
		return p.parseAddItem(line, fields)
	case CodeDeleteItem:
		return parseDeleteItem(line, fields)
	case CodeAddInvoice:
		return parseAddInvoice(line, fields)
	case CodeDeleteInvoice:
		op := DeleteInvoice{}
		if len(fields) > 1 {
			op.FullInvoiceNumber = fields[1]
		}
		return op, nil
	default:
		return nil, &LineError{Code: CodeUnsupportedOp, Field: 0, Content: fields[0], Err: ErrUnsupportedOp}
	}
}

// ParseLine parses with the local time zone.
func ParseLine(line string) (Op, error) {
	return Parser{}.ParseLine(line)
}

func (p Parser) parseAddItem(line string, f []string) (Op, error) {
	if len(f) < minAddItemFields {
		return nil, rowError(CodeBadAddRowFields, line)
	}
	h, err := parseHeader(f)
	if err != nil {
		return nil, err
	}
	if err := required(f, 10); err != nil {
		return nil, err
	}

	op := AddItem{Header: h, ItemID: f[10], Description: f[11]}
	dropoffField, pickupField := 12, 13
	if len(f) >= extendedAddItemFields {
		op.ItemComments = f[12]
		op.InvoiceComments = f[13]
		dropoffField, pickupField = 14, 15
	} else {
		op.ItemComments = f[14]
	}

	if op.Dropoff, err = p.date(f, dropoffField); err != nil {
		return nil, err
	}
	if op.Pickup, err = p.date(f, pickupField); err != nil {
		return nil, err
	}
	return op, nil
}

func parseDeleteItem(line string, f []string) (Op, error) {
	if len(f) < minDeleteItemFields {
		return nil, rowError(CodeBadDelRowFields, line)
	}
	for _, i := range []int{1, 2} {
		if err := required(f, i); err != nil {
			return nil, err
		}
	}
	return DeleteItem{FullInvoiceNumber: f[1], ItemID: f[2]}, nil
}

func parseAddInvoice(line string, f []string) (Op, error) {
	if len(f) < minAddInvoiceFields {
		return nil, rowError(CodeBadInvRowFields, line)
	}
	h, err := parseHeader(f)
	if err != nil {
		return nil, err
	}
	op := AddInvoice{Header: h}
	if len(f) > 10 {
		op.CustomerPIN = f[10]
	}
	return op, nil
}

// parseHeader reads fields 1..9.
func parseHeader(f []string) (Header, error) {
	for _, i := range []int{1, 2, 6} {
		if err := required(f, i); err != nil {
			return Header{}, err
		}
	}
	items, err := integer(f, 3)
	if err != nil {
		return Header{}, err
	}
	occupancy, err := integer(f, 4)
	if err != nil {
		return Header{}, err
	}
	balance, err := decimal(f, 5)
	if err != nil {
		return Header{}, err
	}
	return Header{
		FullInvoiceNumber:    f[1],
		DisplayInvoiceNumber: f[2],
		NumberOfItems:        items,
		SlotOccupancy:        occupancy,
		BalanceDue:           balance,
		CustomerIdentifier:   f[6],
		FirstName:            f[7],
		LastName:             f[8],
		PhoneNumber:          f[9],
	}, nil
}

func required(f []string, i int) error {
	if f[i] == "" {
		return fieldError(CodeEmptyField(i), i, f[i])
	}
	return nil
}

// integer parses a non-negative count. Blank means zero.
func integer(f []string, i int) (int, error) {
	if f[i] == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(f[i])
	if err != nil || n < 0 {
		return 0, fieldError(CodeBadNumber(i), i, f[i])
	}
	return n, nil
}

// decimal parses a money amount. Blank means zero.
func decimal(f []string, i int) (float64, error) {
	if f[i] == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(f[i], 64)
	if err != nil {
		return 0, fieldError(CodeBadNumber(i), i, f[i])
	}
	return v, nil
}

func (p Parser) date(f []string, i int) (time.Time, error) {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, f[i], loc)
	if err != nil {
		return time.Time{}, fieldError(CodeBadDate(i), i, f[i])
	}
	return t, nil
}
