package spot

import (
	"errors"
	"fmt"
)

// Domain errors for the spot package.
var (
	// ErrUnsupportedOp is returned for an unknown opcode. It fails the batch.
	ErrUnsupportedOp = errors.New("spot: unsupported operation")

	// ErrEmptyFile is returned when a batch has no operation lines.
	ErrEmptyFile = errors.New("spot: empty file")

	// ErrValidation is wrapped by every LineError.
	ErrValidation = errors.New("spot: validation failed")

	// ErrBatchAborted is returned when PolicyAbortBatch rolls a batch back.
	ErrBatchAborted = errors.New("spot: batch aborted")
)

// Error codes reported per line.
const (
	CodeBadAddRowFields = "BAD_ADD_ROW_FIELDS"
	CodeBadDelRowFields = "BAD_DEL_ROW_FIELDS"
	CodeBadInvRowFields = "BAD_INV_ROW_FIELDS"
	CodeUnsupportedOp   = "UNSUPPORTED_OP"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeIntegrity       = "DUPLICATE_ITEM_ID"
	CodeLedger          = "LEDGER_ERROR"
)

// CodeEmptyField names a required field that was blank.
func CodeEmptyField(field int) string { return fmt.Sprintf("EMPTY_FIELD_%d", field) }

// CodeBadNumber names a field that is not a valid number.
func CodeBadNumber(field int) string { return fmt.Sprintf("BAD_NUMBER_%d", field) }

// CodeBadDate names a field that is not a valid timestamp.
func CodeBadDate(field int) string { return fmt.Sprintf("BAD_DATE_%d", field) }

// LineError describes why one line was rejected.
type LineError struct {
	// Line is the 1-based line number within the batch, 0 when unknown.
	Line int
	// Code is the machine-readable reason, e.g. BAD_DATE_12.
	Code string
	// Field is the offending field index, -1 when the whole row is at fault.
	Field int
	// Content is the offending field value, or the raw line.
	Content string
	// Err is ErrValidation or ErrUnsupportedOp.
	Err error
}

func (e *LineError) Error() string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf("line %d: ", e.Line)
	}
	if e.Field >= 0 {
		return fmt.Sprintf("%s%s: field %d %q", loc, e.Code, e.Field, e.Content)
	}
	return fmt.Sprintf("%s%s: %q", loc, e.Code, e.Content)
}

func (e *LineError) Unwrap() error { return e.Err }

func fieldError(code string, field int, content string) *LineError {
	return &LineError{Code: code, Field: field, Content: content, Err: ErrValidation}
}

func rowError(code, line string) *LineError {
	return &LineError{Code: code, Field: -1, Content: line, Err: ErrValidation}
}
