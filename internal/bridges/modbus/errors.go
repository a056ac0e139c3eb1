package modbus

import "errors"

// Domain errors for the Modbus bridge package.
var (
	// ErrFieldBus wraps every connect, transport or protocol failure.
	ErrFieldBus = errors.New("modbus: field-bus error")

	// ErrShortResponse is returned when a register read returns too few bytes.
	ErrShortResponse = errors.New("modbus: short response")
)
