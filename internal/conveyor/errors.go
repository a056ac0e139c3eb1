package conveyor

import "errors"

// Domain errors for the conveyor package.
var (
	// ErrUnexpectedValue is returned when a node holds a value of the wrong type.
	ErrUnexpectedValue = errors.New("conveyor: unexpected node value")

	// ErrSlotOutOfRange is returned for target slots the PLC cannot address.
	ErrSlotOutOfRange = errors.New("conveyor: slot out of range")

	// ErrFieldBusDisabled is returned when a field-bus command is issued
	// without a configured field-bus client.
	ErrFieldBusDisabled = errors.New("conveyor: field-bus disabled")
)
