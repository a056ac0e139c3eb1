package slots

import "errors"

// Domain errors for the slots package.
var (
	// ErrNoAvailableSlots is returned when no Empty slot could be claimed
	// within the attempt bound.
	ErrNoAvailableSlots = errors.New("slots: no available slots")

	// ErrInvalidSlot is returned for slot numbers below 1.
	ErrInvalidSlot = errors.New("slots: invalid slot number")

	// ErrNotFaulted is returned when clearing a slot that is not Blocked or Error.
	ErrNotFaulted = errors.New("slots: slot is not blocked or in error")
)
