package opcua

import "errors"

// Domain errors for the OPC-UA bridge package.
var (
	// ErrNotConnected is returned when no session is currently held.
	ErrNotConnected = errors.New("opcua: not connected")

	// ErrDevice wraps every transport or protocol failure from the server.
	ErrDevice = errors.New("opcua: device error")

	// ErrBadStatus marks a server reply with a non-good status code. The
	// session is still usable after it.
	ErrBadStatus = errors.New("opcua: bad status")

	// ErrInvalidNodeID is returned when a node address cannot be parsed.
	ErrInvalidNodeID = errors.New("opcua: invalid node id")
)
