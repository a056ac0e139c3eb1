package opcua

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is a numeric node address within a namespace.
type NodeID struct {
	Namespace uint16
	ID        uint32
}

// String renders the address as "ns=1;i=81".
func (n NodeID) String() string {
	return fmt.Sprintf("ns=%d;i=%d", n.Namespace, n.ID)
}

// ParseNodeID parses "ns=<n>;i=<id>". A bare "i=<id>" is namespace 0.
func ParseNodeID(s string) (NodeID, error) {
	var (
		n      NodeID
		haveID bool
	)
	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		switch key {
		case "ns":
			ns, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return NodeID{}, fmt.Errorf("%w: namespace in %q", ErrInvalidNodeID, s)
			}
			n.Namespace = uint16(ns)
		case "i":
			id, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return NodeID{}, fmt.Errorf("%w: identifier in %q", ErrInvalidNodeID, s)
			}
			n.ID = uint32(id)
			haveID = true
		default:
			return NodeID{}, fmt.Errorf("%w: unsupported key %q in %q", ErrInvalidNodeID, key, s)
		}
	}
	if !haveID {
		return NodeID{}, fmt.Errorf("%w: missing identifier in %q", ErrInvalidNodeID, s)
	}
	return n, nil
}

// Nodes names the conveyor PLC's addresses.
type Nodes struct {
	Jog          NodeID
	RunRequest   NodeID
	TargetSlot   NodeID
	HangerSensor NodeID
}
