// Package opcua manages the single long-lived session to the conveyor's
// supervisory OPC-UA server.
//
// The Manager holds at most one Session. Reads and writes fail with
// ErrNotConnected while no session is held, and transport failures drop the
// session so RunReconnectLoop can establish a new one on its next tick.
//
// Subscriptions are fanned out: any number of subscribers to one node share
// a single server-side monitored item, owned by a forwarding goroutine that
// lives exactly as long as at least one subscriber does.
//
// The production Dialer is built on github.com/gopcua/opcua. Tests supply
// their own Dialer.
package opcua
