// Package modbus is a stateless Modbus TCP client for direct PLC register
// and coil access.
//
// Every call opens a fresh TCP connection, performs exactly one request and
// closes it. Nothing is retried: whether to repeat a physical actuation is
// the caller's decision.
package modbus
