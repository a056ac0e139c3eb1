// Package events fans conveyor activity out to the outside world.
//
// A Bridge receives slot transitions, scan workflow events, POS batch
// reports, hanger sensor edges and device link changes. It updates the
// Prometheus collectors inline and queues each event for a single worker
// that publishes it to MQTT, pushes it to WebSocket clients and records
// telemetry. Producers never block: when the queue is full the event is
// dropped and counted.
//
// A CommandListener goes the other way, turning conveyor/command/+
// messages from remote terminals into conveyor moves.
package events
