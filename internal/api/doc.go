// Package api is the HTTP and WebSocket surface of the conveyor core.
//
// The counter terminal drives the workflow through it: operator PIN login,
// garment scans, routing, slot maintenance, manual POS ingestion and the
// data lookups used at pickup. Mutating routes require the operator token
// issued at login.
//
// Routes live under /api/v1. Prometheus metrics are served on /metrics and
// live events on /api/v1/ws.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
