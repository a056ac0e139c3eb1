// Package database provides the ledger connection for the conveyor core.
//
// Two drivers are supported behind one sqlx handle:
//   - sqlite3 (default): a single file beside the binary, WAL mode, one writer
//   - pgx: PostgreSQL for stores that keep the ledger on a back-office server
//
// Queries are written once with ? placeholders and rebound per driver with
// Rebind. Timestamps are stored as RFC3339 text so both drivers agree.
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: "sqlite3", Path: "./data/conveyor.db"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Multi-statement operations (slot reservation, clear conveyor, a POS batch)
// go through WithTx so they run on one connection in one transaction.
//
// Migrations are additive. Each YYYYMMDD_HHMMSS_name.up.sql has a matching
// .down.sql and must only use SQL both drivers accept.
package database
