// Package ledger is the system of record for what is physically on the
// conveyor: customers, tickets, garments, slots, the allocation cursor,
// operators and their shift sessions.
//
// Every primitive runs against a Querier, which is either the connection
// pool or an open transaction:
//
//	err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
//	    store := ledger.NewStore(tx)
//	    won, err := store.TryReserveSlot(ctx, 42, "FULL-1")
//	    ...
//	})
//
// Callers compose primitives into atomic operations; this package never
// opens its own transactions. Lookups that miss return ErrNotFound wrapped
// with the identifier that missed.
package ledger
