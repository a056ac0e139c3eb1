// Package slots allocates physical conveyor slots to tickets.
//
// Slots cycle Empty → Reserved → Occupied → Empty. Blocked and Error are
// side states set by an operator or a fault and cleared manually.
//
// Reservation picks the first Empty slot after the round-robin cursor,
// wrapping to the lowest Empty slot, and claims it with a conditional
// update so two concurrent reservers can never win the same slot. The
// cursor moves in the same transaction as the claim.
//
// Usage:
//
//	engine := slots.NewEngine(db, slots.Config{MaxAttempts: 10}, log)
//	slot, err := engine.ReserveNext(ctx, "FULL-1")
//	if errors.Is(err, slots.ErrNoAvailableSlots) {
//	    // conveyor full
//	}
package slots
