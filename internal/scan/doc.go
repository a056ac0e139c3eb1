// Package scan runs the per-barcode workflow at the loading station.
//
// A scan resolves the garment and its ticket, counts the garment against the
// ticket and returns the slot the garment must hang in. The first garment of
// a ticket reserves a slot through the slot engine; later garments reuse the
// ticket's slot. The ticket counter and the reservation commit together, so
// a failed reservation leaves the counter untouched.
//
// Moving the conveyor is a separate step (Route) so a device failure never
// undoes ledger state.
package scan
