package scan

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/conveyor-core/internal/ledger"
	"github.com/nerrad567/conveyor-core/internal/spot"
)

// TestEndToEnd ingests one POS line, scans the garment and completes the
// ticket.
func TestEndToEnd(t *testing.T) {
	f := setup(t, 4)
	ctx := context.Background()

	line := `ADDITEM,"FULL-1","INV-1","1","0","0.0","CUST-1","Jane","Doe","555-0100","ITEM-1","Shirt","","","2024-01-01T09:00:00","2024-01-03T09:00:00",""`
	in := spot.NewIngestor(f.ctl.db, spot.PolicySkipLine, time.UTC, nil)
	if _, err := in.Apply(ctx, []string{line}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	for name, count := range map[string]func(context.Context) (int, error){
		"customers": f.store.CountCustomers,
		"garments":  f.store.CountGarments,
		"tickets":   f.store.CountTickets,
	} {
		n, err := count(ctx)
		if err != nil || n != 1 {
			t.Errorf("%s = %d, %v; want 1", name, n, err)
		}
	}
	ticket, _ := f.store.GetTicket(ctx, "FULL-1")
	if ticket.Status != ledger.StatusNotProcessed || ticket.NumberOfItems != 1 {
		t.Fatalf("ticket = %s, %d items", ticket.Status, ticket.NumberOfItems)
	}

	res, err := f.ctl.Scan(ctx, "ITEM-1", "")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.Slot < 1 {
		t.Fatalf("Scan() slot = %d", res.Slot)
	}
	ticket, _ = f.store.GetTicket(ctx, "FULL-1")
	if ticket.Status != ledger.StatusProcessing || ticket.GarmentsProcessed != 1 {
		t.Errorf("after scan ticket = %s, %d processed", ticket.Status, ticket.GarmentsProcessed)
	}

	if _, err := f.ctl.HandleLastScan(ctx, "ITEM-1", ""); err != nil {
		t.Fatalf("HandleLastScan() error = %v", err)
	}
	ticket, _ = f.store.GetTicket(ctx, "FULL-1")
	if ticket.Status != ledger.StatusProcessed {
		t.Errorf("after completion status = %s", ticket.Status)
	}
	slot, _ := f.engine.Get(ctx, res.Slot)
	if slot.State != ledger.SlotEmpty {
		t.Errorf("slot %d state = %s, want empty", res.Slot, slot.State)
	}
}
