package events

import (
	"context"
	"time"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/metrics"
	"github.com/nerrad567/conveyor-core/internal/ledger"
	"github.com/nerrad567/conveyor-core/internal/slots"
)

// StatsSource reports slot occupancy. *slots.Engine satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) (slots.Stats, error)
}

// SampleOccupancy refreshes the slot gauges every interval and records a
// telemetry snapshot, until ctx is cancelled.
func (b *Bridge) SampleOccupancy(ctx context.Context, src StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.sampleOnce(ctx, src)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) sampleOnce(ctx context.Context, src StatsSource) {
	st, err := src.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("sampling slot occupancy", "error", err)
		}
		return
	}

	metrics.SlotsByState.WithLabelValues(string(ledger.SlotEmpty)).Set(float64(st.Empty))
	metrics.SlotsByState.WithLabelValues(string(ledger.SlotReserved)).Set(float64(st.Reserved))
	metrics.SlotsByState.WithLabelValues(string(ledger.SlotOccupied)).Set(float64(st.Occupied))
	metrics.SlotsByState.WithLabelValues(string(ledger.SlotBlocked)).Set(float64(st.Blocked))
	metrics.SlotsByState.WithLabelValues(string(ledger.SlotError)).Set(float64(st.Error))
	metrics.ItemsOnConveyor.Set(float64(st.ItemsOnConveyor))

	if b.tel != nil {
		b.tel.WriteOccupancy(influxdb.Occupancy{
			Empty:           st.Empty,
			Reserved:        st.Reserved,
			Occupied:        st.Occupied,
			Blocked:         st.Blocked,
			Error:           st.Error,
			ItemsOnConveyor: st.ItemsOnConveyor,
		})
	}
}
