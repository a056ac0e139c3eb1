package events

import (
	"context"
	"time"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/metrics"
)

// LinkState reports whether a device link is up. *opcua.Manager satisfies it.
type LinkState interface {
	IsConnected() bool
}

// DeviceOp records one device round trip in the metrics and telemetry. It
// runs on the caller's goroutine; both sinks are non-blocking.
func (b *Bridge) DeviceOp(device, op string, took time.Duration, err error) {
	metrics.DeviceOpDuration.WithLabelValues(device, op).Observe(took.Seconds())
	if err != nil {
		metrics.DeviceErrorsTotal.WithLabelValues(device, op).Inc()
	}
	if b.tel != nil {
		b.tel.WriteDeviceOp(device, op, took, err == nil)
	}
}

// WatchLink polls link every interval and reports each change through
// DeviceStatus, starting with the state at the first poll. It returns when
// ctx is cancelled.
func (b *Bridge) WatchLink(ctx context.Context, device string, link LinkState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	first := true
	var last bool
	for {
		if up := link.IsConnected(); first || up != last {
			b.DeviceStatus(device, up)
			first, last = false, up
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
