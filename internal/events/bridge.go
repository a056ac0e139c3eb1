package events

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/metrics"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/conveyor-core/internal/scan"
	"github.com/nerrad567/conveyor-core/internal/slots"
	"github.com/nerrad567/conveyor-core/internal/spot"
)

// DefaultQueueSize is used when Deps.QueueSize is not positive.
const DefaultQueueSize = 256

// Kind classifies an event. It doubles as the WebSocket channel name.
type Kind string

// Event kinds.
const (
	KindSlot   Kind = "slot"
	KindScan   Kind = "scan"
	KindSpot   Kind = "spot"
	KindSensor Kind = "sensor"
	KindDevice Kind = "device"
)

// Event is the envelope delivered to every sink.
type Event struct {
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`

	topic    string
	retained bool
	record   func(Telemetry)
}

// Publisher sends JSON to an MQTT topic. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Broadcaster pushes a payload to WebSocket clients subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Telemetry records time-series points. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteScan(ticket string, slot int, firstOfTicket, lastGarment bool)
	WriteSlotTransition(slot int, state string)
	WriteOccupancy(o influxdb.Occupancy)
	WriteSpotBatch(applied, noop, failed int, committed bool, took time.Duration)
	WriteDeviceOp(device, op string, took time.Duration, ok bool)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps wires the sinks. Any sink may be nil.
type Deps struct {
	Publisher   Publisher
	Broadcaster Broadcaster
	Telemetry   Telemetry
	Logger      Logger
	QueueSize   int
}

// Bridge delivers events to MQTT, WebSocket and telemetry sinks.
//
// Thread Safety: the ingress methods are safe for concurrent use and never
// block. Run must be called once.
type Bridge struct {
	pub    Publisher
	ws     Broadcaster
	tel    Telemetry
	logger Logger
	topics mqtt.Topics

	queue   chan Event
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBridge creates a bridge over deps.
func NewBridge(deps Deps) *Bridge {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	size := deps.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bridge{
		pub:    deps.Publisher,
		ws:     deps.Broadcaster,
		tel:    deps.Telemetry,
		logger: logger,
		queue:  make(chan Event, size),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dropped returns how many events were discarded on a full queue.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case ev := <-b.queue:
			b.deliver(ev)
		}
	}
}

func (b *Bridge) drain() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		default:
			return
		}
	}
}

func (b *Bridge) deliver(ev Event) {
	if b.pub != nil && ev.topic != "" {
		if err := b.pub.PublishJSON(ev.topic, ev, ev.retained); err != nil {
			b.logger.Warn("mqtt publish failed", "topic", ev.topic, "error", err)
		}
	}
	if b.ws != nil {
		b.ws.Broadcast(string(ev.Kind), ev)
	}
	if b.tel != nil && ev.record != nil {
		ev.record(b.tel)
	}
}

func (b *Bridge) enqueue(ev Event) {
	ev.At = b.now()
	select {
	case b.queue <- ev:
	default:
		n := b.dropped.Add(1)
		metrics.EventsDroppedTotal.WithLabelValues("bridge").Inc()
		if n == 1 || n%100 == 0 {
			b.logger.Warn("event queue full, dropping", "kind", ev.Kind, "dropped", n)
		}
	}
}

// SlotChanged implements slots.Observer.
func (b *Bridge) SlotChanged(t slots.Transition) {
	metrics.SlotTransitionsTotal.WithLabelValues(string(t.State)).Inc()

	topic := b.topics.SlotState(t.Slot)
	if t.Slot == 0 {
		topic = b.topics.SlotsReset()
	}
	b.enqueue(Event{
		Kind:     KindSlot,
		Payload:  t,
		topic:    topic,
		retained: t.Slot != 0,
		record: func(tel Telemetry) {
			tel.WriteSlotTransition(t.Slot, string(t.State))
		},
	})
}

// ScanEvent is a scan.Hook.
func (b *Bridge) ScanEvent(ev scan.Event) {
	switch ev.Kind {
	case scan.EventScanned:
		metrics.ScansTotal.WithLabelValues("accepted").Inc()
	case scan.EventCompleted:
		metrics.TicketsCompletedTotal.Inc()
	case scan.EventRouted:
		result := "routed"
		if !ev.Hung {
			result = "routed_no_hanger"
		}
		metrics.ScansTotal.WithLabelValues(result).Inc()
	}

	var record func(Telemetry)
	if ev.Kind == scan.EventScanned {
		r := ev.Result
		record = func(tel Telemetry) {
			tel.WriteScan(r.Ticket, r.Slot, r.FirstOfTicket, r.LastGarment)
		}
	}
	b.enqueue(Event{
		Kind:    KindScan,
		Payload: ev,
		topic:   b.topics.ScanEvent(string(ev.Kind)),
		record:  record,
	})
}

// SpotReport is a spot.ReportHook.
func (b *Bridge) SpotReport(r *spot.Report) {
	for _, line := range r.Lines {
		metrics.SpotLinesTotal.WithLabelValues(string(line.Outcome)).Inc()
	}
	metrics.SpotBatchesTotal.WithLabelValues(strconv.FormatBool(r.Committed)).Inc()

	summary := *r
	summary.Lines = failedLines(r.Lines)
	b.enqueue(Event{
		Kind:    KindSpot,
		Payload: summary,
		topic:   b.topics.SpotReport(),
		record: func(tel Telemetry) {
			tel.WriteSpotBatch(summary.Applied, summary.Noop, summary.Failed, summary.Committed, summary.Duration)
		},
	})
}

// failedLines keeps only rejected lines so large batches stay small on the wire.
func failedLines(lines []spot.LineResult) []spot.LineResult {
	var out []spot.LineResult
	for _, l := range lines {
		if l.Outcome == spot.OutcomeFailed {
			out = append(out, l)
		}
	}
	return out
}

// HangerChanged records a hanger sensor edge.
func (b *Bridge) HangerChanged(detected bool) {
	if detected {
		metrics.HangerDetected.Set(1)
	} else {
		metrics.HangerDetected.Set(0)
	}
	b.enqueue(Event{
		Kind:     KindSensor,
		Payload:  map[string]bool{"detected": detected},
		topic:    b.topics.HangerSensor(),
		retained: true,
	})
}

// DeviceStatus records a device link coming up or going down.
func (b *Bridge) DeviceStatus(device string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	metrics.DeviceConnected.WithLabelValues(device).Set(v)
	b.enqueue(Event{
		Kind:     KindDevice,
		Payload:  map[string]any{"device": device, "connected": connected},
		topic:    b.topics.DeviceStatus(device),
		retained: true,
	})
}
