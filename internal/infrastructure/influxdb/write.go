package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the conveyor.
const (
	MeasurementScan      = "garment_scan"
	MeasurementSlot      = "slot_transition"
	MeasurementOccupancy = "slot_occupancy"
	MeasurementDevice    = "device_op"
	MeasurementSpot      = "spot_batch"
)

// Occupancy is a snapshot of slot counts per state.
type Occupancy struct {
	Empty, Reserved, Occupied, Blocked, Error int
	ItemsOnConveyor                           int
}

// WriteScan records one accepted garment scan.
func (c *Client) WriteScan(ticket string, slot int, firstOfTicket, lastGarment bool) {
	c.write(scanPoint(ticket, slot, firstOfTicket, lastGarment, time.Now()))
}

// WriteSlotTransition records a committed slot state change.
func (c *Client) WriteSlotTransition(slot int, state string) {
	c.write(slotPoint(slot, state, time.Now()))
}

// WriteOccupancy records a slot occupancy snapshot.
func (c *Client) WriteOccupancy(o Occupancy) {
	c.write(occupancyPoint(o, time.Now()))
}

// WriteDeviceOp records one device round trip. ok is false when the
// operation failed.
func (c *Client) WriteDeviceOp(device, op string, took time.Duration, ok bool) {
	c.write(devicePoint(device, op, took, ok, time.Now()))
}

// WriteSpotBatch records the outcome counts of one POS batch.
func (c *Client) WriteSpotBatch(applied, noop, failed int, committed bool, took time.Duration) {
	c.write(spotPoint(applied, noop, failed, committed, took, time.Now()))
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.write(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func scanPoint(ticket string, slot int, first, last bool, at time.Time) *write.Point {
	return write.NewPoint(MeasurementScan,
		map[string]string{
			"first_of_ticket": strconv.FormatBool(first),
			"last_garment":    strconv.FormatBool(last),
		},
		map[string]any{
			"ticket": ticket,
			"slot":   slot,
		},
		at,
	)
}

func slotPoint(slot int, state string, at time.Time) *write.Point {
	return write.NewPoint(MeasurementSlot,
		map[string]string{"state": state},
		map[string]any{"slot": slot},
		at,
	)
}

func occupancyPoint(o Occupancy, at time.Time) *write.Point {
	return write.NewPoint(MeasurementOccupancy,
		nil,
		map[string]any{
			"empty":             o.Empty,
			"reserved":          o.Reserved,
			"occupied":          o.Occupied,
			"blocked":           o.Blocked,
			"error":             o.Error,
			"items_on_conveyor": o.ItemsOnConveyor,
		},
		at,
	)
}

func devicePoint(device, op string, took time.Duration, ok bool, at time.Time) *write.Point {
	return write.NewPoint(MeasurementDevice,
		map[string]string{
			"device": device,
			"op":     op,
			"ok":     strconv.FormatBool(ok),
		},
		map[string]any{"duration_ms": float64(took) / float64(time.Millisecond)},
		at,
	)
}

func spotPoint(applied, noop, failed int, committed bool, took time.Duration, at time.Time) *write.Point {
	return write.NewPoint(MeasurementSpot,
		map[string]string{"committed": strconv.FormatBool(committed)},
		map[string]any{
			"applied":     applied,
			"noop":        noop,
			"failed":      failed,
			"duration_ms": float64(took) / float64(time.Millisecond),
		},
		at,
	)
}
