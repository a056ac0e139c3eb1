package conveyor

import (
	"context"
	"time"

	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
)

// OpObserver is told about every device round trip.
type OpObserver func(device, op string, took time.Duration, err error)

// Device names used when observing.
const (
	DeviceOPCUA  = "opcua"
	DeviceModbus = "modbus"
)

// ObservedDevice reports each Read and Write of the wrapped Device to Observe.
type ObservedDevice struct {
	Device  Device
	Observe OpObserver
}

// Read implements Device.
func (d ObservedDevice) Read(ctx context.Context, node opcua.NodeID) (any, error) {
	start := time.Now()
	v, err := d.Device.Read(ctx, node)
	d.observe("read", start, err)
	return v, err
}

// Write implements Device.
func (d ObservedDevice) Write(ctx context.Context, node opcua.NodeID, value any) error {
	start := time.Now()
	err := d.Device.Write(ctx, node, value)
	d.observe("write", start, err)
	return err
}

func (d ObservedDevice) observe(op string, start time.Time, err error) {
	if d.Observe != nil {
		d.Observe(DeviceOPCUA, op, time.Since(start), err)
	}
}

// ObservedFieldBus reports each field-bus request to Observe.
type ObservedFieldBus struct {
	FieldBus FieldBus
	Observe  OpObserver
}

// ReadRegister implements FieldBus.
func (f ObservedFieldBus) ReadRegister(ctx context.Context, address uint16) (int16, error) {
	start := time.Now()
	v, err := f.FieldBus.ReadRegister(ctx, address)
	f.observe("read_register", start, err)
	return v, err
}

// WriteCoil implements FieldBus.
func (f ObservedFieldBus) WriteCoil(ctx context.Context, address uint16, on bool) error {
	start := time.Now()
	err := f.FieldBus.WriteCoil(ctx, address, on)
	f.observe("write_coil", start, err)
	return err
}

func (f ObservedFieldBus) observe(op string, start time.Time, err error) {
	if f.Observe != nil {
		f.Observe(DeviceModbus, op, time.Since(start), err)
	}
}
