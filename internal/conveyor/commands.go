package conveyor

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
)

// Device is the part of the session manager the commands need.
type Device interface {
	Read(ctx context.Context, node opcua.NodeID) (any, error)
	Write(ctx context.Context, node opcua.NodeID, value any) error
}

// FieldBus is the direct register and coil path to the PLC.
type FieldBus interface {
	ReadRegister(ctx context.Context, address uint16) (int16, error)
	WriteCoil(ctx context.Context, address uint16, on bool) error
}

// FieldBusMap names the field-bus addresses the conveyor uses.
type FieldBusMap struct {
	SlotRegister uint16
	CommandCoil  uint16
}

// Commands issues conveyor commands through the device session.
type Commands struct {
	device   Device
	nodes    opcua.Nodes
	fieldbus FieldBus
	fbMap    FieldBusMap
}

// NewCommands creates commands over device. fieldbus may be nil.
func NewCommands(device Device, nodes opcua.Nodes, fieldbus FieldBus, fbMap FieldBusMap) *Commands {
	return &Commands{device: device, nodes: nodes, fieldbus: fieldbus, fbMap: fbMap}
}

// Nodes returns the configured node map.
func (c *Commands) Nodes() opcua.Nodes {
	return c.nodes
}

// JogForward nudges the conveyor forward one step.
func (c *Commands) JogForward(ctx context.Context) error {
	return c.device.Write(ctx, c.nodes.Jog, true)
}

// SetTargetSlot writes the slot the conveyor should bring to the station.
func (c *Commands) SetTargetSlot(ctx context.Context, slot int16) error {
	return c.device.Write(ctx, c.nodes.TargetSlot, slot)
}

// TargetSlot reads the current target slot.
func (c *Commands) TargetSlot(ctx context.Context) (int16, error) {
	v, err := c.device.Read(ctx, c.nodes.TargetSlot)
	if err != nil {
		return 0, err
	}
	return toInt16(v)
}

// RunToSlot sets the target slot and pulses the run request
// false → true → false so the PLC sees a rising edge.
func (c *Commands) RunToSlot(ctx context.Context, slot int) error {
	if slot < 1 || slot > math.MaxInt16 {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, slot)
	}
	if err := c.SetTargetSlot(ctx, int16(slot)); err != nil {
		return err
	}
	for _, level := range []bool{false, true, false} {
		if err := c.device.Write(ctx, c.nodes.RunRequest, level); err != nil {
			return err
		}
	}
	return nil
}

// HangerSensor reads the load station hanger sensor.
func (c *Commands) HangerSensor(ctx context.Context) (bool, error) {
	v, err := c.device.Read(ctx, c.nodes.HangerSensor)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s holds %T, want bool", ErrUnexpectedValue, c.nodes.HangerSensor, v)
	}
	return b, nil
}

// FieldBusSlot reads the slot register over the field-bus.
func (c *Commands) FieldBusSlot(ctx context.Context) (int16, error) {
	if c.fieldbus == nil {
		return 0, ErrFieldBusDisabled
	}
	return c.fieldbus.ReadRegister(ctx, c.fbMap.SlotRegister)
}

// SetCommandCoil switches the command coil over the field-bus.
func (c *Commands) SetCommandCoil(ctx context.Context, on bool) error {
	if c.fieldbus == nil {
		return ErrFieldBusDisabled
	}
	return c.fieldbus.WriteCoil(ctx, c.fbMap.CommandCoil, on)
}

func toInt16(v any) (int16, error) {
	var n int64
	switch x := v.(type) {
	case int16:
		return x, nil
	case int8:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	default:
		return 0, fmt.Errorf("%w: %T, want integer", ErrUnexpectedValue, v)
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return 0, fmt.Errorf("%w: %d overflows int16", ErrUnexpectedValue, n)
	}
	return int16(n), nil
}
