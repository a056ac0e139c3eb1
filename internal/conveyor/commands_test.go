package conveyor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
)

var testNodes = opcua.Nodes{
	Jog:          opcua.NodeID{Namespace: 1, ID: 81},
	RunRequest:   opcua.NodeID{Namespace: 1, ID: 83},
	TargetSlot:   opcua.NodeID{Namespace: 1, ID: 267},
	HangerSensor: opcua.NodeID{Namespace: 1, ID: 26},
}

type write struct {
	node  opcua.NodeID
	value any
}

// fakeDevice records writes and serves reads from values.
type fakeDevice struct {
	mu     sync.Mutex
	values map[opcua.NodeID]any
	writes []write
	err    error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{values: make(map[opcua.NodeID]any)}
}

func (d *fakeDevice) Read(_ context.Context, node opcua.NodeID) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.values[node], nil
}

func (d *fakeDevice) Write(_ context.Context, node opcua.NodeID, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.writes = append(d.writes, write{node, value})
	d.values[node] = value
	return nil
}

func (d *fakeDevice) set(node opcua.NodeID, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[node] = v
}

func (d *fakeDevice) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type fakeFieldBus struct {
	register int16
	coil     map[uint16]bool
}

func (f *fakeFieldBus) ReadRegister(_ context.Context, _ uint16) (int16, error) {
	return f.register, nil
}

func (f *fakeFieldBus) WriteCoil(_ context.Context, address uint16, on bool) error {
	f.coil[address] = on
	return nil
}

func TestJogForward(t *testing.T) {
	d := newFakeDevice()
	c := NewCommands(d, testNodes, nil, FieldBusMap{})

	if err := c.JogForward(context.Background()); err != nil {
		t.Fatalf("JogForward() error = %v", err)
	}
	want := []write{{testNodes.Jog, true}}
	if !reflect.DeepEqual(d.writes, want) {
		t.Errorf("writes = %+v, want %+v", d.writes, want)
	}
}

func TestRunToSlot_PulsesRunRequest(t *testing.T) {
	d := newFakeDevice()
	c := NewCommands(d, testNodes, nil, FieldBusMap{})

	if err := c.RunToSlot(context.Background(), 42); err != nil {
		t.Fatalf("RunToSlot() error = %v", err)
	}
	want := []write{
		{testNodes.TargetSlot, int16(42)},
		{testNodes.RunRequest, false},
		{testNodes.RunRequest, true},
		{testNodes.RunRequest, false},
	}
	if !reflect.DeepEqual(d.writes, want) {
		t.Errorf("writes = %+v, want %+v", d.writes, want)
	}
}

func TestRunToSlot_OutOfRange(t *testing.T) {
	d := newFakeDevice()
	c := NewCommands(d, testNodes, nil, FieldBusMap{})

	for _, slot := range []int{0, -1, 40000} {
		if err := c.RunToSlot(context.Background(), slot); !errors.Is(err, ErrSlotOutOfRange) {
			t.Errorf("RunToSlot(%d) error = %v, want ErrSlotOutOfRange", slot, err)
		}
	}
	if len(d.writes) != 0 {
		t.Errorf("writes = %+v, want none", d.writes)
	}
}

func TestTargetSlot(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int16
		wantErr bool
	}{
		{"int16", int16(12), 12, false},
		{"int32", int32(300), 300, false},
		{"uint16", uint16(7), 7, false},
		{"overflow", int32(70000), 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDevice()
			d.set(testNodes.TargetSlot, tt.value)
			c := NewCommands(d, testNodes, nil, FieldBusMap{})

			got, err := c.TargetSlot(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrUnexpectedValue) {
					t.Errorf("TargetSlot() error = %v, want ErrUnexpectedValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("TargetSlot() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TargetSlot() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHangerSensor(t *testing.T) {
	d := newFakeDevice()
	c := NewCommands(d, testNodes, nil, FieldBusMap{})
	ctx := context.Background()

	d.set(testNodes.HangerSensor, true)
	got, err := c.HangerSensor(ctx)
	if err != nil || !got {
		t.Errorf("HangerSensor() = %v, %v; want true", got, err)
	}

	d.set(testNodes.HangerSensor, int16(1))
	if _, err := c.HangerSensor(ctx); !errors.Is(err, ErrUnexpectedValue) {
		t.Errorf("HangerSensor() error = %v, want ErrUnexpectedValue", err)
	}

	d.setErr(opcua.ErrNotConnected)
	if _, err := c.HangerSensor(ctx); !errors.Is(err, opcua.ErrNotConnected) {
		t.Errorf("HangerSensor() error = %v, want ErrNotConnected", err)
	}
}

func TestFieldBusCommands(t *testing.T) {
	ctx := context.Background()

	disabled := NewCommands(newFakeDevice(), testNodes, nil, FieldBusMap{})
	if _, err := disabled.FieldBusSlot(ctx); !errors.Is(err, ErrFieldBusDisabled) {
		t.Errorf("FieldBusSlot() error = %v, want ErrFieldBusDisabled", err)
	}
	if err := disabled.SetCommandCoil(ctx, true); !errors.Is(err, ErrFieldBusDisabled) {
		t.Errorf("SetCommandCoil() error = %v, want ErrFieldBusDisabled", err)
	}

	fb := &fakeFieldBus{register: 17, coil: map[uint16]bool{}}
	c := NewCommands(newFakeDevice(), testNodes, fb, FieldBusMap{SlotRegister: 116, CommandCoil: 5})
	slot, err := c.FieldBusSlot(ctx)
	if err != nil || slot != 17 {
		t.Errorf("FieldBusSlot() = %d, %v; want 17", slot, err)
	}
	if err := c.SetCommandCoil(ctx, true); err != nil || !fb.coil[5] {
		t.Errorf("SetCommandCoil() err = %v, coil[5] = %v", err, fb.coil[5])
	}
}
