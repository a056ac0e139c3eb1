package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
)

// Coil values for WriteSingleCoil.
const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 2 * time.Second

// Config holds the PLC address.
type Config struct {
	Host    string
	Port    int
	SlaveID byte
	Timeout time.Duration
}

// Address returns "host:port".
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// conn is one open Modbus connection.
type conn interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	Close() error
}

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Client performs single Modbus requests, one connection per call.
//
// Thread Safety: safe for concurrent use; calls share no state.
type Client struct {
	cfg    Config
	dial   func(cfg Config) (conn, error)
	logger Logger
}

// NewClient creates a client for the PLC at cfg.
func NewClient(cfg Config, logger Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SlaveID == 0 {
		cfg.SlaveID = 1
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{cfg: cfg, dial: dialTCP, logger: logger}
}

type tcpConn struct {
	modbus.Client
	handler *modbus.TCPClientHandler
}

func (c tcpConn) Close() error {
	return c.handler.Close()
}

func dialTCP(cfg Config) (conn, error) {
	handler := modbus.NewTCPClientHandler(cfg.Address())
	handler.Timeout = cfg.Timeout
	handler.SlaveId = cfg.SlaveID
	if err := handler.Connect(); err != nil {
		return nil, err
	}
	return tcpConn{Client: modbus.NewClient(handler), handler: handler}, nil
}

// with opens a connection, runs fn and closes the connection.
func (c *Client) with(ctx context.Context, op string, fn func(conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cn, err := c.dial(c.cfg)
	if err != nil {
		return fmt.Errorf("%w: connecting to %s: %w", ErrFieldBus, c.cfg.Address(), err)
	}
	defer cn.Close() //nolint:errcheck // One-shot connection

	if err := fn(cn); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFieldBus, op, err)
	}
	return nil
}

// ReadRegister reads one holding register as a signed 16-bit value.
func (c *Client) ReadRegister(ctx context.Context, address uint16) (int16, error) {
	var value int16
	err := c.with(ctx, fmt.Sprintf("read register %d", address), func(cn conn) error {
		raw, err := cn.ReadHoldingRegisters(address, 1)
		if err != nil {
			return err
		}
		if len(raw) < 2 {
			return fmt.Errorf("%w: %d bytes", ErrShortResponse, len(raw))
		}
		value = int16(binary.BigEndian.Uint16(raw))
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.logger.Debug("register read", "address", address, "value", value)
	return value, nil
}

// WriteCoil sets one coil on or off.
func (c *Client) WriteCoil(ctx context.Context, address uint16, on bool) error {
	value := coilOff
	if on {
		value = coilOn
	}
	err := c.with(ctx, fmt.Sprintf("write coil %d", address), func(cn conn) error {
		_, err := cn.WriteSingleCoil(address, value)
		return err
	})
	if err != nil {
		return err
	}
	c.logger.Debug("coil written", "address", address, "on", on)
	return nil
}
