package conveyor

import (
	"context"
	"sync/atomic"
	"time"
)

// Sensor defaults.
const (
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultHangerTimeout = 10 * time.Second
	DefaultHangerCadence = 20 * time.Millisecond

	// errorLogEvery limits repeated read-error logging to one line per
	// this many consecutive failures.
	errorLogEvery = 500
)

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

// HangerReader reads the hanger sensor.
type HangerReader interface {
	HangerSensor(ctx context.Context) (bool, error)
}

// SensorConfig holds sensor timings.
type SensorConfig struct {
	PollInterval  time.Duration
	HangerTimeout time.Duration
	HangerCadence time.Duration
}

// SensorLoop mirrors the hanger sensor into an atomic flag.
//
// Thread Safety: Detected and WaitForHanger are safe for concurrent use
// while Run is active.
type SensorLoop struct {
	reader HangerReader
	cfg    SensorConfig
	logger Logger

	detected atomic.Bool
	reads    atomic.Uint64
	failures atomic.Uint64
}

// NewSensorLoop creates a sensor loop over reader.
func NewSensorLoop(reader HangerReader, cfg SensorConfig, logger Logger) *SensorLoop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HangerTimeout <= 0 {
		cfg.HangerTimeout = DefaultHangerTimeout
	}
	if cfg.HangerCadence <= 0 {
		cfg.HangerCadence = DefaultHangerCadence
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &SensorLoop{reader: reader, cfg: cfg, logger: logger}
}

// Run polls the sensor every PollInterval until ctx is cancelled. Read
// errors are logged and polling continues; the flag keeps its last value.
func (s *SensorLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var streak uint64
	for {
		v, err := s.reader.HangerSensor(ctx)
		s.reads.Add(1)
		if err != nil {
			s.failures.Add(1)
			if streak%errorLogEvery == 0 && ctx.Err() == nil {
				s.logger.Warn("hanger sensor read failed", "error", err, "consecutive", streak+1)
			}
			streak++
		} else {
			if streak > 0 {
				s.logger.Info("hanger sensor readable again", "failed_reads", streak)
			}
			streak = 0
			s.detected.Store(v)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Detected returns the last successfully read sensor value.
func (s *SensorLoop) Detected() bool {
	return s.detected.Load()
}

// Counters returns total reads and failed reads.
func (s *SensorLoop) Counters() (reads, failures uint64) {
	return s.reads.Load(), s.failures.Load()
}

// WaitForHanger waits until a hanger is detected. It returns false, nil when
// HangerTimeout passes first and ctx.Err() when ctx is cancelled.
func (s *SensorLoop) WaitForHanger(ctx context.Context) (bool, error) {
	if s.Detected() {
		return true, nil
	}

	timeout := time.NewTimer(s.cfg.HangerTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(s.cfg.HangerCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeout.C:
			s.logger.Debug("no hanger detected", "timeout", s.cfg.HangerTimeout)
			return false, nil
		case <-ticker.C:
			if s.Detected() {
				return true, nil
			}
		}
	}
}
