package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/auth"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/config"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/logging"
	"github.com/nerrad567/conveyor-core/internal/scan"
	"github.com/nerrad567/conveyor-core/internal/slots"
	"github.com/nerrad567/conveyor-core/internal/spot"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceCommands is the conveyor command set. *conveyor.Commands satisfies it.
type DeviceCommands interface {
	JogForward(ctx context.Context) error
	SetTargetSlot(ctx context.Context, slot int16) error
	TargetSlot(ctx context.Context) (int16, error)
	HangerSensor(ctx context.Context) (bool, error)
	FieldBusSlot(ctx context.Context) (int16, error)
	SetCommandCoil(ctx context.Context, on bool) error
}

// DeviceLink reports the controller session. *opcua.Manager satisfies it.
type DeviceLink interface {
	IsConnected() bool
	Endpoint() string
}

// SensorState reports the hanger poll loop. *conveyor.SensorLoop satisfies it.
type SensorState interface {
	Detected() bool
	Counters() (reads, failures uint64)
}

// Checker is anything with a health check, such as the MQTT client.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Device, Link, Sensor,
// MQTT and Hub are optional.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	DB      *database.DB
	Slots   *slots.Engine
	Scan    *scan.Controller
	Spot    *spot.Ingestor
	Auth    *auth.Service
	Device  DeviceCommands
	Link    DeviceLink
	Sensor  SensorState
	MQTT    Checker
	Hub     *Hub
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	db      *database.DB
	slots   *slots.Engine
	scan    *scan.Controller
	spot    *spot.Ingestor
	auth    *auth.Service
	device  DeviceCommands
	link    DeviceLink
	sensor  SensorState
	mqtt    Checker
	version string

	auditRepo *audit.Repository
	auditCh   chan *audit.AuditLog

	hub         *Hub
	externalHub bool
	server      *http.Server
	cancel      context.CancelFunc
	startTime   time.Time
}

// New validates deps and creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.DB == nil:
		return nil, errors.New("api: database is required")
	case deps.Slots == nil:
		return nil, errors.New("api: slot engine is required")
	case deps.Scan == nil:
		return nil, errors.New("api: scan controller is required")
	case deps.Auth == nil:
		return nil, errors.New("api: auth service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		db:        deps.DB,
		slots:     deps.Slots,
		scan:      deps.Scan,
		spot:      deps.Spot,
		auth:      deps.Auth,
		device:    deps.Device,
		link:      deps.Link,
		sensor:    deps.Sensor,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		hub:       deps.Hub,
		auditRepo: audit.NewRepository(deps.DB),
		auditCh:   make(chan *audit.AuditLog, auditChanSize),
		startTime: time.Now(),
	}
	if s.hub != nil {
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub events are broadcast on.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start builds the router and starts listening in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.drainAuditLog(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests, then
// closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
