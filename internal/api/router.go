package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/status", s.handleSystemStatus)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates with a token query parameter.
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Get("/operators", s.handleListOperators)

		// Slot reads are public; changes need a session. One subrouter owns
		// /slots/{n} so the authenticated routes cannot shadow the read.
		r.Route("/slots", func(r chi.Router) {
			r.Get("/", s.handleListSlots)
			r.Get("/stats", s.handleSlotStats)
			r.With(s.authMiddleware).Post("/reserve", s.handleReserveSlot)
			r.With(s.authMiddleware).Post("/clear-conveyor", s.handleClearConveyor)

			r.Route("/{n}", func(r chi.Router) {
				r.Get("/", s.handleGetSlot)
				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Post("/free", s.handleFreeSlot)
					r.Post("/occupy", s.handleOccupySlot)
					r.Post("/block", s.handleBlockSlot)
					r.Post("/error", s.handleErrorSlot)
					r.Post("/clear", s.handleClearSlot)
				})
			})
		})

		r.Get("/scan/{code}/last", s.handleIsLastGarment)

		r.Get("/device/status", s.handleDeviceStatus)
		r.Get("/device/target-slot", s.handleGetTargetSlot)
		r.Get("/device/hanger", s.handleHanger)
		r.Get("/fieldbus/register", s.handleFieldBusRegister)

		r.Route("/data", func(r chi.Router) {
			r.Get("/customers", s.handleListCustomers)
			r.Get("/customers/{id}/tickets", s.handleCustomerTickets)
			r.Get("/tickets", s.handleListTickets)
			r.Get("/tickets/{invoice}", s.handleGetTicket)
			r.Get("/tickets/{invoice}/garments", s.handleTicketGarments)
			r.Get("/recall/{code}", s.handleRecall)
			r.Get("/sessions", s.handleListSessions)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/operators", s.handleCreateOperator)
			r.Get("/audit", s.handleListAuditLogs)

			r.Post("/scan", s.handleScan)
			r.Post("/scan/route", s.handleRoute)
			r.Post("/scan/{code}/complete", s.handleCompleteTicket)

			r.Post("/spot/ingest", s.handleSpotIngest)

			r.Post("/device/jog", s.handleJog)
			r.Put("/device/target-slot", s.handleSetTargetSlot)
			r.Put("/fieldbus/coil", s.handleSetCoil)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// slotParam parses the {n} path parameter.
func slotParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("slot must be a positive integer, got %q", chi.URLParam(r, "n"))
	}
	return n, nil
}

// wsPath is the websocket route under /api/v1, "/ws" unless configured.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
