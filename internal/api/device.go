package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/conveyor-core/internal/audit"
)

// deviceTimeout bounds a single device request made on behalf of an HTTP call.
const deviceTimeout = 5 * time.Second

type targetSlotRequest struct {
	Slot int16 `json:"slot"`
}

type coilRequest struct {
	On bool `json:"on"`
}

// withDevice runs fn against the conveyor, answering 503 when none is wired.
func (s *Server) withDevice(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context) (any, error)) {
	if s.device == nil {
		writeUnavailable(w, "conveyor not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), deviceTimeout)
	defer cancel()

	out, err := fn(ctx)
	if err != nil {
		s.logger.Debug("device request failed", "op", op, "error", err)
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{"configured": s.device != nil}
	if s.link != nil {
		status["connected"] = s.link.IsConnected()
		status["endpoint"] = s.link.Endpoint()
	}
	if s.sensor != nil {
		reads, failures := s.sensor.Counters()
		status["hanger"] = map[string]any{
			"detected": s.sensor.Detected(),
			"reads":    reads,
			"failures": failures,
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetTargetSlot(w http.ResponseWriter, r *http.Request) {
	s.withDevice(w, r, "target_slot", func(ctx context.Context) (any, error) {
		slot, err := s.device.TargetSlot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"slot": slot}, nil
	})
}

func (s *Server) handleSetTargetSlot(w http.ResponseWriter, r *http.Request) {
	var req targetSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.withDevice(w, r, "set_target_slot", func(ctx context.Context) (any, error) {
		if err := s.device.SetTargetSlot(ctx, req.Slot); err != nil {
			return nil, err
		}
		s.auditLog(r, audit.ActionCommand, audit.EntityConveyor, "", map[string]any{"op": "target_slot", "slot": req.Slot})
		return map[string]any{"slot": req.Slot}, nil
	})
}

// handleHanger reads the sensor directly rather than the poll loop's cache.
func (s *Server) handleHanger(w http.ResponseWriter, r *http.Request) {
	s.withDevice(w, r, "hanger", func(ctx context.Context) (any, error) {
		on, err := s.device.HangerSensor(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"detected": on}, nil
	})
}

func (s *Server) handleJog(w http.ResponseWriter, r *http.Request) {
	s.withDevice(w, r, "jog", func(ctx context.Context) (any, error) {
		if err := s.device.JogForward(ctx); err != nil {
			return nil, err
		}
		s.logger.Info("conveyor jogged", "by", operatorFrom(r.Context()).Username)
		s.auditLog(r, audit.ActionCommand, audit.EntityConveyor, "", map[string]any{"op": "jog"})
		return map[string]any{"jogged": true}, nil
	})
}

func (s *Server) handleFieldBusRegister(w http.ResponseWriter, r *http.Request) {
	s.withDevice(w, r, "fieldbus_read", func(ctx context.Context) (any, error) {
		slot, err := s.device.FieldBusSlot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"slot": slot}, nil
	})
}

func (s *Server) handleSetCoil(w http.ResponseWriter, r *http.Request) {
	var req coilRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.withDevice(w, r, "fieldbus_coil", func(ctx context.Context) (any, error) {
		if err := s.device.SetCommandCoil(ctx, req.On); err != nil {
			return nil, err
		}
		s.auditLog(r, audit.ActionCommand, audit.EntityConveyor, "", map[string]any{"op": "coil", "on": req.On})
		return map[string]any{"on": req.On}, nil
	})
}
