package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/ledger"
)

type reserveRequest struct {
	Ticket string `json:"ticket"`
}

type occupyRequest struct {
	Ticket string `json:"ticket"`
	ItemID string `json:"item_id"`
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	list, err := s.slots.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if state := ledger.SlotState(r.URL.Query().Get("state")); state != "" {
		if !state.Valid() {
			writeBadRequest(w, "unknown slot state "+string(state))
			return
		}
		filtered := list[:0]
		for _, sl := range list {
			if sl.State == state {
				filtered = append(filtered, sl)
			}
		}
		list = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"slots": list, "count": len(list)})
}

func (s *Server) handleSlotStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.slots.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	n, err := slotParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	slot, err := s.slots.Get(r.Context(), n)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// handleReserveSlot reserves the next slot for a ticket outside the scan
// workflow, as when a supervisor pre-assigns storage.
func (s *Server) handleReserveSlot(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	slot, err := s.slots.ReserveNext(r.Context(), req.Ticket)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.auditLog(r, audit.ActionSlot, audit.EntitySlot, strconv.Itoa(slot), map[string]any{"state": "reserved", "ticket": req.Ticket})
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "ticket": req.Ticket})
}

func (s *Server) handleOccupySlot(w http.ResponseWriter, r *http.Request) {
	n, err := slotParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req occupyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.slotAction(w, r, n, string(ledger.SlotOccupied), func() error {
		return s.slots.SetOccupied(r.Context(), n, req.Ticket, req.ItemID)
	})
}

func (s *Server) handleFreeSlot(w http.ResponseWriter, r *http.Request) {
	s.slotParamAction(w, r, "free", s.slots.Free)
}

func (s *Server) handleBlockSlot(w http.ResponseWriter, r *http.Request) {
	s.slotParamAction(w, r, "blocked", s.slots.SetBlocked)
}

func (s *Server) handleErrorSlot(w http.ResponseWriter, r *http.Request) {
	s.slotParamAction(w, r, "error", s.slots.SetError)
}

func (s *Server) handleClearSlot(w http.ResponseWriter, r *http.Request) {
	s.slotParamAction(w, r, "clear", s.slots.Clear)
}

func (s *Server) handleClearConveyor(w http.ResponseWriter, r *http.Request) {
	n, err := s.slots.ClearConveyor(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Warn("conveyor cleared", "slots_reset", n, "by", operatorFrom(r.Context()).Username)
	s.auditLog(r, audit.ActionClear, audit.EntityConveyor, "", map[string]any{"slots_reset": n})
	writeJSON(w, http.StatusOK, map[string]any{"slots_reset": n})
}

func (s *Server) slotParamAction(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, slot int) error) {
	n, err := slotParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.slotAction(w, r, n, op, func() error { return fn(r.Context(), n) })
}

// slotAction runs fn, audits op and responds with the slot's resulting row.
func (s *Server) slotAction(w http.ResponseWriter, r *http.Request, n int, op string, fn func() error) {
	if err := fn(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.auditLog(r, audit.ActionSlot, audit.EntitySlot, strconv.Itoa(n), map[string]any{"op": op})
	slot, err := s.slots.Get(r.Context(), n)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}
