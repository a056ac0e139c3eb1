package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/scan"
)

type scanRequest struct {
	Code string `json:"code"`
	// Route runs the conveyor to the garment's slot once the scan commits.
	Route bool `json:"route,omitempty"`
}

type routeRequest struct {
	Slot int `json:"slot"`
}

type scanResponse struct {
	*scan.Result
	Routed bool `json:"routed"`
	Hung   bool `json:"hung"`
}

// handleScan processes one garment barcode. The ticket's last garment goes
// through completion instead of a regular scan and is routed to the slot
// the ticket held, or to the one reserved for it on completion.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ctx := r.Context()
	session := sessionFrom(ctx)

	last, err := s.scan.IsLastGarment(ctx, req.Code)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var res *scan.Result
	if last {
		res, err = s.scan.HandleLastScan(ctx, req.Code, session)
	} else {
		res, err = s.scan.Scan(ctx, req.Code, session)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := scanResponse{Result: res}
	if req.Route && res.Slot > 0 {
		hung, err := s.scan.Route(ctx, res.Slot)
		if err != nil {
			// The scan itself has committed; report the routing failure
			// alongside it.
			s.logger.Warn("routing after scan failed", "code", req.Code, "slot", res.Slot, "error", err)
			writeJSON(w, http.StatusOK, map[string]any{
				"result":      resp,
				"route_error": err.Error(),
			})
			return
		}
		resp.Routed = true
		resp.Hung = hung
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIsLastGarment(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	last, err := s.scan.IsLastGarment(r.Context(), code)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "last_garment": last})
}

// handleCompleteTicket forces completion of a ticket from any of its codes.
func (s *Server) handleCompleteTicket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	res, err := s.scan.HandleLastScan(r.Context(), code, sessionFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.auditLog(r, audit.ActionComplete, audit.EntityTicket, res.Ticket, map[string]any{"slot": res.Slot, "code": code})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Slot <= 0 {
		writeBadRequest(w, "slot must be a positive integer")
		return
	}

	hung, err := s.scan.Route(r.Context(), req.Slot)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": req.Slot, "hung": hung})
}
