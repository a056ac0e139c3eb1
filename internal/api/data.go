package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// Read-only views over the ledger for the counter staff.

func (s *Server) store() *ledger.Store {
	return ledger.NewStore(s.db)
}

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.store().ListCustomers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers, "count": len(customers)})
}

func (s *Server) handleCustomerTickets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	store := s.store()
	customer, err := store.GetCustomer(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	tickets, err := store.ListTicketsForCustomer(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer, "tickets": tickets, "count": len(tickets)})
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.store().ListTickets(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets, "count": len(tickets)})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.store().GetTicket(r.Context(), chi.URLParam(r, "invoice"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleTicketGarments(w http.ResponseWriter, r *http.Request) {
	invoice := chi.URLParam(r, "invoice")
	store := s.store()
	if _, err := store.GetTicket(r.Context(), invoice); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	garments, err := store.ListGarmentsForTicket(r.Context(), invoice)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"garments": garments, "count": len(garments)})
}

// handleRecall finds where a ticket is stored. code may be a garment item
// id or an invoice number.
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")
	store := s.store()

	invoice := code
	garment, err := store.GetGarment(ctx, code)
	switch {
	case err == nil:
		invoice = garment.FullInvoiceNumber
	case !errors.Is(err, ledger.ErrNotFound):
		s.writeDomainError(w, r, err)
		return
	}

	ticket, err := store.GetTicket(ctx, invoice)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := map[string]any{"ticket": ticket, "slot": nil}
	slot, err := store.SlotForTicket(ctx, ticket.FullInvoiceNumber)
	switch {
	case err == nil:
		resp["slot"] = slot
	case !errors.Is(err, ledger.ErrNotFound):
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListSessions lists operator sessions started in [from, to). Both
// bounds are dates (2006-01-02); to defaults to the day after from, and
// from defaults to today.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := time.Now().UTC().Truncate(24 * time.Hour)

	from, err := parseDate(q.Get("from"), today)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	to, err := parseDate(q.Get("to"), from.AddDate(0, 0, 1))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if !to.After(from) {
		writeBadRequest(w, "to must be after from")
		return
	}

	sessions, err := s.store().ListSessionsBetween(r.Context(), from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func parseDate(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return t, nil
}
