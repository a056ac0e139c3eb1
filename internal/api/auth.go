package api

import (
	"net/http"

	"github.com/nerrad567/conveyor-core/internal/audit"
)

type loginRequest struct {
	PIN string `json:"pin"`
}

type createOperatorRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

// handleLogin exchanges an operator PIN for a token and a fresh session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	login, err := s.auth.Login(r.Context(), req.PIN)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditAs(login.Operator.Username, audit.ActionLogin, audit.EntityOperator, login.Operator.Username,
		map[string]any{"session_id": login.Session.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      login.Token,
		"expires_at": login.ExpiresAt,
		"operator":   login.Operator,
		"session":    login.Session,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionFrom(r.Context())); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := operatorFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"operator_id": claims.Subject,
		"username":    claims.Username,
		"session_id":  claims.SessionID,
	})
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := s.auth.ListOperators(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operators": ops, "count": len(ops)})
}

func (s *Server) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	var req createOperatorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	op, err := s.auth.CreateOperator(r.Context(), req.Username, req.PIN)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("operator created", "username", op.Username, "by", operatorFrom(r.Context()).Username)
	s.auditLog(r, audit.ActionCreate, audit.EntityOperator, op.Username, nil)
	writeJSON(w, http.StatusCreated, op)
}
