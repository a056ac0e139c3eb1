package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/spot"
)

// handleSpotIngest applies a POS batch posted as the raw file text.
func (s *Server) handleSpotIngest(w http.ResponseWriter, r *http.Request) {
	if s.spot == nil {
		writeUnavailable(w, "POS ingestion not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "batch exceeds request size limit")
			return
		}
		writeBadRequest(w, "reading body: "+err.Error())
		return
	}

	report, err := s.spot.ApplyText(r.Context(), string(body))
	if err != nil {
		status, code := classify(err)
		if errors.Is(err, spot.ErrBatchAborted) {
			status, code = http.StatusUnprocessableEntity, ErrCodeValidation
		}
		if status == http.StatusInternalServerError {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, status, map[string]any{
			"error":  Error{Code: code, Message: err.Error()},
			"report": report,
		})
		return
	}
	s.auditLog(r, audit.ActionIngest, audit.EntityBatch, "", map[string]any{
		"applied":   report.Applied,
		"not_found": report.NotFound,
		"failed":    report.Failed,
	})
	writeJSON(w, http.StatusOK, report)
}
