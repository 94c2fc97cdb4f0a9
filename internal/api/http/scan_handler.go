package http

import (
	"net/http"

	"serialrent-backend/internal/domain"
)

// scan always answers 200: the outcome, including failures, is in the result level.
func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req domain.ScanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if actor := ActorFromContext(r.Context()); actor != "" {
		req.Actor = actor
	}
	writeData(w, http.StatusOK, h.scans.Scan(r.Context(), req))
}
