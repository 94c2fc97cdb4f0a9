package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"serialrent-backend/internal/domain"
)

func (h *Handler) getSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	serial, err := h.registry.GetSerial(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, serial)
}

// getSerialByCode resolves a scanned tag or typed serial code.
func (h *Handler) getSerialByCode(w http.ResponseWriter, r *http.Request) {
	serial, err := h.registry.ResolveTag(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, serial)
}

type setStateRequest struct {
	State domain.SerialState `json:"state"`
	Note  string             `json:"note"`
}

func (h *Handler) setSerialState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req setStateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.registry.SetState(r.Context(), id, req.State, ActorFromContext(r.Context()), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entry)
}

// deleteSerial removes a unit, or retires it when its history must be kept.
// ?hard=true refuses instead of retiring.
func (h *Handler) deleteSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("hard") == "true" {
		if err := h.registry.DeleteSerial(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"outcome": domain.DeleteOutcomeDeleted})
		return
	}
	outcome, err := h.registry.SmartDelete(r.Context(), id, ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"outcome": outcome})
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) retireSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req noteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.registry.RetireSerial(r.Context(), id, ActorFromContext(r.Context()), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entry)
}

func (h *Handler) serialHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.registry.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, history)
}

func (h *Handler) serialTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	tag, err := h.registry.IssueTag(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"tag": tag})
}

func (h *Handler) serialScans(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, err)
		return
	}
	logs, err := h.scans.RecentScans(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, logs)
}

// searchHistory filters status history by serial, equipment, line item, target state, actor and time.
func (h *Handler) searchHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f domain.HistoryFilter
	var err error
	if f.SerialID, err = queryID(r, "serial_id"); err != nil {
		writeError(w, err)
		return
	}
	if f.EquipmentID, err = queryID(r, "equipment_id"); err != nil {
		writeError(w, err)
		return
	}
	if f.LineItemID, err = queryID(r, "line_item_id"); err != nil {
		writeError(w, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit", 100); err != nil {
		writeError(w, err)
		return
	}
	f.ToState = domain.SerialState(q.Get("to_state"))
	f.Actor = q.Get("actor")
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			day, derr := domain.ParseDay(raw)
			if derr != nil {
				writeError(w, derr)
				return
			}
			t = day
		}
		*dst = &t
	}

	entries, err := h.registry.SearchHistory(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

type photoURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type photoURLResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresAt int64  `json:"expires_at"`
}

func (h *Handler) photoUploadURL(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req photoURLRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	url, key, expiresAt, err := h.photos.GetUploadURL(r.Context(), id, req.Filename, req.ContentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, photoURLResponse{URL: url, Key: key, ExpiresAt: expiresAt})
}

func (h *Handler) photoDownloadURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, domain.InvalidArgument("key is required"))
		return
	}
	url, expiresAt, err := h.photos.GetDownloadURL(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, photoURLResponse{URL: url, Key: key, ExpiresAt: expiresAt})
}
