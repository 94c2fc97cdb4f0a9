package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// envelope is the body of every JSON response.
type envelope struct {
	Status  string     `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind      string  `json:"kind"`
	IDs       []int32 `json:"ids,omitempty"`
	Current   string  `json:"current,omitempty"`
	Requested string  `json:"requested,omitempty"`
	Shortfall int     `json:"shortfall,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := envelope{Status: "error", Message: err.Error()}
	if de, ok := domain.AsError(err); ok {
		body.Error = &errorBody{
			Kind:      de.Kind.Error(),
			IDs:       de.IDs,
			Current:   de.Current,
			Requested: de.Requested,
			Shortfall: de.Shortfall,
		}
	} else {
		body.Message = "internal error"
		body.Error = &errorBody{Kind: "internal"}
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	s := "success"
	if status >= http.StatusBadRequest {
		s = "error"
	}
	writeJSON(w, status, envelope{Status: s, Message: msg})
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIncompleteAssessment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrIllegalLifecycleTransition),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConflictingAllocation),
		errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBillingUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.InvalidArgument("failed to read request body")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.InvalidArgument("invalid JSON body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int32, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, domain.InvalidArgument("invalid %s %q", name, raw)
	}
	return int32(id), nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.InvalidArgument("invalid %s %q", name, raw)
	}
	return n, nil
}

func queryID(r *http.Request, name string) (int32, error) {
	n, err := queryInt(r, name, 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, domain.InvalidArgument("invalid %s %d", name, n)
	}
	return int32(n), nil
}
