package http

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/storage"
)

// PhotoFileHandler serves the upload and download URLs handed out by the local storage backend.
type PhotoFileHandler struct {
	store        storage.StorageInterface
	allowedTypes map[string]bool
	maxBytes     int64
}

// NewPhotoFileHandler accepts uploads up to maxMB megabytes of the given content types.
func NewPhotoFileHandler(store storage.StorageInterface, allowedTypes []string, maxMB int64) *PhotoFileHandler {
	if len(allowedTypes) == 0 {
		allowedTypes = []string{"image/jpeg", "image/png", "image/gif"}
	}
	if maxMB <= 0 {
		maxMB = 10
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	return &PhotoFileHandler{store: store, allowedTypes: allowed, maxBytes: maxMB << 20}
}

// Upload handles PUT requests to the presigned upload URL.
func (h *PhotoFileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(r.Header.Get("Content-Type"), ";")[0]))
	if !h.allowedTypes[contentType] {
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}
	if r.ContentLength > h.maxBytes {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err := h.store.AuthorizeUpload(mux.Vars(r)["token"], key, contentType); err != nil {
		logger.Warn("Photo upload refused", "key", key, "error", err)
		http.Error(w, "Upload URL invalid or expired", http.StatusForbidden)
		return
	}

	err := h.store.SaveFile(key, http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, storage.ErrInvalidKey):
			http.Error(w, "Invalid key", http.StatusBadRequest)
		default:
			logger.Error("Failed to save photo", "key", key, "error", err)
			http.Error(w, "Failed to save file", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("ETag", `"local-upload"`)
	w.WriteHeader(http.StatusOK)
}

// Download streams a stored photo.
func (h *PhotoFileHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key parameter", http.StatusBadRequest)
		return
	}

	file, err := h.store.ReadFile(key)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentTypeFor(key))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, file); err != nil {
		logger.Warn("Photo download interrupted", "key", key, "error", err)
	}
}

func contentTypeFor(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
