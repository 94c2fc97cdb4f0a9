package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"serialrent-backend/internal/metrics"
)

// RouterDeps collects what the REST router serves.
type RouterDeps struct {
	Handler *Handler
	Auth    *Authenticator
	Photos  *PhotoFileHandler // nil disables the local upload and download routes
	Metrics *metrics.Metrics  // nil disables /metrics and request metrics
}

// NewRouter registers every route under a name that config.GetSecurityLevel understands.
func NewRouter(deps RouterDeps) *mux.Router {
	h := deps.Handler
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet).Name("health")
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet).Name("metrics")
	}
	if deps.Photos != nil {
		r.HandleFunc("/api/v1/upload/{token}", deps.Photos.Upload).Methods(http.MethodPut).Name("photo.upload")
		r.HandleFunc("/api/v1/download/{hash}", deps.Photos.Download).Methods(http.MethodGet).Name("photo.download")
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/categories", h.listCategories).Methods(http.MethodGet).Name("category.list")
	api.HandleFunc("/categories", h.createCategory).Methods(http.MethodPost).Name("category.create")

	api.HandleFunc("/equipment", h.listEquipment).Methods(http.MethodGet).Name("equipment.list")
	api.HandleFunc("/equipment", h.createEquipment).Methods(http.MethodPost).Name("equipment.create")
	api.HandleFunc("/equipment/{id:[0-9]+}", h.getEquipment).Methods(http.MethodGet).Name("equipment.get")
	api.HandleFunc("/equipment/{id:[0-9]+}", h.updateEquipment).Methods(http.MethodPut).Name("equipment.update")
	api.HandleFunc("/equipment/{id:[0-9]+}/availability", h.checkAvailability).Methods(http.MethodGet).Name("equipment.availability")
	api.HandleFunc("/equipment/{id:[0-9]+}/serials", h.listSerials).Methods(http.MethodGet).Name("serial.list")
	api.HandleFunc("/equipment/{id:[0-9]+}/serials", h.createSerial).Methods(http.MethodPost).Name("serial.create")
	api.HandleFunc("/equipment/{id:[0-9]+}/serials/generate", h.generateSerials).Methods(http.MethodPost).Name("serial.generate")
	api.HandleFunc("/equipment/{id:[0-9]+}/serials/import", h.importSerials).Methods(http.MethodPost).Name("serial.import")

	api.HandleFunc("/serials/by-code/{code}", h.getSerialByCode).Methods(http.MethodGet).Name("serial.byCode")
	api.HandleFunc("/serials/{id:[0-9]+}", h.getSerial).Methods(http.MethodGet).Name("serial.get")
	api.HandleFunc("/serials/{id:[0-9]+}", h.deleteSerial).Methods(http.MethodDelete).Name("serial.delete")
	api.HandleFunc("/serials/{id:[0-9]+}/state", h.setSerialState).Methods(http.MethodPost).Name("serial.state")
	api.HandleFunc("/serials/{id:[0-9]+}/retire", h.retireSerial).Methods(http.MethodPost).Name("serial.retire")
	api.HandleFunc("/serials/{id:[0-9]+}/history", h.serialHistory).Methods(http.MethodGet).Name("serial.history")
	api.HandleFunc("/serials/{id:[0-9]+}/tag", h.serialTag).Methods(http.MethodGet).Name("serial.tag")
	api.HandleFunc("/serials/{id:[0-9]+}/scans", h.serialScans).Methods(http.MethodGet).Name("serial.scans")
	api.HandleFunc("/serials/{id:[0-9]+}/photos", h.photoUploadURL).Methods(http.MethodPost).Name("serial.photoUpload")
	api.HandleFunc("/photos", h.photoDownloadURL).Methods(http.MethodGet).Name("photo.url")
	api.HandleFunc("/history", h.searchHistory).Methods(http.MethodGet).Name("history.search")

	api.HandleFunc("/projects", h.listProjects).Methods(http.MethodGet).Name("project.list")
	api.HandleFunc("/projects", h.createProject).Methods(http.MethodPost).Name("project.create")
	api.HandleFunc("/projects/{id:[0-9]+}", h.getProject).Methods(http.MethodGet).Name("project.get")
	api.HandleFunc("/projects/{id:[0-9]+}/cancel", h.cancelProject).Methods(http.MethodPost).Name("project.cancel")
	api.HandleFunc("/projects/{id:[0-9]+}/items", h.addItem).Methods(http.MethodPost).Name("project.addItem")
	api.HandleFunc("/projects/{id:[0-9]+}/reserve", h.reserveProject).Methods(http.MethodPost).Name("project.reserve")
	api.HandleFunc("/projects/{id:[0-9]+}/start", h.startProject).Methods(http.MethodPost).Name("project.start")

	api.HandleFunc("/items/{id:[0-9]+}", h.getItem).Methods(http.MethodGet).Name("item.get")
	api.HandleFunc("/items/{id:[0-9]+}/transition", h.transitionItem).Methods(http.MethodPost).Name("item.transition")
	api.HandleFunc("/items/{id:[0-9]+}/reserve", h.reserveItem).Methods(http.MethodPost).Name("item.reserve")
	api.HandleFunc("/items/{id:[0-9]+}/start", h.startItem).Methods(http.MethodPost).Name("item.start")
	api.HandleFunc("/items/{id:[0-9]+}/return", h.returnItem).Methods(http.MethodPost).Name("item.return")
	api.HandleFunc("/items/{id:[0-9]+}/invoice", h.invoiceItem).Methods(http.MethodPost).Name("item.invoice")
	api.HandleFunc("/items/{id:[0-9]+}/cancel", h.cancelItem).Methods(http.MethodPost).Name("item.cancel")

	api.HandleFunc("/scan", h.scan).Methods(http.MethodPost).Name("scan")

	r.Use(requestLogger)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	if deps.Auth != nil {
		r.Use(deps.Auth.Middleware)
	}
	return r
}
