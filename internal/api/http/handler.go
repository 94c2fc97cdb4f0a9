package http

import (
	"serialrent-backend/internal/service"
)

// Handler serves the REST API on top of the rental services.
type Handler struct {
	catalog   service.CatalogService
	registry  service.SerialRegistry
	lifecycle service.LifecycleService
	scans     service.ScanService
	photos    service.PhotoService
}

func NewHandler(
	catalog service.CatalogService,
	registry service.SerialRegistry,
	lifecycle service.LifecycleService,
	scans service.ScanService,
	photos service.PhotoService,
) *Handler {
	return &Handler{
		catalog:   catalog,
		registry:  registry,
		lifecycle: lifecycle,
		scans:     scans,
		photos:    photos,
	}
}
