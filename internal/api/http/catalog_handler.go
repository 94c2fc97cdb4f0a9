package http

import (
	"net/http"
	"strings"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/importer"
)

const maxImportBytes = 20 << 20

type categoryRequest struct {
	Name     string `json:"name"`
	ParentID *int32 `json:"parent_id,omitempty"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	category, err := h.catalog.CreateCategory(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, category)
}

func (h *Handler) listEquipment(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	equipment, err := h.catalog.ListEquipment(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, equipment)
}

func (h *Handler) createEquipment(w http.ResponseWriter, r *http.Request) {
	var eq domain.Equipment
	if err := decode(r, &eq); err != nil {
		writeError(w, err)
		return
	}
	eq.ID = 0
	if err := h.catalog.CreateEquipment(r.Context(), &eq); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, eq)
}

func (h *Handler) getEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	eq, err := h.catalog.GetEquipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, eq)
}

func (h *Handler) updateEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var eq domain.Equipment
	if err := decode(r, &eq); err != nil {
		writeError(w, err)
		return
	}
	eq.ID = id
	if err := h.catalog.UpdateEquipment(r.Context(), &eq); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, eq)
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	start, err := domain.ParseDay(q.Get("start"))
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := domain.ParseDay(q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	quantity, err := queryInt(r, "quantity", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.registry.CheckAvailability(r.Context(), id, domain.NewDateRange(start, end), quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (h *Handler) listSerials(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	serials, err := h.registry.ListSerials(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, serials)
}

type createSerialRequest struct {
	Code  string `json:"code"`
	Notes string `json:"notes"`
}

func (h *Handler) createSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req createSerialRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	serial, err := h.registry.CreateSerial(r.Context(), id, req.Code, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, serial)
}

func (h *Handler) generateSerials(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req domain.GenerateSerialsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.EquipmentID = id
	req.Actor = ActorFromContext(r.Context())
	res, err := h.registry.GenerateSerials(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

// importSerials registers serial units from an uploaded .xlsx workbook for one equipment.
func (h *Handler) importSerials(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	eq, err := h.catalog.GetEquipment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		writeMessage(w, http.StatusBadRequest, "content-type must be multipart/form-data")
		return
	}
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file is required: "+err.Error())
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		writeMessage(w, http.StatusBadRequest, "only .xlsx files are accepted")
		return
	}

	sum, err := importer.ImportSerials(r.Context(), h.registry, h.catalog, file, importer.Options{
		EquipmentCode: eq.Code,
		DryRun:        r.FormValue("dry_run") == "true",
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Status: "error", Message: err.Error(), Data: sum})
		return
	}
	writeData(w, http.StatusOK, sum)
}
