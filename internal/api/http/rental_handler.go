package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/service"
)

// Dates travel as yyyy-mm-dd strings.
type projectRequest struct {
	Reference      string          `json:"reference"`
	CustomerName   string          `json:"customer_name"`
	CustomerEmail  string          `json:"customer_email"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Discount       decimal.Decimal `json:"discount"`
	LateFeeEnabled *bool           `json:"late_fee_enabled,omitempty"`
	Notes          string          `json:"notes"`
}

type projectResponse struct {
	*domain.RentalProject
	State  domain.LineItemState  `json:"state"`
	Totals domain.ProjectTotals `json:"totals"`
}

func newProjectResponse(p *domain.RentalProject) projectResponse {
	return projectResponse{RentalProject: p, State: p.State(), Totals: p.Totals()}
}

type itemRequest struct {
	EquipmentID int32  `json:"equipment_id"`
	Quantity    int    `json:"quantity"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

type transitionRequest struct {
	Target     domain.LineItemState     `json:"target"`
	SerialIDs  []int32                  `json:"serial_ids,omitempty"`
	Date       string                   `json:"date,omitempty"`
	Conditions []domain.ConditionReport `json:"conditions,omitempty"`
}

type returnRequest struct {
	ReturnDate string                   `json:"return_date,omitempty"`
	Conditions []domain.ConditionReport `json:"conditions"`
}

type reserveRequest struct {
	SerialIDs []int32 `json:"serial_ids,omitempty"`
}

// optionalDay parses an optional yyyy-mm-dd value; empty yields the zero time.
func optionalDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return domain.ParseDay(raw)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.lifecycle.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, newProjectResponse(&projects[i]))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	start, err := domain.ParseDay(req.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := domain.ParseDay(req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}
	project, err := h.lifecycle.CreateProject(r.Context(), domain.NewProjectRequest{
		Reference:      req.Reference,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		StartDate:      start,
		EndDate:        end,
		Discount:       req.Discount,
		LateFeeEnabled: req.LateFeeEnabled,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, newProjectResponse(project))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	project, err := h.lifecycle.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, newProjectResponse(project))
}

func (h *Handler) cancelProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.lifecycle.CancelProject(r.Context(), id, ActorFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "project cancelled")
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req itemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	newItem := domain.NewLineItemRequest{ProjectID: id, EquipmentID: req.EquipmentID, Quantity: req.Quantity}
	if req.StartDate != "" {
		start, err := domain.ParseDay(req.StartDate)
		if err != nil {
			writeError(w, err)
			return
		}
		newItem.StartDate = &start
	}
	if req.EndDate != "" {
		end, err := domain.ParseDay(req.EndDate)
		if err != nil {
			writeError(w, err)
			return
		}
		newItem.EndDate = &end
	}
	item, err := h.lifecycle.AddItem(r.Context(), newItem)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, item)
}

func (h *Handler) reserveProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.ReserveProject(r.Context(), id, ActorFromContext(r.Context()))
	h.writeProjectResult(w, res, err)
}

func (h *Handler) startProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.StartProject(r.Context(), id, ActorFromContext(r.Context()), time.Time{})
	h.writeProjectResult(w, res, err)
}

func (h *Handler) writeProjectResult(w http.ResponseWriter, res *service.ProjectTransitionResult, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"project": newProjectResponse(res.Project),
		"history": res.History,
	})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := h.lifecycle.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, item)
}

// transitionItem is the single entry point that moves a line item to any target state.
func (h *Handler) transitionItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	date, err := optionalDay(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := service.TransitionOptions{
		Actor:     ActorFromContext(r.Context()),
		SerialIDs: req.SerialIDs,
		Now:       date,
	}
	if req.Target == domain.LineItemStateReturned && req.Conditions != nil {
		opts.Return = &domain.ReturnRequest{ReturnDate: date, Conditions: req.Conditions}
	}
	res, err := h.lifecycle.Transition(r.Context(), id, req.Target, opts)
	writeItemResult(w, res, err)
}

func (h *Handler) reserveItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req reserveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.Reserve(r.Context(), id, req.SerialIDs, ActorFromContext(r.Context()))
	writeItemResult(w, res, err)
}

func (h *Handler) startItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.Start(r.Context(), id, ActorFromContext(r.Context()), time.Time{})
	writeItemResult(w, res, err)
}

func (h *Handler) returnItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req returnRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	date, err := optionalDay(req.ReturnDate)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.Return(r.Context(), domain.ReturnRequest{
		LineItemID: id,
		ReturnDate: date,
		Conditions: req.Conditions,
		Actor:      ActorFromContext(r.Context()),
	})
	writeItemResult(w, res, err)
}

func (h *Handler) invoiceItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.Invoice(r.Context(), id, ActorFromContext(r.Context()))
	writeItemResult(w, res, err)
}

func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.lifecycle.Cancel(r.Context(), id, ActorFromContext(r.Context()))
	writeItemResult(w, res, err)
}

func writeItemResult(w http.ResponseWriter, res *service.TransitionResult, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
