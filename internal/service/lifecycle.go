package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/pricing"
	"serialrent-backend/internal/repository"
)

type lifecycleService struct {
	store          repository.Store
	engine         *allocationEngine
	returns        ReturnAssessment
	biller         Biller
	defaultLateFee bool
	now            func() time.Time
}

// NewLifecycleService wires the state machine. engine must come from NewAllocationEngine
// since reservations of whole projects run inside the lifecycle's transactions.
func NewLifecycleService(
	store repository.Store,
	engine AllocationEngine,
	returns ReturnAssessment,
	biller Biller,
	defaultLateFee bool,
) (LifecycleService, error) {
	e, ok := engine.(*allocationEngine)
	if !ok || e == nil {
		return nil, fmt.Errorf("lifecycle service needs an engine from NewAllocationEngine, got %T", engine)
	}
	if returns == nil {
		return nil, errors.New("lifecycle service needs a return assessment")
	}
	return newLifecycleService(store, e, returns, biller, defaultLateFee), nil
}

func newLifecycleService(store repository.Store, engine *allocationEngine, returns ReturnAssessment, biller Biller, defaultLateFee bool) *lifecycleService {
	return &lifecycleService{
		store:          store,
		engine:         engine,
		returns:        returns,
		biller:         biller,
		defaultLateFee: defaultLateFee,
		now:            time.Now,
	}
}

func (s *lifecycleService) CreateProject(ctx context.Context, req domain.NewProjectRequest) (*domain.RentalProject, error) {
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, domain.InvalidArgument("customer name is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return nil, domain.InvalidArgument("project start and end dates are required")
	}
	if domain.Day(req.EndDate).Before(domain.Day(req.StartDate)) {
		return nil, domain.InvalidArgument("project ends before it starts")
	}
	if req.Discount.IsNegative() {
		return nil, domain.InvalidArgument("discount must not be negative")
	}

	project := &domain.RentalProject{
		Reference:      strings.TrimSpace(req.Reference),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		StartDate:      domain.Day(req.StartDate),
		EndDate:        domain.Day(req.EndDate),
		Discount:       req.Discount,
		LateFeeEnabled: s.defaultLateFee,
		Notes:          req.Notes,
	}
	if req.LateFeeEnabled != nil {
		project.LateFeeEnabled = *req.LateFeeEnabled
	}
	if project.Reference == "" {
		project.Reference = "RP-" + ulid.Make().String()
	}

	if err := s.store.Repos().Rentals.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	logger.Info("Rental project created", "projectID", project.ID, "reference", project.Reference)
	return project, nil
}

func (s *lifecycleService) GetProject(ctx context.Context, id int32) (*domain.RentalProject, error) {
	repos := s.store.Repos()
	project, err := repos.Rentals.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	project.Items, err = repos.Rentals.ListItemsByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *lifecycleService) ListProjects(ctx context.Context) ([]domain.RentalProject, error) {
	repos := s.store.Repos()
	projects, err := repos.Rentals.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].Items, err = repos.Rentals.ListItemsByProject(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// CancelProject releases every reserved item and deletes the project. Projects with
// units out on rent or already returned cannot be cancelled. Item rows are locked
// before their states are read, so an allocation racing the cancel either finishes
// first and is released here, or waits and finds the item gone.
func (s *lifecycleService) CancelProject(ctx context.Context, id int32, actor string) error {
	logger.EnterMethod("lifecycleService.CancelProject", "projectID", id)

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Rentals.GetProject(ctx, id); err != nil {
			return err
		}
		items, err := repos.Rentals.LockItemsByProject(ctx, id)
		if err != nil {
			return err
		}
		var started []int32
		for _, it := range items {
			if it.State.Rank() >= domain.LineItemStateOngoing.Rank() {
				started = append(started, it.ID)
			}
		}
		if len(started) > 0 {
			return domain.InvalidState(fmt.Sprintf("project %d has line items past reservation", id), started...)
		}
		for i := range items {
			if items[i].State != domain.LineItemStateReserved {
				continue
			}
			item, err := repos.Rentals.LockItem(ctx, items[i].ID)
			if err != nil {
				return err
			}
			if _, err := s.engine.releaseTx(ctx, repos, item, actor); err != nil {
				return err
			}
		}
		return repos.Rentals.DeleteProject(ctx, id)
	})
	if err != nil {
		logger.ExitMethodWithError("lifecycleService.CancelProject", err, "projectID", id)
		return err
	}

	logger.ExitMethod("lifecycleService.CancelProject", "projectID", id)
	return nil
}

func (s *lifecycleService) AddItem(ctx context.Context, req domain.NewLineItemRequest) (*domain.RentalLineItem, error) {
	if req.Quantity <= 0 {
		return nil, domain.InvalidArgument("quantity must be positive")
	}

	var item *domain.RentalLineItem
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		project, err := repos.Rentals.GetProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		siblings, err := repos.Rentals.ListItemsByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		if len(siblings) > 0 && domain.ProjectState(siblings) == domain.LineItemStateInvoiced {
			return domain.InvalidState(fmt.Sprintf("project %d is fully invoiced", project.ID), project.ID)
		}
		equipment, err := repos.Equipment.GetByID(ctx, req.EquipmentID)
		if err != nil {
			return err
		}
		if !equipment.Active {
			return domain.InvalidState(fmt.Sprintf("equipment %s is inactive", equipment.Code), equipment.ID)
		}

		item = &domain.RentalLineItem{
			ProjectID:   project.ID,
			EquipmentID: equipment.ID,
			Quantity:    req.Quantity,
			StartDate:   project.StartDate,
			EndDate:     project.EndDate,
			State:       domain.LineItemStateDraft,
		}
		if req.StartDate != nil {
			item.StartDate = domain.Day(*req.StartDate)
		}
		if req.EndDate != nil {
			item.EndDate = domain.Day(*req.EndDate)
		}
		if item.EndDate.Before(item.StartDate) {
			return domain.InvalidArgument("line item ends before it starts")
		}
		item.RentalAmount, err = pricing.RentalAmount(equipment, item.Period(), item.Quantity)
		if err != nil {
			return err
		}
		return repos.Rentals.CreateItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	logger.WithLineItem(item.ID).Info("Line item added", "projectID", item.ProjectID, "equipmentID", item.EquipmentID, "quantity", item.Quantity)
	return item, nil
}

func (s *lifecycleService) GetItem(ctx context.Context, id int32) (*domain.RentalLineItem, error) {
	return s.store.Repos().Rentals.GetItem(ctx, id)
}

func (s *lifecycleService) Transition(ctx context.Context, lineItemID int32, target domain.LineItemState, opts TransitionOptions) (*TransitionResult, error) {
	if !target.Valid() {
		return nil, domain.InvalidArgument("unknown line item state %q", target)
	}
	item, err := s.GetItem(ctx, lineItemID)
	if err != nil {
		return nil, err
	}
	// Checked again under lock by each operation.
	if !item.State.CanTransitionTo(target) {
		return nil, domain.IllegalLifecycleTransition(item.ID, item.State, target)
	}

	switch target {
	case domain.LineItemStateReserved:
		return s.Reserve(ctx, lineItemID, opts.SerialIDs, opts.Actor)
	case domain.LineItemStateOngoing:
		return s.Start(ctx, lineItemID, opts.Actor, opts.Now)
	case domain.LineItemStateReturned:
		if opts.Return == nil {
			return nil, domain.IncompleteAssessment(fmt.Sprintf("line item %d: return needs condition reports", lineItemID), item.SerialIDs)
		}
		req := *opts.Return
		req.LineItemID = lineItemID
		if req.Actor == "" {
			req.Actor = opts.Actor
		}
		return s.Return(ctx, req)
	case domain.LineItemStateInvoiced:
		return s.Invoice(ctx, lineItemID, opts.Actor)
	case domain.LineItemStateDraft:
		return s.Cancel(ctx, lineItemID, opts.Actor)
	}
	return nil, domain.IllegalLifecycleTransition(item.ID, item.State, target)
}

func (s *lifecycleService) Reserve(ctx context.Context, lineItemID int32, explicit []int32, actor string) (*TransitionResult, error) {
	return s.engine.Allocate(ctx, lineItemID, explicit, actor)
}

func (s *lifecycleService) Cancel(ctx context.Context, lineItemID int32, actor string) (*TransitionResult, error) {
	return s.engine.Release(ctx, lineItemID, actor)
}

// Start hands the reserved units to the customer. It may not run before the rental period begins.
func (s *lifecycleService) Start(ctx context.Context, lineItemID int32, actor string, now time.Time) (*TransitionResult, error) {
	logger.EnterMethod("lifecycleService.Start", "lineItemID", lineItemID)
	if now.IsZero() {
		now = s.now()
	}

	var result *TransitionResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.Rentals.LockItem(ctx, lineItemID)
		if err != nil {
			return err
		}
		history, err := s.startTx(ctx, repos, item, actor, now)
		if err != nil {
			return err
		}
		result, err = itemResult(ctx, repos, item, history)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("lifecycleService.Start", err, "lineItemID", lineItemID)
		return nil, err
	}

	logger.ExitMethod("lifecycleService.Start", "lineItemID", lineItemID)
	return result, nil
}

func (s *lifecycleService) startTx(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem, actor string, now time.Time) ([]domain.StatusHistoryEntry, error) {
	if item.State != domain.LineItemStateReserved {
		return nil, domain.IllegalLifecycleTransition(item.ID, item.State, domain.LineItemStateOngoing)
	}
	if domain.Day(now).Before(domain.Day(item.StartDate)) {
		return nil, domain.InvalidState(fmt.Sprintf("line item %d starts on %s", item.ID, item.StartDate.Format(domain.DateLayout)), item.ID)
	}

	serials, err := repos.Serials.LockByIDs(ctx, item.SerialIDs)
	if err != nil {
		return nil, err
	}
	var history []domain.StatusHistoryEntry
	for i := range serials {
		entry, err := applyTransition(ctx, repos, &serials[i], domain.Change{
			To:         domain.SerialStateRented,
			LineItemID: &item.ID,
			Actor:      actor,
			Note:       "picked up",
		}, s.engine.rec)
		if err != nil {
			return nil, err
		}
		history = append(history, *entry)
	}

	item.State = domain.LineItemStateOngoing
	if err := repos.Rentals.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	logger.WithLineItem(item.ID).Info("Line item started", "actor", actor)
	return history, nil
}

func (s *lifecycleService) Return(ctx context.Context, req domain.ReturnRequest) (*TransitionResult, error) {
	ret, err := s.returns.ProcessReturn(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := s.itemResult(ctx, req.LineItemID, ret.History)
	if err != nil {
		return nil, err
	}
	result.Return = ret
	return result, nil
}

// Invoice hands a returned item to billing. The collaborator is called outside any
// transaction; the item only becomes Invoiced once it answers with a reference.
// The project discount is consumed in invoicing order: each item takes what its
// siblings left, up to its own gross amount. The share is stored on the item before
// billing so concurrent invoices of one project cannot both claim it.
func (s *lifecycleService) Invoice(ctx context.Context, lineItemID int32, actor string) (*TransitionResult, error) {
	logger.EnterMethod("lifecycleService.Invoice", "lineItemID", lineItemID)

	var req *domain.BillingRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.Rentals.GetItem(ctx, lineItemID)
		if err != nil {
			return err
		}
		siblings, err := repos.Rentals.LockItemsByProject(ctx, item.ProjectID)
		if err != nil {
			return err
		}
		item = findItem(siblings, lineItemID)
		if item == nil {
			return domain.NotFound("line item", lineItemID)
		}
		if item.State != domain.LineItemStateReturned {
			return domain.IllegalLifecycleTransition(item.ID, item.State, domain.LineItemStateInvoiced)
		}
		if !item.FeesComputed {
			return domain.InvalidState(fmt.Sprintf("line item %d has no computed fees", item.ID), item.ID)
		}
		project, err := repos.Rentals.GetProject(ctx, item.ProjectID)
		if err != nil {
			return err
		}
		if share := domain.DiscountShare(project.Discount, item, siblings); !share.Equal(item.Discount) {
			item.Discount = share
			if err := repos.Rentals.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		req, err = s.billingRequest(ctx, repos, project, item)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("lifecycleService.Invoice", err, "lineItemID", lineItemID)
		return nil, err
	}

	if s.biller == nil {
		return nil, domain.BillingUnavailable(lineItemID, errors.New("no billing collaborator configured"))
	}
	ref, err := s.biller.CreateInvoice(ctx, *req)
	if err != nil {
		err = domain.BillingUnavailable(lineItemID, err)
		logger.ExitMethodWithError("lifecycleService.Invoice", err, "lineItemID", lineItemID)
		return nil, err
	}

	var result *TransitionResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		locked, err := repos.Rentals.LockItem(ctx, lineItemID)
		if err != nil {
			return err
		}
		if locked.State != domain.LineItemStateReturned {
			return domain.IllegalLifecycleTransition(locked.ID, locked.State, domain.LineItemStateInvoiced)
		}
		locked.State = domain.LineItemStateInvoiced
		locked.InvoiceRef = ref
		if err := repos.Rentals.UpdateItem(ctx, locked); err != nil {
			return err
		}
		result, err = itemResult(ctx, repos, locked, nil)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("lifecycleService.Invoice", err, "lineItemID", lineItemID, "invoiceRef", ref)
		return nil, err
	}

	result.Invoice = &domain.InvoiceResult{
		LineItemID: lineItemID,
		InvoiceRef: ref,
		Total:      req.Total,
		State:      domain.LineItemStateInvoiced,
	}
	logger.ExitMethod("lifecycleService.Invoice", "lineItemID", lineItemID, "invoiceRef", ref)
	return result, nil
}

func (s *lifecycleService) billingRequest(ctx context.Context, repos repository.Repositories, project *domain.RentalProject, item *domain.RentalLineItem) (*domain.BillingRequest, error) {
	equipment, err := repos.Equipment.GetByID(ctx, item.EquipmentID)
	if err != nil {
		return nil, err
	}
	serials, err := repos.Serials.LockByIDs(ctx, item.SerialIDs)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(serials))
	for _, serial := range serials {
		codes = append(codes, serial.Code)
	}

	return &domain.BillingRequest{
		LineItemID:    item.ID,
		ProjectID:     project.ID,
		Reference:     project.Reference,
		CustomerName:  project.CustomerName,
		CustomerEmail: project.CustomerEmail,
		EquipmentCode: equipment.Code,
		Quantity:      item.Quantity,
		SerialCodes:   codes,
		RentalAmount:  item.RentalAmount,
		LateFee:       item.LateFee,
		DamageFee:     item.DamageFee,
		Discount:      item.Discount,
		Total:         item.Gross().Sub(item.Discount),
	}, nil
}

func findItem(items []domain.RentalLineItem, id int32) *domain.RentalLineItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

// ReserveProject reserves every Draft item of a project in one transaction.
func (s *lifecycleService) ReserveProject(ctx context.Context, projectID int32, actor string) (*ProjectTransitionResult, error) {
	return s.projectStep(ctx, projectID, domain.LineItemStateDraft,
		func(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem) ([]domain.StatusHistoryEntry, error) {
			return s.engine.allocateTx(ctx, repos, item, nil, actor)
		})
}

// StartProject starts every Reserved item of a project in one transaction.
func (s *lifecycleService) StartProject(ctx context.Context, projectID int32, actor string, now time.Time) (*ProjectTransitionResult, error) {
	if now.IsZero() {
		now = s.now()
	}
	return s.projectStep(ctx, projectID, domain.LineItemStateReserved,
		func(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem) ([]domain.StatusHistoryEntry, error) {
			return s.startTx(ctx, repos, item, actor, now)
		})
}

type itemStep func(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem) ([]domain.StatusHistoryEntry, error)

func (s *lifecycleService) projectStep(ctx context.Context, projectID int32, from domain.LineItemState, step itemStep) (*ProjectTransitionResult, error) {
	var result *ProjectTransitionResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		project, err := repos.Rentals.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		items, err := repos.Rentals.ListItemsByProject(ctx, projectID)
		if err != nil {
			return err
		}
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

		var history []domain.StatusHistoryEntry
		for _, it := range items {
			if it.State != from {
				continue
			}
			item, err := repos.Rentals.LockItem(ctx, it.ID)
			if err != nil {
				return err
			}
			entries, err := step(ctx, repos, item)
			if err != nil {
				return err
			}
			history = append(history, entries...)
		}

		project.Items, err = repos.Rentals.ListItemsByProject(ctx, projectID)
		if err != nil {
			return err
		}
		result = &ProjectTransitionResult{Project: project, State: project.State(), History: history}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *lifecycleService) itemResult(ctx context.Context, lineItemID int32, history []domain.StatusHistoryEntry) (*TransitionResult, error) {
	repos := s.store.Repos()
	item, err := repos.Rentals.GetItem(ctx, lineItemID)
	if err != nil {
		return nil, err
	}
	return itemResult(ctx, repos, item, history)
}
