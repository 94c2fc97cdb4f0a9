package service

import (
	"context"
	"fmt"
	"sort"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/pricing"
	"serialrent-backend/internal/repository"
)

// maxGenerateRounds bounds how often auto-generation retries past codes that are already taken.
const maxGenerateRounds = 5

type allocationEngine struct {
	store        repository.Store
	registry     *serialRegistry
	autoGenerate bool
	rec          Recorder
}

// NewAllocationEngine builds the engine. autoGenerate lets every tracked equipment
// create serials on shortfall; otherwise only equipment flagged for it does. The
// engine reserves serials inside its own transactions, so registry must be one built
// by NewSerialRegistry.
func NewAllocationEngine(store repository.Store, registry SerialRegistry, autoGenerate bool, rec Recorder) (AllocationEngine, error) {
	reg, ok := registry.(*serialRegistry)
	if !ok || reg == nil {
		return nil, fmt.Errorf("allocation engine needs a registry from NewSerialRegistry, got %T", registry)
	}
	return newAllocationEngine(store, reg, autoGenerate, rec), nil
}

func newAllocationEngine(store repository.Store, registry *serialRegistry, autoGenerate bool, rec Recorder) *allocationEngine {
	return &allocationEngine{store: store, registry: registry, autoGenerate: autoGenerate, rec: recorderOrNop(rec)}
}

func (e *allocationEngine) Allocate(ctx context.Context, lineItemID int32, explicit []int32, actor string) (*TransitionResult, error) {
	logger.EnterMethod("allocationEngine.Allocate", "lineItemID", lineItemID, "explicit", explicit)

	var result *TransitionResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.Rentals.LockItem(ctx, lineItemID)
		if err != nil {
			return err
		}
		history, err := e.allocateTx(ctx, repos, item, explicit, actor)
		if err != nil {
			return err
		}
		result, err = itemResult(ctx, repos, item, history)
		return err
	})
	if err != nil {
		e.rec.AllocationFailed(errorKind(err))
		logger.ExitMethodWithError("allocationEngine.Allocate", err, "lineItemID", lineItemID)
		return nil, err
	}

	logger.ExitMethod("allocationEngine.Allocate", "lineItemID", lineItemID, "serials", result.Item.SerialIDs)
	return result, nil
}

// allocateTx reserves serials for a Draft item and moves it to Reserved. Nothing is
// written unless the whole allocation succeeds, since the caller's transaction rolls back.
func (e *allocationEngine) allocateTx(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem, explicit []int32, actor string) ([]domain.StatusHistoryEntry, error) {
	if !item.State.CanTransitionTo(domain.LineItemStateReserved) {
		return nil, domain.IllegalLifecycleTransition(item.ID, item.State, domain.LineItemStateReserved)
	}
	if err := item.ValidateForReservation(); err != nil {
		return nil, err
	}
	if len(explicit) > item.Quantity {
		return nil, domain.InvalidArgument("%d serials named for a quantity of %d", len(explicit), item.Quantity)
	}
	seen := make(map[int32]bool, len(explicit))
	for _, id := range explicit {
		if seen[id] {
			return nil, domain.InvalidArgument("serial %d named twice", id)
		}
		seen[id] = true
	}

	equipment, err := repos.Equipment.GetByID(ctx, item.EquipmentID)
	if err != nil {
		return nil, err
	}
	if !equipment.Active {
		return nil, domain.InvalidState(fmt.Sprintf("equipment %s is inactive", equipment.Code), equipment.ID)
	}
	amount, err := pricing.RentalAmount(equipment, item.Period(), item.Quantity)
	if err != nil {
		return nil, err
	}
	item.RentalAmount = amount

	var chosen []domain.SerialUnit
	if equipment.TracksSerials {
		chosen, err = e.choose(ctx, repos, item, equipment, explicit)
		if err != nil {
			return nil, err
		}
	} else if len(explicit) > 0 {
		return nil, domain.InvalidArgument("equipment %s does not track serials", equipment.Code)
	}

	var history []domain.StatusHistoryEntry
	ids := make([]int32, 0, len(chosen))
	for i := range chosen {
		entry, err := applyTransition(ctx, repos, &chosen[i], domain.Change{
			To:         domain.SerialStateReserved,
			LineItemID: &item.ID,
			Actor:      actor,
			Note:       "reserved",
		}, e.rec)
		if err != nil {
			return nil, err
		}
		history = append(history, *entry)
		ids = append(ids, chosen[i].ID)
	}
	if err := repos.Rentals.SetItemSerials(ctx, item.ID, ids); err != nil {
		return nil, err
	}

	item.SerialIDs = ids
	item.State = domain.LineItemStateReserved
	if err := repos.Rentals.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	logger.WithLineItem(item.ID).Info("Line item reserved", "serials", ids, "actor", actor)
	return history, nil
}

// choose validates the explicit serials and fills the rest by ascending code.
func (e *allocationEngine) choose(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem, equipment *domain.Equipment, explicit []int32) ([]domain.SerialUnit, error) {
	serials, err := repos.Serials.LockByEquipment(ctx, equipment.ID)
	if err != nil {
		return nil, err
	}
	busy, err := busySerials(ctx, repos, serials, item.Period(), item.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int32]domain.SerialUnit, len(serials))
	for _, s := range serials {
		byID[s.ID] = s
	}

	var conflicts []int32
	chosen := make([]domain.SerialUnit, 0, item.Quantity)
	picked := make(map[int32]bool, item.Quantity)
	for _, id := range explicit {
		s, ok := byID[id]
		if !ok || !allocatable(s) || busy[id] {
			conflicts = append(conflicts, id)
			continue
		}
		chosen = append(chosen, s)
		picked[id] = true
	}
	if len(conflicts) > 0 {
		return nil, domain.ConflictingAllocation(
			fmt.Sprintf("serials unavailable for line item %d over %s..%s", item.ID,
				item.Period().Start.Format(domain.DateLayout), item.Period().End.Format(domain.DateLayout)),
			conflicts)
	}

	for _, s := range serials {
		if len(chosen) == item.Quantity {
			break
		}
		if picked[s.ID] || !allocatable(s) || busy[s.ID] {
			continue
		}
		chosen = append(chosen, s)
		picked[s.ID] = true
	}

	if shortfall := item.Quantity - len(chosen); shortfall > 0 {
		if !e.autoGenerate && !equipment.AutoGenerateSerials {
			return nil, domain.InsufficientStock(equipment.ID, shortfall)
		}
		created, err := e.generateShortfall(ctx, repos, equipment, len(serials), shortfall)
		if err != nil {
			return nil, err
		}
		chosen = append(chosen, created...)
	}
	return chosen, nil
}

func (e *allocationEngine) generateShortfall(ctx context.Context, repos repository.Repositories, equipment *domain.Equipment, existing, shortfall int) ([]domain.SerialUnit, error) {
	var created []domain.SerialUnit
	next := existing + 1
	for round := 0; round < maxGenerateRounds && len(created) < shortfall; round++ {
		need := shortfall - len(created)
		res, err := e.registry.generateTx(ctx, repos, domain.GenerateSerialsRequest{
			EquipmentID: equipment.ID,
			Prefix:      equipment.Code,
			Start:       next,
			Count:       need,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, res.Created...)
		next += need
	}
	if len(created) < shortfall {
		return nil, domain.InsufficientStock(equipment.ID, shortfall-len(created))
	}
	logger.Info("Serials generated on shortfall", "equipment", equipment.Code, "count", len(created))
	return created, nil
}

func (e *allocationEngine) Release(ctx context.Context, lineItemID int32, actor string) (*TransitionResult, error) {
	logger.EnterMethod("allocationEngine.Release", "lineItemID", lineItemID)

	var result *TransitionResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.Rentals.LockItem(ctx, lineItemID)
		if err != nil {
			return err
		}
		history, err := e.releaseTx(ctx, repos, item, actor)
		if err != nil {
			return err
		}
		result, err = itemResult(ctx, repos, item, history)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("allocationEngine.Release", err, "lineItemID", lineItemID)
		return nil, err
	}

	logger.ExitMethod("allocationEngine.Release", "lineItemID", lineItemID)
	return result, nil
}

// releaseTx frees a Reserved item's serials and returns it to Draft. A serial that has
// already moved past Reserved makes the whole release fail.
func (e *allocationEngine) releaseTx(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem, actor string) ([]domain.StatusHistoryEntry, error) {
	if !item.State.CanTransitionTo(domain.LineItemStateDraft) {
		return nil, domain.IllegalLifecycleTransition(item.ID, item.State, domain.LineItemStateDraft)
	}

	serials, err := repos.Serials.LockByIDs(ctx, item.SerialIDs)
	if err != nil {
		return nil, err
	}
	var moved []int32
	for _, s := range serials {
		if s.State != domain.SerialStateReserved {
			moved = append(moved, s.ID)
		}
	}
	if len(moved) > 0 {
		sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
		return nil, domain.InvalidState(fmt.Sprintf("line item %d has serials that are no longer reserved", item.ID), moved...)
	}

	var history []domain.StatusHistoryEntry
	for i := range serials {
		entry, err := applyTransition(ctx, repos, &serials[i], domain.Change{
			To:         domain.SerialStateAvailable,
			LineItemID: &item.ID,
			Actor:      actor,
			Note:       "released",
		}, e.rec)
		if err != nil {
			return nil, err
		}
		history = append(history, *entry)
	}
	if err := repos.Rentals.SetItemSerials(ctx, item.ID, nil); err != nil {
		return nil, err
	}

	item.SerialIDs = nil
	item.State = domain.LineItemStateDraft
	if err := repos.Rentals.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	logger.WithLineItem(item.ID).Info("Line item released", "actor", actor)
	return history, nil
}

// itemResult reloads the item and its project's derived state inside the transaction.
func itemResult(ctx context.Context, repos repository.Repositories, item *domain.RentalLineItem, history []domain.StatusHistoryEntry) (*TransitionResult, error) {
	fresh, err := repos.Rentals.GetItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	siblings, err := repos.Rentals.ListItemsByProject(ctx, fresh.ProjectID)
	if err != nil {
		return nil, err
	}
	return &TransitionResult{
		Item:         fresh,
		ProjectState: domain.ProjectState(siblings),
		History:      history,
	}, nil
}
