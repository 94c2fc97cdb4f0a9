package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository"
)

type scanService struct {
	store     repository.Store
	registry  SerialRegistry
	lifecycle LifecycleService
	rec       Recorder
}

// NewScanService maps QR scans from handheld scanners onto registry and lifecycle operations.
func NewScanService(store repository.Store, registry SerialRegistry, lifecycle LifecycleService, rec Recorder) ScanService {
	return &scanService{store: store, registry: registry, lifecycle: lifecycle, rec: recorderOrNop(rec)}
}

// Scan never returns an error: failures come back as an error-level result and are logged like any other scan.
func (s *scanService) Scan(ctx context.Context, req domain.ScanRequest) *domain.ScanResult {
	res := &domain.ScanResult{}
	var prev domain.SerialState

	serial, err := s.resolve(ctx, req)
	if err != nil {
		fail(res, err)
	} else {
		prev = serial.State
		res.Serial = serial
		s.dispatch(ctx, req, serial, res)
		if fresh, err := s.registry.GetSerial(ctx, serial.ID); err == nil {
			res.Serial = fresh
		}
	}

	res.LogID = s.log(ctx, req, res, prev)
	s.rec.ScanHandled(req.Action, res.Level)
	return res
}

func (s *scanService) resolve(ctx context.Context, req domain.ScanRequest) (*domain.SerialUnit, error) {
	if !req.Action.Valid() {
		return nil, domain.InvalidArgument("unknown scan action %q", req.Action)
	}
	return s.registry.ResolveTag(ctx, req.Token)
}

func (s *scanService) dispatch(ctx context.Context, req domain.ScanRequest, serial *domain.SerialUnit, res *domain.ScanResult) {
	switch req.Action {
	case domain.ScanActionVerify:
		s.verify(ctx, serial, res)

	case domain.ScanActionReserve:
		if req.LineItemID == 0 {
			fail(res, domain.InvalidArgument("reserve scans need a line item"))
			return
		}
		out, err := s.lifecycle.Reserve(ctx, req.LineItemID, []int32{serial.ID}, req.Actor)
		if err != nil {
			fail(res, err)
			return
		}
		succeed(res, out, fmt.Sprintf("%s reserved; line item %d holds %d units", serial.Code, out.Item.ID, len(out.Item.SerialIDs)))

	case domain.ScanActionPickup:
		itemID, err := custodyItem(serial, domain.SerialStateReserved, req.LineItemID)
		if err != nil {
			fail(res, err)
			return
		}
		out, err := s.lifecycle.Start(ctx, itemID, req.Actor, time.Time{})
		if err != nil {
			fail(res, err)
			return
		}
		succeed(res, out, fmt.Sprintf("%s picked up", serial.Code))
		if n := len(out.Item.SerialIDs); n > 1 {
			res.Level = domain.ScanLevelWarning
			res.Message = fmt.Sprintf("%s picked up together with the other %d units of line item %d", serial.Code, n-1, itemID)
		}

	case domain.ScanActionReturn:
		itemID, err := custodyItem(serial, domain.SerialStateRented, req.LineItemID)
		if err != nil {
			fail(res, err)
			return
		}
		condition := req.Condition
		if condition == "" {
			condition = domain.ConditionGood
		}
		out, err := s.lifecycle.Return(ctx, domain.ReturnRequest{
			LineItemID: itemID,
			Conditions: []domain.ConditionReport{{SerialID: serial.ID, Condition: condition}},
			Actor:      req.Actor,
		})
		if err != nil {
			fail(res, err)
			return
		}
		succeed(res, out, fmt.Sprintf("%s returned %s", serial.Code, condition))
		if out.Return != nil {
			fees := out.Return.LateFee.Add(out.Return.DamageFee)
			if out.Return.HasDamage() || fees.IsPositive() {
				res.Level = domain.ScanLevelWarning
				res.Message = fmt.Sprintf("%s returned %s; fees %s", serial.Code, condition, fees.StringFixed(2))
			}
		}

	case domain.ScanActionRepaired:
		to := domain.SerialStateAvailable
		if serial.State == domain.SerialStateDamaged {
			to = domain.SerialStateUnderRepair
		}
		entry, err := s.registry.SetState(ctx, serial.ID, to, req.Actor, "scanned as repaired")
		if err != nil {
			fail(res, err)
			return
		}
		res.History = []domain.StatusHistoryEntry{*entry}
		res.Level = domain.ScanLevelSuccess
		res.Message = fmt.Sprintf("%s is back in stock", serial.Code)
		if to == domain.SerialStateUnderRepair {
			res.Level = domain.ScanLevelWarning
			res.Message = fmt.Sprintf("%s sent to repair; scan again once fixed", serial.Code)
		}

	case domain.ScanActionRetire:
		entry, err := s.registry.RetireSerial(ctx, serial.ID, req.Actor, "retired by scan")
		if err != nil {
			fail(res, err)
			return
		}
		res.History = []domain.StatusHistoryEntry{*entry}
		res.Level = domain.ScanLevelSuccess
		res.Message = fmt.Sprintf("%s retired", serial.Code)
	}
}

func (s *scanService) verify(ctx context.Context, serial *domain.SerialUnit, res *domain.ScanResult) {
	res.Level = domain.ScanLevelSuccess
	res.Message = fmt.Sprintf("%s is %s", serial.Code, serial.State)
	if !serial.Active || serial.State != domain.SerialStateAvailable {
		res.Level = domain.ScanLevelWarning
	}
	if serial.CurrentLineItemID != nil {
		if item, err := s.lifecycle.GetItem(ctx, *serial.CurrentLineItemID); err == nil {
			res.LineItem = item
			res.Message = fmt.Sprintf("%s is %s on line item %d until %s", serial.Code, serial.State, item.ID, item.EndDate.Format(domain.DateLayout))
		}
	}
}

func (s *scanService) RecentScans(ctx context.Context, serialID int32, limit int) ([]domain.ScanLog, error) {
	if _, err := s.registry.GetSerial(ctx, serialID); err != nil {
		return nil, err
	}
	return s.store.Repos().ScanLogs.ListBySerial(ctx, serialID, limit)
}

func (s *scanService) log(ctx context.Context, req domain.ScanRequest, res *domain.ScanResult, prev domain.SerialState) string {
	entry := &domain.ScanLog{
		ID:            ulid.Make().String(),
		Token:         req.Token,
		Action:        req.Action,
		Level:         res.Level,
		Message:       res.Message,
		Actor:         req.Actor,
		PreviousState: prev,
	}
	if res.Serial != nil {
		id := res.Serial.ID
		entry.SerialID = &id
		entry.NewState = res.Serial.State
	}
	if res.LineItem != nil {
		id := res.LineItem.ID
		entry.LineItemID = &id
	} else if req.LineItemID != 0 {
		id := req.LineItemID
		entry.LineItemID = &id
	}

	if err := s.store.Repos().ScanLogs.Create(ctx, entry); err != nil {
		logger.Warn("Failed to record scan", "action", req.Action, "error", err)
		return ""
	}
	return entry.ID
}

// custodyItem returns the line item holding serial, which must be in state want.
func custodyItem(serial *domain.SerialUnit, want domain.SerialState, requested int32) (int32, error) {
	if serial.State != want || serial.CurrentLineItemID == nil {
		return 0, domain.InvalidState(fmt.Sprintf("%s is %s, expected %s", serial.Code, serial.State, want), serial.ID)
	}
	if requested != 0 && requested != *serial.CurrentLineItemID {
		return 0, domain.InvalidState(fmt.Sprintf("%s belongs to line item %d, not %d", serial.Code, *serial.CurrentLineItemID, requested), serial.ID)
	}
	return *serial.CurrentLineItemID, nil
}

func succeed(res *domain.ScanResult, out *TransitionResult, msg string) {
	res.Level = domain.ScanLevelSuccess
	res.Message = msg
	res.LineItem = out.Item
	res.History = out.History
}

func fail(res *domain.ScanResult, err error) {
	res.Level = domain.ScanLevelError
	res.Message = err.Error()
	res.ErrorKind = errorKind(err)
}
