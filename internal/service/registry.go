package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/repository"
	"serialrent-backend/internal/security"
)

type serialRegistry struct {
	store  repository.Store
	tags   security.TagIssuer
	prefix string
	rec    Recorder
}

func NewSerialRegistry(store repository.Store, tags security.TagIssuer, defaultPrefix string, rec Recorder) SerialRegistry {
	return newSerialRegistry(store, tags, defaultPrefix, rec)
}

func newSerialRegistry(store repository.Store, tags security.TagIssuer, defaultPrefix string, rec Recorder) *serialRegistry {
	if defaultPrefix == "" {
		defaultPrefix = "SN"
	}
	return &serialRegistry{store: store, tags: tags, prefix: defaultPrefix, rec: recorderOrNop(rec)}
}

func (s *serialRegistry) GetSerial(ctx context.Context, id int32) (*domain.SerialUnit, error) {
	return s.store.Repos().Serials.GetByID(ctx, id)
}

func (s *serialRegistry) GetSerialByCode(ctx context.Context, code string) (*domain.SerialUnit, error) {
	return s.store.Repos().Serials.GetByCode(ctx, code)
}

func (s *serialRegistry) ListSerials(ctx context.Context, equipmentID int32) ([]domain.SerialUnit, error) {
	if _, err := s.store.Repos().Equipment.GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	return s.store.Repos().Serials.ListByEquipment(ctx, equipmentID)
}

func (s *serialRegistry) GetState(ctx context.Context, id int32) (domain.SerialState, error) {
	serial, err := s.GetSerial(ctx, id)
	if err != nil {
		return "", err
	}
	return serial.State, nil
}

// SetState is the manual path for workshop moves (repair done, unit written off).
// Custody states belong to allocation and return processing.
func (s *serialRegistry) SetState(ctx context.Context, id int32, to domain.SerialState, actor, note string) (*domain.StatusHistoryEntry, error) {
	logger.EnterMethod("serialRegistry.SetState", "serialID", id, "to", to)

	if !to.Valid() {
		return nil, domain.InvalidArgument("unknown serial state %q", to)
	}

	var entry *domain.StatusHistoryEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		serial, err := lockSerial(ctx, repos, id)
		if err != nil {
			return err
		}
		if to.InCustody() || serial.State.InCustody() {
			if !serial.State.CanTransitionTo(to) {
				return domain.IllegalTransition(serial.ID, serial.State, to)
			}
			return domain.InvalidState(fmt.Sprintf("serial %s is moved %s -> %s by the rental lifecycle only", serial.Code, serial.State, to), serial.ID)
		}
		entry, err = applyTransition(ctx, repos, serial, domain.Change{To: to, Actor: actor, Note: note}, s.rec)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("serialRegistry.SetState", err, "serialID", id)
		return nil, err
	}

	logger.ExitMethod("serialRegistry.SetState", "serialID", id, "to", to)
	return entry, nil
}

func (s *serialRegistry) ListAvailable(ctx context.Context, equipmentID int32, period domain.DateRange) ([]domain.SerialUnit, error) {
	repos := s.store.Repos()
	if _, err := repos.Equipment.GetByID(ctx, equipmentID); err != nil {
		return nil, err
	}
	serials, err := repos.Serials.ListByEquipment(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	busy, err := busySerials(ctx, repos, serials, period, 0)
	if err != nil {
		return nil, err
	}

	var out []domain.SerialUnit
	for _, serial := range serials {
		if allocatable(serial) && !busy[serial.ID] {
			out = append(out, serial)
		}
	}
	return out, nil
}

func (s *serialRegistry) CheckAvailability(ctx context.Context, equipmentID int32, period domain.DateRange, quantity int) (*domain.Availability, error) {
	if quantity <= 0 {
		return nil, domain.InvalidArgument("quantity must be positive")
	}
	if period.End.Before(period.Start) {
		return nil, domain.InvalidArgument("start date must not be after end date")
	}
	free, err := s.ListAvailable(ctx, equipmentID, period)
	if err != nil {
		return nil, err
	}

	a := &domain.Availability{
		EquipmentID: equipmentID,
		Period:      period,
		Requested:   quantity,
		Available:   len(free),
	}
	for _, serial := range free {
		a.SerialIDs = append(a.SerialIDs, serial.ID)
	}
	return a, nil
}

// ProtectFromDelete reports whether the unit has any history and so may only be retired.
func (s *serialRegistry) ProtectFromDelete(ctx context.Context, id int32) (bool, error) {
	repos := s.store.Repos()
	if _, err := repos.Serials.GetByID(ctx, id); err != nil {
		return false, err
	}
	n, err := repos.History.CountBySerial(ctx, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *serialRegistry) CreateSerial(ctx context.Context, equipmentID int32, code, notes string) (*domain.SerialUnit, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.InvalidArgument("serial code is required")
	}

	var serial *domain.SerialUnit
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := trackedEquipment(ctx, repos, equipmentID); err != nil {
			return err
		}
		existing, err := repos.Serials.ExistingCodes(ctx, []string{code})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.InvalidArgument("serial code %q already exists", code)
		}
		serial = &domain.SerialUnit{
			Code:        code,
			EquipmentID: equipmentID,
			State:       domain.SerialStateAvailable,
			Notes:       notes,
			Active:      true,
		}
		return repos.Serials.Create(ctx, serial)
	})
	if err != nil {
		return nil, err
	}

	logger.WithSerial(serial.ID, serial.Code).Info("Serial created", "equipmentID", equipmentID)
	return serial, nil
}

func (s *serialRegistry) GenerateSerials(ctx context.Context, req domain.GenerateSerialsRequest) (*domain.GenerateSerialsResult, error) {
	logger.EnterMethod("serialRegistry.GenerateSerials", "equipmentID", req.EquipmentID, "count", req.Count)

	if req.Count < 1 || req.Count > domain.MaxGeneratedSerials {
		return nil, domain.InvalidArgument("count must be between 1 and %d", domain.MaxGeneratedSerials)
	}

	var result *domain.GenerateSerialsResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := trackedEquipment(ctx, repos, req.EquipmentID); err != nil {
			return err
		}
		var err error
		result, err = s.generateTx(ctx, repos, req)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("serialRegistry.GenerateSerials", err, "equipmentID", req.EquipmentID)
		return nil, err
	}

	logger.ExitMethod("serialRegistry.GenerateSerials", "equipmentID", req.EquipmentID,
		"created", len(result.Created), "skipped", len(result.Skipped))
	return result, nil
}

// generateTx creates PREFIX-NNNN units inside the caller's transaction, skipping codes already taken.
func (s *serialRegistry) generateTx(ctx context.Context, repos repository.Repositories, req domain.GenerateSerialsRequest) (*domain.GenerateSerialsResult, error) {
	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		prefix = s.prefix
	}
	start := req.Start
	if start < 1 {
		start = 1
	}

	codes := make([]string, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		codes = append(codes, SerialCode(prefix, start+i))
	}
	taken, err := repos.Serials.ExistingCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(taken))
	for _, c := range taken {
		skip[c] = true
	}

	result := &domain.GenerateSerialsResult{Skipped: taken}
	for _, code := range codes {
		if skip[code] {
			continue
		}
		serial := domain.SerialUnit{
			Code:        code,
			EquipmentID: req.EquipmentID,
			State:       domain.SerialStateAvailable,
			Active:      true,
		}
		if err := repos.Serials.Create(ctx, &serial); err != nil {
			return nil, err
		}
		result.Created = append(result.Created, serial)
	}
	return result, nil
}

// SerialCode formats a generated serial code, e.g. SN-0042.
func SerialCode(prefix string, n int) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

func (s *serialRegistry) DeleteSerial(ctx context.Context, id int32) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		serial, err := lockSerial(ctx, repos, id)
		if err != nil {
			return err
		}
		n, err := repos.History.CountBySerial(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.InvalidState(fmt.Sprintf("serial %s has history and can only be retired", serial.Code), id)
		}
		if serial.State != domain.SerialStateAvailable || serial.CurrentLineItemID != nil {
			return domain.InvalidState(fmt.Sprintf("serial %s is %s", serial.Code, serial.State), id)
		}
		allocs, err := repos.Rentals.ListActiveAllocations(ctx, []int32{id})
		if err != nil {
			return err
		}
		if len(allocs) > 0 {
			return domain.InvalidState(fmt.Sprintf("serial %s is allocated to line item %d", serial.Code, allocs[0].LineItemID), id)
		}
		if err := repos.Serials.Delete(ctx, id); err != nil {
			return err
		}
		logger.WithSerial(serial.ID, serial.Code).Info("Serial deleted")
		return nil
	})
}

func (s *serialRegistry) RetireSerial(ctx context.Context, id int32, actor, note string) (*domain.StatusHistoryEntry, error) {
	var entry *domain.StatusHistoryEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		serial, err := lockSerial(ctx, repos, id)
		if err != nil {
			return err
		}
		if note == "" {
			note = "retired"
		}
		entry, err = applyTransition(ctx, repos, serial, domain.Change{To: domain.SerialStateDisposed, Actor: actor, Note: note}, s.rec)
		return err
	})
	return entry, err
}

func (s *serialRegistry) SmartDelete(ctx context.Context, id int32, actor string) (domain.DeleteOutcome, error) {
	protected, err := s.ProtectFromDelete(ctx, id)
	if err != nil {
		return "", err
	}
	if protected {
		if _, err := s.RetireSerial(ctx, id, actor, "retired instead of deleted"); err != nil {
			return "", err
		}
		return domain.DeleteOutcomeRetired, nil
	}
	if err := s.DeleteSerial(ctx, id); err != nil {
		return "", err
	}
	return domain.DeleteOutcomeDeleted, nil
}

func (s *serialRegistry) History(ctx context.Context, id int32) ([]domain.StatusHistoryEntry, error) {
	repos := s.store.Repos()
	if _, err := repos.Serials.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return repos.History.ListBySerial(ctx, id)
}

func (s *serialRegistry) SearchHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.StatusHistoryEntry, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, domain.InvalidArgument("history range ends before it starts")
	}
	if filter.ToState != "" && !filter.ToState.Valid() {
		return nil, domain.InvalidArgument("unknown serial state %q", filter.ToState)
	}
	return s.store.Repos().History.Search(ctx, filter)
}

func (s *serialRegistry) IssueTag(ctx context.Context, id int32) (string, error) {
	serial, err := s.GetSerial(ctx, id)
	if err != nil {
		return "", err
	}
	return s.tags.Issue(serial.ID, serial.Code)
}

func (s *serialRegistry) ResolveTag(ctx context.Context, token string) (*domain.SerialUnit, error) {
	code, err := s.tags.Resolve(token)
	if err != nil {
		return nil, domain.InvalidArgument("unreadable tag: %v", err)
	}
	return s.GetSerialByCode(ctx, code)
}

// applyTransition moves one serial and appends its history entry inside the caller's transaction.
// Every serial state change in the system goes through here.
func applyTransition(ctx context.Context, repos repository.Repositories, serial *domain.SerialUnit, ch domain.Change, rec Recorder) (*domain.StatusHistoryEntry, error) {
	from := serial.State
	if !from.CanTransitionTo(ch.To) {
		return nil, domain.IllegalTransition(serial.ID, from, ch.To)
	}
	if ch.To.InCustody() && ch.LineItemID == nil {
		return nil, domain.InvalidState(fmt.Sprintf("serial %s cannot enter %s without a line item", serial.Code, ch.To), serial.ID)
	}

	serial.State = ch.To
	if ch.To.InCustody() {
		id := *ch.LineItemID
		serial.CurrentLineItemID = &id
	} else {
		serial.CurrentLineItemID = nil
	}
	if ch.To == domain.SerialStateDisposed {
		serial.Active = false
	}
	if err := repos.Serials.Update(ctx, serial); err != nil {
		return nil, err
	}

	entry := &domain.StatusHistoryEntry{
		SerialID:   serial.ID,
		FromState:  from,
		ToState:    ch.To,
		LineItemID: ch.LineItemID,
		Actor:      ch.Actor,
		Note:       ch.Note,
		Condition:  ch.Condition,
		Fee:        ch.Fee,
		Severity:   ch.Severity,
	}
	if err := repos.History.Append(ctx, entry); err != nil {
		return nil, err
	}

	logger.WithSerial(serial.ID, serial.Code).Debug("Serial state changed", "from", from, "to", ch.To, "actor", ch.Actor)
	rec.SerialTransition(from, ch.To)
	return entry, nil
}

func lockSerial(ctx context.Context, repos repository.Repositories, id int32) (*domain.SerialUnit, error) {
	serials, err := repos.Serials.LockByIDs(ctx, []int32{id})
	if err != nil {
		return nil, err
	}
	if len(serials) == 0 {
		return nil, domain.NotFound("serial", id)
	}
	return &serials[0], nil
}

func trackedEquipment(ctx context.Context, repos repository.Repositories, id int32) (*domain.Equipment, error) {
	equipment, err := repos.Equipment.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !equipment.TracksSerials {
		return nil, domain.InvalidState(fmt.Sprintf("equipment %s does not track serials", equipment.Code), id)
	}
	return equipment, nil
}

func allocatable(serial domain.SerialUnit) bool {
	return serial.Active && serial.State == domain.SerialStateAvailable
}

// busySerials returns the serials held by another active line item over an overlapping period.
func busySerials(ctx context.Context, repos repository.Repositories, serials []domain.SerialUnit, period domain.DateRange, exceptItem int32) (map[int32]bool, error) {
	ids := make([]int32, 0, len(serials))
	for _, s := range serials {
		ids = append(ids, s.ID)
	}
	busy := map[int32]bool{}
	if len(ids) == 0 {
		return busy, nil
	}
	allocs, err := repos.Rentals.ListActiveAllocations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range allocs {
		if a.LineItemID != exceptItem && a.Period.Overlaps(period) {
			busy[a.SerialID] = true
		}
	}
	return busy, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
