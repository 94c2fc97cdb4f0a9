package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/pricing"
	"serialrent-backend/internal/repository"
)

type returnAssessment struct {
	store         repository.Store
	policy        pricing.Policy
	photos        PhotoService
	requirePhotos bool
	rec           Recorder
	now           func() time.Time
}

// NewReturnAssessment builds the return processor. photos may be nil when photo evidence is not required.
func NewReturnAssessment(store repository.Store, policy pricing.Policy, photos PhotoService, requirePhotos bool, rec Recorder) ReturnAssessment {
	return newReturnAssessment(store, policy, photos, requirePhotos, rec)
}

func newReturnAssessment(store repository.Store, policy pricing.Policy, photos PhotoService, requirePhotos bool, rec Recorder) *returnAssessment {
	return &returnAssessment{
		store:         store,
		policy:        policy,
		photos:        photos,
		requirePhotos: requirePhotos,
		rec:           recorderOrNop(rec),
		now:           time.Now,
	}
}

// ProcessReturn assesses every allocated unit of an Ongoing line item in one transaction:
// each unit is returned and routed by condition, fees are computed once, and the item becomes Returned.
func (r *returnAssessment) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (*domain.ReturnResult, error) {
	logger.EnterMethod("returnAssessment.ProcessReturn", "lineItemID", req.LineItemID, "conditions", len(req.Conditions))

	if req.ReturnDate.IsZero() {
		req.ReturnDate = r.now()
	}
	reports, err := indexReports(req.Conditions)
	if err != nil {
		logger.ExitMethodWithError("returnAssessment.ProcessReturn", err, "lineItemID", req.LineItemID)
		return nil, err
	}
	if err := r.checkPhotos(ctx, req.Conditions); err != nil {
		logger.ExitMethodWithError("returnAssessment.ProcessReturn", err, "lineItemID", req.LineItemID)
		return nil, err
	}

	var result *domain.ReturnResult
	err = r.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		result, err = r.processTx(ctx, repos, req, reports)
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("returnAssessment.ProcessReturn", err, "lineItemID", req.LineItemID)
		return nil, err
	}

	for _, a := range result.Assessments {
		r.rec.ReturnProcessed(a.Condition)
	}
	logger.ExitMethod("returnAssessment.ProcessReturn", "lineItemID", req.LineItemID,
		"batchID", result.BatchID, "lateFee", result.LateFee.String(), "damageFee", result.DamageFee.String())
	return result, nil
}

func (r *returnAssessment) processTx(ctx context.Context, repos repository.Repositories, req domain.ReturnRequest, reports map[int32]domain.ConditionReport) (*domain.ReturnResult, error) {
	item, err := repos.Rentals.LockItem(ctx, req.LineItemID)
	if err != nil {
		return nil, err
	}
	if item.State != domain.LineItemStateOngoing {
		return nil, domain.IllegalLifecycleTransition(item.ID, item.State, domain.LineItemStateReturned)
	}
	if domain.Day(req.ReturnDate).Before(domain.Day(item.StartDate)) {
		return nil, domain.InvalidArgument("return date %s precedes rental start", req.ReturnDate.Format(domain.DateLayout))
	}
	if err := coverage(item, reports); err != nil {
		return nil, err
	}

	equipment, err := repos.Equipment.GetByID(ctx, item.EquipmentID)
	if err != nil {
		return nil, err
	}
	project, err := repos.Rentals.GetProject(ctx, item.ProjectID)
	if err != nil {
		return nil, err
	}

	lateDays := domain.DaysBetween(item.EndDate, req.ReturnDate)
	if lateDays < 0 {
		lateDays = 0
	}
	lateFee := decimal.Zero
	if project.LateFeeEnabled {
		lateFee = pricing.LateFee(pricing.LateFeeInputFor(item, equipment), lateDays, r.policy.Late)
	}

	serials, err := repos.Serials.LockByIDs(ctx, item.SerialIDs)
	if err != nil {
		return nil, err
	}
	var notRented []int32
	for _, s := range serials {
		if s.State != domain.SerialStateRented {
			notRented = append(notRented, s.ID)
		}
	}
	if len(notRented) > 0 {
		return nil, domain.InvalidState(fmt.Sprintf("line item %d has serials that are not rented", item.ID), notRented...)
	}

	result := &domain.ReturnResult{
		BatchID:    newBatchID(r.now()),
		LineItemID: item.ID,
		LateDays:   lateDays,
		LateFee:    lateFee,
		DamageFee:  decimal.Zero,
	}
	for i := range serials {
		serial := &serials[i]
		report := reports[serial.ID]
		fee, severity := pricing.DamageFee(report.Condition, equipment.ItemValue, report.FeeOverride, r.policy.Damage)

		returned, err := applyTransition(ctx, repos, serial, domain.Change{
			To:         domain.SerialStateReturned,
			LineItemID: &item.ID,
			Actor:      req.Actor,
			Note:       returnNote(report, result.BatchID),
			Condition:  report.Condition,
			Fee:        &fee,
			Severity:   severity,
		}, r.rec)
		if err != nil {
			return nil, err
		}
		result.History = append(result.History, *returned)

		for _, next := range report.Condition.Disposition() {
			entry, err := applyTransition(ctx, repos, serial, domain.Change{
				To:         next,
				LineItemID: &item.ID,
				Actor:      req.Actor,
				Note:       fmt.Sprintf("disposition %s (batch %s)", report.Condition, result.BatchID),
				Condition:  report.Condition,
			}, r.rec)
			if err != nil {
				return nil, err
			}
			result.History = append(result.History, *entry)
		}

		result.DamageFee = result.DamageFee.Add(fee)
		result.Assessments = append(result.Assessments, domain.DamageAssessment{
			SerialID:    serial.ID,
			Condition:   report.Condition,
			Fee:         fee,
			Severity:    severity,
			FinalState:  serial.State,
			Description: report.Description,
			PhotoKeys:   report.PhotoKeys,
		})
	}

	returnDate := domain.Day(req.ReturnDate)
	item.State = domain.LineItemStateReturned
	item.LateFee = lateFee
	item.DamageFee = result.DamageFee
	item.FeesComputed = true
	item.ReturnDate = &returnDate
	if err := repos.Rentals.UpdateItem(ctx, item); err != nil {
		return nil, err
	}

	logger.WithLineItem(item.ID).Info("Line item returned",
		"batchID", result.BatchID, "lateDays", lateDays, "damaged", result.HasDamage())
	return result, nil
}

// indexReports rejects malformed and duplicate condition reports.
func indexReports(conditions []domain.ConditionReport) (map[int32]domain.ConditionReport, error) {
	reports := make(map[int32]domain.ConditionReport, len(conditions))
	var dupes []int32
	for _, c := range conditions {
		if !c.Condition.Valid() {
			return nil, domain.InvalidArgument("unknown condition %q for serial %d", c.Condition, c.SerialID)
		}
		if c.FeeOverride != nil && c.FeeOverride.IsNegative() {
			return nil, domain.InvalidArgument("fee override for serial %d is negative", c.SerialID)
		}
		if _, ok := reports[c.SerialID]; ok {
			dupes = append(dupes, c.SerialID)
			continue
		}
		reports[c.SerialID] = c
	}
	if len(dupes) > 0 {
		return nil, domain.IncompleteAssessment("serials assessed more than once", dupes)
	}
	return reports, nil
}

// coverage requires exactly one report per allocated serial.
func coverage(item *domain.RentalLineItem, reports map[int32]domain.ConditionReport) error {
	var missing, extra []int32
	for _, id := range item.SerialIDs {
		if _, ok := reports[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range reports {
		if !item.HasSerial(id) {
			extra = append(extra, id)
		}
	}
	if len(missing) > 0 {
		return domain.IncompleteAssessment(fmt.Sprintf("line item %d: serials without a condition", item.ID), missing)
	}
	if len(extra) > 0 {
		sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
		return domain.IncompleteAssessment(fmt.Sprintf("line item %d: serials not allocated to it", item.ID), extra)
	}
	return nil
}

func (r *returnAssessment) checkPhotos(ctx context.Context, conditions []domain.ConditionReport) error {
	var keys []string
	var missing []int32
	for _, c := range conditions {
		if c.Condition == domain.ConditionGood {
			continue
		}
		if r.requirePhotos && len(c.PhotoKeys) == 0 {
			missing = append(missing, c.SerialID)
		}
		keys = append(keys, c.PhotoKeys...)
	}
	if len(missing) > 0 {
		return domain.IncompleteAssessment("damaged or lost units need photo evidence", missing)
	}
	if len(keys) == 0 || r.photos == nil {
		return nil
	}
	return r.photos.Verify(ctx, keys)
}

func returnNote(report domain.ConditionReport, batchID string) string {
	note := fmt.Sprintf("returned %s (batch %s)", report.Condition, batchID)
	if report.Description != "" {
		note += ": " + report.Description
	}
	return note
}

func newBatchID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0)).String()
}
