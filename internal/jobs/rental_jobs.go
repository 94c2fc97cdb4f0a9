package jobs

import (
	"context"

	"github.com/shopspring/decimal"

	"serialrent-backend/internal/domain"
	"serialrent-backend/internal/logger"
	"serialrent-backend/internal/pricing"
)

// OverdueItem is an Ongoing line item past its end date with the late fee accrued so far.
type OverdueItem struct {
	Item     domain.RentalLineItem
	DaysLate int
	Accrued  decimal.Decimal
}

// DetectOverdueItems logs every Ongoing line item whose end date has passed.
// Nothing is written: late fees are only fixed when the item is returned.
func (jr *JobRunner) DetectOverdueItems() {
	_ = jr.runWithRecovery("DetectOverdueItems", func(ctx context.Context) error {
		overdue, err := jr.FindOverdue(ctx)
		if err != nil {
			return err
		}
		for _, o := range overdue {
			logger.WithLineItem(o.Item.ID).Warn("Line item overdue",
				"projectID", o.Item.ProjectID,
				"endDate", o.Item.EndDate.Format(domain.DateLayout),
				"daysLate", o.DaysLate,
				"accruedLateFee", o.Accrued.StringFixed(2))
		}
		logger.Info("Overdue detection finished", "count", len(overdue))
		return nil
	})
}

// FindOverdue lists overdue items with their provisional late fee.
func (jr *JobRunner) FindOverdue(ctx context.Context) ([]OverdueItem, error) {
	repos := jr.store.Repos()
	today := domain.Day(jr.now())

	logger.DatabaseCall("ListOverdue", "rental_line_items", "asOf", today.Format(domain.DateLayout))
	items, err := repos.Rentals.ListOverdue(ctx, today)
	logger.DatabaseResult("ListOverdue", int64(len(items)), err)
	if err != nil {
		return nil, err
	}

	out := make([]OverdueItem, 0, len(items))
	for i := range items {
		item := &items[i]
		equipment, err := repos.Equipment.GetByID(ctx, item.EquipmentID)
		if err != nil {
			return nil, err
		}
		project, err := repos.Rentals.GetProject(ctx, item.ProjectID)
		if err != nil {
			return nil, err
		}
		days := domain.DaysBetween(item.EndDate, today)
		accrued := decimal.Zero
		if project.LateFeeEnabled {
			accrued = pricing.LateFee(pricing.LateFeeInputFor(item, equipment), days, jr.policy.Late)
		}
		out = append(out, OverdueItem{Item: *item, DaysLate: days, Accrued: accrued})
	}
	return out, nil
}
