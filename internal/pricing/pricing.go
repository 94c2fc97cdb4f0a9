package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"serialrent-backend/internal/domain"
)

const (
	daysPerWeek  = 7
	daysPerMonth = 30
)

// RateBasis names the equipment rate a rental amount was priced with.
type RateBasis string

const (
	RateBasisDaily   RateBasis = "daily"
	RateBasisWeekly  RateBasis = "weekly"
	RateBasisMonthly RateBasis = "monthly"
)

// RentalCostBreakdown provides detailed cost breakdown
type RentalCostBreakdown struct {
	Days      int             `json:"days"`
	Basis     RateBasis       `json:"basis"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

// CalculateRentalCost prices quantity units of equipment over period.
// Periods of 30+ days use the monthly rate and 7+ days the weekly rate, pro rata,
// when those rates are set; everything else is charged per day.
func CalculateRentalCost(equipment *domain.Equipment, period domain.DateRange, quantity int) (RentalCostBreakdown, error) {
	if period.End.Before(period.Start) {
		return RentalCostBreakdown{}, fmt.Errorf("end date must be >= start date")
	}
	if quantity <= 0 {
		return RentalCostBreakdown{}, fmt.Errorf("quantity must be positive")
	}

	days := period.Days()
	d := decimal.NewFromInt(int64(days))

	b := RentalCostBreakdown{Days: days, Quantity: quantity}
	switch {
	case days >= daysPerMonth && equipment.MonthlyRate.IsPositive():
		b.Basis = RateBasisMonthly
		b.UnitPrice = equipment.MonthlyRate.Mul(d).Div(decimal.NewFromInt(daysPerMonth))
	case days >= daysPerWeek && equipment.WeeklyRate.IsPositive():
		b.Basis = RateBasisWeekly
		b.UnitPrice = equipment.WeeklyRate.Mul(d).Div(decimal.NewFromInt(daysPerWeek))
	default:
		b.Basis = RateBasisDaily
		b.UnitPrice = equipment.DailyRate.Mul(d)
	}
	b.UnitPrice = b.UnitPrice.Round(2)
	b.Total = b.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return b, nil
}

// RentalAmount is CalculateRentalCost without the breakdown.
func RentalAmount(equipment *domain.Equipment, period domain.DateRange, quantity int) (decimal.Decimal, error) {
	b, err := CalculateRentalCost(equipment, period, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Total, nil
}
