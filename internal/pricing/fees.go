package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"serialrent-backend/internal/domain"
)

type LateFeeMethod string

const (
	LateFeeMethodDaily      LateFeeMethod = "daily"
	LateFeeMethodPercentage LateFeeMethod = "percentage"
	LateFeeMethodMaximum    LateFeeMethod = "maximum"
)

func (m LateFeeMethod) Valid() bool {
	switch m {
	case LateFeeMethodDaily, LateFeeMethodPercentage, LateFeeMethodMaximum:
		return true
	}
	return false
}

// LateFeePolicy configures late fee computation.
// A zero DailyRate means the line item's own daily charge is used.
type LateFeePolicy struct {
	Method     LateFeeMethod
	DailyRate  decimal.Decimal
	Percentage decimal.Decimal
}

// DamagePolicy holds classification thresholds and suggested fees.
type DamagePolicy struct {
	MinorThreshold    decimal.Decimal
	ModerateThreshold decimal.Decimal
	MinorDefault      decimal.Decimal
	DamagedDefault    decimal.Decimal
}

type Policy struct {
	Late   LateFeePolicy
	Damage DamagePolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Late: LateFeePolicy{Method: LateFeeMethodMaximum},
		Damage: DamagePolicy{
			MinorThreshold:    decimal.NewFromInt(100),
			ModerateThreshold: decimal.NewFromInt(500),
			MinorDefault:      decimal.NewFromInt(50),
			DamagedDefault:    decimal.NewFromInt(250),
		},
	}
}

func (p Policy) Validate() error {
	if !p.Late.Method.Valid() {
		return fmt.Errorf("unknown late fee method %q", p.Late.Method)
	}
	if p.Late.DailyRate.IsNegative() || p.Late.Percentage.IsNegative() {
		return fmt.Errorf("late fee rates must not be negative")
	}
	if !p.Damage.MinorThreshold.LessThan(p.Damage.ModerateThreshold) {
		return fmt.Errorf("minor damage threshold must be below moderate threshold")
	}
	if p.Damage.MinorDefault.IsNegative() || p.Damage.DamagedDefault.IsNegative() {
		return fmt.Errorf("default damage fees must not be negative")
	}
	return nil
}

// LateFeeInput is the part of a line item late fees depend on.
type LateFeeInput struct {
	DailyCharge  decimal.Decimal
	RentalAmount decimal.Decimal
}

// LateFeeInputFor derives the late fee basis of an item priced with equipment.
func LateFeeInputFor(item *domain.RentalLineItem, equipment *domain.Equipment) LateFeeInput {
	return LateFeeInput{
		DailyCharge:  equipment.DailyRate.Mul(decimal.NewFromInt(int64(item.Quantity))),
		RentalAmount: item.RentalAmount,
	}
}

// LateFee returns the fee for lateDays past the end date; zero when not late.
func LateFee(in LateFeeInput, lateDays int, p LateFeePolicy) decimal.Decimal {
	if lateDays <= 0 {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(lateDays))

	rate := p.DailyRate
	if rate.IsZero() {
		rate = in.DailyCharge
	}
	byDay := rate.Mul(days)
	byPct := p.Percentage.Mul(in.RentalAmount).Mul(days).Div(decimal.NewFromInt(100))

	var fee decimal.Decimal
	switch p.Method {
	case LateFeeMethodDaily:
		fee = byDay
	case LateFeeMethodPercentage:
		fee = byPct
	default:
		fee = decimal.Max(byDay, byPct)
	}
	return fee.Round(2)
}

// DamageFee suggests a fee for a unit returned in condition c and classifies it.
// A non-nil override replaces the suggested fee for partial damage.
func DamageFee(c domain.Condition, itemValue decimal.Decimal, override *decimal.Decimal, p DamagePolicy) (decimal.Decimal, domain.Severity) {
	var fee decimal.Decimal
	switch c {
	case domain.ConditionGood:
		return decimal.Zero, domain.SeverityNone
	case domain.ConditionLost:
		return itemValue, domain.SeveritySevere
	case domain.ConditionMinorDamage:
		fee = p.MinorDefault
	case domain.ConditionDamaged:
		fee = p.DamagedDefault
	}
	if override != nil && !override.IsNegative() {
		fee = *override
	}
	return fee, Classify(fee, p)
}

// Classify maps a fee onto a severity: below the minor threshold is minor,
// below the moderate threshold is moderate, anything else severe.
func Classify(fee decimal.Decimal, p DamagePolicy) domain.Severity {
	switch {
	case fee.LessThan(p.MinorThreshold):
		return domain.SeverityMinor
	case fee.LessThan(p.ModerateThreshold):
		return domain.SeverityModerate
	default:
		return domain.SeveritySevere
	}
}
