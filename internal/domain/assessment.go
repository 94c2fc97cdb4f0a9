package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Condition string

const (
	ConditionGood        Condition = "GOOD"
	ConditionMinorDamage Condition = "MINOR_DAMAGE"
	ConditionDamaged     Condition = "DAMAGED"
	ConditionLost        Condition = "LOST"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionMinorDamage, ConditionDamaged, ConditionLost:
		return true
	}
	return false
}

// Disposition returns the serial states a returned unit passes through, in order.
func (c Condition) Disposition() []SerialState {
	switch c {
	case ConditionMinorDamage:
		return []SerialState{SerialStateDamaged, SerialStateUnderRepair}
	case ConditionDamaged:
		return []SerialState{SerialStateUnderRepair}
	case ConditionLost:
		return []SerialState{SerialStateDisposed}
	default:
		return []SerialState{SerialStateAvailable}
	}
}

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

// ConditionReport is the operator's verdict on one returned unit.
type ConditionReport struct {
	SerialID    int32            `json:"serial_id"`
	Condition   Condition        `json:"condition"`
	FeeOverride *decimal.Decimal `json:"fee_override,omitempty"`
	Description string           `json:"description"`
	PhotoKeys   []string         `json:"photo_keys,omitempty"`
}

type DamageAssessment struct {
	SerialID    int32           `json:"serial_id"`
	Condition   Condition       `json:"condition"`
	Fee         decimal.Decimal `json:"fee"`
	Severity    Severity        `json:"severity"`
	FinalState  SerialState     `json:"final_state"`
	Description string          `json:"description"`
	PhotoKeys   []string        `json:"photo_keys,omitempty"`
}

type ReturnRequest struct {
	LineItemID int32             `json:"line_item_id"`
	ReturnDate time.Time         `json:"return_date"`
	Conditions []ConditionReport `json:"conditions"`
	Actor      string            `json:"actor"`
}

type ReturnResult struct {
	BatchID     string               `json:"batch_id"`
	LineItemID  int32                `json:"line_item_id"`
	LateDays    int                  `json:"late_days"`
	LateFee     decimal.Decimal      `json:"late_fee"`
	DamageFee   decimal.Decimal      `json:"damage_fee"`
	Assessments []DamageAssessment   `json:"assessments"`
	History     []StatusHistoryEntry `json:"history"`
}

// HasDamage reports whether any unit came back in less than good condition.
func (r *ReturnResult) HasDamage() bool {
	for _, a := range r.Assessments {
		if a.Condition != ConditionGood {
			return true
		}
	}
	return false
}
