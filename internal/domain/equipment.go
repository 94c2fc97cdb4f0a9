package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        int32     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int32    `json:"parent_id,omitempty"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

type Equipment struct {
	ID          int32           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CategoryID  *int32          `json:"category_id,omitempty"`
	DailyRate   decimal.Decimal `json:"daily_rate"`
	WeeklyRate  decimal.Decimal `json:"weekly_rate"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	// ItemValue is the replacement value charged when a unit is lost.
	ItemValue           decimal.Decimal `json:"item_value"`
	TracksSerials       bool            `json:"tracks_serials"`
	AutoGenerateSerials bool            `json:"auto_generate_serials"`
	Active              bool            `json:"active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Validate checks the invariants of a new or edited equipment record.
func (e *Equipment) Validate() error {
	if e.Code == "" {
		return InvalidArgument("equipment code is required")
	}
	if e.Name == "" {
		return InvalidArgument("equipment name is required")
	}
	for _, r := range []decimal.Decimal{e.DailyRate, e.WeeklyRate, e.MonthlyRate, e.ItemValue} {
		if r.IsNegative() {
			return InvalidArgument("rates and item value must not be negative")
		}
	}
	if !e.DailyRate.IsPositive() && !e.WeeklyRate.IsPositive() && !e.MonthlyRate.IsPositive() {
		return InvalidArgument("at least one rental rate must be set for %s", e.Code)
	}
	return nil
}

// Availability summarises how many units of an equipment are free in a range.
type Availability struct {
	EquipmentID int32     `json:"equipment_id"`
	Period      DateRange `json:"period"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
	SerialIDs   []int32   `json:"serial_ids"`
}

func (a Availability) Sufficient() bool {
	return a.Available >= a.Requested
}
