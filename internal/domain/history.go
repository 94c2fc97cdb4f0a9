package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusHistoryEntry is one immutable record of a serial state change.
type StatusHistoryEntry struct {
	ID         int64            `json:"id"`
	SerialID   int32            `json:"serial_id"`
	FromState  SerialState      `json:"from_state"`
	ToState    SerialState      `json:"to_state"`
	LineItemID *int32           `json:"line_item_id,omitempty"`
	Actor      string           `json:"actor"`
	Note       string           `json:"note"`
	Condition  Condition        `json:"condition,omitempty"`
	Fee        *decimal.Decimal `json:"fee,omitempty"`
	Severity   Severity         `json:"severity,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// HistoryFilter narrows a history search. Zero values match everything.
type HistoryFilter struct {
	SerialID    int32
	EquipmentID int32
	LineItemID  int32
	ToState     SerialState
	Actor       string
	From        *time.Time
	To          *time.Time
	Limit       int
}

// Change describes a requested serial state change.
type Change struct {
	To         SerialState
	LineItemID *int32
	Actor      string
	Note       string
	Condition  Condition
	Fee        *decimal.Decimal
	Severity   Severity
}
