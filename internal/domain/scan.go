package domain

import "time"

type ScanAction string

const (
	ScanActionVerify   ScanAction = "verify"
	ScanActionReserve  ScanAction = "reserve"
	ScanActionPickup   ScanAction = "pickup"
	ScanActionReturn   ScanAction = "return"
	ScanActionRepaired ScanAction = "repaired"
	ScanActionRetire   ScanAction = "retire"
)

func (a ScanAction) Valid() bool {
	switch a {
	case ScanActionVerify, ScanActionReserve, ScanActionPickup, ScanActionReturn, ScanActionRepaired, ScanActionRetire:
		return true
	}
	return false
}

type ScanLevel string

const (
	ScanLevelSuccess ScanLevel = "success"
	ScanLevelWarning ScanLevel = "warning"
	ScanLevelError   ScanLevel = "error"
)

type ScanRequest struct {
	Token      string     `json:"token"`
	Action     ScanAction `json:"action"`
	LineItemID int32      `json:"line_item_id,omitempty"`
	Condition  Condition  `json:"condition,omitempty"`
	Actor      string     `json:"actor"`
}

type ScanResult struct {
	Level     ScanLevel            `json:"level"`
	Message   string               `json:"message"`
	Serial    *SerialUnit          `json:"serial,omitempty"`
	LineItem  *RentalLineItem      `json:"line_item,omitempty"`
	History   []StatusHistoryEntry `json:"history,omitempty"`
	LogID     string               `json:"log_id,omitempty"`
	ErrorKind string               `json:"error_kind,omitempty"`
}

type ScanLog struct {
	ID            string      `json:"id"`
	SerialID      *int32      `json:"serial_id,omitempty"`
	Token         string      `json:"token"`
	Action        ScanAction  `json:"action"`
	Level         ScanLevel   `json:"level"`
	Message       string      `json:"message"`
	Actor         string      `json:"actor"`
	LineItemID    *int32      `json:"line_item_id,omitempty"`
	PreviousState SerialState `json:"previous_state,omitempty"`
	NewState      SerialState `json:"new_state,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
