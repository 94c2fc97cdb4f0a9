package domain

import "time"

type SerialState string

const (
	SerialStateAvailable   SerialState = "AVAILABLE"
	SerialStateReserved    SerialState = "RESERVED"
	SerialStateRented      SerialState = "RENTED"
	SerialStateReturned    SerialState = "RETURNED"
	SerialStateDamaged     SerialState = "DAMAGED"
	SerialStateUnderRepair SerialState = "UNDER_REPAIR"
	SerialStateDisposed    SerialState = "DISPOSED"
)

var serialTransitions = map[SerialState][]SerialState{
	SerialStateAvailable:   {SerialStateReserved, SerialStateDisposed},
	SerialStateReserved:    {SerialStateRented, SerialStateAvailable},
	SerialStateRented:      {SerialStateReturned},
	SerialStateReturned:    {SerialStateAvailable, SerialStateDamaged, SerialStateUnderRepair, SerialStateDisposed},
	SerialStateDamaged:     {SerialStateUnderRepair},
	SerialStateUnderRepair: {SerialStateAvailable},
}

func (s SerialState) Valid() bool {
	switch s {
	case SerialStateAvailable, SerialStateReserved, SerialStateRented, SerialStateReturned,
		SerialStateDamaged, SerialStateUnderRepair, SerialStateDisposed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the serial state machine allows s -> to.
func (s SerialState) CanTransitionTo(to SerialState) bool {
	for _, next := range serialTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s SerialState) Terminal() bool {
	return s == SerialStateDisposed
}

// InCustody reports whether the unit is held by a line item.
func (s SerialState) InCustody() bool {
	return s == SerialStateReserved || s == SerialStateRented
}

type SerialUnit struct {
	ID                int32       `json:"id"`
	Code              string      `json:"code"`
	EquipmentID       int32       `json:"equipment_id"`
	State             SerialState `json:"state"`
	CurrentLineItemID *int32      `json:"current_line_item_id,omitempty"`
	Notes             string      `json:"notes"`
	Active            bool        `json:"active"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Allocation is an active hold of a serial by a Reserved or Ongoing line item.
type Allocation struct {
	SerialID   int32         `json:"serial_id"`
	LineItemID int32         `json:"line_item_id"`
	State      LineItemState `json:"state"`
	Period     DateRange     `json:"period"`
}

// GenerateSerialsRequest describes a bulk PREFIX-NNNN generation.
type GenerateSerialsRequest struct {
	EquipmentID int32  `json:"equipment_id"`
	Prefix      string `json:"prefix"`
	Start       int    `json:"start"`
	Count       int    `json:"count"`
	Actor       string `json:"actor"`
}

const MaxGeneratedSerials = 1000

type GenerateSerialsResult struct {
	Created []SerialUnit `json:"created"`
	Skipped []string     `json:"skipped"`
}

// DeleteOutcome tells whether a smart delete removed or retired the unit.
type DeleteOutcome string

const (
	DeleteOutcomeDeleted DeleteOutcome = "DELETED"
	DeleteOutcomeRetired DeleteOutcome = "RETIRED"
)
