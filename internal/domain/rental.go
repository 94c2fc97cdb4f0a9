package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItemState string

const (
	LineItemStateDraft    LineItemState = "DRAFT"
	LineItemStateReserved LineItemState = "RESERVED"
	LineItemStateOngoing  LineItemState = "ONGOING"
	LineItemStateReturned LineItemState = "RETURNED"
	LineItemStateInvoiced LineItemState = "INVOICED"
)

var lineItemRank = map[LineItemState]int{
	LineItemStateDraft:    0,
	LineItemStateReserved: 1,
	LineItemStateOngoing:  2,
	LineItemStateReturned: 3,
	LineItemStateInvoiced: 4,
}

var lineItemTransitions = map[LineItemState][]LineItemState{
	LineItemStateDraft:    {LineItemStateReserved},
	LineItemStateReserved: {LineItemStateOngoing, LineItemStateDraft},
	LineItemStateOngoing:  {LineItemStateReturned},
	LineItemStateReturned: {LineItemStateInvoiced},
}

func (s LineItemState) Valid() bool {
	_, ok := lineItemRank[s]
	return ok
}

// Rank orders states by progress, Draft lowest.
func (s LineItemState) Rank() int {
	return lineItemRank[s]
}

func (s LineItemState) CanTransitionTo(to LineItemState) bool {
	for _, next := range lineItemTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether an item in this state holds its serials.
func (s LineItemState) Active() bool {
	return s == LineItemStateReserved || s == LineItemStateOngoing
}

type RentalProject struct {
	ID             int32            `json:"id"`
	Reference      string           `json:"reference"`
	CustomerName   string           `json:"customer_name"`
	CustomerEmail  string           `json:"customer_email"`
	StartDate      time.Time        `json:"start_date"`
	EndDate        time.Time        `json:"end_date"`
	Discount       decimal.Decimal  `json:"discount"`
	LateFeeEnabled bool             `json:"late_fee_enabled"`
	Notes          string           `json:"notes"`
	Items          []RentalLineItem `json:"items,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// State is the least-progressed state among the project's items.
func (p *RentalProject) State() LineItemState {
	return ProjectState(p.Items)
}

func ProjectState(items []RentalLineItem) LineItemState {
	if len(items) == 0 {
		return LineItemStateDraft
	}
	state := items[0].State
	for _, it := range items[1:] {
		if it.State.Rank() < state.Rank() {
			state = it.State
		}
	}
	return state
}

// Totals sums the fees of every item.
func (p *RentalProject) Totals() ProjectTotals {
	var t ProjectTotals
	for _, it := range p.Items {
		t.Rental = t.Rental.Add(it.RentalAmount)
		t.LateFees = t.LateFees.Add(it.LateFee)
		t.DamageFees = t.DamageFees.Add(it.DamageFee)
	}
	t.Discount = p.Discount
	t.Total = t.Rental.Add(t.LateFees).Add(t.DamageFees).Sub(t.Discount)
	if t.Total.IsNegative() {
		t.Total = decimal.Zero
	}
	return t
}

type ProjectTotals struct {
	Rental     decimal.Decimal `json:"rental"`
	LateFees   decimal.Decimal `json:"late_fees"`
	DamageFees decimal.Decimal `json:"damage_fees"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
}

// RentalLineItem is one equipment line of a project. Discount is the share of the
// project discount billed with the item, set when it is invoiced.
type RentalLineItem struct {
	ID           int32           `json:"id"`
	ProjectID    int32           `json:"project_id"`
	EquipmentID  int32           `json:"equipment_id"`
	Quantity     int             `json:"quantity"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	SerialIDs    []int32         `json:"serial_ids"`
	State        LineItemState   `json:"state"`
	RentalAmount decimal.Decimal `json:"rental_amount"`
	LateFee      decimal.Decimal `json:"late_fee"`
	DamageFee    decimal.Decimal `json:"damage_fee"`
	Discount     decimal.Decimal `json:"discount"`
	FeesComputed bool            `json:"fees_computed"`
	ReturnDate   *time.Time      `json:"return_date,omitempty"`
	InvoiceRef   string          `json:"invoice_ref,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Gross is rental plus fees before any discount.
func (i *RentalLineItem) Gross() decimal.Decimal {
	return i.RentalAmount.Add(i.LateFee).Add(i.DamageFee)
}

// DiscountShare is the part of the project discount item absorbs when it is invoiced:
// whatever siblings have not already taken, capped at the item's gross amount. The
// item's own earlier share is ignored so a retried invoice gets the same figure.
func DiscountShare(projectDiscount decimal.Decimal, item *RentalLineItem, siblings []RentalLineItem) decimal.Decimal {
	remaining := projectDiscount
	for _, it := range siblings {
		if it.ID != item.ID {
			remaining = remaining.Sub(it.Discount)
		}
	}
	if !remaining.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(remaining, item.Gross())
}

func (i *RentalLineItem) Period() DateRange {
	return NewDateRange(i.StartDate, i.EndDate)
}

// ValidateForReservation checks quantity and date ordering.
func (i *RentalLineItem) ValidateForReservation() error {
	if i.Quantity <= 0 {
		return InvalidArgument("line item %d: quantity must be positive", i.ID)
	}
	if !Day(i.StartDate).Before(Day(i.EndDate)) {
		return InvalidArgument("line item %d: start date must precede end date", i.ID)
	}
	return nil
}

func (i *RentalLineItem) HasSerial(id int32) bool {
	for _, s := range i.SerialIDs {
		if s == id {
			return true
		}
	}
	return false
}

// Overdue reports whether an ongoing item has passed its end date on day asOf.
func (i *RentalLineItem) Overdue(asOf time.Time) bool {
	return i.State == LineItemStateOngoing && Day(asOf).After(Day(i.EndDate))
}

type NewProjectRequest struct {
	Reference      string          `json:"reference"`
	CustomerName   string          `json:"customer_name"`
	CustomerEmail  string          `json:"customer_email"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	Discount       decimal.Decimal `json:"discount"`
	LateFeeEnabled *bool           `json:"late_fee_enabled,omitempty"`
	Notes          string          `json:"notes"`
}

type NewLineItemRequest struct {
	ProjectID   int32      `json:"project_id"`
	EquipmentID int32      `json:"equipment_id"`
	Quantity    int        `json:"quantity"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}
