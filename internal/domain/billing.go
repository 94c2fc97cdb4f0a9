package domain

import (
	"github.com/shopspring/decimal"
)

// BillingRequest is what the billing collaborator receives for one returned line item.
type BillingRequest struct {
	LineItemID    int32           `json:"line_item_id"`
	ProjectID     int32           `json:"project_id"`
	Reference     string          `json:"reference"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	EquipmentCode string          `json:"equipment_code"`
	Quantity      int             `json:"quantity"`
	SerialCodes   []string        `json:"serial_codes"`
	RentalAmount  decimal.Decimal `json:"rental_amount"`
	LateFee       decimal.Decimal `json:"late_fee"`
	DamageFee     decimal.Decimal `json:"damage_fee"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
}

type InvoiceResult struct {
	LineItemID int32                `json:"line_item_id"`
	InvoiceRef string               `json:"invoice_ref"`
	Total      decimal.Decimal      `json:"total"`
	State      LineItemState        `json:"state"`
	History    []StatusHistoryEntry `json:"history"`
}
