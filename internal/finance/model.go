// Package finance exposes letters of credit and proforma invoices attached to
// orders, and the per-order money pipeline built from them.
package finance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
	"github.com/odyssey-erp/fabricflow/internal/risk"
)

var (
	ErrOrderNotFound = fmt.Errorf("order %w", httpx.ErrNotFound)
	ErrDuplicate     = fmt.Errorf("finance document number %w", httpx.ErrDuplicate)
	ErrInvalidDates  = fmt.Errorf("finance dates %w", httpx.ErrValidation)
	ErrInvalidAmount = fmt.Errorf("finance amount %w", httpx.ErrValidation)
)

// LCStatus is the lifecycle state of a letter of credit.
type LCStatus string

const (
	LCDraft     LCStatus = "draft"
	LCIssued    LCStatus = "issued"
	LCAmended   LCStatus = "amended"
	LCUtilized  LCStatus = "utilized"
	LCExpired   LCStatus = "expired"
	LCCancelled LCStatus = "cancelled"
)

// PIStatus is the lifecycle state of a proforma invoice.
type PIStatus string

const (
	PIDraft     PIStatus = "draft"
	PISent      PIStatus = "sent"
	PIConfirmed PIStatus = "confirmed"
	PICancelled PIStatus = "cancelled"
)

// LetterOfCredit secures payment for an order.
type LetterOfCredit struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Number     string          `json:"lc_number"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	IssueDate  *time.Time      `json:"issue_date,omitempty"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Status     LCStatus        `json:"status"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Live reports whether the LC still backs the order.
func (lc LetterOfCredit) Live() bool {
	switch lc.Status {
	case LCCancelled, LCExpired, LCUtilized:
		return false
	}
	return true
}

// ProformaInvoice quotes an order to the customer.
type ProformaInvoice struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	Number     string          `json:"pi_number"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	IssueDate  *time.Time      `json:"issue_date,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Status     PIStatus        `json:"status"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LCView decorates an LC with its expiry risk.
type LCView struct {
	LetterOfCredit
	ExpiryRisk *risk.Badge `json:"expiry_risk"`
}

// PIView decorates a PI with its validity risk.
type PIView struct {
	ProformaInvoice
	ValidityRisk *risk.Badge `json:"validity_risk"`
}

// CurrencyTotal sums amounts of one currency. Cancelled documents are excluded.
type CurrencyTotal struct {
	Currency  string          `json:"currency"`
	LCTotal   decimal.Decimal `json:"lc_total"`
	PITotal   decimal.Decimal `json:"pi_total"`
	Uncovered decimal.Decimal `json:"uncovered"`
}

// Pipeline is the money view of one order.
type Pipeline struct {
	OrderID          int64           `json:"order_id"`
	LettersOfCredit  []LCView        `json:"letters_of_credit"`
	ProformaInvoices []PIView        `json:"proforma_invoices"`
	Totals           []CurrencyTotal `json:"totals"`
}
