package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/risk"
)

// LCRequest records a letter of credit.
type LCRequest struct {
	Number     string          `json:"lc_number" validate:"required,max=64"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,iso4217"`
	IssueDate  *string         `json:"issue_date,omitempty"`
	ExpiryDate *string         `json:"expiry_date,omitempty"`
	Status     string          `json:"status,omitempty" validate:"omitempty,oneof=draft issued amended utilized expired cancelled"`
}

// PIRequest records a proforma invoice.
type PIRequest struct {
	Number     string          `json:"pi_number" validate:"required,max=64"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency" validate:"required,iso4217"`
	IssueDate  *string         `json:"issue_date,omitempty"`
	ValidUntil *string         `json:"valid_until,omitempty"`
	Status     string          `json:"status,omitempty" validate:"omitempty,oneof=draft sent confirmed cancelled"`
}

func (req LCRequest) toModel(orderID, actorID int64) (LetterOfCredit, error) {
	if req.Amount.IsNegative() {
		return LetterOfCredit{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	issue, err := optionalDate("issue_date", req.IssueDate)
	if err != nil {
		return LetterOfCredit{}, err
	}
	expiry, err := optionalDate("expiry_date", req.ExpiryDate)
	if err != nil {
		return LetterOfCredit{}, err
	}
	if issue != nil && expiry != nil && expiry.Before(*issue) {
		return LetterOfCredit{}, fmt.Errorf("%w: expiry_date before issue_date", ErrInvalidDates)
	}
	status := LCStatus(req.Status)
	if status == "" {
		status = LCDraft
	}
	return LetterOfCredit{
		OrderID:    orderID,
		Number:     strings.TrimSpace(req.Number),
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		IssueDate:  issue,
		ExpiryDate: expiry,
		Status:     status,
		CreatedBy:  actorID,
	}, nil
}

func (req PIRequest) toModel(orderID, actorID int64) (ProformaInvoice, error) {
	if req.Amount.IsNegative() {
		return ProformaInvoice{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	issue, err := optionalDate("issue_date", req.IssueDate)
	if err != nil {
		return ProformaInvoice{}, err
	}
	valid, err := optionalDate("valid_until", req.ValidUntil)
	if err != nil {
		return ProformaInvoice{}, err
	}
	if issue != nil && valid != nil && valid.Before(*issue) {
		return ProformaInvoice{}, fmt.Errorf("%w: valid_until before issue_date", ErrInvalidDates)
	}
	status := PIStatus(req.Status)
	if status == "" {
		status = PIDraft
	}
	return ProformaInvoice{
		OrderID:    orderID,
		Number:     strings.TrimSpace(req.Number),
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		IssueDate:  issue,
		ValidUntil: valid,
		Status:     status,
		CreatedBy:  actorID,
	}, nil
}

func optionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := risk.ParseDate(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDates, field, err)
	}
	return &t, nil
}
