package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/risk"
)

// OrderRequest creates or replaces an order's editable fields.
type OrderRequest struct {
	OrderNumber          string                     `json:"order_number" validate:"required,max=64"`
	CustomerName         string                     `json:"customer_name" validate:"required,max=200"`
	FabricType           *string                    `json:"fabric_type,omitempty" validate:"omitempty,max=120"`
	FabricComposition    *string                    `json:"fabric_composition,omitempty" validate:"omitempty,max=200"`
	GSM                  *int                       `json:"gsm,omitempty" validate:"omitempty,gt=0"`
	FinishType           *string                    `json:"finish_type,omitempty" validate:"omitempty,max=120"`
	Construction         *string                    `json:"construction,omitempty" validate:"omitempty,max=120"`
	MillName             *string                    `json:"mill_name,omitempty" validate:"omitempty,max=200"`
	MillPrice            decimal.NullDecimal        `json:"mill_price"`
	ProvaPrice           decimal.NullDecimal        `json:"prova_price"`
	Currency             string                     `json:"currency,omitempty" validate:"omitempty,iso4217"`
	QuantityByColor      map[string]decimal.Decimal `json:"quantity_by_color,omitempty" validate:"omitempty,dive,keys,required,max=64,endkeys"`
	OrderDate            *string                    `json:"order_date,omitempty"`
	ExpectedDeliveryDate *string                    `json:"expected_delivery_date,omitempty"`
	ETD                  *string                    `json:"etd,omitempty"`
	ETA                  *string                    `json:"eta,omitempty"`
	Notes                *string                    `json:"notes,omitempty"`
	Lines                []LineRequest              `json:"lines,omitempty" validate:"omitempty,dive"`
}

// LineRequest creates or replaces a line.
type LineRequest struct {
	StyleID        *int64              `json:"style_id,omitempty" validate:"omitempty,gt=0"`
	StyleNumber    string              `json:"style_number" validate:"required,max=64"`
	ColorCode      *string             `json:"color_code,omitempty" validate:"omitempty,max=64"`
	ColorName      *string             `json:"color_name,omitempty" validate:"omitempty,max=120"`
	CADCode        *string             `json:"cad_code,omitempty" validate:"omitempty,max=64"`
	CADName        *string             `json:"cad_name,omitempty" validate:"omitempty,max=120"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Unit           string              `json:"unit,omitempty" validate:"omitempty,max=20"`
	MillName       *string             `json:"mill_name,omitempty" validate:"omitempty,max=200"`
	MillPrice      decimal.NullDecimal `json:"mill_price"`
	ProvaPrice     decimal.NullDecimal `json:"prova_price"`
	Commission     decimal.NullDecimal `json:"commission"`
	Currency       string              `json:"currency,omitempty" validate:"omitempty,iso4217"`
	ETD            *string             `json:"etd,omitempty"`
	ETA            *string             `json:"eta,omitempty"`
	SubmissionDate *string             `json:"submission_date,omitempty"`
	ApprovalDate   *string             `json:"approval_date,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	ApprovalStatus map[string]string   `json:"approval_status,omitempty"`
}

// StatusRequest moves an order through its lifecycle.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=upcoming running completed archived"`
}

// ApprovalRequest sets one approval type to a state.
type ApprovalRequest struct {
	ApprovalType string `json:"approval_type" validate:"required"`
	State        string `json:"state" validate:"required,oneof=pending approved rejected"`
	Note         string `json:"note,omitempty" validate:"max=500"`
}

func (req OrderRequest) apply(o *Order) error {
	o.OrderNumber = strings.TrimSpace(req.OrderNumber)
	o.CustomerName = strings.TrimSpace(req.CustomerName)
	o.FabricType = req.FabricType
	o.FabricComposition = req.FabricComposition
	o.GSM = req.GSM
	o.FinishType = req.FinishType
	o.Construction = req.Construction
	o.MillName = req.MillName
	o.MillPrice = req.MillPrice
	o.ProvaPrice = req.ProvaPrice
	o.Currency = currencyOrDefault(req.Currency, DefaultCurrency)
	o.QuantityByColor = req.QuantityByColor
	o.Notes = req.Notes
	for color, qty := range req.QuantityByColor {
		if qty.IsNegative() {
			return fmt.Errorf("%w: quantity for color %q must not be negative", ErrValidation, color)
		}
	}
	if err := nonNegative("mill_price", o.MillPrice); err != nil {
		return err
	}
	if err := nonNegative("prova_price", o.ProvaPrice); err != nil {
		return err
	}
	return parseDates(map[string]dateField{
		"order_date":             {req.OrderDate, &o.OrderDate},
		"expected_delivery_date": {req.ExpectedDeliveryDate, &o.ExpectedDeliveryDate},
		"etd":                    {req.ETD, &o.ETD},
		"eta":                    {req.ETA, &o.ETA},
	})
}

func (req LineRequest) apply(l *OrderLine, orderCurrency string) error {
	l.StyleID = req.StyleID
	l.StyleNumber = strings.TrimSpace(req.StyleNumber)
	l.ColorCode = req.ColorCode
	l.ColorName = req.ColorName
	l.CADCode = req.CADCode
	l.CADName = req.CADName
	l.Quantity = req.Quantity
	l.Unit = strings.TrimSpace(req.Unit)
	if l.Unit == "" {
		l.Unit = DefaultUnit
	}
	l.MillName = req.MillName
	l.MillPrice = req.MillPrice
	l.ProvaPrice = req.ProvaPrice
	l.Commission = req.Commission
	l.Currency = currencyOrDefault(req.Currency, orderCurrency)
	l.Notes = req.Notes
	if err := parseDates(map[string]dateField{
		"etd":             {req.ETD, &l.ETD},
		"eta":             {req.ETA, &l.ETA},
		"submission_date": {req.SubmissionDate, &l.SubmissionDate},
		"approval_date":   {req.ApprovalDate, &l.ApprovalDate},
	}); err != nil {
		return err
	}
	return l.Validate()
}

// approvalInput builds a current-vocabulary map from client input. Unknown
// types and states are rejected, as are keys naming the same type twice.
func approvalInput(raw map[string]string) (*approval.StatusMap, error) {
	m := approval.AllPending(approval.Current())
	seen := make(map[approval.Type]string, len(raw))
	for key, value := range raw {
		t, err := approval.Current().ParseType(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if prev, dup := seen[t]; dup {
			return nil, fmt.Errorf("%w: %w: %q and %q both name %s", ErrValidation, approval.ErrInvalidApprovalType, prev, key, t)
		}
		seen[t] = key
		s, err := approval.ParseState(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if err := m.Set(t, s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return m, nil
}

type dateField struct {
	raw    *string
	target **time.Time
}

func parseDates(fields map[string]dateField) error {
	for name, f := range fields {
		*f.target = nil
		if f.raw == nil || strings.TrimSpace(*f.raw) == "" {
			continue
		}
		parsed, err := risk.ParseDate(*f.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrValidation, name, err)
		}
		*f.target = &parsed
	}
	return nil
}

func currencyOrDefault(raw, fallback string) string {
	if c := strings.ToUpper(strings.TrimSpace(raw)); c != "" {
		return c
	}
	if fallback == "" {
		return DefaultCurrency
	}
	return fallback
}
