package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/approval"
)

// LabelSeparator joins the parts of a line label.
const LabelSeparator = " / "

// OrderLine is one style, optionally refined by color and CAD.
type OrderLine struct {
	ID             int64               `json:"id"`
	OrderID        int64               `json:"order_id"`
	StyleID        *int64              `json:"style_id,omitempty"`
	StyleNumber    string              `json:"style_number"`
	ColorCode      *string             `json:"color_code,omitempty"`
	ColorName      *string             `json:"color_name,omitempty"`
	CADCode        *string             `json:"cad_code,omitempty"`
	CADName        *string             `json:"cad_name,omitempty"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Unit           string              `json:"unit"`
	MillName       *string             `json:"mill_name,omitempty"`
	MillPrice      decimal.NullDecimal `json:"mill_price"`
	ProvaPrice     decimal.NullDecimal `json:"prova_price"`
	Commission     decimal.NullDecimal `json:"commission"`
	Currency       string              `json:"currency"`
	ETD            *time.Time          `json:"etd,omitempty"`
	ETA            *time.Time          `json:"eta,omitempty"`
	SubmissionDate *time.Time          `json:"submission_date,omitempty"`
	ApprovalDate   *time.Time          `json:"approval_date,omitempty"`
	ApprovalStatus *approval.StatusMap `json:"approval_status"`
	Notes          *string             `json:"notes,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Derived holds the commercial totals of a line. A field is null when any of
// its inputs is missing; zero is a real value.
type Derived struct {
	TotalValue      decimal.NullDecimal `json:"total_value"`
	TotalCost       decimal.NullDecimal `json:"total_cost"`
	TotalCommission decimal.NullDecimal `json:"total_commission"`
	Profit          decimal.NullDecimal `json:"profit"`
}

// ComputeDerived computes value, cost, commission and profit. Commission is
// per unit.
func ComputeDerived(l OrderLine) Derived {
	d := Derived{
		TotalValue:      times(l.Quantity, l.ProvaPrice),
		TotalCost:       times(l.Quantity, l.MillPrice),
		TotalCommission: times(l.Quantity, l.Commission),
	}
	if d.TotalValue.Valid && d.TotalCost.Valid && d.TotalCommission.Valid {
		d.Profit = decimal.NewNullDecimal(
			d.TotalValue.Decimal.Sub(d.TotalCost.Decimal).Sub(d.TotalCommission.Decimal),
		)
	}
	return d
}

func times(qty decimal.Decimal, price decimal.NullDecimal) decimal.NullDecimal {
	if !price.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(qty.Mul(price.Decimal).Round(2))
}

// Combination names which optional dimensions a line carries.
type Combination string

const (
	CombinationStyleColorCAD Combination = "style_color_cad"
	CombinationStyleColor    Combination = "style_color"
	CombinationStyleCAD      Combination = "style_cad"
	CombinationStyleOnly     Combination = "style_only"
)

// Combination reports the style/color/CAD shape of the line.
func (l OrderLine) Combination() Combination {
	color := l.colorPart() != ""
	cad := l.cadPart() != ""
	switch {
	case color && cad:
		return CombinationStyleColorCAD
	case color:
		return CombinationStyleColor
	case cad:
		return CombinationStyleCAD
	default:
		return CombinationStyleOnly
	}
}

// LineLabel renders "style / color / CAD" from the identifiers present. Color
// prefers the name, CAD prefers the code.
func LineLabel(l OrderLine) string {
	parts := make([]string, 0, 3)
	if style := strings.TrimSpace(l.StyleNumber); style != "" {
		parts = append(parts, style)
	}
	if color := l.colorPart(); color != "" {
		parts = append(parts, color)
	}
	if cad := l.cadPart(); cad != "" {
		parts = append(parts, cad)
	}
	return strings.Join(parts, LabelSeparator)
}

func (l OrderLine) colorPart() string {
	return firstPresent(l.ColorName, l.ColorCode)
}

func (l OrderLine) cadPart() string {
	return firstPresent(l.CADCode, l.CADName)
}

func firstPresent(values ...*string) string {
	for _, v := range values {
		if v == nil {
			continue
		}
		if trimmed := strings.TrimSpace(*v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Validate checks the invariants of a line before it is written.
func (l OrderLine) Validate() error {
	if strings.TrimSpace(l.StyleNumber) == "" {
		return fmt.Errorf("%w: style number is required", ErrValidation)
	}
	if l.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	if strings.TrimSpace(l.Unit) == "" {
		return fmt.Errorf("%w: unit is required", ErrValidation)
	}
	if err := nonNegative("mill_price", l.MillPrice); err != nil {
		return err
	}
	if err := nonNegative("prova_price", l.ProvaPrice); err != nil {
		return err
	}
	return nonNegative("commission", l.Commission)
}

func nonNegative(field string, v decimal.NullDecimal) error {
	if v.Valid && v.Decimal.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrValidation, field)
	}
	return nil
}
