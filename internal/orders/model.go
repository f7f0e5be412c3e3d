// Package orders owns fabric orders, their style/color/CAD lines, the approval
// maps attached to both, and the stage derived from those maps.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/approval"
)

// Status is the lifecycle status of an order.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

const (
	DefaultCurrency = "USD"
	DefaultUnit     = "yards"
)

var transitions = map[Status][]Status{
	StatusUpcoming:  {StatusRunning},
	StatusRunning:   {StatusUpcoming, StatusCompleted},
	StatusCompleted: {StatusArchived},
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusUpcoming, StatusRunning, StatusCompleted, StatusArchived}
}

// ParseStatus validates a raw status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Statuses() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// IsClosed reports whether the order no longer takes part in alerts.
func (s Status) IsClosed() bool {
	return s == StatusCompleted || s == StatusArchived
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a fabric order.
type Order struct {
	ID                   int64                      `json:"id"`
	OrderNumber          string                     `json:"order_number"`
	CustomerName         string                     `json:"customer_name"`
	FabricType           *string                    `json:"fabric_type,omitempty"`
	FabricComposition    *string                    `json:"fabric_composition,omitempty"`
	GSM                  *int                       `json:"gsm,omitempty"`
	FinishType           *string                    `json:"finish_type,omitempty"`
	Construction         *string                    `json:"construction,omitempty"`
	MillName             *string                    `json:"mill_name,omitempty"`
	MillPrice            decimal.NullDecimal        `json:"mill_price"`
	ProvaPrice           decimal.NullDecimal        `json:"prova_price"`
	Currency             string                     `json:"currency"`
	QuantityByColor      map[string]decimal.Decimal `json:"quantity_by_color,omitempty"`
	OrderDate            *time.Time                 `json:"order_date,omitempty"`
	ExpectedDeliveryDate *time.Time                 `json:"expected_delivery_date,omitempty"`
	ETD                  *time.Time                 `json:"etd,omitempty"`
	ETA                  *time.Time                 `json:"eta,omitempty"`
	Status               Status                     `json:"status"`
	CurrentStage         string                     `json:"current_stage"`
	ApprovalStatus       *approval.StatusMap        `json:"approval_status"`
	Notes                *string                    `json:"notes,omitempty"`
	CreatedBy            int64                      `json:"created_by"`
	CreatedAt            time.Time                  `json:"created_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`
	Lines                []OrderLine                `json:"lines,omitempty"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status *Status
	Search string
	Limit  int
	Offset int
}
