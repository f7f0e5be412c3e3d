package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

// AlertType buckets ETD alerts for the notification layer.
type AlertType string

const (
	AlertApproaching AlertType = "approaching"
	AlertUrgent      AlertType = "urgent"
	AlertOverdue     AlertType = "overdue"
)

// Alert is the message variant of a badge.
type Alert struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Type      AlertType `json:"alert_type"`
	DaysUntil int       `json:"days_until_etd"`
}

// Alert returns the alert for etd. The severity always matches Classify.
func (c Classifier) Alert(etd *time.Time, now time.Time) (Alert, bool) {
	if etd == nil || etd.IsZero() {
		return Alert{}, false
	}
	days := DaysUntil(*etd, now, c.Location())
	badge := badgeFor(days)
	if badge == nil {
		return Alert{}, false
	}
	alert := Alert{Severity: badge.Severity, DaysUntil: days}
	switch {
	case days < 0:
		alert.Type = AlertOverdue
		alert.Message = fmt.Sprintf("ETD overdue by %s", pluralDays(-days))
	case days == 0:
		alert.Type = AlertUrgent
		alert.Message = "ETD is today"
	case badge.Severity == SeverityCritical:
		alert.Type = AlertUrgent
		alert.Message = fmt.Sprintf("ETD in %s", pluralDays(days))
	default:
		alert.Type = AlertApproaching
		alert.Message = fmt.Sprintf("ETD in %s", pluralDays(days))
	}
	return alert, true
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// Candidate is the order data the alert builder needs.
type Candidate struct {
	OrderID      int64
	OrderNumber  string
	CustomerName string
	ETD          *time.Time
	CurrentStage string
	// Closed marks completed or archived orders, which never alert.
	Closed bool
}

// AlertEvent is emitted to the notification layer.
type AlertEvent struct {
	OrderID      int64     `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	CustomerName string    `json:"customer_name"`
	ETD          string    `json:"etd"`
	DaysUntilETD int       `json:"days_until_etd"`
	Severity     Severity  `json:"severity"`
	AlertType    AlertType `json:"alert_type"`
	CurrentStage string    `json:"current_stage"`
	Message      string    `json:"message"`
}

// BuildAlerts classifies every candidate and returns the alerts, most urgent
// first. Closed candidates and those without an alert-worthy ETD are skipped.
func (c Classifier) BuildAlerts(candidates []Candidate, now time.Time) []AlertEvent {
	events := lo.FilterMap(candidates, func(cand Candidate, _ int) (AlertEvent, bool) {
		if cand.Closed {
			return AlertEvent{}, false
		}
		alert, ok := c.Alert(cand.ETD, now)
		if !ok {
			return AlertEvent{}, false
		}
		return AlertEvent{
			OrderID:      cand.OrderID,
			OrderNumber:  cand.OrderNumber,
			CustomerName: cand.CustomerName,
			ETD:          FormatDate(*cand.ETD),
			DaysUntilETD: alert.DaysUntil,
			Severity:     alert.Severity,
			AlertType:    alert.Type,
			CurrentStage: cand.CurrentStage,
			Message:      alert.Message,
		}, true
	})
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].DaysUntilETD != events[j].DaysUntilETD {
			return events[i].DaysUntilETD < events[j].DaysUntilETD
		}
		return events[i].OrderNumber < events[j].OrderNumber
	})
	return events
}
