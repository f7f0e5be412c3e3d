// Package risk classifies delivery risk from ETD dates relative to now.
package risk

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades how urgent a badge or alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Badge labels.
const (
	LabelOverdue   = "Overdue"
	LabelZeroFive  = "0-5 days"
	LabelSixToTen  = "6-10 days"
	criticalWindow = 5
	warningWindow  = 10
)

// Badge is the short risk marker shown next to an order.
type Badge struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses the date formats accepted for ETD/ETA values.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
}

// DaysUntil counts whole calendar days from now to etd. The ETD is a calendar
// date and keeps the year, month and day of its own location; only now is
// moved into loc. An ETD of today is 0.
func DaysUntil(etd, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	// Dates are compared through UTC midnights so DST shifts cannot skew the count.
	eu := calendarDay(etd)
	nu := calendarDay(now.In(loc))
	return int(eu.Sub(nu).Hours() / 24)
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as stored, without zone conversion.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// Classifier evaluates ETD risk in a business time zone.
type Classifier struct {
	loc *time.Location
}

// NewClassifier constructs a Classifier; a nil location means UTC.
func NewClassifier(loc *time.Location) Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return Classifier{loc: loc}
}

// Location returns the business time zone.
func (c Classifier) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Classify returns the badge for etd, or nil when there is no ETD or it is
// more than ten days away.
func (c Classifier) Classify(etd *time.Time, now time.Time) *Badge {
	if etd == nil || etd.IsZero() {
		return nil
	}
	return badgeFor(DaysUntil(*etd, now, c.Location()))
}

// ClassifyRaw parses raw before classifying. Unparsable input yields nil so a
// single bad date never blocks the rest of a batch.
func (c Classifier) ClassifyRaw(raw string, now time.Time) *Badge {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	etd, err := ParseDate(raw)
	if err != nil {
		return nil
	}
	return c.Classify(&etd, now)
}

func badgeFor(days int) *Badge {
	switch {
	case days < 0:
		return &Badge{Label: LabelOverdue, Severity: SeverityCritical}
	case days <= criticalWindow:
		return &Badge{Label: LabelZeroFive, Severity: SeverityCritical}
	case days <= warningWindow:
		return &Badge{Label: LabelSixToTen, Severity: SeverityWarning}
	default:
		return nil
	}
}

// Classify uses UTC calendar days.
func Classify(etd *time.Time, now time.Time) *Badge {
	return NewClassifier(time.UTC).Classify(etd, now)
}
