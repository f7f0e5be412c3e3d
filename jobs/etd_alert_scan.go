package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fabricflow/internal/jobs"
	"github.com/odyssey-erp/fabricflow/internal/notify"
	"github.com/odyssey-erp/fabricflow/internal/risk"
)

// AlertSource lists the ETD alerts of open orders.
type AlertSource interface {
	ETDAlerts(ctx context.Context) ([]risk.AlertEvent, error)
}

// AlertPublisher delivers alerts.
type AlertPublisher interface {
	Publish(ctx context.Context, events []risk.AlertEvent) (notify.Result, error)
}

// ETDAlertScanJob turns open orders into published ETD alerts.
type ETDAlertScanJob struct {
	Source    AlertSource
	Publisher AlertPublisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewETDAlertScanJob wires the scan handler.
func NewETDAlertScanJob(source AlertSource, publisher AlertPublisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ETDAlertScanJob {
	return &ETDAlertScanJob{Source: source, Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle executes one scan.
func (j *ETDAlertScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil || j.Publisher == nil {
		return errors.New("etd alert scan: handler not configured")
	}
	var payload ETDAlertScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("etd alert scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskETDAlertScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.String("trigger", payload.Trigger))

	alerts, err := j.Source.ETDAlerts(ctx)
	if err != nil {
		logger.Error("load etd alerts", slog.Any("error", err))
		return err
	}
	byType := make(map[risk.AlertType]int)
	for _, a := range alerts {
		byType[a.AlertType]++
	}
	for typ, n := range byType {
		j.metrics().AddAlerts(string(typ), n)
	}

	res, err := j.Publisher.Publish(ctx, alerts)
	if err != nil {
		logger.Error("publish etd alerts", slog.Any("error", err), slog.Int("published", res.Published))
		return err
	}
	logger.Info("completed etd alert scan",
		slog.Int("alerts", len(alerts)),
		slog.Int("published", res.Published),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("emailed", res.Emailed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ETDAlertScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskETDAlertScan))
	}
	return slog.Default().With(slog.String("job", TaskETDAlertScan))
}

func (j *ETDAlertScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
