package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fabricflow/internal/risk"
)

const (
	// QueueAlerts carries alert emails.
	QueueAlerts = "alerts"
	// TaskTypeAlertEmail is the asynq task type of an ETD alert email.
	TaskTypeAlertEmail = "mail:etd_alert"
)

// EmailPayload describes one alert email.
type EmailPayload struct {
	To      string          `json:"to"`
	Subject string          `json:"subject"`
	Body    string          `json:"body"`
	Alert   risk.AlertEvent `json:"alert"`
}

// NewAlertEmailTask builds the email task for ev.
func NewAlertEmailTask(to string, ev risk.AlertEvent) (*asynq.Task, error) {
	payload := EmailPayload{
		To:      to,
		Subject: fmt.Sprintf("[%s] %s %s", ev.Severity, ev.OrderNumber, ev.Message),
		Body: fmt.Sprintf("Order %s for %s\nETD: %s (%s)\nCurrent stage: %s\n",
			ev.OrderNumber, ev.CustomerName, ev.ETD, ev.Message, ev.CurrentStage),
		Alert: ev,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAlertEmail, data, asynq.Queue(QueueAlerts), asynq.MaxRetry(5)), nil
}

// EmailHandler delivers alert emails.
type EmailHandler struct {
	logger *slog.Logger
}

// NewEmailHandler constructs EmailHandler.
func NewEmailHandler(logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{logger: logger}
}

// Handle processes TaskTypeAlertEmail tasks. Delivery is logged; an SMTP
// relay is not part of this service.
func (h *EmailHandler) Handle(_ context.Context, t *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode alert email: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("alert email without recipient: %w", asynq.SkipRetry)
	}
	h.logger.Info("alert email dispatched",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject),
		slog.Int64("order_id", payload.Alert.OrderID),
		slog.String("alert_type", string(payload.Alert.AlertType)),
	)
	return nil
}
