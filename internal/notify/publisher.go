// Package notify fans ETD alerts out to subscribers and the email queue.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fabricflow/internal/risk"
)

// DefaultChannel is the pub/sub channel alerts are published on.
const DefaultChannel = "fabricflow.etd_alerts"

// Enqueuer is the part of *asynq.Client the publisher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Config configures Publisher.
type Config struct {
	Channel string
	// EmailTo receives one email per new alert. Empty disables email.
	EmailTo string
	// DedupTTL bounds how long a sent alert suppresses repeats.
	DedupTTL time.Duration
	Location *time.Location
}

// Result counts what one Publish call did.
type Result struct {
	Published  int `json:"published"`
	Duplicates int `json:"duplicates"`
	Emailed    int `json:"emailed"`
}

// Publisher sends each alert at most once per order, alert type and day.
type Publisher struct {
	redis    *redis.Client
	enqueuer Enqueuer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewPublisher constructs Publisher. enqueuer may be nil when email is off.
func NewPublisher(client *redis.Client, enqueuer Enqueuer, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 36 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{redis: client, enqueuer: enqueuer, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for the de-duplication day.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// DedupKey identifies an alert for one business day.
func (p *Publisher) DedupKey(ev risk.AlertEvent) string {
	day := p.now().In(p.cfg.Location).Format("2006-01-02")
	return fmt.Sprintf("fabricflow:alert:%d:%s:%s", ev.OrderID, ev.AlertType, day)
}

// Publish sends new alerts and skips those already sent today. A failure
// releases the alert's de-duplication key so the next run retries it.
func (p *Publisher) Publish(ctx context.Context, events []risk.AlertEvent) (Result, error) {
	var res Result
	if p == nil || p.redis == nil {
		return res, errors.New("notify: publisher not configured")
	}
	for _, ev := range events {
		key := p.DedupKey(ev)
		fresh, err := p.redis.SetNX(ctx, key, ev.Message, p.cfg.DedupTTL).Result()
		if err != nil {
			return res, fmt.Errorf("notify: dedup %s: %w", key, err)
		}
		if !fresh {
			res.Duplicates++
			continue
		}
		emailed, err := p.send(ctx, ev)
		if err != nil {
			if derr := p.redis.Del(ctx, key).Err(); derr != nil {
				p.logger.Warn("release alert dedup key", slog.String("key", key), slog.Any("error", derr))
			}
			return res, err
		}
		res.Published++
		if emailed {
			res.Emailed++
		}
	}
	p.logger.Info("etd alerts published",
		slog.Int("published", res.Published),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("emailed", res.Emailed),
	)
	return res, nil
}

func (p *Publisher) send(ctx context.Context, ev risk.AlertEvent) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("notify: encode alert: %w", err)
	}
	if err := p.redis.Publish(ctx, p.cfg.Channel, payload).Err(); err != nil {
		return false, fmt.Errorf("notify: publish order %d: %w", ev.OrderID, err)
	}
	if p.cfg.EmailTo == "" || p.enqueuer == nil {
		return false, nil
	}
	task, err := NewAlertEmailTask(p.cfg.EmailTo, ev)
	if err != nil {
		return false, fmt.Errorf("notify: build email: %w", err)
	}
	if _, err := p.enqueuer.EnqueueContext(ctx, task); err != nil {
		return false, fmt.Errorf("notify: enqueue email for order %d: %w", ev.OrderID, err)
	}
	return true, nil
}
