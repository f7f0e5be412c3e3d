// Package dashboard aggregates order, alert and finance figures for the
// landing view.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/fabricflow/internal/finance"
	"github.com/odyssey-erp/fabricflow/internal/orders"
	"github.com/odyssey-erp/fabricflow/internal/platform/cache"
	"github.com/odyssey-erp/fabricflow/internal/risk"
)

// OrderSource supplies order figures.
type OrderSource interface {
	StatusCounts(ctx context.Context) (map[orders.Status]int, error)
	OpenOrders(ctx context.Context) ([]orders.Order, error)
}

// FinanceSource supplies money totals.
type FinanceSource interface {
	Totals(ctx context.Context) ([]finance.CurrencyTotal, error)
}

const loadTimeout = 30 * time.Second

// Summary is the dashboard payload.
type Summary struct {
	GeneratedAt   time.Time               `json:"generated_at"`
	StatusCounts  map[orders.Status]int   `json:"status_counts"`
	OpenOrders    int                     `json:"open_orders"`
	StageCounts   []orders.StageCount     `json:"stage_counts"`
	Alerts        []risk.AlertEvent       `json:"etd_alerts"`
	AlertCounts   map[risk.AlertType]int  `json:"alert_counts"`
	FinanceTotals []finance.CurrencyTotal `json:"finance_totals"`
}

// Service builds summaries. Results are cached per business day under a
// version that order mutations bump.
type Service struct {
	orders     OrderSource
	finance    FinanceSource
	classifier risk.Classifier
	cache      *cache.Versioned
	logger     *slog.Logger
	now        func() time.Time
	group      singleflight.Group
}

// NewService constructs Service. A nil cache disables caching.
func NewService(orderSrc OrderSource, financeSrc FinanceSource, classifier risk.Classifier, c *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders:     orderSrc,
		finance:    financeSrc,
		classifier: classifier,
		cache:      c,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summary returns the dashboard summary. Concurrent callers share one load.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	day := s.now().In(s.classifier.Location()).Format("2006-01-02")
	key, err := s.cache.Key(ctx, "dashboard", "summary", day)
	if err != nil {
		s.logger.Warn("dashboard cache version", slog.Any("error", err))
		key = "dashboard:summary:" + day
	}
	ch := s.group.DoChan(key, func() (interface{}, error) {
		// The load is shared, so it must outlive the caller that started it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return cache.Fetch(loadCtx, s.cache, key, s.load)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		summary := res.Val.(Summary)
		return &summary, nil
	}
}

func (s *Service) load(ctx context.Context) (Summary, error) {
	var (
		statusCounts map[orders.Status]int
		open         []orders.Order
		totals       []finance.CurrencyTotal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.orders.StatusCounts(gctx)
		if err != nil {
			return fmt.Errorf("status counts: %w", err)
		}
		statusCounts = counts
		return nil
	})
	g.Go(func() error {
		list, err := s.orders.OpenOrders(gctx)
		if err != nil {
			return fmt.Errorf("open orders: %w", err)
		}
		open = list
		return nil
	})
	g.Go(func() error {
		t, err := s.finance.Totals(gctx)
		if err != nil {
			return fmt.Errorf("finance totals: %w", err)
		}
		totals = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	now := s.now()
	alerts := s.classifier.BuildAlerts(lo.Map(open, func(o orders.Order, _ int) risk.Candidate {
		return orders.AlertCandidate(o)
	}), now)
	alertCounts := map[risk.AlertType]int{risk.AlertOverdue: 0, risk.AlertUrgent: 0, risk.AlertApproaching: 0}
	for _, a := range alerts {
		alertCounts[a.AlertType]++
	}
	if alerts == nil {
		alerts = []risk.AlertEvent{}
	}
	if totals == nil {
		totals = []finance.CurrencyTotal{}
	}
	return Summary{
		GeneratedAt:   now.UTC(),
		StatusCounts:  statusCounts,
		OpenOrders:    len(open),
		StageCounts:   orders.CountStages(open),
		Alerts:        alerts,
		AlertCounts:   alertCounts,
		FinanceTotals: totals,
	}, nil
}
