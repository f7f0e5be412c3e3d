package finance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/risk"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

// Invalidator drops cached read models after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service assembles order pipelines.
type Service struct {
	repo        Repository
	classifier  risk.Classifier
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs Service. A nil invalidator skips cache bumps.
func NewService(repo Repository, classifier risk.Classifier, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, classifier: classifier, invalidator: invalidator, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for expiry badges.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Pipeline returns the LCs and PIs of an order with per-currency totals.
func (s *Service) Pipeline(ctx context.Context, orderID int64) (*Pipeline, error) {
	if err := s.requireOrder(ctx, orderID); err != nil {
		return nil, err
	}
	lcs, err := s.repo.LettersOfCredit(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list letters of credit: %w", err)
	}
	pis, err := s.repo.ProformaInvoices(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list proforma invoices: %w", err)
	}
	return BuildPipeline(orderID, lcs, pis, s.classifier, s.now()), nil
}

// BuildPipeline decorates documents with risk badges and sums them per
// currency. Only live LCs carry an expiry badge and count toward coverage.
func BuildPipeline(orderID int64, lcs []LetterOfCredit, pis []ProformaInvoice, classifier risk.Classifier, now time.Time) *Pipeline {
	p := &Pipeline{
		OrderID: orderID,
		LettersOfCredit: lo.Map(lcs, func(lc LetterOfCredit, _ int) LCView {
			v := LCView{LetterOfCredit: lc}
			if lc.Live() {
				v.ExpiryRisk = classifier.Classify(lc.ExpiryDate, now)
			}
			return v
		}),
		ProformaInvoices: lo.Map(pis, func(pi ProformaInvoice, _ int) PIView {
			v := PIView{ProformaInvoice: pi}
			if pi.Status == PISent {
				v.ValidityRisk = classifier.Classify(pi.ValidUntil, now)
			}
			return v
		}),
	}

	lcSums := map[string]decimal.Decimal{}
	for _, lc := range lcs {
		if lc.Live() {
			lcSums[lc.Currency] = lcSums[lc.Currency].Add(lc.Amount)
		}
	}
	piSums := map[string]decimal.Decimal{}
	for _, pi := range pis {
		if pi.Status != PICancelled {
			piSums[pi.Currency] = piSums[pi.Currency].Add(pi.Amount)
		}
	}
	currencies := lo.Union(lo.Keys(lcSums), lo.Keys(piSums))
	sort.Strings(currencies)
	p.Totals = lo.Map(currencies, func(c string, _ int) CurrencyTotal {
		return newTotal(c, lcSums[c], piSums[c])
	})
	return p
}

func newTotal(currency string, lcTotal, piTotal decimal.Decimal) CurrencyTotal {
	uncovered := piTotal.Sub(lcTotal)
	if uncovered.IsNegative() {
		uncovered = decimal.Zero
	}
	return CurrencyTotal{
		Currency:  currency,
		LCTotal:   lcTotal.Round(2),
		PITotal:   piTotal.Round(2),
		Uncovered: uncovered.Round(2),
	}
}

// AddLetterOfCredit records an LC against an order.
func (s *Service) AddLetterOfCredit(ctx context.Context, orderID int64, req LCRequest, actor shared.Actor) (*LetterOfCredit, error) {
	lc, err := req.toModel(orderID, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOrder(ctx, orderID); err != nil {
		return nil, err
	}
	saved, err := s.repo.CreateLetterOfCredit(ctx, lc)
	if err != nil {
		return nil, err
	}
	s.logger.Info("letter of credit recorded",
		slog.Int64("order_id", orderID),
		slog.String("lc_number", saved.Number),
		slog.String("amount", saved.Amount.String()),
		slog.String("currency", saved.Currency),
	)
	s.invalidate(ctx)
	return &saved, nil
}

// AddProformaInvoice records a PI against an order.
func (s *Service) AddProformaInvoice(ctx context.Context, orderID int64, req PIRequest, actor shared.Actor) (*ProformaInvoice, error) {
	pi, err := req.toModel(orderID, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOrder(ctx, orderID); err != nil {
		return nil, err
	}
	saved, err := s.repo.CreateProformaInvoice(ctx, pi)
	if err != nil {
		return nil, err
	}
	s.logger.Info("proforma invoice recorded",
		slog.Int64("order_id", orderID),
		slog.String("pi_number", saved.Number),
		slog.String("amount", saved.Amount.String()),
		slog.String("currency", saved.Currency),
	)
	s.invalidate(ctx)
	return &saved, nil
}

// Totals sums live finance documents of open orders per currency.
func (s *Service) Totals(ctx context.Context) ([]CurrencyTotal, error) {
	return s.repo.Totals(ctx)
}

func (s *Service) requireOrder(ctx context.Context, orderID int64) error {
	ok, err := s.repo.OrderExists(ctx, orderID)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !ok {
		return ErrOrderNotFound
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate read cache", slog.Any("error", err))
	}
}
