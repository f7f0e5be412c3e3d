package finance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fabricflow/internal/risk"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

type mockRepository struct {
	orders map[int64]bool
	lcs    []LetterOfCredit
	pis    []ProformaInvoice
}

func (m *mockRepository) OrderExists(_ context.Context, id int64) (bool, error) {
	return m.orders[id], nil
}

func (m *mockRepository) LettersOfCredit(_ context.Context, orderID int64) ([]LetterOfCredit, error) {
	var out []LetterOfCredit
	for _, lc := range m.lcs {
		if lc.OrderID == orderID {
			out = append(out, lc)
		}
	}
	return out, nil
}

func (m *mockRepository) ProformaInvoices(_ context.Context, orderID int64) ([]ProformaInvoice, error) {
	var out []ProformaInvoice
	for _, pi := range m.pis {
		if pi.OrderID == orderID {
			out = append(out, pi)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateLetterOfCredit(_ context.Context, lc LetterOfCredit) (LetterOfCredit, error) {
	for _, existing := range m.lcs {
		if existing.Number == lc.Number {
			return LetterOfCredit{}, ErrDuplicate
		}
	}
	lc.ID = int64(len(m.lcs) + 1)
	m.lcs = append(m.lcs, lc)
	return lc, nil
}

func (m *mockRepository) CreateProformaInvoice(_ context.Context, pi ProformaInvoice) (ProformaInvoice, error) {
	pi.ID = int64(len(m.pis) + 1)
	m.pis = append(m.pis, pi)
	return pi, nil
}

func (m *mockRepository) Totals(context.Context) ([]CurrencyTotal, error) {
	return BuildPipeline(0, m.lcs, m.pis, risk.NewClassifier(time.UTC), time.Now()).Totals, nil
}

var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepository) {
	repo := &mockRepository{orders: map[int64]bool{1: true}}
	svc := NewService(repo, risk.NewClassifier(time.UTC), nil, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(func() time.Time { return fixedNow })
	return svc, repo
}

func date(s string) *time.Time {
	t, err := risk.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestBuildPipelineTotalsAndBadges(t *testing.T) {
	lcs := []LetterOfCredit{
		{ID: 1, OrderID: 1, Number: "LC-1", Amount: decimal.RequireFromString("1000.50"), Currency: "USD", ExpiryDate: date("2025-01-13"), Status: LCIssued},
		{ID: 2, OrderID: 1, Number: "LC-2", Amount: decimal.RequireFromString("500"), Currency: "USD", ExpiryDate: date("2025-01-01"), Status: LCCancelled},
		{ID: 3, OrderID: 1, Number: "LC-3", Amount: decimal.RequireFromString("200"), Currency: "EUR", ExpiryDate: date("2025-01-18"), Status: LCAmended},
	}
	pis := []ProformaInvoice{
		{ID: 1, OrderID: 1, Number: "PI-1", Amount: decimal.RequireFromString("1500"), Currency: "USD", ValidUntil: date("2025-01-05"), Status: PISent},
		{ID: 2, OrderID: 1, Number: "PI-2", Amount: decimal.RequireFromString("100"), Currency: "BDT", Status: PIConfirmed},
		{ID: 3, OrderID: 1, Number: "PI-3", Amount: decimal.RequireFromString("999"), Currency: "BDT", Status: PICancelled},
	}
	p := BuildPipeline(1, lcs, pis, risk.NewClassifier(time.UTC), fixedNow)

	require.Len(t, p.LettersOfCredit, 3)
	assert.Equal(t, &risk.Badge{Label: risk.LabelZeroFive, Severity: risk.SeverityCritical}, p.LettersOfCredit[0].ExpiryRisk)
	assert.Nil(t, p.LettersOfCredit[1].ExpiryRisk, "cancelled LCs carry no badge")
	assert.Equal(t, risk.LabelSixToTen, p.LettersOfCredit[2].ExpiryRisk.Label)
	assert.Equal(t, risk.LabelOverdue, p.ProformaInvoices[0].ValidityRisk.Label)
	assert.Nil(t, p.ProformaInvoices[1].ValidityRisk)

	require.Len(t, p.Totals, 3)
	assert.Equal(t, []string{"BDT", "EUR", "USD"}, []string{p.Totals[0].Currency, p.Totals[1].Currency, p.Totals[2].Currency})
	assert.Equal(t, "100", p.Totals[0].PITotal.String())
	assert.Equal(t, "100", p.Totals[0].Uncovered.String())
	assert.Equal(t, "200", p.Totals[1].LCTotal.String())
	assert.True(t, p.Totals[1].Uncovered.IsZero(), "over-covered currencies report zero")
	assert.Equal(t, "1000.5", p.Totals[2].LCTotal.String())
	assert.Equal(t, "499.5", p.Totals[2].Uncovered.String())
}

func TestPipelineUnknownOrder(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Pipeline(context.Background(), 42)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestAddLetterOfCredit(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	actor := shared.Actor{ID: 5, Name: "Mita"}

	lc, err := svc.AddLetterOfCredit(ctx, 1, LCRequest{
		Number:     " LC-9 ",
		Amount:     decimal.RequireFromString("2500"),
		Currency:   "usd",
		IssueDate:  strPtr("2025-01-02"),
		ExpiryDate: strPtr("2025-03-02"),
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, "LC-9", lc.Number)
	assert.Equal(t, "USD", lc.Currency)
	assert.Equal(t, LCDraft, lc.Status)
	assert.Equal(t, int64(5), repo.lcs[0].CreatedBy)

	_, err = svc.AddLetterOfCredit(ctx, 1, LCRequest{Number: "LC-9", Currency: "USD"}, actor)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.AddLetterOfCredit(ctx, 1, LCRequest{Number: "LC-10", Currency: "USD", IssueDate: strPtr("2025-02-01"), ExpiryDate: strPtr("2025-01-01")}, actor)
	assert.ErrorIs(t, err, ErrInvalidDates)

	_, err = svc.AddLetterOfCredit(ctx, 1, LCRequest{Number: "LC-11", Currency: "USD", ExpiryDate: strPtr("next week")}, actor)
	assert.ErrorIs(t, err, ErrInvalidDates)
	assert.ErrorIs(t, err, risk.ErrMalformedDate)

	_, err = svc.AddLetterOfCredit(ctx, 1, LCRequest{Number: "LC-12", Currency: "USD", Amount: decimal.NewFromInt(-1)}, actor)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AddLetterOfCredit(ctx, 7, LCRequest{Number: "LC-13", Currency: "USD"}, actor)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestAddProformaInvoice(t *testing.T) {
	svc, _ := newTestService()
	pi, err := svc.AddProformaInvoice(context.Background(), 1, PIRequest{
		Number:     "PI-1",
		Amount:     decimal.RequireFromString("10.125"),
		Currency:   "EUR",
		ValidUntil: strPtr("2025-01-31"),
		Status:     "sent",
	}, shared.Actor{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, PISent, pi.Status)

	p, err := svc.Pipeline(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, p.Totals, 1)
	assert.Equal(t, "10.13", p.Totals[0].PITotal.String())
	assert.Nil(t, p.ProformaInvoices[0].ValidityRisk, "three weeks out is not at risk")
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestFinanceWritesInvalidateDashboard(t *testing.T) {
	repo := &mockRepository{orders: map[int64]bool{1: true}}
	inv := &countingInvalidator{}
	svc := NewService(repo, risk.NewClassifier(time.UTC), inv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	_, err := svc.AddLetterOfCredit(ctx, 1, LCRequest{Number: "LC-1", Amount: decimal.NewFromInt(10), Currency: "USD"}, actor)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)

	_, err = svc.AddProformaInvoice(ctx, 1, PIRequest{Number: "PI-1", Amount: decimal.NewFromInt(10), Currency: "USD"}, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.calls)

	_, err = svc.AddLetterOfCredit(ctx, 1, LCRequest{Number: "LC-1", Currency: "USD"}, actor)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 2, inv.calls, "failed writes leave the cache alone")
}

func strPtr(s string) *string { return &s }
