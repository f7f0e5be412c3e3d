package orders

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/risk"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

type mockRepository struct {
	mu         sync.Mutex
	orders     map[int64]Order
	nextOrder  int64
	nextLine   int64
	events     []approval.Event
	stageWrite int
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: map[int64]Order{}}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]Order, len(m.orders))
	for id, o := range m.orders {
		snapshot[id] = cloneOrder(o)
	}
	events := len(m.events)
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.orders = snapshot
		m.events = m.events[:events]
		m.mu.Unlock()
		return err
	}
	return nil
}

func cloneOrder(o Order) Order {
	c := o
	c.ApprovalStatus = o.ApprovalStatus.Clone()
	c.Lines = make([]OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		c.Lines[i] = l
		c.Lines[i].ApprovalStatus = l.ApprovalStatus.Clone()
	}
	return c
}

func (m *mockRepository) Create(_ context.Context, o Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.OrderNumber == o.OrderNumber {
			return 0, ErrDuplicateNumber
		}
	}
	m.nextOrder++
	o.ID = m.nextOrder
	o.Lines = nil
	m.orders[o.ID] = o
	return o.ID, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

func (m *mockRepository) Lock(ctx context.Context, id int64) (*Order, error) {
	return m.Get(ctx, id)
}

func (m *mockRepository) List(_ context.Context, filter ListFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockRepository) ListOpen(ctx context.Context) ([]Order, error) {
	all, _, err := m.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	var open []Order
	for _, o := range all {
		if !o.Status.IsClosed() {
			open = append(open, o)
		}
	}
	return open, nil
}

func (m *mockRepository) CountByStatus(context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Status]int{}
	for _, o := range m.orders {
		out[o.Status]++
	}
	return out, nil
}

func (m *mockRepository) mutate(id int64, fn func(*Order)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	fn(&o)
	m.orders[id] = o
	return nil
}

func (m *mockRepository) Update(_ context.Context, o Order) error {
	return m.mutate(o.ID, func(stored *Order) {
		lines, status, stage, approvals := stored.Lines, stored.Status, stored.CurrentStage, stored.ApprovalStatus
		*stored = o
		stored.Lines, stored.Status, stored.CurrentStage, stored.ApprovalStatus = lines, status, stage, approvals
	})
}

func (m *mockRepository) UpdateStatus(_ context.Context, id int64, status Status) error {
	return m.mutate(id, func(o *Order) { o.Status = status })
}

func (m *mockRepository) UpdateApproval(_ context.Context, id int64, s *approval.StatusMap) error {
	return m.mutate(id, func(o *Order) { o.ApprovalStatus = s.Clone() })
}

func (m *mockRepository) UpdateStage(_ context.Context, id int64, stage string) error {
	m.stageWrite++
	return m.mutate(id, func(o *Order) { o.CurrentStage = stage })
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *mockRepository) InsertLine(_ context.Context, l OrderLine) (int64, error) {
	m.nextLine++
	l.ID = m.nextLine
	err := m.mutate(l.OrderID, func(o *Order) { o.Lines = append(o.Lines, l) })
	return l.ID, err
}

func (m *mockRepository) withLine(lineID int64, fn func(*OrderLine)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orders {
		for i := range o.Lines {
			if o.Lines[i].ID == lineID {
				fn(&o.Lines[i])
				m.orders[id] = o
				return nil
			}
		}
	}
	return ErrLineNotFound
}

func (m *mockRepository) UpdateLine(_ context.Context, l OrderLine) error {
	return m.withLine(l.ID, func(stored *OrderLine) {
		approvals := stored.ApprovalStatus
		*stored = l
		stored.ApprovalStatus = approvals
	})
}

func (m *mockRepository) UpdateLineApproval(_ context.Context, lineID int64, s *approval.StatusMap) error {
	return m.withLine(lineID, func(l *OrderLine) { l.ApprovalStatus = s.Clone() })
}

func (m *mockRepository) DeleteLine(_ context.Context, orderID, lineID int64) error {
	return m.mutate(orderID, func(o *Order) {
		kept := o.Lines[:0]
		for _, l := range o.Lines {
			if l.ID != lineID {
				kept = append(kept, l)
			}
		}
		o.Lines = kept
	})
}

func (m *mockRepository) RecordApproval(_ context.Context, ev approval.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *mockRepository) ListApprovals(_ context.Context, orderID int64) ([]approval.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []approval.Event
	for _, ev := range m.events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type recordingObserver struct {
	approvals []string
	drift     int
}

func (o *recordingObserver) ObserveApproval(approvalType, state string) {
	o.approvals = append(o.approvals, approvalType+"="+state)
}

func (o *recordingObserver) ObserveStageDrift() { o.drift++ }

var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepository, *countingInvalidator) {
	repo := newMockRepository()
	inv := &countingInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, risk.NewClassifier(time.UTC), inv, logger).WithClock(func() time.Time { return fixedNow })
	return svc, repo, inv
}

func sampleRequest() OrderRequest {
	etd := "2025-01-14"
	return OrderRequest{
		OrderNumber:  "FF-2025-001",
		CustomerName: "Acme Apparel",
		Currency:     "usd",
		ETD:          &etd,
		Lines: []LineRequest{
			{StyleNumber: "ST-1", ColorName: strPtr("Navy"), Quantity: decimal.NewFromInt(100), ProvaPrice: money("5.00"), MillPrice: money("3.00"), Commission: money("0.50")},
			{StyleNumber: "ST-2", CADCode: strPtr("CAD-9"), Quantity: decimal.NewFromInt(40)},
		},
	}
}

var rina = shared.Actor{ID: 7, Name: "Rina"}

func TestCreateInitialisesApprovalsAndStage(t *testing.T) {
	svc, _, inv := newTestService()
	view, err := svc.Create(context.Background(), sampleRequest(), rina)
	require.NoError(t, err)

	assert.Equal(t, StatusUpcoming, view.Status)
	assert.Equal(t, "USD", view.Currency)
	assert.Equal(t, StageDesign, view.CurrentStage)
	assert.False(t, view.StageDrift)
	assert.Equal(t, &risk.Badge{Label: risk.LabelZeroFive, Severity: risk.SeverityCritical}, view.ETDRisk)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "ST-1 / Navy", view.Lines[0].LineLabel)
	assert.Equal(t, "150.00", view.Lines[0].Derived.Profit.Decimal.StringFixed(2))
	assert.Equal(t, DefaultUnit, view.Lines[1].Unit)
	assert.False(t, view.Lines[1].Derived.TotalValue.Valid)
	for _, typ := range approval.Current().Types {
		assert.Equal(t, approval.StatePending, view.Lines[0].ApprovalStatus.Get(typ))
	}
	assert.Equal(t, 1, inv.calls)
}

func TestCreateRejectsUnknownApprovalKeys(t *testing.T) {
	svc, repo, _ := newTestService()
	req := sampleRequest()
	req.Lines[0].ApprovalStatus = map[string]string{"fabricTest": "approved"}

	_, err := svc.Create(context.Background(), req, rina)
	require.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, approval.ErrInvalidApprovalType)
	assert.Empty(t, repo.orders)
}

func TestCreateRejectsApprovalKeysDifferingOnlyInCase(t *testing.T) {
	svc, repo, _ := newTestService()
	req := sampleRequest()
	req.Lines[0].ApprovalStatus = map[string]string{"labDip": "approved", "LABDIP": "rejected"}

	for i := 0; i < 5; i++ {
		_, err := svc.Create(context.Background(), req, rina)
		require.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, approval.ErrInvalidApprovalType)
	}
	assert.Empty(t, repo.orders)
}

func TestSetLineApprovalAdvancesStageAtSlowestLine(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)
	first, second := view.Lines[0].ID, view.Lines[1].ID

	view, err = svc.SetLineApproval(ctx, view.ID, first, ApprovalRequest{ApprovalType: "labDip", State: "approved"}, rina)
	require.NoError(t, err)
	assert.Equal(t, StageDesign, view.CurrentStage, "second line still at design")

	view, err = svc.SetLineApproval(ctx, view.ID, second, ApprovalRequest{ApprovalType: "LABDIP", State: "approved", Note: "shade ok"}, rina)
	require.NoError(t, err)
	assert.Equal(t, "Strike-Off", view.CurrentStage)
	assert.Equal(t, "Strike-Off", view.StoredStage)
	assert.Equal(t, "Strike-Off", repo.orders[view.ID].CurrentStage)

	events, err := svc.Timeline(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, approval.ActionApprove, approval.ActionFor(events[1].ToState))
	assert.Equal(t, approval.StatePending, events[1].FromState)
	assert.Equal(t, "shade ok", events[1].Note)
	assert.Equal(t, int64(7), events[1].ActorID)
	require.NotNil(t, events[1].LineID)
	assert.Equal(t, second, *events[1].LineID)
}

func TestSetLineApprovalIsNoopWhenUnchanged(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)

	_, err = svc.SetLineApproval(ctx, view.ID, view.Lines[0].ID, ApprovalRequest{ApprovalType: "labDip", State: "pending"}, rina)
	require.NoError(t, err)
	assert.Empty(t, repo.events)
}

func TestSetApprovalRejectsOldVocabulary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)

	_, err = svc.SetOrderApproval(ctx, view.ID, ApprovalRequest{ApprovalType: "trimsCard", State: "approved"}, rina)
	require.ErrorIs(t, err, approval.ErrInvalidApprovalType)

	_, err = svc.SetLineApproval(ctx, view.ID, 999, ApprovalRequest{ApprovalType: "labDip", State: "approved"}, rina)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestSetLineApprovalMigratesLegacyRow(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, OrderRequest{OrderNumber: "FF-9", CustomerName: "Bolt", Lines: []LineRequest{{StyleNumber: "S", Quantity: decimal.NewFromInt(1)}}}, rina)
	require.NoError(t, err)
	lineID := view.Lines[0].ID

	legacy, err := approval.Decode([]byte(`{"labDip":"approved","fabricTest":"rejected"}`))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateLineApproval(ctx, lineID, legacy))

	view, err = svc.SetLineApproval(ctx, view.ID, lineID, ApprovalRequest{ApprovalType: "strikeOff", State: "approved"}, rina)
	require.NoError(t, err)
	stored := repo.orders[view.ID].Lines[0].ApprovalStatus
	assert.Equal(t, approval.CurrentVersion, stored.Version())
	assert.Equal(t, approval.StateRejected, stored.Get(approval.TypeQualityTest))
	assert.Equal(t, "Quality Test", view.CurrentStage)
}

func TestOrderLevelApprovalDrivesStageWithoutLines(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, OrderRequest{OrderNumber: "FF-2", CustomerName: "Cove"}, rina)
	require.NoError(t, err)

	for _, typ := range []string{"labDip", "strikeOff"} {
		view, err = svc.SetOrderApproval(ctx, view.ID, ApprovalRequest{ApprovalType: typ, State: "approved"}, rina)
		require.NoError(t, err)
	}
	assert.Equal(t, "Quality Test", view.CurrentStage)

	view, err = svc.SetOrderApproval(ctx, view.ID, ApprovalRequest{ApprovalType: "labDip", State: "rejected"}, rina)
	require.NoError(t, err)
	assert.Equal(t, StageDesign, view.CurrentStage)
}

func TestChangeStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, view.ID, StatusCompleted)
	require.ErrorIs(t, err, ErrInvalidStatus)

	for _, next := range []Status{StatusRunning, StatusUpcoming, StatusRunning, StatusCompleted, StatusArchived} {
		view, err = svc.ChangeStatus(ctx, view.ID, next)
		require.NoError(t, err, "to %s", next)
	}
	assert.Equal(t, StatusArchived, view.Status)

	_, err = svc.ChangeStatus(ctx, view.ID, StatusRunning)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestETDAlertsSkipClosedOrders(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	open, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)

	closedReq := sampleRequest()
	closedReq.OrderNumber = "FF-2025-002"
	closed, err := svc.Create(ctx, closedReq, rina)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, closed.ID, StatusRunning)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, closed.ID, StatusCompleted)
	require.NoError(t, err)

	alerts, err := svc.ETDAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, open.ID, alerts[0].OrderID)
	assert.Equal(t, "ETD in 4 days", alerts[0].Message)
	assert.Equal(t, risk.AlertUrgent, alerts[0].AlertType)
	assert.Equal(t, StageDesign, alerts[0].CurrentStage)
}

func TestLineLifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, OrderRequest{OrderNumber: "FF-3", CustomerName: "Dune", Currency: "EUR"}, rina)
	require.NoError(t, err)

	view, err = svc.AddLine(ctx, view.ID, LineRequest{StyleNumber: "S-1", Quantity: decimal.NewFromInt(10), ApprovalStatus: map[string]string{"labDip": "approved"}})
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "EUR", view.Lines[0].Currency)
	assert.Equal(t, "Strike-Off", view.CurrentStage)
	lineID := view.Lines[0].ID

	_, err = svc.UpdateLine(ctx, view.ID, lineID, LineRequest{StyleNumber: "S-1", Quantity: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateLine(ctx, view.ID, lineID, LineRequest{StyleNumber: "S-1", ApprovalStatus: map[string]string{"labDip": "pending"}})
	require.ErrorIs(t, err, ErrValidation)

	view, err = svc.UpdateLine(ctx, view.ID, lineID, LineRequest{StyleNumber: "S-1B", Quantity: decimal.NewFromInt(12), Unit: "meters"})
	require.NoError(t, err)
	assert.Equal(t, "meters", view.Lines[0].Unit)
	assert.Equal(t, "Strike-Off", view.CurrentStage, "approvals survive line edits")

	view, err = svc.DeleteLine(ctx, view.ID, lineID)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, StageDesign, view.CurrentStage)
}

func TestStageDriftIsReported(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStage(ctx, view.ID, "Production"))

	view, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, view.StageDrift)
	assert.Equal(t, "Production", view.StoredStage)
	assert.Equal(t, StageDesign, view.CurrentStage)
}

func TestInvalidDatesAreValidationErrors(t *testing.T) {
	svc, _, _ := newTestService()
	bad := "14/01/2025"
	req := sampleRequest()
	req.ETD = &bad
	_, err := svc.Create(context.Background(), req, rina)
	require.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, risk.ErrMalformedDate)
}

func TestObserverSeesChangesAndDrift(t *testing.T) {
	svc, repo, _ := newTestService()
	obs := &recordingObserver{}
	svc.WithObserver(obs)
	ctx := context.Background()
	view, err := svc.Create(ctx, sampleRequest(), rina)
	require.NoError(t, err)

	_, err = svc.SetLineApproval(ctx, view.ID, view.Lines[0].ID, ApprovalRequest{ApprovalType: "labDip", State: "approved"}, rina)
	require.NoError(t, err)
	_, err = svc.SetLineApproval(ctx, view.ID, view.Lines[0].ID, ApprovalRequest{ApprovalType: "labDip", State: "approved"}, rina)
	require.NoError(t, err)
	_, err = svc.SetOrderApproval(ctx, view.ID, ApprovalRequest{ApprovalType: "bulkSwatch", State: "rejected"}, rina)
	require.NoError(t, err)
	assert.Equal(t, []string{"labDip=approved", "bulkSwatch=rejected"}, obs.approvals)

	require.NoError(t, repo.UpdateStage(ctx, view.ID, "Production"))
	_, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, obs.drift)
}
