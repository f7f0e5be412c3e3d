package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/approval/migration"
	"github.com/odyssey-erp/fabricflow/internal/risk"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

// Invalidator drops cached read models after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Observer receives approval and stage drift counts.
type Observer interface {
	ObserveApproval(approvalType, state string)
	ObserveStageDrift()
}

// Service coordinates order persistence with stage derivation and the
// approval timeline.
type Service struct {
	repo        Repository
	classifier  risk.Classifier
	invalidator Invalidator
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the order service. invalidator may be nil.
func NewService(repo Repository, classifier risk.Classifier, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		classifier:  classifier,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// WithObserver reports approval changes and stage drift to o.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a new order with its initial lines. Orders start upcoming with
// every approval pending.
func (s *Service) Create(ctx context.Context, req OrderRequest, actor shared.Actor) (*OrderView, error) {
	var o Order
	if err := req.apply(&o); err != nil {
		return nil, err
	}
	o.Status = StatusUpcoming
	o.ApprovalStatus = approval.AllPending(approval.Current())
	o.CreatedBy = actor.ID
	for i, lr := range req.Lines {
		line, err := newLine(lr, o.Currency)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		o.Lines = append(o.Lines, line)
	}
	o.CurrentStage = DeriveStage(o).Label

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		id, err = repo.Create(ctx, o)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, line := range o.Lines {
			line.OrderID = id
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info("order created", slog.Int64("order_id", id), slog.String("order_number", o.OrderNumber), slog.Int("lines", len(o.Lines)))
	return s.Get(ctx, id)
}

// Update replaces the editable order fields. Lines, status and approvals have
// their own operations.
func (s *Service) Update(ctx context.Context, id int64, req OrderRequest) (*OrderView, error) {
	if len(req.Lines) > 0 {
		return nil, fmt.Errorf("%w: lines are edited through the line endpoints", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := req.apply(o); err != nil {
			return err
		}
		return repo.Update(ctx, *o)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// ChangeStatus moves an order along its lifecycle.
func (s *Service) ChangeStatus(ctx context.Context, id int64, to Status) (*OrderView, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == to {
			return nil
		}
		if !CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, o.Status, to)
		}
		return repo.UpdateStatus(ctx, id, to)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info("order status changed", slog.Int64("order_id", id), slog.String("status", string(to)))
	return s.Get(ctx, id)
}

// Delete removes an order and its lines.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("order deleted", slog.Int64("order_id", id))
	return nil
}

// Get returns the view of one order.
func (s *Service) Get(ctx context.Context, id int64) (*OrderView, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.view(*o)
	return &view, nil
}

// List returns a page of order views.
func (s *Service) List(ctx context.Context, status *Status, search string, page, perPage int) ([]OrderView, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	orders, total, err := s.repo.List(ctx, ListFilter{Status: status, Search: search, Limit: p.PerPage, Offset: p.Offset()})
	if err != nil {
		return nil, p, err
	}
	views := lo.Map(orders, func(o Order, _ int) OrderView { return s.view(o) })
	return views, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// OpenOrders returns every upcoming or running order with its lines.
func (s *Service) OpenOrders(ctx context.Context) ([]Order, error) {
	return s.repo.ListOpen(ctx)
}

// StatusCounts counts orders per status, zero entries included.
func (s *Service) StatusCounts(ctx context.Context) (map[Status]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(Statuses()))
	for _, st := range Statuses() {
		out[st] = counts[st]
	}
	return out, nil
}

// ETDAlerts returns the alert events of open orders, most urgent first.
func (s *Service) ETDAlerts(ctx context.Context) ([]risk.AlertEvent, error) {
	orders, err := s.repo.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	return s.classifier.BuildAlerts(lo.Map(orders, func(o Order, _ int) risk.Candidate { return AlertCandidate(o) }), s.now()), nil
}

// AddLine appends a line to an order.
func (s *Service) AddLine(ctx context.Context, orderID int64, req LineRequest) (*OrderView, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		line, err := newLine(req, o.Currency)
		if err != nil {
			return err
		}
		line.OrderID = orderID
		if line.ID, err = repo.InsertLine(ctx, line); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
		o.Lines = append(o.Lines, line)
		return s.syncStage(ctx, repo, o)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, orderID)
}

// UpdateLine replaces the editable fields of a line. Approval states change
// only through SetLineApproval.
func (s *Service) UpdateLine(ctx context.Context, orderID, lineID int64, req LineRequest) (*OrderView, error) {
	if len(req.ApprovalStatus) > 0 {
		return nil, fmt.Errorf("%w: approval states change through the approvals endpoint", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		line, err := findLine(o, lineID)
		if err != nil {
			return err
		}
		if err := req.apply(line, o.Currency); err != nil {
			return err
		}
		return repo.UpdateLine(ctx, *line)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, orderID)
}

// DeleteLine removes a line and recomputes the order stage.
func (s *Service) DeleteLine(ctx context.Context, orderID, lineID int64) (*OrderView, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := findLine(o, lineID); err != nil {
			return err
		}
		if err := repo.DeleteLine(ctx, orderID, lineID); err != nil {
			return err
		}
		o.Lines = lo.Filter(o.Lines, func(l OrderLine, _ int) bool { return l.ID != lineID })
		return s.syncStage(ctx, repo, o)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.Get(ctx, orderID)
}

// SetLineApproval sets one approval type of a line, appends the change to the
// timeline and refreshes the stored stage.
func (s *Service) SetLineApproval(ctx context.Context, orderID, lineID int64, req ApprovalRequest, actor shared.Actor) (*OrderView, error) {
	t, state, err := parseApproval(req)
	if err != nil {
		return nil, err
	}
	applied := false
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		line, err := findLine(o, lineID)
		if err != nil {
			return err
		}
		updated, from, changed, err := transition(line.ApprovalStatus, t, state)
		if err != nil || !changed {
			return err
		}
		if err := repo.UpdateLineApproval(ctx, lineID, updated); err != nil {
			return err
		}
		line.ApprovalStatus = updated
		if err := repo.RecordApproval(ctx, approval.Event{
			OrderID:   orderID,
			LineID:    &lineID,
			Type:      t,
			FromState: from,
			ToState:   state,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Note:      req.Note,
		}); err != nil {
			return fmt.Errorf("record approval: %w", err)
		}
		applied = true
		return s.syncStage(ctx, repo, o)
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.observeApproval(t, state)
	}
	s.invalidate(ctx)
	s.logger.Info("line approval set",
		slog.Int64("order_id", orderID),
		slog.Int64("line_id", lineID),
		slog.String("approval_type", string(t)),
		slog.String("state", string(state)),
	)
	return s.Get(ctx, orderID)
}

// SetOrderApproval sets one approval type of the order-level map.
func (s *Service) SetOrderApproval(ctx context.Context, orderID int64, req ApprovalRequest, actor shared.Actor) (*OrderView, error) {
	t, state, err := parseApproval(req)
	if err != nil {
		return nil, err
	}
	applied := false
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		updated, from, changed, err := transition(o.ApprovalStatus, t, state)
		if err != nil || !changed {
			return err
		}
		if err := repo.UpdateApproval(ctx, orderID, updated); err != nil {
			return err
		}
		o.ApprovalStatus = updated
		if err := repo.RecordApproval(ctx, approval.Event{
			OrderID:   orderID,
			Type:      t,
			FromState: from,
			ToState:   state,
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Note:      req.Note,
		}); err != nil {
			return fmt.Errorf("record approval: %w", err)
		}
		applied = true
		return s.syncStage(ctx, repo, o)
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.observeApproval(t, state)
	}
	s.invalidate(ctx)
	s.logger.Info("order approval set",
		slog.Int64("order_id", orderID),
		slog.String("approval_type", string(t)),
		slog.String("state", string(state)),
	)
	return s.Get(ctx, orderID)
}

// Timeline returns the approval events of an order in chronological order.
func (s *Service) Timeline(ctx context.Context, orderID int64) ([]approval.Event, error) {
	if _, err := s.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListApprovals(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []approval.Event{}
	}
	return events, nil
}

func (s *Service) view(o Order) OrderView {
	view := NewOrderView(o, s.classifier, s.now())
	if view.StageDrift {
		s.logger.Warn("order stage drift",
			slog.Int64("order_id", o.ID),
			slog.String("stored_stage", view.StoredStage),
			slog.String("derived_stage", view.CurrentStage),
		)
		if s.observer != nil {
			s.observer.ObserveStageDrift()
		}
	}
	return view
}

func (s *Service) observeApproval(t approval.Type, state approval.State) {
	if s.observer != nil {
		s.observer.ObserveApproval(string(t), string(state))
	}
}

func (s *Service) syncStage(ctx context.Context, repo Repository, o *Order) error {
	derived := DeriveStage(*o)
	if derived.Label == o.CurrentStage {
		return nil
	}
	if err := repo.UpdateStage(ctx, o.ID, derived.Label); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	s.logger.Info("order stage changed",
		slog.Int64("order_id", o.ID),
		slog.String("from", o.CurrentStage),
		slog.String("to", derived.Label),
	)
	o.CurrentStage = derived.Label
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

func newLine(req LineRequest, orderCurrency string) (OrderLine, error) {
	var line OrderLine
	if err := req.apply(&line, orderCurrency); err != nil {
		return line, err
	}
	m, err := approvalInput(req.ApprovalStatus)
	if err != nil {
		return line, err
	}
	line.ApprovalStatus = m
	return line, nil
}

func findLine(o *Order, lineID int64) (*OrderLine, error) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i], nil
		}
	}
	return nil, ErrLineNotFound
}

func parseApproval(req ApprovalRequest) (approval.Type, approval.State, error) {
	t, err := approval.Current().ParseType(req.ApprovalType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	state, err := approval.ParseState(req.State)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return t, state, nil
}

// transition brings a stored map to the current vocabulary and sets t. It
// reports the previous state and whether anything changed.
func transition(stored *approval.StatusMap, t approval.Type, to approval.State) (*approval.StatusMap, approval.State, bool, error) {
	current, err := migration.ToCurrent(stored)
	if err != nil {
		return nil, "", false, fmt.Errorf("read stored approvals: %w", err)
	}
	from := current.Get(t)
	if from == to {
		return stored, from, false, nil
	}
	if err := current.Set(t, to); err != nil {
		return nil, "", false, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return current, from, true, nil
}
