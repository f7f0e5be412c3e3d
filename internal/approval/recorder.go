package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Action enumerates approval timeline actions.
type Action string

const (
	// ActionApprove marks an approval.
	ActionApprove Action = "APPROVE"
	// ActionReject marks a rejection.
	ActionReject Action = "REJECT"
	// ActionReset moves an approval back to pending.
	ActionReset Action = "RESET"
)

// ActionFor returns the timeline action for a transition into to.
func ActionFor(to State) Action {
	switch to {
	case StateApproved:
		return ActionApprove
	case StateRejected:
		return ActionReject
	default:
		return ActionReset
	}
}

// Event is a single approval timeline record for an order or one of its lines.
type Event struct {
	ID            int64     `json:"id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	OrderID       int64     `json:"order_id"`
	LineID        *int64    `json:"line_id,omitempty"`
	Type          Type      `json:"approval_type"`
	Action        Action    `json:"action"`
	FromState     State     `json:"from_state"`
	ToState       State     `json:"to_state"`
	ActorID       int64     `json:"actor_id"`
	ActorName     string    `json:"actor_name,omitempty"`
	Note          string    `json:"note,omitempty"`
	At            time.Time `json:"at"`
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Recorder persists approval history.
type Recorder struct {
	db     DBTX
	logger *slog.Logger
}

// NewRecorder constructs Recorder.
func NewRecorder(db DBTX, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// WithDB returns a recorder bound to db, typically a transaction.
func (r *Recorder) WithDB(db DBTX) *Recorder {
	return &Recorder{db: db, logger: r.logger}
}

// Record writes an approval event.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.db == nil {
		return errors.New("approval recorder not initialised")
	}
	if ev.OrderID == 0 {
		return errors.New("approval order id required")
	}
	if ev.Type == "" {
		return errors.New("approval type required")
	}
	if ev.Action == "" {
		ev.Action = ActionFor(ev.ToState)
	}
	if ev.CorrelationID == uuid.Nil {
		ev.CorrelationID = uuid.New()
	}
	var at *time.Time
	if !ev.At.IsZero() {
		at = &ev.At
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approval_events (correlation_id, order_id, line_id, approval_type, action, from_state, to_state, actor_id, actor_name, note, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))`,
		ev.CorrelationID, ev.OrderID, ev.LineID, string(ev.Type), string(ev.Action),
		string(ev.FromState), string(ev.ToState), ev.ActorID, ev.ActorName, ev.Note, at)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err), slog.Int64("order_id", ev.OrderID))
		return err
	}
	return nil
}

// List returns the events of an order in chronological order.
func (r *Recorder) List(ctx context.Context, orderID int64) ([]Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.db.Query(ctx, `SELECT id, correlation_id, order_id, line_id, approval_type, action, from_state, to_state, actor_id, actor_name, note, at
FROM approval_events WHERE order_id=$1 ORDER BY at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var ev Event
		var typ, action, from, to string
		if err := rows.Scan(&ev.ID, &ev.CorrelationID, &ev.OrderID, &ev.LineID, &typ, &action, &from, &to, &ev.ActorID, &ev.ActorName, &ev.Note, &ev.At); err != nil {
			return nil, err
		}
		ev.Type = Type(typ)
		ev.Action = Action(action)
		ev.FromState = State(from)
		ev.ToState = State(to)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
