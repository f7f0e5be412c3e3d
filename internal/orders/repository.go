package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/platform/db"
)

// Repository persists orders, lines and approval events.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, o Order) (int64, error)
	Get(ctx context.Context, id int64) (*Order, error)
	Lock(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	ListOpen(ctx context.Context) ([]Order, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	Update(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateApproval(ctx context.Context, id int64, m *approval.StatusMap) error
	UpdateStage(ctx context.Context, id int64, stage string) error
	Delete(ctx context.Context, id int64) error
	InsertLine(ctx context.Context, l OrderLine) (int64, error)
	UpdateLine(ctx context.Context, l OrderLine) error
	UpdateLineApproval(ctx context.Context, lineID int64, m *approval.StatusMap) error
	DeleteLine(ctx context.Context, orderID, lineID int64) error
	RecordApproval(ctx context.Context, ev approval.Event) error
	ListApprovals(ctx context.Context, orderID int64) ([]approval.Event, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db       dbtx
	pool     *pgxpool.Pool
	recorder *approval.Recorder
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) Repository {
	return &repository{db: pool, pool: pool, recorder: approval.NewRecorder(pool, logger)}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, recorder: r.recorder.WithDB(tx)})
	})
}

const orderColumns = `id, order_number, customer_name, fabric_type, fabric_composition, gsm,
	finish_type, construction, mill_name, mill_price, prova_price, currency, quantity_by_color,
	order_date, expected_delivery_date, etd, eta, status, current_stage, approval_status,
	notes, created_by, created_at, updated_at`

const lineColumns = `id, order_id, style_id, style_number, color_code, color_name, cad_code, cad_name,
	quantity, unit, mill_name, mill_price, prova_price, commission, currency,
	etd, eta, submission_date, approval_date, approval_status, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	var qtyByColor, approvalRaw []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.FabricType, &o.FabricComposition, &o.GSM,
		&o.FinishType, &o.Construction, &o.MillName, &o.MillPrice, &o.ProvaPrice, &o.Currency, &qtyByColor,
		&o.OrderDate, &o.ExpectedDeliveryDate, &o.ETD, &o.ETA, &status, &o.CurrentStage, &approvalRaw,
		&o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = Status(status)
	if len(qtyByColor) > 0 {
		if err := json.Unmarshal(qtyByColor, &o.QuantityByColor); err != nil {
			return o, fmt.Errorf("decode quantity_by_color of order %d: %w", o.ID, err)
		}
	}
	if o.ApprovalStatus, err = approval.Decode(approvalRaw); err != nil {
		return o, fmt.Errorf("decode approval_status of order %d: %w", o.ID, err)
	}
	return o, nil
}

func scanLine(row pgx.Row) (OrderLine, error) {
	var l OrderLine
	var approvalRaw []byte
	err := row.Scan(
		&l.ID, &l.OrderID, &l.StyleID, &l.StyleNumber, &l.ColorCode, &l.ColorName, &l.CADCode, &l.CADName,
		&l.Quantity, &l.Unit, &l.MillName, &l.MillPrice, &l.ProvaPrice, &l.Commission, &l.Currency,
		&l.ETD, &l.ETA, &l.SubmissionDate, &l.ApprovalDate, &approvalRaw, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}
	if l.ApprovalStatus, err = approval.Decode(approvalRaw); err != nil {
		return l, fmt.Errorf("decode approval_status of line %d: %w", l.ID, err)
	}
	return l, nil
}

func (r *repository) Create(ctx context.Context, o Order) (int64, error) {
	qtyByColor, err := encodeQuantities(o.QuantityByColor)
	if err != nil {
		return 0, err
	}
	approvalRaw, err := approval.Encode(o.ApprovalStatus)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO orders (order_number, customer_name, fabric_type, fabric_composition, gsm,
	finish_type, construction, mill_name, mill_price, prova_price, currency, quantity_by_color,
	order_date, expected_delivery_date, etd, eta, status, current_stage, approval_status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
RETURNING id`,
		o.OrderNumber, o.CustomerName, o.FabricType, o.FabricComposition, o.GSM,
		o.FinishType, o.Construction, o.MillName, o.MillPrice, o.ProvaPrice, o.Currency, qtyByColor,
		o.OrderDate, o.ExpectedDeliveryDate, o.ETD, o.ETA, string(o.Status), o.CurrentStage, approvalRaw, o.Notes, o.CreatedBy,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateNumber, o.OrderNumber)
	}
	return id, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, id, false)
}

func (r *repository) Lock(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, id, true)
}

func (r *repository) get(ctx context.Context, id int64, forUpdate bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lines, err := r.linesFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return &o, nil
}

func (r *repository) linesFor(ctx context.Context, orderIDs []int64) (map[int64][]OrderLine, error) {
	out := make(map[int64][]OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*filter.Status))
		argPos++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		conditions = append(conditions, fmt.Sprintf("(order_number ILIKE $%d OR customer_name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+s+"%")
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, filter.Offset)
	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repository) ListOpen(ctx context.Context) ([]Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status IN ($1, $2) ORDER BY etd NULLS LAST, id`,
		string(StatusUpcoming), string(StatusRunning))
}

func (r *repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

func (r *repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := r.linesFor(ctx, lo.Map(orders, func(o Order, _ int) int64 { return o.ID }))
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *repository) Update(ctx context.Context, o Order) error {
	qtyByColor, err := encodeQuantities(o.QuantityByColor)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE orders SET order_number=$2, customer_name=$3, fabric_type=$4, fabric_composition=$5,
	gsm=$6, finish_type=$7, construction=$8, mill_name=$9, mill_price=$10, prova_price=$11, currency=$12,
	quantity_by_color=$13, order_date=$14, expected_delivery_date=$15, etd=$16, eta=$17, notes=$18, updated_at=NOW()
WHERE id=$1`,
		o.ID, o.OrderNumber, o.CustomerName, o.FabricType, o.FabricComposition,
		o.GSM, o.FinishType, o.Construction, o.MillName, o.MillPrice, o.ProvaPrice, o.Currency,
		qtyByColor, o.OrderDate, o.ExpectedDeliveryDate, o.ETD, o.ETA, o.Notes)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateNumber, o.OrderNumber)
	}
	return expectOne(tag, err, ErrNotFound)
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return expectOne(tag, err, ErrNotFound)
}

func (r *repository) UpdateApproval(ctx context.Context, id int64, m *approval.StatusMap) error {
	raw, err := approval.Encode(m)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE orders SET approval_status=$2, updated_at=NOW() WHERE id=$1`, id, raw)
	return expectOne(tag, err, ErrNotFound)
}

func (r *repository) UpdateStage(ctx context.Context, id int64, stage string) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET current_stage=$2, updated_at=NOW() WHERE id=$1`, id, stage)
	return expectOne(tag, err, ErrNotFound)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	return expectOne(tag, err, ErrNotFound)
}

func (r *repository) InsertLine(ctx context.Context, l OrderLine) (int64, error) {
	approvalRaw, err := approval.Encode(l.ApprovalStatus)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO order_lines (order_id, style_id, style_number, color_code, color_name, cad_code, cad_name,
	quantity, unit, mill_name, mill_price, prova_price, commission, currency,
	etd, eta, submission_date, approval_date, approval_status, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
RETURNING id`,
		l.OrderID, l.StyleID, l.StyleNumber, l.ColorCode, l.ColorName, l.CADCode, l.CADName,
		l.Quantity, l.Unit, l.MillName, l.MillPrice, l.ProvaPrice, l.Commission, l.Currency,
		l.ETD, l.ETA, l.SubmissionDate, l.ApprovalDate, approvalRaw, l.Notes,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateLine(ctx context.Context, l OrderLine) error {
	tag, err := r.db.Exec(ctx, `UPDATE order_lines SET style_id=$3, style_number=$4, color_code=$5, color_name=$6,
	cad_code=$7, cad_name=$8, quantity=$9, unit=$10, mill_name=$11, mill_price=$12, prova_price=$13, commission=$14,
	currency=$15, etd=$16, eta=$17, submission_date=$18, approval_date=$19, notes=$20, updated_at=NOW()
WHERE id=$1 AND order_id=$2`,
		l.ID, l.OrderID, l.StyleID, l.StyleNumber, l.ColorCode, l.ColorName,
		l.CADCode, l.CADName, l.Quantity, l.Unit, l.MillName, l.MillPrice, l.ProvaPrice, l.Commission,
		l.Currency, l.ETD, l.ETA, l.SubmissionDate, l.ApprovalDate, l.Notes)
	return expectOne(tag, err, ErrLineNotFound)
}

func (r *repository) UpdateLineApproval(ctx context.Context, lineID int64, m *approval.StatusMap) error {
	raw, err := approval.Encode(m)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE order_lines SET approval_status=$2, updated_at=NOW() WHERE id=$1`, lineID, raw)
	return expectOne(tag, err, ErrLineNotFound)
}

func (r *repository) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM order_lines WHERE id=$1 AND order_id=$2`, lineID, orderID)
	return expectOne(tag, err, ErrLineNotFound)
}

func (r *repository) RecordApproval(ctx context.Context, ev approval.Event) error {
	return r.recorder.Record(ctx, ev)
}

func (r *repository) ListApprovals(ctx context.Context, orderID int64) ([]approval.Event, error) {
	return r.recorder.List(ctx, orderID)
}

func expectOne(tag pgconn.CommandTag, err error, notFound error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func encodeQuantities(q map[string]decimal.Decimal) ([]byte, error) {
	if len(q) == 0 {
		return nil, nil
	}
	return json.Marshal(q)
}
