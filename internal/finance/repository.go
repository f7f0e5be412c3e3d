package finance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fabricflow/internal/platform/db"
)

// Repository reads and records finance documents.
type Repository interface {
	OrderExists(ctx context.Context, orderID int64) (bool, error)
	LettersOfCredit(ctx context.Context, orderID int64) ([]LetterOfCredit, error)
	ProformaInvoices(ctx context.Context, orderID int64) ([]ProformaInvoice, error)
	CreateLetterOfCredit(ctx context.Context, lc LetterOfCredit) (LetterOfCredit, error)
	CreateProformaInvoice(ctx context.Context, pi ProformaInvoice) (ProformaInvoice, error)
	// Totals sums live documents of open orders per currency.
	Totals(ctx context.Context) ([]CurrencyTotal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	return exists, err
}

const lcColumns = `id, order_id, lc_number, amount, currency, issue_date, expiry_date, status, created_by, created_at`

func scanLC(row pgx.Row) (LetterOfCredit, error) {
	var lc LetterOfCredit
	var status string
	err := row.Scan(&lc.ID, &lc.OrderID, &lc.Number, &lc.Amount, &lc.Currency,
		&lc.IssueDate, &lc.ExpiryDate, &status, &lc.CreatedBy, &lc.CreatedAt)
	lc.Status = LCStatus(status)
	return lc, err
}

func (r *repository) LettersOfCredit(ctx context.Context, orderID int64) ([]LetterOfCredit, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lcColumns+` FROM letters_of_credit WHERE order_id = $1 ORDER BY issue_date NULLS LAST, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LetterOfCredit
	for rows.Next() {
		lc, err := scanLC(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (r *repository) CreateLetterOfCredit(ctx context.Context, lc LetterOfCredit) (LetterOfCredit, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO letters_of_credit (order_id, lc_number, amount, currency, issue_date, expiry_date, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+lcColumns,
		lc.OrderID, lc.Number, lc.Amount, lc.Currency, lc.IssueDate, lc.ExpiryDate, string(lc.Status), lc.CreatedBy)
	saved, err := scanLC(row)
	if db.IsUniqueViolation(err) {
		return LetterOfCredit{}, fmt.Errorf("%w: %s", ErrDuplicate, lc.Number)
	}
	return saved, err
}

const piColumns = `id, order_id, pi_number, amount, currency, issue_date, valid_until, status, created_by, created_at`

func scanPI(row pgx.Row) (ProformaInvoice, error) {
	var pi ProformaInvoice
	var status string
	err := row.Scan(&pi.ID, &pi.OrderID, &pi.Number, &pi.Amount, &pi.Currency,
		&pi.IssueDate, &pi.ValidUntil, &status, &pi.CreatedBy, &pi.CreatedAt)
	pi.Status = PIStatus(status)
	return pi, err
}

func (r *repository) ProformaInvoices(ctx context.Context, orderID int64) ([]ProformaInvoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+piColumns+` FROM proforma_invoices WHERE order_id = $1 ORDER BY issue_date NULLS LAST, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProformaInvoice
	for rows.Next() {
		pi, err := scanPI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pi)
	}
	return out, rows.Err()
}

func (r *repository) CreateProformaInvoice(ctx context.Context, pi ProformaInvoice) (ProformaInvoice, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO proforma_invoices (order_id, pi_number, amount, currency, issue_date, valid_until, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+piColumns,
		pi.OrderID, pi.Number, pi.Amount, pi.Currency, pi.IssueDate, pi.ValidUntil, string(pi.Status), pi.CreatedBy)
	saved, err := scanPI(row)
	if db.IsUniqueViolation(err) {
		return ProformaInvoice{}, fmt.Errorf("%w: %s", ErrDuplicate, pi.Number)
	}
	return saved, err
}

func (r *repository) Totals(ctx context.Context) ([]CurrencyTotal, error) {
	rows, err := r.pool.Query(ctx, `
		WITH open_orders AS (
			SELECT id FROM orders WHERE status IN ('upcoming', 'running')
		), lc AS (
			SELECT currency, SUM(amount) AS total FROM letters_of_credit
			WHERE order_id IN (SELECT id FROM open_orders) AND status NOT IN ('cancelled', 'expired', 'utilized')
			GROUP BY currency
		), pi AS (
			SELECT currency, SUM(amount) AS total FROM proforma_invoices
			WHERE order_id IN (SELECT id FROM open_orders) AND status <> 'cancelled'
			GROUP BY currency
		)
		SELECT COALESCE(lc.currency, pi.currency), COALESCE(lc.total, 0), COALESCE(pi.total, 0)
		FROM lc FULL OUTER JOIN pi ON lc.currency = pi.currency
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CurrencyTotal
	for rows.Next() {
		var t CurrencyTotal
		var lcTotal, piTotal decimal.Decimal
		if err := rows.Scan(&t.Currency, &lcTotal, &piTotal); err != nil {
			return nil, err
		}
		out = append(out, newTotal(t.Currency, lcTotal, piTotal))
	}
	return out, rows.Err()
}
