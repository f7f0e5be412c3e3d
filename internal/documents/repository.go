package documents

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fabricflow/internal/approval"
)

// Repository persists document metadata.
type Repository interface {
	OrderExists(ctx context.Context, orderID int64) (bool, error)
	Create(ctx context.Context, d Document) (Document, error)
	Get(ctx context.Context, id int64) (*Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, error)
	Delete(ctx context.Context, id int64) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const documentColumns = `id, order_id, file_name, file_type, file_size, file_url, storage_key, category,
	subcategory, description, uploaded_by, uploader_name, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var category string
	var subcategory *string
	err := row.Scan(&d.ID, &d.OrderID, &d.FileName, &d.FileType, &d.FileSize, &d.FileURL, &d.StorageKey, &category,
		&subcategory, &d.Description, &d.UploadedBy, &d.UploaderName, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.Category = Category(category)
	if subcategory != nil {
		sub := approval.SampleSubtype(*subcategory)
		d.Subcategory = &sub
	}
	return d, nil
}

func (r *repository) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists)
	return exists, err
}

func (r *repository) Create(ctx context.Context, d Document) (Document, error) {
	var subcategory *string
	if d.Subcategory != nil {
		s := string(*d.Subcategory)
		subcategory = &s
	}
	row := r.db.QueryRow(ctx, `INSERT INTO documents (order_id, file_name, file_type, file_size, file_url, storage_key,
	category, subcategory, description, uploaded_by, uploader_name)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+documentColumns,
		d.OrderID, d.FileName, d.FileType, d.FileSize, d.FileURL, d.StorageKey,
		string(d.Category), subcategory, d.Description, d.UploadedBy, d.UploaderName)
	return scanDocument(row)
}

func (r *repository) Get(ctx context.Context, id int64) (*Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE order_id=$1`
	args := []interface{}{filter.OrderID}
	if filter.Category != nil {
		query += ` AND category=$2`
		args = append(args, string(*filter.Category))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
