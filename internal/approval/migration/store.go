package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/platform/db"
)

// passLockKey is the advisory lock id shared by every migration pass.
const passLockKey int64 = 0x46414252_41505052

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Lock takes a session advisory lock on a dedicated connection.
func (s *PGStore) Lock(ctx context.Context) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration: acquire lock conn: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, passLockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("migration: advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrPassInProgress
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, passLockKey)
		conn.Release()
	}, nil
}

func tableName(table Table) (string, error) {
	switch table {
	case TableOrders:
		return "orders", nil
	case TableOrderLines:
		return "order_lines", nil
	default:
		return "", fmt.Errorf("migration: unknown table %q", table)
	}
}

// ListIDs pages ids by keyset.
func (s *PGStore) ListIDs(ctx context.Context, table Table, afterID int64, limit int) ([]int64, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, name), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TransformRow locks the row, applies fn and writes the result in one transaction.
func (s *PGStore) TransformRow(ctx context.Context, table Table, id int64, fn RowTransform) (bool, error) {
	name, err := tableName(table)
	if err != nil {
		return false, err
	}
	changed := false
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT approval_status FROM %s WHERE id = $1 FOR UPDATE`, name), id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := approval.Decode(raw)
		if err != nil {
			return err
		}
		next, didChange, err := fn(current)
		if err != nil {
			return err
		}
		if !didChange {
			return nil
		}
		encoded, err := approval.Encode(next)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET approval_status = $2, updated_at = NOW() WHERE id = $1`, name), id, encoded); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// RecordPass appends the pass outcome.
func (s *PGStore) RecordPass(ctx context.Context, report Report) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO approval_schema_passes
(target_version, phase, orders_migrated, orders_skipped, lines_migrated, lines_skipped, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.Target, string(report.Phase),
		report.Orders.Migrated, report.Orders.Skipped,
		report.Lines.Migrated, report.Lines.Skipped,
		report.StartedAt, report.FinishedAt)
	return err
}

// LatestPass returns the most recent completed pass, if any.
func (s *PGStore) LatestPass(ctx context.Context) (*Report, error) {
	var r Report
	var phase string
	err := s.pool.QueryRow(ctx, `SELECT target_version, phase, orders_migrated, orders_skipped, lines_migrated, lines_skipped, started_at, finished_at
FROM approval_schema_passes ORDER BY finished_at DESC LIMIT 1`).Scan(
		&r.Target, &phase, &r.Orders.Migrated, &r.Orders.Skipped, &r.Lines.Migrated, &r.Lines.Skipped, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Phase = Phase(phase)
	return &r, nil
}
