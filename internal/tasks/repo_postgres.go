package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"survey-dialer/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This store assumes the scheduled_calls table from migrations/.
// Status transitions are single conditional UPDATEs; RowsAffected tells the
// caller whether it won, so concurrent dispatchers never claim the same row twice.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const taskColumns = `id, phone_number, scheduled_at, status, created_at, claimed_at, processed_at, call_sid, last_error, retry_of`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t                      Task
		claimedAt, processedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID,
		&t.PhoneNumber,
		&t.ScheduledAt,
		&t.Status,
		&t.CreatedAt,
		&claimedAt,
		&processedAt,
		&t.CallSID,
		&t.LastError,
		&t.RetryOf,
	); err != nil {
		return Task{}, err
	}
	t.ScheduledAt = t.ScheduledAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if claimedAt.Valid {
		at := claimedAt.Time.UTC()
		t.ClaimedAt = &at
	}
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		t.ProcessedAt = &at
	}
	return t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t Task) error {
	const q = `
INSERT INTO scheduled_calls (
  id, phone_number, scheduled_at, status, created_at, call_sid, last_error, retry_of
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := s.db.ExecContext(ctx, q,
		t.ID,
		t.PhoneNumber,
		t.ScheduledAt,
		t.Status,
		t.CreatedAt,
		t.CallSID,
		t.LastError,
		t.RetryOf,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM scheduled_calls WHERE id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM scheduled_calls
WHERE ($1::text = '' OR status = $1::text)
ORDER BY scheduled_at DESC, id
LIMIT $2
`
	return s.query(ctx, q, string(f.Status), clampLimit(f.Limit))
}

func (s *PostgresStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM scheduled_calls
WHERE status = 'pending' AND scheduled_at <= $1
ORDER BY scheduled_at, id
LIMIT $2
`
	return s.query(ctx, q, now.UTC(), clampLimit(limit))
}

func (s *PostgresStore) TryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'claimed', claimed_at = $2
WHERE id = $1 AND status = 'pending'
`
	n, err := utils.ExecAffected(ctx, s.db, q, id, now.UTC())
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkProcessed locks the row so the status check and the update see the same
// state, and a missing row is told apart from a lost transition.
func (s *PostgresStore) MarkProcessed(ctx context.Context, id, callSID string, now time.Time) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM scheduled_calls WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != StatusClaimed {
			return fmt.Errorf("%w: task is %s", ErrInvalidTransition, status)
		}
		const q = `
UPDATE scheduled_calls
SET status = 'processed', processed_at = $3, call_sid = $2
WHERE id = $1
`
		_, err = tx.ExecContext(ctx, q, id, callSID, now.UTC())
		return err
	})
}

func (s *PostgresStore) RecordFailure(ctx context.Context, id, msg string, now time.Time) error {
	const q = `UPDATE scheduled_calls SET last_error = $2 WHERE id = $1`
	n, err := utils.ExecAffected(ctx, s.db, q, id, msg)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM scheduled_calls
WHERE scheduled_at >= $1 AND scheduled_at < $2
ORDER BY scheduled_at, id
`
	return s.query(ctx, q, from.UTC(), to.UTC())
}

func (s *PostgresStore) ListStaleClaimed(ctx context.Context, before time.Time, limit int) ([]Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM scheduled_calls
WHERE status = 'claimed' AND claimed_at < $1
ORDER BY claimed_at, id
LIMIT $2
`
	return s.query(ctx, q, before.UTC(), clampLimit(limit))
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
