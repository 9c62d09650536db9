package audit

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO dispatch_events (id, task_id, type, call_sid, actor, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.TaskID, e.Type, e.CallSID, e.Actor, e.Message, e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByTask(ctx context.Context, taskID string) ([]Event, error) {
	const q = `
SELECT id, task_id, type, call_sid, actor, message, created_at
FROM dispatch_events
WHERE task_id = $1
ORDER BY created_at, id
`
	rows, err := r.db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &e.CallSID, &e.Actor, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
