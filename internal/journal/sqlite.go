package journal

import (
	"context"
	"database/sql"
	"time"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS task_runs (
  id TEXT PRIMARY KEY,
  thread_id TEXT NOT NULL,
  owner TEXT NOT NULL DEFAULT '',
  delay_seconds INTEGER NOT NULL,
  credentials INTEGER NOT NULL,
  healthy INTEGER NOT NULL DEFAULT 0,
  state TEXT NOT NULL CHECK(state IN ('running','stopped')) DEFAULT 'running',
  reason TEXT,
  sent INTEGER NOT NULL DEFAULT 0,
  started_at DATETIME NOT NULL,
  stopped_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_task_runs_started ON task_runs(started_at DESC);
CREATE TABLE IF NOT EXISTS deliveries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  task_id TEXT NOT NULL,
  account TEXT NOT NULL DEFAULT '',
  loop INTEGER NOT NULL,
  message_index INTEGER NOT NULL,
  success INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  at DATETIME NOT NULL,
  FOREIGN KEY(task_id) REFERENCES task_runs(id)
);
CREATE INDEX IF NOT EXISTS idx_deliveries_task ON deliveries(task_id, at);
`
	_, err := db.Exec(schema)
	return err
}

type sqliteRecorder struct{ db *sql.DB }

func NewSQLite(db *sql.DB) Recorder { return &sqliteRecorder{db: db} }

func (r *sqliteRecorder) TaskStarted(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO task_runs (id,thread_id,owner,delay_seconds,credentials,healthy,state,sent,started_at)
VALUES (?,?,?,?,?,?,'running',0,?)
`, run.TaskID, run.ThreadID, run.Owner, run.DelaySeconds, run.Credentials, run.Healthy, run.StartedAt.UTC())
	return err
}

func (r *sqliteRecorder) TaskHealthy(ctx context.Context, taskID string, healthy int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE task_runs SET healthy=? WHERE id=?`, healthy, taskID)
	return err
}

func (r *sqliteRecorder) TaskStopped(ctx context.Context, taskID, reason string, sent int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE task_runs SET state='stopped', reason=?, sent=?, stopped_at=? WHERE id=? AND state='running'`,
		reason, sent, at.UTC(), taskID)
	return err
}

func (r *sqliteRecorder) Delivery(ctx context.Context, d Delivery) error {
	success := 0
	if d.Success {
		success = 1
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO deliveries (task_id,account,loop,message_index,success,error,at) VALUES (?,?,?,?,?,?,?)`,
		d.TaskID, d.Account, d.Loop, d.MessageIndex, success, d.Error, d.At.UTC())
	return err
}

func (r *sqliteRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT r.id,r.thread_id,r.owner,r.delay_seconds,r.credentials,r.healthy,r.state,r.reason,r.started_at,r.stopped_at,
  (SELECT COUNT(*) FROM deliveries d WHERE d.task_id = r.id AND d.success = 1)
FROM task_runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run     Run
			reason  sql.NullString
			stopped sql.NullTime
		)
		if err := rows.Scan(&run.TaskID, &run.ThreadID, &run.Owner, &run.DelaySeconds, &run.Credentials, &run.Healthy,
			&run.State, &reason, &run.StartedAt, &stopped, &run.Sent); err != nil {
			return nil, err
		}
		run.Reason = reason.String
		if stopped.Valid {
			t := stopped.Time
			run.StoppedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
