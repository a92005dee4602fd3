package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/taehoon/flowkit/internal/flow"
)

// PostgresRepository stores run records in PostgreSQL.
type PostgresRepository struct {
	pool *sql.DB
}

// NewPostgresRepository opens a connection pool, verifies it, and runs
// the schema migration.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error { return r.pool.Close() }

func (r *PostgresRepository) migrate(ctx context.Context) error {
	_, err := r.pool.ExecContext(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    workflow     TEXT NOT NULL,
    status       TEXT NOT NULL,
    final_state  TEXT NOT NULL DEFAULT '',
    context      JSONB NOT NULL DEFAULT '{}',
    error        TEXT NOT NULL DEFAULT '',
    transitions  INTEGER NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS runs_workflow_idx ON runs (workflow, started_at DESC);
`

func (r *PostgresRepository) Create(ctx context.Context, record *Record) error {
	contextJSON, _ := json.Marshal(record.Context)

	_, err := r.pool.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, status, final_state, context, error, transitions, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.Workflow, string(record.Status), record.FinalState,
		contextJSON, record.Error, record.Transitions,
		record.StartedAt, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	rec := &Record{}
	var status string
	var contextJSON []byte

	err := r.pool.QueryRowContext(ctx,
		`SELECT id, workflow, status, final_state, context, error, transitions, started_at, completed_at
		 FROM runs WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Workflow, &status, &rec.FinalState,
		&contextJSON, &rec.Error, &rec.Transitions,
		&rec.StartedAt, &rec.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rec.Status = flow.RunStatus(status)
	json.Unmarshal(contextJSON, &rec.Context)
	return rec, nil
}

func (r *PostgresRepository) List(ctx context.Context, workflow string, limit, offset int) ([]*Record, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	err := r.pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE ($1 = '' OR workflow = $1)`, workflow,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := r.pool.QueryContext(ctx,
		`SELECT id, workflow, status, final_state, context, error, transitions, started_at, completed_at
		 FROM runs WHERE ($1 = '' OR workflow = $1)
		 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		workflow, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var status string
		var contextJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Workflow, &status, &rec.FinalState,
			&contextJSON, &rec.Error, &rec.Transitions,
			&rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		rec.Status = flow.RunStatus(status)
		json.Unmarshal(contextJSON, &rec.Context)
		records = append(records, rec)
	}
	return records, total, rows.Err()
}
