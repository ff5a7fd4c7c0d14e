package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open postgres database")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to ping postgres database")
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id UUID PRIMARY KEY,
            trigger VARCHAR(32) NOT NULL,
            status VARCHAR(32) NOT NULL,
            commit_sha VARCHAR(64),
            url_count INTEGER NOT NULL DEFAULT 0,
            release_url VARCHAR(2048),
            error TEXT,
            steps JSONB NOT NULL DEFAULT '[]'::jsonb,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ
        )`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return goerr.Wrap(err, "failed to initialize postgres schema", goerr.V("query", query))
		}
	}

	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
        INSERT INTO runs (id, trigger, status, commit_sha, url_count, release_url, error, steps, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
    `

	steps, err := encodeSteps(run.Steps)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Trigger),
		string(run.Status),
		run.CommitSHA,
		run.URLCount,
		run.ReleaseURL,
		run.Error,
		steps,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return goerr.Wrap(err, "run already exists", goerr.V("run_id", run.ID))
		}
		return goerr.Wrap(err, "failed to insert run", goerr.V("run_id", run.ID))
	}
	return nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.Run) error {
	query := `
        UPDATE runs SET
            status = $1,
            commit_sha = $2,
            url_count = $3,
            release_url = $4,
            error = $5,
            steps = $6::jsonb,
            finished_at = $7
        WHERE id = $8
    `

	steps, err := encodeSteps(run.Steps)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query,
		string(run.Status),
		run.CommitSHA,
		run.URLCount,
		run.ReleaseURL,
		run.Error,
		steps,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update run", goerr.V("run_id", run.ID))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return goerr.Wrap(ErrNotFound, "cannot update run", goerr.V("run_id", run.ID))
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `
        SELECT id, trigger, status, commit_sha, url_count, release_url, error, steps, started_at, finished_at
        FROM runs WHERE id = $1
    `

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "cannot get run", goerr.V("run_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get run", goerr.V("run_id", id))
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*models.Run, error) {
	limit, offset = normalizePage(limit, offset)
	query := `
        SELECT id, trigger, status, commit_sha, url_count, release_url, error, steps, started_at, finished_at
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1 OFFSET $2
    `

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	return scanRuns(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
