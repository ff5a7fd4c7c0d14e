package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/romangod6/sitemapper/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to ping sqlite database", goerr.V("path", dbPath))
	}

	// sqlite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            trigger TEXT NOT NULL,
            status TEXT NOT NULL,
            commit_sha TEXT,
            url_count INTEGER NOT NULL DEFAULT 0,
            release_url TEXT,
            error TEXT,
            steps TEXT NOT NULL DEFAULT '[]',
            started_at DATETIME NOT NULL,
            finished_at DATETIME
        )`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return goerr.Wrap(err, "failed to initialize sqlite schema", goerr.V("query", query))
		}
	}

	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.Run) error {
	query := `
        INSERT INTO runs (id, trigger, status, commit_sha, url_count, release_url, error, steps, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	steps, err := encodeSteps(run.Steps)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query,
		run.ID.String(),
		string(run.Trigger),
		string(run.Status),
		run.CommitSHA,
		run.URLCount,
		run.ReleaseURL,
		run.Error,
		steps,
		run.StartedAt,
		run.FinishedAt,
	); err != nil {
		return goerr.Wrap(err, "failed to insert run", goerr.V("run_id", run.ID))
	}
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.Run) error {
	query := `
        UPDATE runs SET
            status = ?,
            commit_sha = ?,
            url_count = ?,
            release_url = ?,
            error = ?,
            steps = ?,
            finished_at = ?
        WHERE id = ?
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
		run.ID.String(),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update run", goerr.V("run_id", run.ID))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return goerr.Wrap(ErrNotFound, "cannot update run", goerr.V("run_id", run.ID))
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `
        SELECT id, trigger, status, commit_sha, url_count, release_url, error, steps, started_at, finished_at
        FROM runs WHERE id = ?
    `

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "cannot get run", goerr.V("run_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get run", goerr.V("run_id", id))
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*models.Run, error) {
	limit, offset = normalizePage(limit, offset)
	query := `
        SELECT id, trigger, status, commit_sha, url_count, release_url, error, steps, started_at, finished_at
        FROM runs
        ORDER BY started_at DESC
        LIMIT ? OFFSET ?
    `

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	return scanRuns(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		id         string
		trigger    string
		status     string
		commitSHA  sql.NullString
		releaseURL sql.NullString
		errText    sql.NullString
		steps      []byte
		finishedAt sql.NullTime
	)

	if err := row.Scan(
		&id,
		&trigger,
		&status,
		&commitSHA,
		&run.URLCount,
		&releaseURL,
		&errText,
		&steps,
		&run.StartedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid run id in database", goerr.V("id", id))
	}
	run.ID = parsed
	run.Trigger = models.Trigger(trigger)
	run.Status = models.RunStatus(status)
	run.CommitSHA = commitSHA.String
	run.ReleaseURL = releaseURL.String
	run.Error = errText.String
	run.StartedAt = run.StartedAt.UTC()
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}

	run.Steps, err = decodeSteps(steps)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func scanRuns(rows *sql.Rows) ([]*models.Run, error) {
	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate runs")
	}
	return runs, nil
}
