package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = goerr.New("run not found")

type Store interface {
	Initialize() error
	Close() error

	// Run operations
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.Run, error)
}

// Open returns an initialized store for the given driver: "memory",
// "sqlite" (url is a file path) or "postgres" (url is a connection string).
func Open(driver, url string) (Store, error) {
	var (
		store Store
		err   error
	)

	switch driver {
	case "", "memory":
		store = NewMemoryStore()
	case "sqlite", "sqlite3":
		if url == "" {
			url = "sitemapper.db"
		}
		store, err = NewSQLiteStore(url)
	case "postgres", "postgresql":
		store, err = NewPostgresStore(url)
	default:
		return nil, goerr.New("unsupported database driver", goerr.V("driver", driver))
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func encodeSteps(steps []models.StepResult) (string, error) {
	if steps == nil {
		steps = []models.StepResult{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode run steps")
	}
	return string(raw), nil
}

func decodeSteps(raw []byte) ([]models.StepResult, error) {
	var steps []models.StepResult
	if len(raw) == 0 {
		return steps, nil
	}
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, goerr.Wrap(err, "failed to decode run steps")
	}
	return steps, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
