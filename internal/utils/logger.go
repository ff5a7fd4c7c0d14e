package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
)

// RunLogger mirrors a run's log records into its own JSON file.
type RunLogger struct {
	file   *os.File
	path   string
	logger *slog.Logger
}

// NewRunLogger creates <logsDir>/run_<timestamp>_<runID>.log and returns a
// logger writing to both the file and parent.
func NewRunLogger(logsDir string, runID uuid.UUID, parent *slog.Logger) (*RunLogger, error) {
	if logsDir == "" {
		logsDir = "logs"
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create logs directory", goerr.V("dir", logsDir))
	}

	timestamp := time.Now().UTC().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logsDir, fmt.Sprintf("run_%s_%s.log", timestamp, runID))

	file, err := os.Create(logPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create log file", goerr.V("path", logPath))
	}

	if parent == nil {
		parent = slog.Default()
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: masq.New(masq.WithTag("secret")),
	})
	logger := slog.New(NewTeeHandler(parent.Handler(), fileHandler)).
		With(slog.String("run_id", runID.String()))

	return &RunLogger{
		file:   file,
		path:   logPath,
		logger: logger,
	}, nil
}

func (rl *RunLogger) Logger() *slog.Logger { return rl.logger }

func (rl *RunLogger) Path() string { return rl.path }

func (rl *RunLogger) Close() error {
	return rl.file.Close()
}

// TeeHandler sends each record to every handler that accepts its level.
type TeeHandler struct {
	handlers []slog.Handler
}

func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: handlers}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: handlers}
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: handlers}
}
