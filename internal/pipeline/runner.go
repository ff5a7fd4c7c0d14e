// Package pipeline runs the publish workflow: generate the sitemap, check
// it, move the floating tag and republish the release.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/crawler"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/romangod6/sitemapper/internal/release"
	"github.com/romangod6/sitemapper/internal/sitemap"
	"github.com/romangod6/sitemapper/internal/storage"
	"github.com/romangod6/sitemapper/internal/utils"
)

const (
	StepGenerate = "generate"
	StepValidate = "validate"
	StepTag      = "tag"
	StepRelease  = "release"
	StepMirror   = "mirror"
)

var (
	ErrRunInProgress = goerr.New("a run is already in progress")
	ErrRunFailed     = goerr.New("run failed")
	ErrInterrupted   = goerr.New("crawl was interrupted")
)

type Generator interface {
	Generate(ctx context.Context) (*crawler.Result, error)
}

type Publisher interface {
	MoveTag(ctx context.Context) (string, error)
	Publish(ctx context.Context, assetPath string, data release.BodyData) (*release.Result, error)
}

type Mirror interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Hook is notified once a run reaches a terminal status.
type Hook interface {
	RunFinished(ctx context.Context, run *models.Run) error
}

type Config struct {
	OutputPath string
	LogsDir    string
	BaseURL    string
}

type Runner struct {
	config    Config
	generator Generator
	publisher Publisher
	mirror    Mirror
	store     storage.Store
	hooks     []Hook
	logger    *slog.Logger
	now       func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

type Option func(*Runner)

func WithStore(store storage.Store) Option {
	return func(r *Runner) { r.store = store }
}

func WithMirror(m Mirror) Option {
	return func(r *Runner) { r.mirror = m }
}

func WithHooks(hooks ...Hook) Option {
	return func(r *Runner) { r.hooks = append(r.hooks, hooks...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner builds a runner. A nil generator publishes the existing file at
// OutputPath without crawling.
func NewRunner(config Config, generator Generator, publisher Publisher, opts ...Option) *Runner {
	r := &Runner{
		config:    config,
		generator: generator,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = storage.NewMemoryStore()
	}
	return r
}

func (r *Runner) Store() storage.Store { return r.store }

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool { return r.running.Load() }

// Wait blocks until every dispatched run has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Run executes the workflow synchronously. The returned error wraps
// ErrRunFailed when any step failed; the run record is returned either way.
func (r *Runner) Run(ctx context.Context, trigger models.Trigger) (*models.Run, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	run := models.NewRun(trigger)
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	r.execute(ctx, run)
	if run.Status == models.RunFailed {
		return run, goerr.Wrap(ErrRunFailed, run.Error, goerr.V("run_id", run.ID))
	}
	return run, nil
}

// Dispatch starts the workflow in the background and returns the pending
// run. ctx governs the background run, not just the call.
func (r *Runner) Dispatch(ctx context.Context, trigger models.Trigger) (*models.Run, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}

	run := models.NewRun(trigger)
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.running.Store(false)
		return nil, err
	}
	pending := *run

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		r.execute(ctx, run)
	}()

	return &pending, nil
}

type step struct {
	name string
	fn   func(ctx context.Context, state *runState) error
}

// runState carries values between steps of one run.
type runState struct {
	run    *models.Run
	logger *slog.Logger
}

func (r *Runner) steps() []step {
	var steps []step
	if r.generator != nil {
		steps = append(steps, step{StepGenerate, r.generate})
	}
	steps = append(steps,
		step{StepValidate, r.validate},
		step{StepTag, r.tag},
		step{StepRelease, r.release},
	)
	if r.mirror != nil {
		steps = append(steps, step{StepMirror, r.upload})
	}
	return steps
}

func (r *Runner) execute(ctx context.Context, run *models.Run) {
	logger := r.logger.With(slog.String("run_id", run.ID.String()))
	runLog, err := utils.NewRunLogger(r.config.LogsDir, run.ID, r.logger)
	if err != nil {
		logger.Warn("Per-run log file unavailable", slog.Any("error", err))
	} else {
		defer runLog.Close()
		logger = runLog.Logger()
	}

	run.Status = models.RunRunning
	r.persist(ctx, logger, run)
	logger.Info("Run started", slog.String("trigger", string(run.Trigger)))

	state := &runState{run: run, logger: logger}
	var failed bool
	for _, s := range r.steps() {
		if failed {
			run.Steps = append(run.Steps, models.StepResult{Name: s.name, Status: models.StepSkipped})
			logger.Info("Step skipped", slog.String("step", s.name))
			continue
		}

		started := r.now()
		err := s.fn(ctx, state)
		result := models.StepResult{
			Name:     s.name,
			Status:   models.StepSucceeded,
			Duration: r.now().Sub(started),
		}
		if err != nil {
			failed = true
			result.Status = models.StepFailed
			result.Error = err.Error()
			run.Error = s.name + ": " + err.Error()
			logger.Error("Step failed", slog.String("step", s.name), slog.Any("error", err))
		} else {
			logger.Info("Step succeeded", slog.String("step", s.name), slog.Duration("duration", result.Duration))
		}
		run.Steps = append(run.Steps, result)
		r.persist(ctx, logger, run)
	}

	finished := r.now().UTC()
	run.FinishedAt = &finished
	run.Status = models.RunSucceeded
	if failed {
		run.Status = models.RunFailed
	}
	r.persist(ctx, logger, run)

	logger.Info("Run finished",
		slog.String("status", string(run.Status)),
		slog.Int("urls", run.URLCount),
		slog.String("commit", run.CommitSHA),
		slog.String("release", run.ReleaseURL),
	)

	// Hooks still fire when the run was cancelled.
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range r.hooks {
		if err := hook.RunFinished(hookCtx, run); err != nil {
			logger.Warn("Finish hook failed", slog.Any("error", err))
		}
	}
}

func (r *Runner) persist(ctx context.Context, logger *slog.Logger, run *models.Run) {
	if err := r.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("Failed to persist run", slog.Any("error", err))
	}
}

func (r *Runner) generate(ctx context.Context, state *runState) error {
	result, err := r.generator.Generate(ctx)
	if err != nil {
		return err
	}
	if result.Interrupted {
		return goerr.Wrap(ErrInterrupted, "refusing to publish a partial sitemap",
			goerr.V("urls", len(result.URLSet.URLs)))
	}
	if len(result.URLSet.URLs) == 0 {
		return sitemap.ErrEmptySitemap
	}
	if err := sitemap.Write(r.config.OutputPath, result.URLSet); err != nil {
		return err
	}

	state.logger.Info("Sitemap written",
		slog.String("path", r.config.OutputPath),
		slog.Int("urls", len(result.URLSet.URLs)),
		slog.Int("visited", result.Visited),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
	)
	return nil
}

func (r *Runner) validate(ctx context.Context, state *runState) error {
	count, err := sitemap.ValidateFile(r.config.OutputPath)
	if err != nil {
		return err
	}
	state.run.URLCount = count
	return nil
}

func (r *Runner) tag(ctx context.Context, state *runState) error {
	sha, err := r.publisher.MoveTag(ctx)
	if err != nil {
		return err
	}
	state.run.CommitSHA = sha
	return nil
}

func (r *Runner) release(ctx context.Context, state *runState) error {
	result, err := r.publisher.Publish(ctx, r.config.OutputPath, release.BodyData{
		GeneratedAt: r.now().UTC(),
		BaseURL:     r.config.BaseURL,
		URLCount:    state.run.URLCount,
		CommitSHA:   state.run.CommitSHA,
	})
	if err != nil {
		return err
	}
	state.run.ReleaseURL = result.Release.HTMLURL
	return nil
}

func (r *Runner) upload(ctx context.Context, state *runState) error {
	uri, err := r.mirror.Upload(ctx, r.config.OutputPath)
	if err != nil {
		return err
	}
	state.logger.Info("Sitemap mirrored", slog.String("uri", uri))
	return nil
}
