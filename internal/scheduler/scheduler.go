// Package scheduler dispatches pipeline runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/romangod6/sitemapper/internal/pipeline"
)

// Dispatcher starts a run in the background; *pipeline.Runner implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger models.Trigger) (*models.Run, error)
}

type Scheduler struct {
	cron       *cron.Cron
	dispatcher Dispatcher
	logger     *slog.Logger
	expr       string
	schedule   cron.Schedule
	entry      cron.EntryID
}

// New parses a standard five-field cron expression evaluated in UTC.
func New(expr string, dispatcher Dispatcher, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid schedule", goerr.V("cron", expr))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		dispatcher: dispatcher,
		logger:     logger,
		expr:       expr,
		schedule:   schedule,
	}, nil
}

// Start registers the job and begins ticking. Runs dispatched by the
// scheduler use ctx, so cancelling it also cancels an in-flight run.
func (s *Scheduler) Start(ctx context.Context) {
	s.entry = s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Tick(ctx) }))
	s.cron.Start()

	s.logger.Info("Scheduler started", slog.String("cron", s.expr), slog.Time("next", s.Next()))
}

// Tick dispatches one scheduled run.
func (s *Scheduler) Tick(ctx context.Context) {
	run, err := s.dispatcher.Dispatch(ctx, models.TriggerSchedule)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Warn("Skipping scheduled run; previous run still in progress")
	case err != nil:
		s.logger.Error("Failed to dispatch scheduled run", slog.Any("error", err))
	default:
		s.logger.Info("Scheduled run dispatched", slog.String("run_id", run.ID.String()))
	}
}

// Next returns the next activation time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stop halts the schedule and waits for a running tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
