package notify

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
)

// Sentry captures failed runs as error events. Successful runs are ignored.
type Sentry struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

func NewSentry(options sentry.ClientOptions) (*Sentry, error) {
	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create sentry client")
	}

	return &Sentry{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		flushTimeout: 2 * time.Second,
	}, nil
}

func (s *Sentry) RunFinished(ctx context.Context, run *models.Run) error {
	if run.Status != models.RunFailed {
		return nil
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = "sitemap run failed: " + run.Error
	event.Tags = map[string]string{
		"run_id":  run.ID.String(),
		"trigger": string(run.Trigger),
	}
	if run.CommitSHA != "" {
		event.Tags["commit"] = run.CommitSHA
	}
	for _, step := range run.Steps {
		if step.Status == models.StepFailed {
			event.Tags["step"] = step.Name
		}
	}

	s.hub.CaptureEvent(event)
	s.hub.Flush(s.flushTimeout)
	return nil
}
