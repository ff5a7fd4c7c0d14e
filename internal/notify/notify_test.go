package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/romangod6/sitemapper/internal/notify"
	"github.com/slack-go/slack"
)

func failedRun() *models.Run {
	run := models.NewRun(models.TriggerSchedule)
	run.Status = models.RunFailed
	run.Error = "generate: empty sitemap"
	run.Steps = []models.StepResult{
		{Name: "generate", Status: models.StepFailed, Error: "empty sitemap"},
		{Name: "validate", Status: models.StepSkipped},
	}
	return run
}

func TestSlack(t *testing.T) {
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodPost)
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	run := failedRun()
	gt.NoError(t, notify.NewSlack(srv.URL).RunFinished(context.Background(), run))

	gt.String(t, got.Text).Contains("failed")
	gt.String(t, got.Text).Contains("empty sitemap")
	gt.Equal(t, len(got.Attachments), 1)
	gt.Equal(t, got.Attachments[0].Color, "danger")
}

func TestSlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := notify.NewSlack(srv.URL).RunFinished(context.Background(), failedRun())
	gt.Error(t, err)
}

func TestSlackIgnoresUnfinishedRun(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	run := models.NewRun(models.TriggerManual)
	run.Status = models.RunRunning
	gt.False(t, run.Finished())
	gt.NoError(t, notify.NewSlack(srv.URL).RunFinished(context.Background(), run))
	gt.Equal(t, posts, 0)

	gt.True(t, failedRun().Finished())
}

func TestSentry(t *testing.T) {
	var events []*sentry.Event
	reporter, err := notify.NewSentry(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			events = append(events, event)
			return nil
		},
	})
	gt.NoError(t, err)

	succeeded := models.NewRun(models.TriggerManual)
	succeeded.Status = models.RunSucceeded
	gt.NoError(t, reporter.RunFinished(context.Background(), succeeded))
	gt.Equal(t, len(events), 0)

	run := failedRun()
	gt.NoError(t, reporter.RunFinished(context.Background(), run))
	gt.Equal(t, len(events), 1)
	gt.Equal(t, events[0].Tags["run_id"], run.ID.String())
	gt.Equal(t, events[0].Tags["step"], "generate")
}
