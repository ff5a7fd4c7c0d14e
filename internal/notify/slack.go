// Package notify reports finished runs to chat and error tracking.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/slack-go/slack"
)

// Slack posts a summary of each finished run to an incoming webhook.
type Slack struct {
	webhookURL string
	httpClient *http.Client
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
	}
}

func (s *Slack) RunFinished(ctx context.Context, run *models.Run) error {
	if !run.Finished() {
		return nil
	}
	msg := &slack.WebhookMessage{
		Text:        summary(run),
		Attachments: []slack.Attachment{attachment(run)},
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack notification", goerr.V("run_id", run.ID))
	}
	return nil
}

func summary(run *models.Run) string {
	if run.Status == models.RunSucceeded {
		return fmt.Sprintf("Sitemap published: %d URLs (%s run)", run.URLCount, run.Trigger)
	}
	return fmt.Sprintf("Sitemap run failed (%s run): %s", run.Trigger, run.Error)
}

func attachment(run *models.Run) slack.Attachment {
	color := "good"
	if run.Status != models.RunSucceeded {
		color = "danger"
	}

	fields := []slack.AttachmentField{
		{Title: "Run", Value: run.ID.String(), Short: true},
		{Title: "Status", Value: string(run.Status), Short: true},
	}
	if run.CommitSHA != "" {
		fields = append(fields, slack.AttachmentField{Title: "Commit", Value: run.CommitSHA, Short: true})
	}
	if run.ReleaseURL != "" {
		fields = append(fields, slack.AttachmentField{Title: "Release", Value: run.ReleaseURL})
	}
	for _, step := range run.Steps {
		value := string(step.Status)
		if step.Error != "" {
			value += ": " + step.Error
		}
		fields = append(fields, slack.AttachmentField{Title: step.Name, Value: value, Short: true})
	}

	return slack.Attachment{Color: color, Fields: fields}
}
