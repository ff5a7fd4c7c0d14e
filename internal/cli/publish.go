package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/models"
	"github.com/urfave/cli/v3"
)

func cmdPublish(e *env) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Move the tag and republish the release with the existing sitemap",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runPipeline(ctx, e, false, models.TriggerManual)
		},
	}
}

func cmdRun(e *env) *cli.Command {
	var trigger string

	return &cli.Command{
		Name:  "run",
		Usage: "Generate, validate, tag and publish in one go",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "trigger",
				Usage:       "Trigger recorded for the run (schedule, manual, or a CI event name)",
				Value:       "manual",
				Destination: &trigger,
				Sources:     cli.EnvVars("SITEMAPPER_TRIGGER", "GITHUB_EVENT_NAME"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			t, err := parseTrigger(trigger)
			if err != nil {
				return err
			}
			return runPipeline(ctx, e, true, t)
		},
	}
}

// parseTrigger accepts our names and the CI event names for the same
// triggers.
func parseTrigger(s string) (models.Trigger, error) {
	switch s {
	case "schedule":
		return models.TriggerSchedule, nil
	case "", "manual", "workflow_dispatch":
		return models.TriggerManual, nil
	}
	return "", goerr.New("unknown trigger", goerr.V("trigger", s))
}

func runPipeline(ctx context.Context, e *env, withCrawl bool, trigger models.Trigger) error {
	runner, cleanup, err := e.newRunner(ctx, withCrawl)
	if err != nil {
		return err
	}
	defer cleanup.Close()

	run, err := runner.Run(ctx, trigger)
	if run != nil {
		printRun(run)
	}
	return err
}

func printRun(run *models.Run) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, step := range run.Steps {
		var status string
		switch step.Status {
		case models.StepSucceeded:
			status = ok("ok")
		case models.StepFailed:
			status = bad("failed")
		default:
			status = dim("skipped")
		}
		fmt.Fprintf(os.Stdout, "%-9s %s\n", step.Name, status)
	}

	if run.Status == models.RunSucceeded {
		fmt.Fprintf(os.Stdout, "%s %d URLs at %s\n", ok("Published"), run.URLCount, run.ReleaseURL)
		return
	}
	fmt.Fprintf(os.Stdout, "%s %s\n", bad("Run failed:"), run.Error)
}
