package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romangod6/sitemapper/internal/sitemap"
	"github.com/urfave/cli/v3"
)

func cmdInspect(e *env) *cli.Command {
	var against string

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize a sitemap file or URL, optionally diffing it against another",
		ArgsUsage: "[path-or-url]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "against",
				Usage:       "Sitemap path or URL to compare with (for example the published release asset)",
				Destination: &against,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			source := c.Args().First()
			if source == "" {
				source = e.cfg.Output.Path
			}

			set, err := sitemap.Load(ctx, nil, source)
			if err != nil {
				return err
			}
			if err := sitemap.Validate(set); err != nil {
				fmt.Fprintf(os.Stdout, "%s %v\n", color.RedString("invalid:"), err)
			}
			printStats(os.Stdout, source, sitemap.Analyze(set))

			if against == "" {
				return nil
			}
			previous, err := sitemap.Load(ctx, nil, against)
			if err != nil {
				return goerr.Wrap(err, "failed to load comparison sitemap")
			}
			printChanges(os.Stdout, against, sitemap.Diff(previous, set))
			return nil
		},
	}
}

func printStats(w io.Writer, source string, s sitemap.Stats) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", bold("Sitemap:"), source)
	fmt.Fprintf(w, "  URLs: %d\n", s.Total)
	printCounts(w, "Sections", s.BySection)
	printCounts(w, "Change frequency", s.ByChangeFreq)
	printCounts(w, "Priority", s.ByPriority)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "  %s:\n", title)
	for _, k := range keys {
		label := k
		if label == "" {
			label = "(none)"
		}
		fmt.Fprintf(w, "    %-24s %d\n", label, counts[k])
	}
}

func printChanges(w io.Writer, against string, c sitemap.Changes) {
	fmt.Fprintf(w, "Compared with %s: %s, %s\n", against,
		color.GreenString("+%d", len(c.Added)),
		color.RedString("-%d", len(c.Removed)),
	)
	for _, loc := range c.Added {
		fmt.Fprintf(w, "  %s %s\n", color.GreenString("+"), loc)
	}
	for _, loc := range c.Removed {
		fmt.Fprintf(w, "  %s %s\n", color.RedString("-"), loc)
	}
}
