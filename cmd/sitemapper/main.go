package main

import (
	"context"
	"os"

	"github.com/romangod6/sitemapper/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}
