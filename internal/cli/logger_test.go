package cli_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/cli"
)

func TestLogger_Configure(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "debug", level: "debug", format: "console"},
		{name: "DEBUG (case insensitive)", level: "DEBUG", format: "console"},
		{name: "info json", level: "info", format: "json"},
		{name: "WARN", level: "WARN", format: "json"},
		{name: "error", level: "error", format: "console"},
		{name: "empty defaults to info", level: "", format: ""},
		{name: "invalid level", level: "verbose", format: "console", wantErr: true},
		{name: "invalid format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cli.Logger{Level: tt.level, Format: tt.format}
			logger, err := cfg.Configure(&bytes.Buffer{})
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.NotNil(t, logger)
		})
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	type credentials struct {
		User  string
		Token string `masq:"secret"`
	}

	var buf bytes.Buffer
	cfg := cli.Logger{Level: "info", Format: "json"}
	logger, err := cfg.Configure(&buf)
	gt.NoError(t, err)

	logger.Info("loaded", slog.Any("creds", credentials{User: "bot", Token: "ghp_very_secret"}))
	gt.String(t, buf.String()).Contains("bot")
	gt.False(t, strings.Contains(buf.String(), "ghp_very_secret"))
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := cli.Logger{Level: "warn", Format: "json"}
	logger, err := cfg.Configure(&buf)
	gt.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	gt.False(t, strings.Contains(buf.String(), "hidden"))
	gt.String(t, buf.String()).Contains("shown")
}
