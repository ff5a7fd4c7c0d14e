package utils_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/utils"
)

func TestRunLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	parent := slog.New(slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}))

	id := uuid.New()
	rl, err := utils.NewRunLogger(dir, id, parent)
	gt.NoError(t, err)

	rl.Logger().Info("step finished", slog.String("step", "generate"))
	rl.Logger().Debug("file only")
	gt.NoError(t, rl.Close())

	gt.True(t, strings.HasPrefix(filepath.Base(rl.Path()), "run_"))
	gt.True(t, strings.HasSuffix(rl.Path(), id.String()+".log"))

	raw, err := os.ReadFile(rl.Path())
	gt.NoError(t, err)
	gt.String(t, string(raw)).Contains(`"step":"generate"`)
	gt.String(t, string(raw)).Contains(`"run_id":"` + id.String() + `"`)
	gt.String(t, string(raw)).Contains("file only")

	gt.String(t, console.String()).Contains("step finished")
	gt.False(t, strings.Contains(console.String(), "file only"))
}

func TestRunLogger_RedactsSecrets(t *testing.T) {
	type credentials struct {
		User  string
		Token string `masq:"secret"`
	}

	rl, err := utils.NewRunLogger(t.TempDir(), uuid.New(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	gt.NoError(t, err)
	rl.Logger().Info("publishing", slog.Any("auth", credentials{User: "bot", Token: "ghp_supersecret"}))
	gt.NoError(t, rl.Close())

	raw, err := os.ReadFile(rl.Path())
	gt.NoError(t, err)
	gt.String(t, string(raw)).Contains(`"User":"bot"`)
	gt.False(t, strings.Contains(string(raw), "ghp_supersecret"))
}
