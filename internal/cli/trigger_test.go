package cli

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/models"
)

func TestParseTrigger(t *testing.T) {
	for in, want := range map[string]models.Trigger{
		"schedule":          models.TriggerSchedule,
		"manual":            models.TriggerManual,
		"workflow_dispatch": models.TriggerManual,
		"":                  models.TriggerManual,
	} {
		got, err := parseTrigger(in)
		gt.NoError(t, err)
		gt.Equal(t, got, want)
	}

	_, err := parseTrigger("push")
	gt.Error(t, err)
}
