package statuslog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderWritesTitleBetweenRules(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Header("Folder Sync")

	out := buf.String()
	require.True(t, strings.Contains(out, "Folder Sync"))
	require.True(t, strings.Contains(out, strings.Repeat("=", 40)))
}

func TestRuleWithAndWithoutLabel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Rule("stage 1")
	l.Rule("")

	out := buf.String()
	require.True(t, strings.Contains(out, "stage 1"))
	require.True(t, strings.Contains(out, strings.Repeat("-", 40)))
}

func TestSummaryTableAlignsLabels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.SummaryTable([]SummaryRow{
		{Label: "created", Count: 3},
		{Label: "failed", Count: 0},
	})

	out := buf.String()
	require.True(t, strings.Contains(out, "created"))
	require.True(t, strings.Contains(out, "3"))
	require.True(t, strings.Contains(out, "failed"))
}

func TestLoggingLevelsDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true)
	l.Debug("debug line")
	l.Info("info line")
	l.Success("success line")
	l.Warn("warn line")
	l.Error("error line", nil)
}
