package chaos

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Passed(t *testing.T) {
	r := NewReport()
	assert.False(t, r.Passed(), "an empty report has proven nothing")

	r.Add("baseline", time.Second, nil, nil)
	assert.True(t, r.Passed())

	r.Add("dead_letter_on_failure", time.Second, nil, errors.New("queue stuck"))
	assert.False(t, r.Passed())
}

func TestReport_Markdown(t *testing.T) {
	r := NewReport()
	r.Add("baseline", 1200*time.Millisecond, map[string]any{
		"round_trip_ms": int64(1180),
	}, nil)
	r.Add("recovery", 2*time.Second, nil, errors.New("no result within 30s"))
	r.Finish()

	md := r.Markdown()

	assert.Contains(t, md, "# Resilience Report")
	assert.Contains(t, md, "Overall: FAIL")
	assert.Contains(t, md, "| baseline | pass | 1200ms |")
	assert.Contains(t, md, "| recovery | fail | 2000ms |")
	assert.Contains(t, md, "Error: no result within 30s")
	assert.Contains(t, md, "round_trip_ms: 1180")
}

func TestReport_Write(t *testing.T) {
	dir := t.TempDir()

	r := NewReport()
	r.Add("baseline", time.Second, map[string]any{"round_trip_ms": int64(950)}, nil)
	r.Finish()

	jsonPath, err := r.Write(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(jsonPath), "chaos-report-"))

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Phases, 1)
	assert.Equal(t, "baseline", decoded.Phases[0].Name)
	assert.True(t, decoded.Phases[0].Passed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one JSON and one Markdown rendering")
}
