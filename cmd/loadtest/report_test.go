package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, codes.OK)
	c.record("scenario", 20*time.Millisecond, codes.Internal)
	c.record("CreateOrder", 15*time.Millisecond, codes.OK)

	r := c.buildReport(time.Now(), 2*time.Second)
	assert.Equal(t, int64(2), r.TotalScenarios)
	assert.Equal(t, int64(1), r.SuccessScenarios)
	assert.Equal(t, int64(1), r.FailedScenarios)
	assert.InDelta(t, 0.5, r.ErrorRate, 1e-9)
	assert.InDelta(t, 1.0, r.RPS, 1e-9)

	scenario := r.Methods["scenario"]
	assert.Equal(t, int64(1), scenario.Codes[codes.OK.String()])
	assert.Equal(t, int64(1), scenario.Codes[codes.Internal.String()])
	assert.InDelta(t, 20.0, scenario.LatencyMs.Max, 1e-9)
	assert.Contains(t, r.Methods, "CreateOrder")
}

func TestLatencyHelpers(t *testing.T) {
	assert.Equal(t, latencySummary{}, buildLatencySummary(nil))

	values := []float64{40, 10, 30, 20}
	summary := buildLatencySummary(values)
	assert.Equal(t, 10.0, summary.Min)
	assert.Equal(t, 40.0, summary.Max)
	assert.Equal(t, 25.0, summary.Avg)
	assert.Equal(t, 25.0, summary.P50)
	assert.Equal(t, []float64{40, 10, 30, 20}, values, "input must not be reordered")

	assert.Zero(t, percentile(nil, 95))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))

	assert.Equal(t, 0.25, ratio(1, 4))
	assert.Zero(t, ratio(1, 0))
}

func TestRunTarget(t *testing.T) {
	assert.Equal(t, "count:50", runTarget(config{total: 50}))
	assert.Equal(t, "duration:2s", runTarget(config{duration: 2 * time.Second}))
	assert.Equal(t, "duration:2s,max-total:10", runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}))
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, writeJSONReport(path, report{TotalScenarios: 2, SuccessScenarios: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(2), decoded.TotalScenarios)

	assert.Error(t, writeJSONReport(".", report{}))
	assert.ErrorContains(t, writeJSONReport("../escape.json", report{}), "inside current directory")
}

func TestPrintReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 5*time.Millisecond, codes.OK)
	c.record("GetOrder", 2*time.Millisecond, codes.OK)
	c.record("CreateOrder", 3*time.Millisecond, codes.OK)

	var out bytes.Buffer
	printReport(&out, c.buildReport(time.Now(), time.Second), config{mode: modeCreateGet, total: 1})

	text := out.String()
	assert.Contains(t, text, "Load test summary")
	assert.Contains(t, text, "mode=create-get run=count:1 total=1 success=1 failed=0")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("CreateOrder:")), bytes.Index(out.Bytes(), []byte("GetOrder:")))
	assert.NotContains(t, text, "scenario:")
}
