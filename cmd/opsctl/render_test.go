package main

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-ops/console/internal/agentsim"
	"github.com/aegis-ops/console/internal/config"
	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/reducer"
)

func snapshot(gen uint64, reasoning string, trace model.Trace) conversation.Snapshot[model.PredictResult] {
	return conversation.Snapshot[model.PredictResult]{
		Generation: gen,
		Active:     true,
		State: reducer.State[model.PredictResult]{
			Phase:     reducer.PhaseStreaming,
			Reasoning: reasoning,
			Trace:     trace,
		},
	}
}

func TestRendererPrintsOnlyGrowth(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, printPredict)

	r.render(snapshot(1, "Collect", model.Trace{}))
	r.render(snapshot(1, "Collect features.", model.Trace{}))

	tr := model.Trace{}.Append("predict_collect_features", model.TextValue("payments-api"), nil, nil)
	r.render(snapshot(1, "Collect features.", tr))
	r.render(snapshot(1, "Collect features.", tr))

	tr = tr.Observe(model.TextValue("p95 310ms"))
	r.render(snapshot(1, "Collect features.", tr))
	r.render(snapshot(1, "Collect features.", tr))

	assert.Equal(t, "Collect features.\n[1] predict_collect_features payments-api\n    -> p95 310ms\n", buf.String())
}

func TestRendererStartsOverOnNewGeneration(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, printPredict)

	r.render(snapshot(1, "first", model.Trace{}))
	r.render(snapshot(2, "second", model.Trace{}))
	assert.Equal(t, "firstsecond", buf.String())
}

func TestClipFlattensAndTruncates(t *testing.T) {
	assert.Equal(t, "a b c", clip(model.TextValue("a\n  b\tc")))
	long := clip(model.TextValue(string(bytes.Repeat([]byte("x"), 500))))
	assert.Len(t, long, maxValueWidth+3)
	assert.Equal(t, "", clip(nil))
}

func TestTimeRangeFlags(t *testing.T) {
	tr, err := timeRange(0, "", "")
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = timeRange(15, "", "")
	require.NoError(t, err)
	require.NotNil(t, tr.LastMinutes)
	assert.Equal(t, 15, *tr.LastMinutes)

	tr, err = timeRange(0, "2024-05-01T10:00:00Z", "2024-05-01T11:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T11:00:00Z", tr.End.Format("2006-01-02T15:04:05Z07:00"))

	_, err = timeRange(5, "2024-05-01T10:00:00Z", "")
	assert.Error(t, err)
	_, err = timeRange(0, "", "2024-05-01T10:00:00Z")
	assert.Error(t, err)
	_, err = timeRange(0, "yesterday", "")
	assert.Error(t, err)
}

func runCommand(t *testing.T, build func(*rootOptions) *cobra.Command, opts *rootOptions, args ...string) (string, error) {
	t.Helper()
	sim := httptest.NewServer(agentsim.New(agentsim.Options{}).Routes())
	t.Cleanup(sim.Close)

	opts.agentURL = sim.URL
	opts.cfg = config.Default()

	cmd := build(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPredictCommandStreams(t *testing.T) {
	out, err := runCommand(t, predictCmd, &rootOptions{}, "payments-api", "--lookback", "48")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] predict_collect_features")
	assert.Contains(t, out, "--- finalized (1 steps)")
	assert.Contains(t, out, "payments-api: risk")
}

func TestRCACommandQueryJSON(t *testing.T) {
	out, err := runCommand(t, rcaCmd, &rootOptions{query: true, json: true}, "--last", "30", "orders-service returns 502")
	require.NoError(t, err)
	assert.Contains(t, out, `"phase": "finalized"`)
	assert.Contains(t, out, `"suspected_service": "orders-service"`)
}
