package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-ops/console/internal/agentsim"
	"github.com/aegis-ops/console/internal/agentstream"
	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/middleware"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/service"
	"github.com/aegis-ops/console/pkg/logger"
)

type testEnv struct {
	server  *httptest.Server
	console *service.Console
}

func newTestEnv(t *testing.T, sim agentsim.Options) *testEnv {
	t.Helper()
	agents := httptest.NewServer(agentsim.New(sim).Routes())
	t.Cleanup(agents.Close)

	streamer := conversation.FromClient(agentstream.NewClient(agentstream.Config{BaseURL: agents.URL}, logger.NewNop()))
	console := service.NewConsole(context.Background(), service.Streamers{
		ChatOps: streamer,
		RCA:     streamer,
		Predict: streamer,
	}, nil, logger.NewNop())
	t.Cleanup(console.Close)

	log := logger.NewNop()
	r := chi.NewRouter()
	r.Use(middleware.Logging(log))
	health := NewHealthHandler(nil, console)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Anonymous("acme", "oncall"))
		r.Route("/chatops", NewViewHandler(console.ChatOps, 20*time.Millisecond, log).Routes)
		r.Route("/rca", NewViewHandler(console.RCA, 20*time.Millisecond, log).Routes)
		r.Route("/predict", NewViewHandler(console.Predict, 20*time.Millisecond, log).Routes)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, console: console}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) createView(t *testing.T, kind string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/"+kind+"/views", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		View service.ViewInfo `json:"view"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.View.ID)
	assert.Equal(t, "acme", out.View.TenantID)
	return out.View.ID
}

type sseEvent struct {
	name string
	data json.RawMessage
}

func readSSE(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	return events
}

type snapshotBody struct {
	Generation uint64 `json:"generation"`
	Active     bool   `json:"active"`
	SessionID  string `json:"session_id"`
	State      struct {
		Phase     string          `json:"phase"`
		Reasoning string          `json:"reasoning"`
		Result    json.RawMessage `json:"result"`
		Trace     model.Trace     `json:"trace"`
		Failure   *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"failure"`
	} `json:"state"`
	Steps []struct {
		ID     string            `json:"id"`
		Label  string            `json:"label"`
		Events []json.RawMessage `json:"events"`
	} `json:"steps"`
}

func TestStreamEndpointEmitsSnapshotsUntilDone(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{})
	id := env.createView(t, "predict")

	resp := env.do(t, http.MethodPost, "/api/v1/predict/views/"+id+"/stream", map[string]any{
		"service_name": "payments-api",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderCorrelationID))

	events := readSSE(t, resp.Body)
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, model.MessageConnected, events[0].name)
	last := events[len(events)-1]
	require.Equal(t, model.MessageDone, last.name)

	var done model.DoneMessage
	require.NoError(t, json.Unmarshal(last.data, &done))
	assert.Equal(t, "finalized", done.Phase)
	assert.False(t, done.Superseded)

	var final snapshotBody
	require.NoError(t, json.Unmarshal(events[len(events)-2].data, &final))
	assert.Equal(t, "finalized", final.State.Phase)
	assert.False(t, final.Active)
	assert.NotEmpty(t, final.State.Reasoning)
	require.Len(t, final.State.Trace.Steps, 1)
	assert.Equal(t, "predict_collect_features", final.State.Trace.Steps[0].Tool)
	assert.NotEmpty(t, final.Steps)

	var result model.PredictResult
	require.NoError(t, json.Unmarshal(final.State.Result, &result))
	assert.Equal(t, "payments-api", result.ServiceName)
	assert.Contains(t, []string{model.RiskLow, model.RiskMedium, model.RiskHigh}, result.RiskLevel)

	resp = env.do(t, http.MethodGet, "/api/v1/predict/views/"+id, nil)
	var snap snapshotBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "finalized", snap.State.Phase)
}

func TestStreamRejectsInvalidRequest(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{})
	id := env.createView(t, "rca")

	resp := env.do(t, http.MethodPost, "/api/v1/rca/views/"+id+"/stream", map[string]any{"description": "no window"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/rca/views/"+id+"/stream", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{StepDelay: 2 * time.Second})
	id := env.createView(t, "chatops")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	data, _ := json.Marshal(map[string]any{"question": "show timeout errors"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.server.URL+"/api/v1/chatops/views/"+id+"/stream", bytes.NewReader(data))
	require.NoError(t, err)
	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()

	v, err := env.console.ChatOps.Get("acme", id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(v.Snapshot().State.Trace.Steps) > 0
	}, 2*time.Second, 5*time.Millisecond)

	resp := env.do(t, http.MethodDelete, "/api/v1/chatops/views/"+id+"/stream", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Canceled bool         `json:"canceled"`
		Snapshot snapshotBody `json:"snapshot"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Canceled)
	assert.Equal(t, "aborted", out.Snapshot.State.Phase)
	assert.Nil(t, out.Snapshot.State.Failure)
	assert.NotEmpty(t, out.Snapshot.State.Trace.Steps)

	events := readSSE(t, streamResp.Body)
	require.NotEmpty(t, events)
	var done model.DoneMessage
	require.Equal(t, model.MessageDone, events[len(events)-1].name)
	require.NoError(t, json.Unmarshal(events[len(events)-1].data, &done))
	assert.Equal(t, "aborted", done.Phase)

	resp = env.do(t, http.MethodDelete, "/api/v1/chatops/views/"+id+"/stream", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Canceled)
}

func TestQueryEndpoint(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{})
	id := env.createView(t, "rca")

	resp := env.do(t, http.MethodPost, "/api/v1/rca/views/"+id+"/query", map[string]any{
		"description": "orders-service returns 502",
		"time_range": map[string]string{
			"start": "2024-05-01T10:00:00Z",
			"end":   "2024-05-01T11:00:00Z",
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap snapshotBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "finalized", snap.State.Phase)
	assert.Len(t, snap.State.Trace.Steps, 3)
	assert.Empty(t, snap.State.Reasoning)
}

func TestViewLifecycle(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{})
	id := env.createView(t, "chatops")
	env.createView(t, "chatops")

	resp := env.do(t, http.MethodGet, "/api/v1/chatops/views?limit=1", nil)
	var list service.ListViewsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Views, 1)
	assert.True(t, list.HasMore)

	resp = env.do(t, http.MethodGet, "/api/v1/chatops/views/"+id, nil)
	var before snapshotBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&before))
	assert.Equal(t, "idle", before.State.Phase)

	resp = env.do(t, http.MethodPost, "/api/v1/chatops/views/"+id+"/session", nil)
	var session map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.NotEqual(t, before.SessionID, session["session_id"])

	resp = env.do(t, http.MethodGet, "/api/v1/chatops/views/"+id+"/replay", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/rca/views/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "views are scoped to their kind")

	resp = env.do(t, http.MethodGet, "/api/v1/chatops/views/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/chatops/views/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/v1/chatops/views/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWatchHeartbeatsAndClosesWithView(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{})
	id := env.createView(t, "chatops")

	resp, err := http.Get(env.server.URL + "/api/v1/chatops/views/" + id + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	done := make(chan []sseEvent)
	go func() { done <- readSSE(t, resp.Body) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, env.console.ChatOps.Delete("acme", id))

	var events []sseEvent
	select {
	case events = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not end")
	}

	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.name
	}
	require.NotEmpty(t, names)
	assert.Equal(t, model.MessageConnected, names[0])
	assert.Equal(t, model.MessageSnapshot, names[1])
	assert.Contains(t, names, model.MessageHeartbeat)
	assert.Equal(t, model.MessageError, names[len(names)-1])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, agentsim.Options{})
	env.createView(t, "rca")

	resp := env.do(t, http.MethodGet, "/health", nil)
	var body struct {
		Status  string         `json:"status"`
		Views   map[string]int `json:"views"`
		Journal string         `json:"journal"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Journal)
	assert.Equal(t, 1, body.Views["rca"])

	resp = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
