package agentstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/pkg/logger"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
	first  chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{first: make(chan struct{})}
}

func (r *recorder) onEvent(ev model.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.once.Do(func() { close(r.first) })
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind()
	}
	return out
}

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url + "/"}, logger.NewNop())
}

func TestStreamDeliversEventsInOrder(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		assert.Equal(t, "/api/rca/analyze/stream", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"event":"start"}`)
		fmt.Fprintln(w, `{"event":"llm_token","token":"a"}`)
		fmt.Fprintln(w, `{garbage`)
		fmt.Fprintln(w, `{"event":"final","summary":"s"}`)
		fmt.Fprint(w, `{"event":"end"`)
	}))
	defer srv.Close()

	rec := newRecorder()
	h := newTestClient(srv.URL).Start(context.Background(), Request{
		Kind:          model.KindRCA,
		Body:          map[string]string{"description": "d", "session_id": "s1"},
		CorrelationID: "corr-1",
	}, rec.onEvent)

	require.NoError(t, h.Wait())
	assert.Equal(t, []model.EventKind{model.EventStart, model.EventLLMToken, model.EventFinal}, rec.kinds())
	assert.Equal(t, "s1", gotBody["session_id"])
	assert.Equal(t, "corr-1", gotHeader.Get(HeaderCorrelationID))
	assert.Equal(t, contentTypeNDJSON, gotHeader.Get("Accept"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
}

func TestStreamNonSuccessStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"upstream down"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := newRecorder()
	h := newTestClient(srv.URL).Start(context.Background(), Request{Kind: model.KindChatOps}, rec.onEvent)

	err := h.Wait()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Contains(t, te.Body, "upstream down")
	assert.False(t, IsCanceled(err))
	assert.Zero(t, rec.count())
}

func TestStreamConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := newTestClient(url).Start(context.Background(), Request{Kind: model.KindPredict}, func(model.Event) {})
	err := h.Wait()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
	assert.False(t, IsCanceled(err))
}

// tokenServer writes a start record and then a token every millisecond until
// the client goes away.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"event":"start"}`)
		flusher.Flush()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprintln(w, `{"event":"llm_token","token":"x"}`); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}))
}

func TestCancelStopsDeliveryImmediately(t *testing.T) {
	srv := tokenServer(t)
	defer srv.Close()

	rec := newRecorder()
	h := newTestClient(srv.URL).Start(context.Background(), Request{Kind: model.KindChatOps}, rec.onEvent)

	select {
	case <-rec.first:
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	time.Sleep(10 * time.Millisecond)

	h.Cancel()
	after := rec.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.count(), "event delivered after Cancel returned")

	err := h.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, IsCanceled(err))

	h.Cancel()
	assert.ErrorIs(t, h.Err(), ErrCanceled)
}

func TestParentContextCancelIsCancellation(t *testing.T) {
	srv := tokenServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	h := newTestClient(srv.URL).Start(ctx, Request{Kind: model.KindRCA}, rec.onEvent)

	<-rec.first
	cancel()
	assert.ErrorIs(t, h.Wait(), ErrCanceled)
}

func TestDeadlineIsTransportError(t *testing.T) {
	srv := tokenServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	h := newTestClient(srv.URL).Start(ctx, Request{Kind: model.KindRCA}, func(model.Event) {})

	err := h.Wait()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, IsCanceled(err))
}

func TestErrIsNilWhileRunning(t *testing.T) {
	srv := tokenServer(t)
	defer srv.Close()

	h := newTestClient(srv.URL).Start(context.Background(), Request{Kind: model.KindChatOps}, func(model.Event) {})
	assert.NoError(t, h.Err())
	select {
	case <-h.Done():
		t.Fatal("stream stopped early")
	default:
	}
	h.Cancel()
	<-h.Done()
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/predict/run", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"service_name":"api"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"service_name":"api","risk_score":0.2}`)
	}))
	defer srv.Close()

	body, err := newTestClient(srv.URL).Fetch(context.Background(), Request{
		Kind: model.KindPredict,
		Body: map[string]string{"service_name": "api"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"service_name":"api","risk_score":0.2}`, string(body))
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"detail":"bad"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), Request{Kind: model.KindChatOps})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnprocessableEntity, te.StatusCode)
	assert.Equal(t, `{"detail":"bad"}`, te.Body)
}

func TestCorrelationIDFromContext(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get(HeaderCorrelationID)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	ctx := logger.ContextWithCorrelationID(context.Background(), "from-ctx")
	_, err := newTestClient(srv.URL).Fetch(ctx, Request{Kind: model.KindChatOps})
	require.NoError(t, err)
	assert.Equal(t, "from-ctx", <-got)
}

func TestTransportErrorMessages(t *testing.T) {
	assert.Equal(t, "agent responded 500: oops", (&TransportError{StatusCode: 500, Body: "oops"}).Error())
	assert.Equal(t, "agent responded 503", (&TransportError{StatusCode: 503}).Error())
	assert.Equal(t, "agent transport: refused", (&TransportError{Err: errors.New("refused")}).Error())
}
