// Package agentstream opens streaming requests against agent backends and
// delivers decoded events to a caller-supplied callback.
package agentstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/pkg/logger"
	"github.com/aegis-ops/console/pkg/metrics"
)

const (
	contentTypeNDJSON = "application/x-ndjson"

	// HeaderCorrelationID carries the request correlation id to the agent.
	HeaderCorrelationID = "X-Correlation-ID"

	maxErrorBody = 4 * 1024
)

var tracer = otel.Tracer("github.com/aegis-ops/console/internal/agentstream")

// Config configures a Client.
type Config struct {
	// BaseURL is prefixed to every request path.
	BaseURL string
	// HTTPClient defaults to a client without a timeout; streams are bounded
	// by their context.
	HTTPClient *http.Client
	// Headers are added to every request.
	Headers map[string]string
}

// Client talks to one agent backend.
type Client struct {
	baseURL string
	http    *http.Client
	headers map[string]string
	logger  *logger.Logger
}

// NewClient creates a client.
func NewClient(cfg Config, log *logger.Logger) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if log == nil {
		log = logger.Global()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		headers: cfg.Headers,
		logger:  log.Named("agentstream"),
	}
}

// Request describes one agent call.
type Request struct {
	Kind model.Kind
	// Path overrides the kind's default endpoint.
	Path string
	Body any
	// CorrelationID defaults to the one carried by the context, or a new id.
	CorrelationID string
}

// Start opens a stream in the background and returns immediately. Events are
// passed to onEvent in order until the body ends, the stream fails, or the
// handle is canceled.
func (c *Client) Start(ctx context.Context, req Request, onEvent EventFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel, onEvent)
	go h.finish(c.run(ctx, req, h))
	return h
}

func (c *Client) run(ctx context.Context, req Request, h *Handle) (err error) {
	kind := string(req.Kind)
	path := req.Path
	if path == "" {
		path = req.Kind.StreamPath()
	}
	req.CorrelationID = correlationID(ctx, req.CorrelationID)

	ctx, span := tracer.Start(ctx, "agentstream.stream", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("agent.kind", kind),
		attribute.String("agent.path", path),
		attribute.String("correlation_id", req.CorrelationID),
	)
	log := c.logger.With(
		zap.String("kind", kind),
		zap.String("correlation_id", req.CorrelationID),
	)

	started := time.Now()
	metrics.AgentStreamsActive.WithLabelValues(kind).Inc()
	var events, skipped int
	defer func() {
		metrics.AgentStreamsActive.WithLabelValues(kind).Dec()
		err = classify(ctx, err)
		outcome := outcomeOf(err)
		metrics.RecordAgentStream(kind, outcome, time.Since(started).Seconds())
		span.SetAttributes(
			attribute.Int("agent.events", events),
			attribute.Int("agent.skipped", skipped),
			attribute.String("agent.outcome", outcome),
		)
		if outcome == "failed" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("agent stream failed", zap.Error(err), zap.Int("events", events))
		} else {
			log.Debug("agent stream closed",
				zap.String("outcome", outcome),
				zap.Int("events", events),
				zap.Int("skipped", skipped),
				zap.Duration("duration", time.Since(started)),
			)
		}
		span.End()
	}()

	resp, err := c.post(ctx, path, req, contentTypeNDJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	log.Debug("agent stream opened", zap.String("path", path))

	dec := NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				skipped++
				metrics.AgentDecodeErrorsTotal.WithLabelValues(kind).Inc()
				log.Warn("skipping malformed record", zap.Error(de))
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		metrics.AgentEventsTotal.WithLabelValues(kind, eventLabel(ev)).Inc()
		if !h.deliver(ev) {
			return ErrCanceled
		}
		events++
	}
}

// Fetch performs a non-streaming call and returns the response body.
func (c *Client) Fetch(ctx context.Context, req Request) (body json.RawMessage, err error) {
	kind := string(req.Kind)
	path := req.Path
	if path == "" {
		path = req.Kind.SyncPath()
	}
	req.CorrelationID = correlationID(ctx, req.CorrelationID)

	ctx, span := tracer.Start(ctx, "agentstream.fetch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("agent.kind", kind),
		attribute.String("agent.path", path),
		attribute.String("correlation_id", req.CorrelationID),
	)
	started := time.Now()
	defer func() {
		err = classify(ctx, err)
		outcome := outcomeOf(err)
		metrics.AgentFetchDuration.WithLabelValues(kind, outcome).Observe(time.Since(started).Seconds())
		if outcome == "failed" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := c.post(ctx, path, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, path string, req Request, accept string) (*http.Response, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set(HeaderCorrelationID, req.CorrelationID)
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// classify maps a run error onto the package's outcome errors.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ErrCanceled
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Err: err}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "failed"
	}
}

func correlationID(ctx context.Context, id string) string {
	if id != "" {
		return id
	}
	if id = logger.CorrelationID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func eventLabel(ev model.Event) string {
	if _, ok := ev.(*model.UnknownEvent); ok {
		return "unknown"
	}
	return string(ev.Kind())
}
