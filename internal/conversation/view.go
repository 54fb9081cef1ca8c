// Package conversation drives one conversation with an agent: it owns the
// session token, the active stream, the reduced state and the step timeline,
// and publishes snapshots to subscribers.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/agentstream"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/reducer"
	"github.com/aegis-ops/console/internal/session"
	"github.com/aegis-ops/console/internal/timeline"
	"github.com/aegis-ops/console/pkg/logger"
	"github.com/aegis-ops/console/pkg/metrics"
)

var (
	// ErrKindMismatch is returned when a request is sent to a view of another kind.
	ErrKindMismatch = errors.New("request kind does not match view")
	// ErrSuperseded is returned by Query when a newer request replaced it.
	ErrSuperseded = errors.New("request superseded")
	// ErrNoJournal is returned by Replay when no journal is configured.
	ErrNoJournal = errors.New("event journal not configured")
	// ErrClosed is returned once the view has been closed.
	ErrClosed = errors.New("view closed")
)

// ValidationError wraps a rejected request.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Snapshot is a consistent copy of a view's state. It must not be modified.
type Snapshot[R any] struct {
	ViewID     string           `json:"view_id"`
	Kind       model.Kind       `json:"kind"`
	SessionID  string           `json:"session_id"`
	Generation uint64           `json:"generation"`
	Active     bool             `json:"active"`
	State      reducer.State[R] `json:"state"`
	Steps      []timeline.Step  `json:"steps"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Done reports whether the snapshot's stream has stopped.
func (s Snapshot[R]) Done() bool {
	return !s.Active && s.State.Phase != reducer.PhaseIdle && s.State.Phase != reducer.PhaseStreaming
}

// Options configures a View.
type Options struct {
	// ID defaults to a new UUIDv7.
	ID string
	// Context bounds every stream the view opens. Defaults to context.Background.
	Context context.Context
	Journal Journal
	Logger  *logger.Logger
}

// View is one conversation. Events are applied one at a time under the view
// lock; only events of the current generation's attached stream reach the
// state.
type View[R any] struct {
	id       string
	adapter  reducer.Adapter[R]
	streamer Streamer
	session  *session.Session
	journal  Journal
	logger   *logger.Logger
	base     context.Context

	mu        sync.Mutex
	gen       uint64
	stream    Stream
	streamSID string
	fetch     context.CancelFunc
	state     reducer.State[R]
	timeline  *timeline.Timeline
	updated   time.Time
	subs      map[int]chan struct{}
	nextSub   int
	closed    bool
}

// NewViewID returns a time-ordered view id.
func NewViewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New creates an idle view.
func New[R any](adapter reducer.Adapter[R], streamer Streamer, opts Options) *View[R] {
	if opts.ID == "" {
		opts.ID = NewViewID()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &View[R]{
		id:       opts.ID,
		adapter:  adapter,
		streamer: streamer,
		session:  session.New(),
		journal:  opts.Journal,
		logger:   opts.Logger.With(zap.String("kind", string(adapter.Kind())), zap.String("view_id", opts.ID)),
		base:     opts.Context,
		state:    reducer.Initial(adapter),
		timeline: timeline.New(),
		updated:  time.Now().UTC(),
		subs:     make(map[int]chan struct{}),
	}
}

// ID returns the view id.
func (v *View[R]) ID() string { return v.id }

// Kind returns the conversation kind.
func (v *View[R]) Kind() model.Kind { return v.adapter.Kind() }

// SessionID returns the current session token, creating it on first use.
func (v *View[R]) SessionID() string { return v.session.ID() }

// ResetSession starts a new session. A stream already running keeps the
// token it was opened with.
func (v *View[R]) ResetSession() string {
	id := v.session.Reset()
	v.logger.Info("session reset", zap.String("session_id", id))
	v.notify()
	return id
}

// Submit cancels any active stream, resets the state and opens a new stream
// for req. It returns the generation of the new stream.
func (v *View[R]) Submit(ctx context.Context, req model.Request) (uint64, error) {
	sid, err := v.prepare(req)
	if err != nil {
		return 0, err
	}

	gen, prior, err := v.supersede(sid, nil)
	if err != nil {
		return 0, err
	}
	if prior != nil {
		prior.Cancel()
	}

	v.mu.Lock()
	if v.gen != gen || v.closed {
		v.mu.Unlock()
		return gen, ErrSuperseded
	}
	s := v.streamer.Open(v.base, agentstream.Request{
		Kind:          v.adapter.Kind(),
		Body:          req,
		CorrelationID: logger.CorrelationID(ctx),
	}, func(ev model.Event) { v.deliver(gen, ev) })
	v.stream = s
	v.mu.Unlock()

	v.logger.WithContext(ctx).Info("stream submitted",
		zap.Uint64("generation", gen),
		zap.String("session_id", sid),
	)
	go v.await(gen, s)
	v.notify()
	return gen, nil
}

// Cancel stops the active stream and marks the state aborted. It reports
// whether a stream or query was active. The generation is kept; events the
// canceled stream still delivers are dropped because it is no longer attached.
// An in-flight Query is aborted when its fetch returns.
func (v *View[R]) Cancel() bool {
	v.mu.Lock()
	if fetch := v.fetch; fetch != nil {
		v.fetch = nil
		v.mu.Unlock()
		fetch()
		v.logger.Info("query canceled")
		return true
	}
	s := v.stream
	if s == nil {
		v.mu.Unlock()
		return false
	}
	v.stream = nil
	gen := v.gen
	v.state = reducer.Abort(v.state)
	v.touch()
	v.mu.Unlock()

	s.Cancel()

	v.logger.Info("stream canceled", zap.Uint64("generation", gen))
	v.notify()
	return true
}

// Query runs req through the non-streaming endpoint and finalizes the state
// from its response. It supersedes any active stream.
func (v *View[R]) Query(ctx context.Context, req model.Request) (Snapshot[R], error) {
	sid, err := v.prepare(req)
	if err != nil {
		return Snapshot[R]{}, err
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen, prior, err := v.supersede(sid, cancel)
	if err != nil {
		return Snapshot[R]{}, err
	}
	if prior != nil {
		prior.Cancel()
	}
	v.notify()

	body, fetchErr := v.streamer.Fetch(fctx, agentstream.Request{
		Kind:          v.adapter.Kind(),
		Body:          req,
		CorrelationID: logger.CorrelationID(ctx),
	})

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return v.Snapshot(), ErrSuperseded
	}
	v.fetch = nil
	switch {
	case agentstream.IsCanceled(fetchErr):
		v.state = reducer.Abort(v.state)
	case fetchErr != nil:
		v.state = reducer.Fail(v.state, fetchErr.Error())
	default:
		final, err := model.DecodeFinal(body)
		if err != nil {
			fetchErr = fmt.Errorf("decode response: %w", err)
			v.state = reducer.Fail(v.state, fetchErr.Error())
		} else {
			v.state = reducer.Finalize(v.adapter, v.state, final)
		}
	}
	v.touch()
	snap := v.snapshotLocked()
	v.mu.Unlock()

	if fetchErr != nil && !agentstream.IsCanceled(fetchErr) {
		v.logger.WithContext(ctx).Warn("query failed", zap.Error(fetchErr))
	}
	v.notify()
	return snap, nil
}

// Replay rebuilds the state of the current session from the journal. The
// live state is left untouched.
func (v *View[R]) Replay(ctx context.Context) (Snapshot[R], error) {
	if v.journal == nil {
		return Snapshot[R]{}, ErrNoJournal
	}
	sid := v.session.ID()
	events, err := v.journal.Replay(ctx, v.adapter.Kind(), sid)
	if err != nil {
		return Snapshot[R]{}, fmt.Errorf("replay session %s: %w", sid, err)
	}

	tl := timeline.New()
	for _, ev := range events {
		tl.Add(ev)
	}
	return Snapshot[R]{
		ViewID:    v.id,
		Kind:      v.adapter.Kind(),
		SessionID: sid,
		State:     reducer.Replay(v.adapter, events),
		Steps:     tl.Steps(),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Snapshot returns a copy of the current state.
func (v *View[R]) Snapshot() Snapshot[R] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Subscribe returns a channel that receives a signal whenever the view
// changes. Signals coalesce; read Snapshot after each one. The channel is
// closed by the returned func or when the view closes.
func (v *View[R]) Subscribe() (<-chan struct{}, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch := make(chan struct{}, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(ch)
			}
		})
	}
}

// Close cancels the active stream and releases subscribers.
func (v *View[R]) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.gen++
	s := v.stream
	v.stream = nil
	if v.fetch != nil {
		v.fetch()
		v.fetch = nil
	}
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
	v.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
}

func (v *View[R]) prepare(req model.Request) (string, error) {
	if req.Kind() != v.adapter.Kind() {
		return "", fmt.Errorf("%w: %s request for %s view", ErrKindMismatch, req.Kind(), v.adapter.Kind())
	}
	sid := v.session.ID()
	req.SetSessionID(sid)
	if err := req.Validate(); err != nil {
		return "", &ValidationError{Err: err}
	}
	return sid, nil
}

// supersede starts a new generation, detaches the active stream and cancels
// an in-flight query. fetch, when set, cancels the new generation's query.
// The caller cancels the returned stream outside the view lock.
func (v *View[R]) supersede(sid string, fetch context.CancelFunc) (uint64, Stream, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, nil, ErrClosed
	}
	v.gen++
	prior := v.stream
	v.stream = nil
	if v.fetch != nil {
		v.fetch()
	}
	v.fetch = fetch
	v.streamSID = sid
	v.state = reducer.Initial(v.adapter)
	v.timeline.Reset()
	v.touch()
	return v.gen, prior, nil
}

func (v *View[R]) deliver(gen uint64, ev model.Event) {
	v.mu.Lock()
	if gen != v.gen || v.stream == nil {
		v.mu.Unlock()
		metrics.StaleEventsDropped.WithLabelValues(string(v.adapter.Kind())).Inc()
		v.logger.Debug("dropping stale event",
			zap.Uint64("generation", gen),
			zap.String("event", string(ev.Kind())),
		)
		return
	}
	v.state = reducer.Reduce(v.adapter, v.state, ev)
	v.timeline.Add(ev)
	v.touch()
	sid := v.streamSID
	v.mu.Unlock()

	if v.journal != nil {
		if err := v.journal.Append(v.adapter.Kind(), sid, ev); err != nil {
			metrics.JournalPublishErrors.WithLabelValues(string(v.adapter.Kind())).Inc()
			v.logger.Warn("journal append failed", zap.Error(err))
		}
	}
	v.notify()
}

func (v *View[R]) await(gen uint64, s Stream) {
	err := s.Wait()

	v.mu.Lock()
	if v.gen != gen || v.stream != s {
		v.mu.Unlock()
		return
	}
	v.stream = nil
	switch {
	case agentstream.IsCanceled(err):
		v.state = reducer.Abort(v.state)
	case err != nil:
		v.state = reducer.Fail(v.state, err.Error())
	case !v.state.Phase.Terminal():
		// Body ended without a terminal record.
		v.state.Phase = reducer.PhaseFinalized
	}
	v.touch()
	phase := v.state.Phase
	v.mu.Unlock()

	if err != nil && !agentstream.IsCanceled(err) {
		v.logger.Warn("stream failed", zap.Uint64("generation", gen), zap.Error(err))
	} else {
		v.logger.Info("stream finished", zap.Uint64("generation", gen), zap.String("phase", string(phase)))
	}
	v.notify()
}

func (v *View[R]) snapshotLocked() Snapshot[R] {
	return Snapshot[R]{
		ViewID:     v.id,
		Kind:       v.adapter.Kind(),
		SessionID:  v.session.ID(),
		Generation: v.gen,
		Active:     v.stream != nil,
		State:      v.state,
		Steps:      v.timeline.Steps(),
		UpdatedAt:  v.updated,
	}
}

func (v *View[R]) touch() {
	v.updated = time.Now().UTC()
}

func (v *View[R]) notify() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ch := range v.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
