package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/pkg/metrics"
)

// Stream handles POST /views/{id}/stream. It submits the request body to the
// agent and streams snapshots of the view as server-sent events until the
// conversation stops or a newer request supersedes it. Disconnecting does not
// cancel the agent stream; DELETE /views/{id}/stream does.
func (h *ViewHandler[R]) Stream(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe first so no change between submit and the first snapshot is missed.
	changes, unsubscribe := v.Subscribe()
	defer unsubscribe()

	gen, err := v.Submit(r.Context(), req)
	if err != nil {
		h.submitError(w, r, err)
		return
	}

	h.serve(w, r, flusher, v, changes, gen)
}

// Watch handles GET /views/{id}/stream. It streams snapshots of whatever the
// view does, across requests, until the client disconnects.
func (h *ViewHandler[R]) Watch(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	changes, unsubscribe := v.Subscribe()
	defer unsubscribe()

	h.serve(w, r, flusher, v, changes, 0)
}

// serve writes snapshots on every change. A non-zero gen pins the stream to
// one generation and ends it once that generation is done.
func (h *ViewHandler[R]) serve(
	w http.ResponseWriter,
	r *http.Request,
	flusher http.Flusher,
	v *conversation.View[R],
	changes <-chan struct{},
	gen uint64,
) {
	ctx := r.Context()
	log := h.logger.WithContext(ctx).With(zap.String("view_id", v.ID()), zap.Uint64("generation", gen))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	snap := v.Snapshot()
	if err := sendSSEEvent(w, flusher, model.MessageConnected, &model.ConnectedMessage{
		ViewID:     v.ID(),
		Kind:       v.Kind(),
		SessionID:  snap.SessionID,
		Generation: snap.Generation,
	}); err != nil {
		return
	}

	// send reports whether the stream should go on.
	send := func(snap conversation.Snapshot[R]) bool {
		if gen != 0 && snap.Generation != gen {
			sendSSEEvent(w, flusher, model.MessageDone, &model.DoneMessage{
				Phase:      string(snap.State.Phase),
				Generation: gen,
				Superseded: true,
			})
			return false
		}
		if err := sendSSEEvent(w, flusher, model.MessageSnapshot, snap); err != nil {
			log.Debug("SSE write failed", zap.Error(err))
			return false
		}
		if gen != 0 && snap.Done() {
			sendSSEEvent(w, flusher, model.MessageDone, &model.DoneMessage{
				Phase:      string(snap.State.Phase),
				Generation: gen,
			})
			return false
		}
		return true
	}

	if !send(snap) {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case _, open := <-changes:
			if !open {
				sendSSEEvent(w, flusher, model.MessageError, &model.ErrorMessage{
					Code:    "view_closed",
					Message: "view was deleted",
				})
				return
			}
			if !send(v.Snapshot()) {
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, model.MessageHeartbeat, &model.HeartbeatMessage{
				Timestamp: time.Now().UTC(),
			}); err != nil {
				return
			}
		}
	}
}
