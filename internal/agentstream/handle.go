package agentstream

import (
	"context"
	"sync"

	"github.com/aegis-ops/console/internal/model"
)

// EventFunc receives decoded events in stream order. Calls are serialized.
type EventFunc func(model.Event)

// Handle controls one in-flight stream.
type Handle struct {
	cancel  context.CancelFunc
	onEvent EventFunc

	mu       sync.Mutex
	canceled bool

	done chan struct{}
	err  error
}

func newHandle(cancel context.CancelFunc, onEvent EventFunc) *Handle {
	return &Handle{
		cancel:  cancel,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
}

// Cancel stops the stream. Once Cancel returns no further event is delivered.
// It is safe to call more than once and from any goroutine, but not from
// inside the EventFunc of the same handle.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.canceled = true
	h.mu.Unlock()
	h.cancel()
}

// Done is closed when the stream has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the stream stops and returns its outcome: nil for a
// completed body, ErrCanceled after Cancel or parent cancellation, and a
// *TransportError otherwise.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Err returns the outcome without blocking. It is nil while the stream runs.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// deliver hands ev to the callback unless the handle was canceled. It reports
// whether delivery should continue.
func (h *Handle) deliver(ev model.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		return false
	}
	h.onEvent(ev)
	return true
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	if h.canceled {
		err = ErrCanceled
	}
	h.mu.Unlock()
	h.err = err
	h.cancel()
	close(h.done)
}
