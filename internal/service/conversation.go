// Package service keeps the conversation views of the console, one registry
// per conversation kind.
package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/reducer"
	"github.com/aegis-ops/console/pkg/logger"
	"github.com/aegis-ops/console/pkg/metrics"
)

// ErrNotFound is returned for unknown views and views owned by another tenant.
var ErrNotFound = errors.New("view not found")

// ViewInfo describes a view without its state.
type ViewInfo struct {
	ID        string     `json:"id"`
	Kind      model.Kind `json:"kind"`
	SessionID string     `json:"session_id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// ListViewsResponse is one page of views.
type ListViewsResponse struct {
	Views   []ViewInfo `json:"views"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

type entry[R any] struct {
	view      *conversation.View[R]
	tenantID  string
	userID    string
	createdAt time.Time
}

func (e *entry[R]) info() ViewInfo {
	return ViewInfo{
		ID:        e.view.ID(),
		Kind:      e.view.Kind(),
		SessionID: e.view.SessionID(),
		TenantID:  e.tenantID,
		UserID:    e.userID,
		CreatedAt: e.createdAt,
	}
}

// Registry holds the views of one conversation kind in memory.
type Registry[R any] struct {
	adapter  reducer.Adapter[R]
	streamer conversation.Streamer
	journal  conversation.Journal
	logger   *logger.Logger
	base     context.Context

	views map[string]*entry[R]
	mu    sync.RWMutex
}

// NewRegistry creates a registry. Streams of every view are bounded by ctx.
func NewRegistry[R any](
	ctx context.Context,
	adapter reducer.Adapter[R],
	streamer conversation.Streamer,
	journal conversation.Journal,
	log *logger.Logger,
) *Registry[R] {
	return &Registry[R]{
		adapter:  adapter,
		streamer: streamer,
		journal:  journal,
		logger:   log.With(zap.String("kind", string(adapter.Kind()))),
		base:     ctx,
		views:    make(map[string]*entry[R]),
	}
}

// Kind returns the conversation kind of the registry.
func (r *Registry[R]) Kind() model.Kind {
	return r.adapter.Kind()
}

// Create creates a new idle view owned by tenantID.
func (r *Registry[R]) Create(tenantID, userID string) *conversation.View[R] {
	v := conversation.New(r.adapter, r.streamer, conversation.Options{
		Context: r.base,
		Journal: r.journal,
		Logger:  r.logger,
	})

	r.mu.Lock()
	r.views[v.ID()] = &entry[R]{
		view:      v,
		tenantID:  tenantID,
		userID:    userID,
		createdAt: time.Now().UTC(),
	}
	r.mu.Unlock()

	metrics.ViewsTotal.WithLabelValues(string(r.adapter.Kind())).Inc()
	r.logger.Info("view created",
		zap.String("view_id", v.ID()),
		zap.String("tenant_id", tenantID),
	)
	return v
}

// Get returns a view owned by tenantID.
func (r *Registry[R]) Get(tenantID, id string) (*conversation.View[R], error) {
	r.mu.RLock()
	e, ok := r.views[id]
	r.mu.RUnlock()

	if !ok || e.tenantID != tenantID {
		return nil, ErrNotFound
	}
	return e.view, nil
}

// Info describes a view owned by tenantID.
func (r *Registry[R]) Info(tenantID, id string) (ViewInfo, error) {
	r.mu.RLock()
	e, ok := r.views[id]
	r.mu.RUnlock()

	if !ok || e.tenantID != tenantID {
		return ViewInfo{}, ErrNotFound
	}
	return e.info(), nil
}

// List returns a page of the tenant's views, newest first.
func (r *Registry[R]) List(tenantID string, limit, offset int) *ListViewsResponse {
	r.mu.RLock()
	var views []ViewInfo
	for _, e := range r.views {
		if e.tenantID == tenantID {
			views = append(views, e.info())
		}
	}
	r.mu.RUnlock()

	// View ids are UUIDv7, so the id order is the creation order.
	sort.Slice(views, func(i, j int) bool { return views[i].ID > views[j].ID })

	total := len(views)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &ListViewsResponse{
		Views:   append([]ViewInfo{}, views[start:end]...),
		Total:   total,
		HasMore: end < total,
	}
}

// Delete closes a view and removes it.
func (r *Registry[R]) Delete(tenantID, id string) error {
	r.mu.Lock()
	e, ok := r.views[id]
	if !ok || e.tenantID != tenantID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.views, id)
	r.mu.Unlock()

	e.view.Close()
	r.logger.Info("view deleted", zap.String("view_id", id))
	return nil
}

// Len returns the number of views.
func (r *Registry[R]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Close closes every view.
func (r *Registry[R]) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*entry[R])
	r.mu.Unlock()

	for _, e := range views {
		e.view.Close()
	}
}
