// Package handler provides the HTTP handlers of the console gateway.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/middleware"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/service"
	"github.com/aegis-ops/console/pkg/logger"
)

// ViewHandler serves the views of one conversation kind.
type ViewHandler[R any] struct {
	registry  *service.Registry[R]
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewViewHandler creates a handler. heartbeat is the idle interval between
// SSE heartbeats.
func NewViewHandler[R any](reg *service.Registry[R], heartbeat time.Duration, log *logger.Logger) *ViewHandler[R] {
	return &ViewHandler[R]{
		registry:  reg,
		heartbeat: heartbeat,
		logger:    log.With(zap.String("kind", string(reg.Kind()))),
	}
}

// CreateViewResponse is returned when a view is created.
type CreateViewResponse struct {
	ViewInfo service.ViewInfo `json:"view"`
	Snapshot any              `json:"snapshot"`
}

// CancelResponse reports the outcome of a cancel request.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
	Snapshot any  `json:"snapshot"`
}

// Routes mounts the view endpoints on r.
func (h *ViewHandler[R]) Routes(r chi.Router) {
	r.With(middleware.RequireScope(middleware.ScopeWrite)).Post("/views", h.Create)
	r.With(middleware.RequireScope(middleware.ScopeRead)).Get("/views", h.List)

	r.Route("/views/{id}", func(r chi.Router) {
		r.Use(middleware.ViewID)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeRead))
			r.Get("/", h.Get)
			r.Get("/stream", h.Watch)
			r.Get("/replay", h.Replay)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeWrite))
			r.Delete("/", h.Delete)
			r.Post("/session", h.ResetSession)
			r.Post("/stream", h.Stream)
			r.Delete("/stream", h.Cancel)
			r.Post("/query", h.Query)
		})
	})
}

// Create handles POST /views
func (h *ViewHandler[R]) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v := h.registry.Create(middleware.GetTenantID(ctx), middleware.GetUserID(ctx))
	info, _ := h.registry.Info(middleware.GetTenantID(ctx), v.ID())

	writeJSON(w, http.StatusCreated, &CreateViewResponse{
		ViewInfo: info,
		Snapshot: v.Snapshot(),
	})
}

// List handles GET /views
func (h *ViewHandler[R]) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	writeJSON(w, http.StatusOK, h.registry.List(middleware.GetTenantID(r.Context()), limit, offset))
}

// Get handles GET /views/{id}
func (h *ViewHandler[R]) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

// Delete handles DELETE /views/{id}
func (h *ViewHandler[R]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(middleware.GetTenantID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "view not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetSession handles POST /views/{id}/session
func (h *ViewHandler[R]) ResetSession(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": v.ResetSession()})
}

// Cancel handles DELETE /views/{id}/stream
func (h *ViewHandler[R]) Cancel(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	canceled := v.Cancel()
	writeJSON(w, http.StatusOK, &CancelResponse{Canceled: canceled, Snapshot: v.Snapshot()})
}

// Query handles POST /views/{id}/query, the non-streaming fallback.
func (h *ViewHandler[R]) Query(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	snap, err := v.Query(r.Context(), req)
	if err != nil {
		h.submitError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Replay handles GET /views/{id}/replay
func (h *ViewHandler[R]) Replay(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	snap, err := v.Replay(r.Context())
	switch {
	case errors.Is(err, conversation.ErrNoJournal):
		writeError(w, http.StatusNotImplemented, "event journal is disabled")
	case err != nil:
		h.logger.WithContext(r.Context()).Error("replay failed", zap.String("view_id", v.ID()), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to replay session")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (h *ViewHandler[R]) view(w http.ResponseWriter, r *http.Request) (*conversation.View[R], bool) {
	v, err := h.registry.Get(middleware.GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "view not found")
		return nil, false
	}
	return v, true
}

// decode reads a request body of the handler's kind.
func (h *ViewHandler[R]) decode(w http.ResponseWriter, r *http.Request) (model.Request, bool) {
	req, err := model.NewRequest(h.registry.Kind())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return req, true
}

func (h *ViewHandler[R]) submitError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *conversation.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Err.Error())
	case errors.Is(err, conversation.ErrClosed):
		writeError(w, http.StatusGone, "view was deleted")
	case errors.Is(err, conversation.ErrSuperseded):
		writeError(w, http.StatusConflict, "request superseded by a newer one")
	default:
		h.logger.WithContext(r.Context()).Error("submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit request")
	}
}
