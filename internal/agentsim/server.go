// Package agentsim is a stand-in for the ChatOps, RCA and Predict agents. It
// speaks their wire protocol (NDJSON event streams and synchronous JSON
// responses) with deterministic tool results, so the console can run and be
// tested without the real agents.
package agentsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/llm"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/pkg/logger"
)

const systemPrompt = "You are an operations agent. Think out loud in one or two short sentences before each tool call."

// Options configures a Server.
type Options struct {
	// Narrator produces the reasoning tokens. Defaults to a scripted narrator.
	Narrator llm.Narrator
	// StepDelay is waited while each tool "runs".
	StepDelay time.Duration
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *logger.Logger
}

// Server simulates the agents.
type Server struct {
	narrator  llm.Narrator
	stepDelay time.Duration
	now       func() time.Time
	logger    *logger.Logger
}

// New creates a simulator.
func New(opts Options) *Server {
	if opts.Narrator == nil {
		opts.Narrator = llm.NewScriptedNarrator(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Server{
		narrator:  opts.Narrator,
		stepDelay: opts.StepDelay,
		now:       opts.Now,
		logger:    opts.Logger.Named("agentsim"),
	}
}

// Routes returns the agent endpoints of every kind.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	for _, kind := range model.Kinds {
		r.Post(kind.StreamPath(), s.stream(kind))
		r.Post(kind.SyncPath(), s.sync(kind))
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "narrator": s.narrator.Name()})
	})
	return r
}

func (s *Server) stream(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, sc, ok := s.decode(w, r, kind)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")

		em, err := newEmitter(w, req.Session(), s.now)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)

		log := s.logger.With(
			zap.String("kind", string(kind)),
			zap.String("session_id", req.Session()),
			zap.String("correlation_id", r.Header.Get("X-Correlation-ID")),
		)
		err = s.run(r.Context(), em, sc)
		switch {
		case err == nil:
			log.Debug("stream complete")
		case errors.Is(err, context.Canceled):
			log.Debug("client went away")
		default:
			log.Warn("stream aborted", zap.Error(err))
		}
	}
}

// run emits the full event sequence of sc. Agent-side failures become an
// error record; the end record is always written while the client listens.
func (s *Server) run(ctx context.Context, em *emitter, sc *scenario) error {
	if err := em.plain("start", sc.start); err != nil {
		return err
	}

	err := s.steps(ctx, em, sc)
	if err == nil {
		final := record{"trace": sc.trace()}
		for k, v := range sc.final {
			final[k] = v
		}
		err = em.plain("final", final)
	} else if ctx.Err() == nil {
		err = em.plain("error", record{"message": err.Error()})
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if endErr := em.plain("end", nil); endErr != nil {
		return endErr
	}
	return err
}

func (s *Server) steps(ctx context.Context, em *emitter, sc *scenario) error {
	for _, c := range sc.calls {
		em.nextStep()
		if err := s.narrate(ctx, em, c.thought); err != nil {
			return err
		}
		if err := em.stepped("agent_thought", "planning", record{"thought": c.thought}); err != nil {
			return err
		}
		if err := em.stepped("agent_action", "planning", record{
			"tool":       c.tool,
			"tool_input": c.input,
			"log":        actionLog(c),
		}); err != nil {
			return err
		}
		if err := em.stepped("tool_start", "executing", record{"tool": c.tool, "tool_input": c.input}); err != nil {
			return err
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
		if err := em.stepped("tool_end", "observing", record{"observation": c.observation}); err != nil {
			return err
		}
		if err := em.stepped("agent_observation", "observing", record{"observation": c.observation}); err != nil {
			return err
		}
	}

	if sc.note != "" {
		if err := em.stepped("trace_note", "observing", record{"note": sc.note}); err != nil {
			return err
		}
	}

	em.nextStep()
	return s.narrate(ctx, em, sc.answer)
}

// narrate streams one LLM call of the current step.
func (s *Server) narrate(ctx context.Context, em *emitter, prompt string) error {
	if err := em.stepped("llm_start", "thinking", record{"prompt": prompt, "model": s.narrator.Name()}); err != nil {
		return err
	}
	out, err := s.narrator.Narrate(ctx, &llm.NarrationRequest{
		System:    systemPrompt,
		Prompt:    prompt,
		MaxTokens: 256,
	}, func(token string, _ int) error {
		return em.stepped("llm_token", "thinking", record{"token": token})
	})
	if err != nil {
		return fmt.Errorf("narrator %s: %w", s.narrator.Name(), err)
	}
	return em.stepped("llm_end", "thinking", record{"response": out.Text})
}

func (s *Server) wait(ctx context.Context) error {
	if s.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Server) sync(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, sc, ok := s.decode(w, r, kind)
		if !ok {
			return
		}
		if err := s.wait(r.Context()); err != nil {
			return
		}

		resp := record{"trace": sc.trace()}
		for k, v := range sc.final {
			resp[k] = v
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// decode reads and validates the request body, answering the client itself
// when the body is rejected.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, kind model.Kind) (model.Request, *scenario, bool) {
	req, err := model.NewRequest(kind)
	if err != nil {
		writeDetail(w, http.StatusNotFound, err.Error())
		return nil, nil, false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return nil, nil, false
	}
	if err := req.Validate(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return nil, nil, false
	}
	if req.Session() == "" {
		req.SetSessionID(uuid.NewString())
	}

	sc, err := buildScenario(req, s.now())
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	return req, sc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body in the agents' {"detail": ...} shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
