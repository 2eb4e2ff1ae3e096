// Package boundary is C7: the transport-facing RPC surface spec.md §4.7
// exposes over HTTP, built on go-chi/chi/v5 with go-chi/cors for the
// cross-origin policy (spec.md §6).
package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/audit"
	"github.com/ledgerflow/workflowengine/pkg/engine"
	"github.com/ledgerflow/workflowengine/pkg/notify"
	"github.com/ledgerflow/workflowengine/pkg/registry"
	"github.com/ledgerflow/workflowengine/pkg/scheduler"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

// Server wires C4's Registry, C5's Engine, and C6's Scheduler behind the RPC
// verbs spec.md §4.7 names.
type Server struct {
	router   chi.Router
	registry *registry.Registry
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	log      *logrus.Logger
	notifier notify.Notifier
	audit    audit.Sink
}

// CORSOrigins defaults to "*" when no origin allowlist is configured.
// Notifier/Audit default to no-ops: both are best-effort observers of the
// drive loop, not part of the RPC contract.
type Config struct {
	CORSOrigins []string
	Notifier    notify.Notifier
	Audit       audit.Sink
}

func New(reg *registry.Registry, eng *engine.Engine, sched *scheduler.Scheduler, log *logrus.Logger, cfg Config) *Server {
	if log == nil {
		log = logrus.New()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	sink := cfg.Audit
	if sink == nil {
		sink = audit.NewNoopSink()
	}
	s := &Server{registry: reg, engine: eng, sched: sched, log: log, notifier: notifier, audit: sink}
	s.router = s.buildRouter(cfg)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter(cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	origins := cfg.CORSOrigins
	allowCredentials := true
	if len(origins) == 0 {
		origins = []string{"*"}
		allowCredentials = false
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/workflows", s.handleRegisterWorkflow)
		r.Post("/workflows/validate", s.handleValidateWorkflow)
		r.Get("/workflows", s.handleListWorkflows)
		r.Get("/workflows/{id}", s.handleGetWorkflow)

		r.Post("/executions", s.handleStartExecution)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/executions/{id}", s.handleGetExecution)
		r.Get("/executions/{id}/stream", s.handleStreamExecution)
		r.Post("/executions/{id}/input", s.handleProvideStepInput)
		r.Post("/executions/{id}/pause", s.handlePause)
		r.Post("/executions/{id}/resume", s.handleResume)
		r.Post("/executions/{id}/cancel", s.handleCancel)
	})

	return r
}

// Serve starts an http.Server on addr and runs until ctx is cancelled, then
// shuts down gracefully. WriteTimeout is deliberately left at zero: the SSE
// stream route holds its response open for the execution's full lifetime.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("boundary layer listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as an ErrorEnvelope with the HTTP status the
// error's Kind maps to (spec.md §7); non-*apperror.Error values surface as
// Internal/500 since the boundary layer never trusts an unclassified error's
// retryability.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperror.Error)
	if !ok {
		appErr = apperror.Wrap(err, apperror.KindInternal, "unexpected error")
	}
	writeJSON(w, appErr.StatusCode, ErrorEnvelope{
		Code: string(appErr.Kind), Message: appErr.Message, Retryable: appErr.Retryable, Details: appErr.Details,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// driveInBackground runs the scheduler's drive loop for executionID to
// completion (or a pause) off the request goroutine, then reports the
// outcome through the best-effort notify/audit observers (spec.md §6: the
// boundary's RPC response has already returned before the drive loop runs).
// The loop's context is registered with the engine so a Cancel call reaches
// any in-flight executor as a cooperative cancellation signal (spec.md §4.6).
func (s *Server) driveInBackground(executionID string, def types.WorkflowDefinition, actor, action string) {
	go func() {
		driveCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s.engine.RegisterCancel(executionID, cancel)
		defer s.engine.UnregisterCancel(executionID)

		s.audit.Record(audit.Entry{ExecutionID: executionID, Actor: actor, Action: action})

		if err := s.sched.Drive(driveCtx, executionID, def); err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.WithError(err).WithField("execution_id", executionID).Error("execution drive loop exited with an error")
				return
			}
		}

		exec, err := s.engine.GetExecution(context.Background(), executionID)
		if err != nil {
			return
		}
		notifyCtx := context.Background()
		switch exec.Status {
		case types.ExecutionFailed:
			if nerr := s.notifier.ExecutionFailed(notifyCtx, exec); nerr != nil {
				s.log.WithError(nerr).Warn("execution-failed notification failed")
			}
		case types.ExecutionPaused:
			for _, stepID := range exec.CurrentSteps {
				if nerr := s.notifier.ExecutionAwaitingInput(notifyCtx, exec, stepID, "awaiting input"); nerr != nil {
					s.log.WithError(nerr).Warn("awaiting-input notification failed")
				}
			}
		}
	}()
}

func pageFromQuery(r *http.Request) types.Page {
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return types.Page{Token: r.URL.Query().Get("page_token"), Size: size}
}

func ToExecutionStatusDTO(exec types.WorkflowExecution, steps map[string]types.StepStatus) ExecutionStatusDTO {
	current := make([]CurrentStepDTO, 0, len(exec.CurrentSteps))
	for _, id := range exec.CurrentSteps {
		current = append(current, CurrentStepDTO{StepID: id, Status: string(steps[id])})
	}
	dto := ExecutionStatusDTO{
		ExecutionID:     exec.ExecutionID,
		WorkflowID:      exec.WorkflowID,
		WorkflowVersion: exec.WorkflowVersion,
		Status:          string(exec.Status),
		CurrentSteps:    current,
		Version:         exec.ContextVersion,
		StartedAt:       exec.StartedAt,
		UpdatedAt:       exec.UpdatedAt,
		CompletedAt:     exec.CompletedAt,
	}
	if exec.Error != nil {
		dto.Error = &ErrorEnvelope{
			Code: exec.Error.Code, Message: exec.Error.Message, Retryable: exec.Error.Retryable, Details: exec.Error.Details,
		}
	}
	return dto
}
