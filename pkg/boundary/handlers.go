package boundary

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerflow/workflowengine/internal/apperror"
)

func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	var dto WorkflowDefinitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, apperror.Wrap(err, apperror.KindIncompatibleConfig, "malformed workflow definition"))
		return
	}
	def := FromWorkflowDefinitionDTO(dto)
	id, version, err := s.registry.Register(r.Context(), def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterWorkflowResponse{ID: id, Version: version})
}

// handleValidateWorkflow runs Registry.Validate without persisting, backing
// the CLI's "register-workflow --dry-run" (SPEC_FULL.md §3).
func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	var dto WorkflowDefinitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, apperror.Wrap(err, apperror.KindIncompatibleConfig, "malformed workflow definition"))
		return
	}
	// Validate's error return only short-circuits Register's own persistence
	// path; a dry-run always wants the report, pass or fail.
	report, _ := s.registry.Validate(FromWorkflowDefinitionDTO(dto))
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	version, _ := strconv.Atoi(r.URL.Query().Get("version"))
	def, err := s.registry.Get(r.Context(), id, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToWorkflowDefinitionDTO(def))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	summaries, err := s.registry.List(r.Context(), category)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]WorkflowSummaryDTO, 0, len(summaries))
	for _, sm := range summaries {
		items = append(items, WorkflowSummaryDTO{ID: sm.ID, Version: sm.Version, Name: sm.Name, Category: sm.Category, PublishedAt: sm.PublishedAt})
	}
	writeJSON(w, http.StatusOK, ListWorkflowsResponse{Items: items})
}

// handleStartExecution validates and persists a new execution, then launches
// the scheduler's Drive loop in the background so the RPC caller gets
// execution_id immediately rather than blocking on the full run (spec.md §6:
// StartExecution returns just {execution_id}).
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Wrap(err, apperror.KindIncompatibleConfig, "malformed start execution request"))
		return
	}

	def, err := s.registry.Get(r.Context(), req.WorkflowID, req.Version)
	if err != nil {
		writeError(w, err)
		return
	}

	delta := deltaFromJSON(req.InitialContext.Data)
	executionID, err := s.engine.StartExecution(r.Context(), *def, delta, req.PrincipalID, req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.driveInBackground(executionID, *def, req.PrincipalID, "start_execution")

	writeJSON(w, http.StatusAccepted, StartExecutionResponse{ExecutionID: executionID})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := s.engine.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	steps, err := s.engine.StepStatuses(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToExecutionStatusDTO(exec, steps))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	principalID := r.URL.Query().Get("principal_id")
	page, err := s.engine.ListExecutions(r.Context(), principalID, pageFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]ExecutionStatusDTO, 0, len(page.Items))
	for _, exec := range page.Items {
		steps, err := s.engine.StepStatuses(r.Context(), exec.ExecutionID)
		if err != nil {
			writeError(w, err)
			return
		}
		items = append(items, ToExecutionStatusDTO(exec, steps))
	}
	writeJSON(w, http.StatusOK, ListExecutionsResponse{Items: items, NextPageToken: page.NextPageToken})
}

// handleProvideStepInput feeds input into an AWAITING_INPUT step, then
// resumes the drive loop the same way handleStartExecution does.
func (s *Server) handleProvideStepInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ProvideStepInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Wrap(err, apperror.KindIncompatibleConfig, "malformed step input request"))
		return
	}

	exec, err := s.engine.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	def, err := s.registry.Get(r.Context(), exec.WorkflowID, exec.WorkflowVersion)
	if err != nil {
		writeError(w, err)
		return
	}

	input := deltaFromJSON(req.Input.Data)

	// Reject invalid input synchronously: a failed dry run leaves the step
	// AWAITING_INPUT and the execution paused, instead of committing the
	// input and failing the execution on re-dispatch.
	if err := s.sched.ValidateInput(r.Context(), id, *def, req.StepID, input); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.ProvideStepInput(r.Context(), id, req.StepID, input); err != nil {
		writeError(w, err)
		return
	}

	// Resume fails with ValidationFailed while other steps still await
	// input; the execution stays paused until the last of them is satisfied.
	if err := s.engine.Resume(r.Context(), id); err != nil {
		if !apperror.Is(err, apperror.KindValidationFailed) {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.driveInBackground(id, *def, exec.PrincipalID, "provide_step_input:"+req.StepID)

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	exec, err := s.engine.GetExecution(r.Context(), id)
	if err == nil {
		def, derr := s.registry.Get(r.Context(), exec.WorkflowID, exec.WorkflowVersion)
		if derr == nil {
			s.driveInBackground(id, *def, exec.PrincipalID, "resume")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamPollInterval governs how often handleStreamExecution re-checks for a
// new version to emit; at 500ms it is twice the scheduler's 250ms idle
// cadence, so the stream never polls tighter than the system that produces
// the events.
const streamPollInterval = 500 * time.Millisecond
