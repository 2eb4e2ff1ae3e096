package boundary

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// handleStreamExecution serves StreamExecution as Server-Sent Events
// (spec.md §6): it polls GetExecution/StepStatuses, emits one event per
// observed version advance or step-status change since the last poll, and
// closes the stream after a terminal STATUS_CHANGED event. A client
// reconnecting with ?after_version=N is sent no event whose version is N or
// lower, so
// a cursor replay is idempotent (spec.md §5).
func (s *Server) handleStreamExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lastVersion := int64(-1)
	if after := r.URL.Query().Get("after_version"); after != "" {
		fmt.Sscanf(after, "%d", &lastVersion)
	}
	cursor := lastVersion
	lastSteps := map[string]types.StepStatus{}
	lastStatus := types.ExecutionStatus("")

	ctx := r.Context()
	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		exec, err := s.engine.GetExecution(ctx, id)
		if err != nil {
			writeSSE(w, flusher, StreamEvent{ExecutionID: id, Kind: EventStatusChanged, Payload: ErrorEnvelope{Code: "NotFound", Message: err.Error()}})
			return
		}
		steps, err := s.engine.StepStatuses(ctx, id)
		if err == nil {
			for stepID, status := range steps {
				if lastSteps[stepID] == status {
					continue
				}
				lastSteps[stepID] = status
				if exec.ContextVersion <= cursor {
					continue
				}
				writeSSE(w, flusher, StreamEvent{
					ExecutionID: id, Version: exec.ContextVersion, Kind: kindForStepStatus(status),
					Payload: CurrentStepDTO{StepID: stepID, Status: string(status)},
				})
			}
		}

		if exec.ContextVersion > lastVersion || exec.Status != lastStatus {
			lastVersion = exec.ContextVersion
			if exec.ContextVersion > cursor {
				writeSSE(w, flusher, StreamEvent{
					ExecutionID: id, Version: exec.ContextVersion, Kind: EventStatusChanged,
					Payload: ToExecutionStatusDTO(exec, steps),
				})
			}
		}
		lastStatus = exec.Status

		if exec.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func kindForStepStatus(status types.StepStatus) string {
	switch status {
	case types.StepRunning:
		return EventStepStarted
	case types.StepCompleted:
		return EventStepCompleted
	case types.StepAwaitingInput:
		return EventStepAwaitingInput
	case types.StepFailed:
		return EventStepFailed
	default:
		return EventStatusChanged
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event StreamEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
	flusher.Flush()
}
