package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ledgerflow/workflowengine/internal/apperror"
	"github.com/ledgerflow/workflowengine/pkg/types"
)

var _ = Describe("ExecutionStore", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("round-trips CreateExecution/GetExecution through the mapped row", func() {
		sdb, m := newMockDB()
		store := NewExecutionStore(sdb)
		started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		exec := types.WorkflowExecution{
			ExecutionID:     "exec-1",
			WorkflowID:      "wf-1",
			WorkflowVersion: 1,
			PrincipalID:     "principal-1",
			SessionID:       "session-1",
			Status:          types.ExecutionRunning,
			CurrentSteps:    []string{"step-a"},
			StartedAt:       started,
			UpdatedAt:       started,
		}
		steps, _ := json.Marshal(exec.CurrentSteps)

		m.ExpectExec(`INSERT INTO executions`).
			WithArgs(exec.ExecutionID, exec.WorkflowID, exec.WorkflowVersion, exec.PrincipalID, exec.SessionID,
				string(exec.Status), steps, exec.ContextVersion, exec.StartedAt, exec.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		Expect(store.CreateExecution(ctx, exec)).To(Succeed())

		m.ExpectQuery(`SELECT execution_id, workflow_id, workflow_version, principal_id, session_id,\s+status, current_steps`).
			WithArgs("exec-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"execution_id", "workflow_id", "workflow_version", "principal_id", "session_id",
				"status", "current_steps", "context_version", "started_at", "updated_at",
				"completed_at", "error_code", "error_message", "error_retryable", "error_details",
			}).AddRow("exec-1", "wf-1", 1, "principal-1", "session-1", "RUNNING", steps, 0, started, started,
				nil, nil, nil, nil, nil))

		got, err := store.GetExecution(ctx, "exec-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Status).To(Equal(types.ExecutionRunning))
		Expect(got.CurrentSteps).To(Equal([]string{"step-a"}))
		Expect(m.ExpectationsWereMet()).To(Succeed())
	})

	It("maps a missing execution to a not-found error", func() {
		sdb, m := newMockDB()
		store := NewExecutionStore(sdb)

		m.ExpectQuery(`SELECT execution_id, workflow_id, workflow_version, principal_id, session_id,\s+status, current_steps`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetExecution(ctx, "missing")
		Expect(err).To(HaveOccurred())
		var appErr *apperror.Error
		Expect(err).To(BeAssignableToTypeOf(appErr))
	})

	It("upserts a step execution on conflict", func() {
		sdb, m := newMockDB()
		store := NewExecutionStore(sdb)
		started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		step := types.StepExecution{
			ExecutionID: "exec-1",
			StepID:      "step-a",
			Attempt:     1,
			Status:      types.StepCompleted,
			StartedAt:   started,
			DurationMS:  250,
		}

		m.ExpectExec(`INSERT INTO step_executions`).
			WillReturnResult(sqlmock.NewResult(1, 1))

		Expect(store.UpsertStepExecution(ctx, step)).To(Succeed())
	})

	It("lists step executions ordered by step id", func() {
		sdb, m := newMockDB()
		store := NewExecutionStore(sdb)
		started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		m.ExpectQuery(`SELECT execution_id, step_id, attempt, status, started_at, finished_at, duration_ms,\s+input_snapshot, output.*FROM step_executions`).
			WithArgs("exec-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"execution_id", "step_id", "attempt", "status", "started_at", "finished_at", "duration_ms",
				"input_snapshot", "output", "error_code", "error_message", "error_retryable", "error_details",
			}).AddRow("exec-1", "step-a", 1, "COMPLETED", started, nil, int64(250), nil, nil, nil, nil, nil, nil))

		out, err := store.ListStepExecutions(ctx, "exec-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].StepID).To(Equal("step-a"))
		Expect(out[0].Status).To(Equal(types.StepCompleted))
	})
})
