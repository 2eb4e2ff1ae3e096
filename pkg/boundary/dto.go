package boundary

import (
	"time"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// WorkflowDefinitionDTO is the wire shape of a WorkflowDefinition (spec.md
// §6). It mirrors types.WorkflowDefinition field-for-field; kept distinct so
// the wire contract can evolve independently of the engine's internal type.
type WorkflowDefinitionDTO struct {
	ID             string        `json:"id"`
	Version        int           `json:"version"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	Steps          []StepSpecDTO `json:"steps"`
	EntryPoints    []string      `json:"entry_points"`
	ExitPoints     []string      `json:"exit_points"`
	AIConfigurable bool          `json:"ai_configurable"`
}

type StepSpecDTO struct {
	ID              string                   `json:"id"`
	Name            string                   `json:"name"`
	Description     string                   `json:"description,omitempty"`
	Kind            string                   `json:"kind"`
	Config          map[string]interface{}   `json:"config,omitempty"`
	Dependencies    []string                 `json:"dependencies,omitempty"`
	AIPrompt        string                   `json:"ai_prompt,omitempty"`
	ValidationRules []ValidationRuleDTO      `json:"validation_rules,omitempty"`
}

type ValidationRuleDTO struct {
	Name       string                 `json:"name"`
	Predicate  string                 `json:"predicate"`
	Engine     string                 `json:"engine"`
	Params     map[string]interface{} `json:"params,omitempty"`
	HaltOnFail bool                   `json:"halt_on_fail"`
}

func toStepSpecDTO(s types.StepSpec) StepSpecDTO {
	rules := make([]ValidationRuleDTO, 0, len(s.ValidationRules))
	for _, r := range s.ValidationRules {
		rules = append(rules, ValidationRuleDTO{
			Name: r.Name, Predicate: r.Predicate, Engine: r.Engine, Params: r.Params, HaltOnFail: r.HaltOnFail,
		})
	}
	return StepSpecDTO{
		ID: s.ID, Name: s.Name, Description: s.Description, Kind: string(s.Kind),
		Config: s.Config, Dependencies: s.Dependencies, AIPrompt: s.AIPrompt, ValidationRules: rules,
	}
}

func fromStepSpecDTO(d StepSpecDTO) types.StepSpec {
	rules := make([]types.ValidationRule, 0, len(d.ValidationRules))
	for _, r := range d.ValidationRules {
		rules = append(rules, types.ValidationRule{
			Name: r.Name, Predicate: r.Predicate, Engine: r.Engine, Params: r.Params, HaltOnFail: r.HaltOnFail,
		})
	}
	return types.StepSpec{
		ID: d.ID, Name: d.Name, Description: d.Description, Kind: types.StepKind(d.Kind),
		Config: d.Config, Dependencies: d.Dependencies, AIPrompt: d.AIPrompt, ValidationRules: rules,
	}
}

func ToWorkflowDefinitionDTO(d *types.WorkflowDefinition) WorkflowDefinitionDTO {
	steps := make([]StepSpecDTO, 0, len(d.Steps))
	for _, s := range d.Steps {
		steps = append(steps, toStepSpecDTO(s))
	}
	return WorkflowDefinitionDTO{
		ID: d.ID, Version: d.Version, Name: d.Name, Description: d.Description, Category: d.Category,
		Steps: steps, EntryPoints: d.EntryPoints, ExitPoints: d.ExitPoints, AIConfigurable: d.AIConfigurable,
	}
}

func FromWorkflowDefinitionDTO(d WorkflowDefinitionDTO) types.WorkflowDefinition {
	steps := make([]types.StepSpec, 0, len(d.Steps))
	for _, s := range d.Steps {
		steps = append(steps, fromStepSpecDTO(s))
	}
	return types.WorkflowDefinition{
		ID: d.ID, Version: d.Version, Name: d.Name, Description: d.Description, Category: d.Category,
		Steps: steps, EntryPoints: d.EntryPoints, ExitPoints: d.ExitPoints, AIConfigurable: d.AIConfigurable,
	}
}

// RegisterWorkflowResponse is RegisterWorkflow's response shape.
type RegisterWorkflowResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// WorkflowSummaryDTO is one row of ListWorkflows.
type WorkflowSummaryDTO struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}

type ListWorkflowsResponse struct {
	Items []WorkflowSummaryDTO `json:"items"`
}

// StartExecutionRequest is spec.md §6's StartExecutionRequest shape.
type StartExecutionRequest struct {
	WorkflowID      string                 `json:"workflow_id"`
	Version         int                    `json:"version,omitempty"`
	PrincipalID     string                 `json:"principal_id"`
	SessionID       string                 `json:"session_id"`
	InitialContext  InitialContextDTO      `json:"initial_context"`
}

type InitialContextDTO struct {
	Data map[string]interface{} `json:"data"`
}

type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// CurrentStepDTO is one entry of ExecutionStatus.current_steps.
type CurrentStepDTO struct {
	StepID string `json:"step_id"`
	Status string `json:"status"`
}

// ExecutionStatusDTO is spec.md §6's ExecutionStatus shape.
type ExecutionStatusDTO struct {
	ExecutionID     string           `json:"execution_id"`
	WorkflowID      string           `json:"workflow_id"`
	WorkflowVersion int              `json:"workflow_version"`
	Status          string           `json:"status"`
	CurrentSteps    []CurrentStepDTO `json:"current_steps"`
	Version         int64            `json:"version"`
	StartedAt       time.Time        `json:"started_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Error           *ErrorEnvelope   `json:"error,omitempty"`
}

type ListExecutionsResponse struct {
	Items         []ExecutionStatusDTO `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

// ProvideStepInputRequest is spec.md §6's ProvideStepInputRequest shape.
type ProvideStepInputRequest struct {
	StepID string                 `json:"step_id"`
	Input  InitialContextDTO      `json:"input"`
}

// ErrorEnvelope is spec.md §6/§7's stable error wire shape.
type ErrorEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   string `json:"details,omitempty"`
}

// StreamEvent is spec.md §6's StreamExecution event shape.
type StreamEvent struct {
	ExecutionID string      `json:"execution_id"`
	Version     int64       `json:"version"`
	Kind        string      `json:"kind"`
	Payload     interface{} `json:"payload"`
}

const (
	EventStatusChanged     = "STATUS_CHANGED"
	EventStepStarted       = "STEP_STARTED"
	EventStepCompleted     = "STEP_COMPLETED"
	EventStepAwaitingInput = "STEP_AWAITING_INPUT"
	EventStepFailed        = "STEP_FAILED"
	EventContextCommitted  = "CONTEXT_COMMITTED"
)
