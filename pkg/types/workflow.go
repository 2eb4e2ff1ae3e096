package types

import "time"

// StepKind is one of the six built-in step kinds spec.md §3 defines.
type StepKind string

const (
	StepKindDataCollection  StepKind = "DATA_COLLECTION"
	StepKindDecision        StepKind = "DECISION"
	StepKindValidation      StepKind = "VALIDATION"
	StepKindUserInteraction StepKind = "USER_INTERACTION"
	StepKindAIGenerated     StepKind = "AI_GENERATED"
	StepKindAutomated       StepKind = "AUTOMATED"
)

// StepSpec is one node of a WorkflowDefinition's dependency graph.
type StepSpec struct {
	ID               string                 `json:"id" validate:"required"`
	Name             string                 `json:"name" validate:"required"`
	Description      string                 `json:"description"`
	Kind             StepKind               `json:"kind" validate:"required"`
	Config           map[string]interface{} `json:"config"`
	Dependencies     []string               `json:"dependencies"`
	AIPrompt         string                 `json:"ai_prompt,omitempty"`
	ValidationRules  []ValidationRule       `json:"validation_rules,omitempty"`
}

// ValidationRule is a post-step check evaluated by the engine after an
// executor returns Done, before the result is committed (spec.md §3).
type ValidationRule struct {
	Name      string                 `json:"name"`
	Predicate string                 `json:"predicate"`
	Engine    string                 `json:"engine"` // "gojq" or "opa"
	Params    map[string]interface{} `json:"params,omitempty"`
	HaltOnFail bool                  `json:"halt_on_fail"`
}

// WorkflowDefinition is an immutable, versioned DAG of steps (spec.md §3).
type WorkflowDefinition struct {
	ID             string     `json:"id"`
	Version        int        `json:"version"`
	Name           string     `json:"name" validate:"required"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	Steps          []StepSpec `json:"steps" validate:"required,min=1,dive"`
	EntryPoints    []string   `json:"entry_points" validate:"required,min=1"`
	ExitPoints     []string   `json:"exit_points" validate:"required,min=1"`
	AIConfigurable bool       `json:"ai_configurable"`
	PublishedAt    time.Time  `json:"published_at"`
}

// StepByID returns the StepSpec with the given id, or false if absent.
func (d *WorkflowDefinition) StepByID(id string) (StepSpec, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepSpec{}, false
}

// WorkflowSummary is the lightweight listing shape returned by ListWorkflows.
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}

// Page is a generic pagination envelope used by ListWorkflows/ListExecutions.
type Page struct {
	Token string `json:"page_token,omitempty"`
	Size  int    `json:"page_size,omitempty"`
}

// PageResult wraps a page of items plus the cursor to fetch the next page.
type PageResult[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
}
