package types

import (
	"fmt"
	"time"
)

// RunStatus tracks the lifecycle of a run and its nested levels.
type RunStatus string

const (
	// RunStatusPending is the initial state before execution starts.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning means execution is in progress.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted means all stages finished.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed means execution aborted.
	RunStatusFailed RunStatus = "failed"
)

// Run is the root of one execution tree. One Run exists per Bet, created
// atomically with its directory skeleton. StageSequence is immutable once
// the run is created.
type Run struct {
	// ID is the unique run identifier (e.g., "run-a1b2c3").
	ID string `json:"id"`

	// CycleID is the owning cycle.
	CycleID string `json:"cycle_id,omitempty"`

	// BetID is the bet this run executes.
	BetID string `json:"bet_id,omitempty"`

	// StageSequence is the ordered list of stage categories to execute.
	StageSequence []string `json:"stage_sequence"`

	// CurrentStage is the category currently executing; empty until started.
	CurrentStage string `json:"current_stage,omitempty"`

	// Status is the run lifecycle state.
	Status RunStatus `json:"status"`

	// CreatedAt is when the run tree was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the last state change.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks structural requirements before a run document is persisted.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "run id is required"}
	}
	if len(r.StageSequence) == 0 {
		return &ValidationError{Field: "stage_sequence", Message: "run requires at least one stage"}
	}
	switch r.Status {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
	default:
		return &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("invalid run status %q", r.Status),
		}
	}
	if r.CurrentStage != "" {
		found := false
		for _, s := range r.StageSequence {
			if s == r.CurrentStage {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{
				Field:   "current_stage",
				Message: fmt.Sprintf("current stage %q is not in the stage sequence", r.CurrentStage),
			}
		}
	}
	return nil
}

// StepState is the per-step execution record nested inside a FlavorState.
type StepState struct {
	// Name is the step reference name.
	Name string `json:"name"`

	// Status is the step lifecycle state.
	Status RunStatus `json:"status"`

	// Artifacts lists artifact names the step produced.
	Artifacts []string `json:"artifacts,omitempty"`
}

// FlavorState is the per-flavor execution state under a stage.
type FlavorState struct {
	// Name is the flavor name.
	Name string `json:"name"`

	// Status is the flavor lifecycle state.
	Status RunStatus `json:"status"`

	// Steps holds per-step state in flavor order.
	Steps []StepState `json:"steps,omitempty"`

	// Gaps lists gap observation ids raised while executing this flavor.
	Gaps []string `json:"gaps,omitempty"`
}

// StageState is the per-category execution state under a run.
type StageState struct {
	// Category is the stage category (research, plan, build, review).
	Category string `json:"category"`

	// Status is the stage lifecycle state.
	Status RunStatus `json:"status"`

	// SelectedFlavors lists the flavors chosen for this stage, in order.
	SelectedFlavors []string `json:"selected_flavors,omitempty"`

	// Gaps lists gap observation ids raised at stage scope.
	Gaps []string `json:"gaps,omitempty"`

	// Decisions lists decision ids recorded at stage scope.
	Decisions []string `json:"decisions,omitempty"`
}

// Validate checks structural requirements before a stage document is persisted.
func (s *StageState) Validate() error {
	if s.Category == "" {
		return &ValidationError{Field: "category", Message: "stage category is required"}
	}
	switch s.Status {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return nil
	default:
		return &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("invalid stage status %q", s.Status),
		}
	}
}

// Validate checks structural requirements before a flavor document is persisted.
func (f *FlavorState) Validate() error {
	if f.Name == "" {
		return &ValidationError{Field: "name", Message: "flavor name is required"}
	}
	switch f.Status {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return nil
	default:
		return &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("invalid flavor status %q", f.Status),
		}
	}
}

// Decision is an immutable record of a choice made during execution.
// Outcomes are recorded separately and merged latest-by-update-time wins.
type Decision struct {
	// ID is the unique decision identifier.
	ID string `json:"id"`

	// Type classifies the decision (e.g., "capability-analysis").
	Type string `json:"type"`

	// Options lists the choices that were considered.
	Options []string `json:"options,omitempty"`

	// Selection is the chosen option.
	Selection string `json:"selection,omitempty"`

	// Confidence is the decision confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Context carries decision-specific data (e.g., available artifacts).
	Context map[string]any `json:"context,omitempty"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`

	// Outcome is the observed result, merged in after the fact.
	Outcome string `json:"outcome,omitempty"`

	// UpdatedAt orders outcome merges; the latest write wins.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks structural requirements before a decision is persisted.
func (d *Decision) Validate() error {
	if d.ID == "" {
		return &ValidationError{Field: "id", Message: "decision id is required"}
	}
	if d.Type == "" {
		return &ValidationError{Field: "type", Message: "decision type is required"}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return &ValidationError{
			Field:   "confidence",
			Message: fmt.Sprintf("confidence %v outside [0,1]", d.Confidence),
		}
	}
	return nil
}

// Artifact is a named output handed from one stage to later stages.
type Artifact struct {
	// ID is the unique artifact identifier.
	ID string `json:"id"`

	// Name is the handoff name later stages see (e.g., "research-synthesis").
	Name string `json:"name"`

	// Kind classifies the artifact; stage outputs use "synthesis".
	Kind string `json:"kind,omitempty"`

	// Content is the artifact body, when stored inline.
	Content string `json:"content,omitempty"`

	// Path points at an external artifact file, when stored out of line.
	Path string `json:"path,omitempty"`

	// Timestamp is when the artifact was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks structural requirements before an artifact is persisted.
func (a *Artifact) Validate() error {
	if a.ID == "" {
		return &ValidationError{Field: "id", Message: "artifact id is required"}
	}
	if a.Name == "" {
		return &ValidationError{Field: "name", Message: "artifact name is required"}
	}
	return nil
}
