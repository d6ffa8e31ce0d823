package types

import (
	"fmt"
	"time"
)

// ReflectionKind classifies a derived reflection record.
type ReflectionKind string

const (
	// ReflectionCalibration reports a detected prediction bias.
	ReflectionCalibration ReflectionKind = "calibration"

	// ReflectionValidation records whether a prediction turned out correct.
	ReflectionValidation ReflectionKind = "validation"

	// ReflectionResolution records how a friction contradiction was resolved.
	ReflectionResolution ReflectionKind = "resolution"

	// ReflectionUnmatched records a prediction that never received an outcome.
	ReflectionUnmatched ReflectionKind = "unmatched"

	// ReflectionSynthesis aggregates other reflections or a whole pipeline.
	ReflectionSynthesis ReflectionKind = "synthesis"
)

// ReflectionKinds lists every valid reflection kind.
var ReflectionKinds = []ReflectionKind{
	ReflectionCalibration,
	ReflectionValidation,
	ReflectionResolution,
	ReflectionUnmatched,
	ReflectionSynthesis,
}

// BiasKind names a calibration bias detected from prediction history.
type BiasKind string

const (
	// BiasOverconfidence fires when confident language correlates with a high
	// incorrect rate.
	BiasOverconfidence BiasKind = "overconfidence"

	// BiasEstimationDrift fires when quantitative predictions repeatedly miss.
	BiasEstimationDrift BiasKind = "estimation-drift"

	// BiasPredictorDivergence fires when one agent's accuracy lags the rest.
	BiasPredictorDivergence BiasKind = "predictor-divergence"

	// BiasDomainBias fires when accuracy diverges across stage categories.
	BiasDomainBias BiasKind = "domain-bias"
)

// ResolutionPath names the action taken for a resolved friction.
type ResolutionPath string

const (
	// ResolutionInvalidate archives the contradicted learning outright.
	ResolutionInvalidate ResolutionPath = "invalidate"

	// ResolutionScope archives the learning and captures a narrowed variant.
	ResolutionScope ResolutionPath = "scope"

	// ResolutionSynthesize captures a merged learning without archiving.
	ResolutionSynthesize ResolutionPath = "synthesize"

	// ResolutionEscalate records the contradiction for a human, mutating nothing.
	ResolutionEscalate ResolutionPath = "escalate"
)

// Reflection is an immutable derived insight computed from observations.
// Like Observation it is a tagged union keyed by Kind.
type Reflection struct {
	// ID is the unique reflection identifier (e.g., "refl-a1b2c3").
	ID string `json:"id"`

	// Kind discriminates the reflection variant.
	Kind ReflectionKind `json:"kind"`

	// Timestamp is when the reflection was computed.
	Timestamp time.Time `json:"timestamp"`

	// Summary is the human-readable reflection text.
	Summary string `json:"summary"`

	// ObservationIDs references the observations this was computed from.
	ObservationIDs []string `json:"observation_ids,omitempty"`

	// --- calibration fields ---

	// Bias is the detected bias kind.
	Bias BiasKind `json:"bias,omitempty"`

	// AgentID names the agent a predictor-divergence bias flags.
	AgentID string `json:"agent_id,omitempty"`

	// Category names the stage category a domain-bias reflection flags.
	Category string `json:"category,omitempty"`

	// --- validation fields ---

	// PredictionID links a validation to the prediction it judges.
	PredictionID string `json:"prediction_id,omitempty"`

	// Correct reports the validation verdict.
	Correct *bool `json:"correct,omitempty"`

	// --- resolution fields ---

	// Path is the resolution action taken.
	Path ResolutionPath `json:"path,omitempty"`

	// LearningID is the learning the resolution acted on.
	LearningID string `json:"learning_id,omitempty"`

	// DiagnosticConfidence is the computed confidence behind the path choice.
	DiagnosticConfidence float64 `json:"diagnostic_confidence,omitempty"`

	// --- synthesis fields ---

	// ReflectionIDs references reflections aggregated by a synthesis.
	ReflectionIDs []string `json:"reflection_ids,omitempty"`

	// Quality is the overall-quality judgment of a pipeline synthesis.
	Quality string `json:"quality,omitempty"`

	// Learnings holds per-stage learning strings for a pipeline synthesis.
	Learnings []string `json:"learnings,omitempty"`
}

// Validate checks structural requirements before a reflection is persisted.
func (r *Reflection) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "reflection id is required"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "reflection timestamp is required"}
	}
	switch r.Kind {
	case ReflectionCalibration:
		if r.Bias == "" {
			return &ValidationError{Field: "bias", Message: "calibration reflection requires a bias"}
		}
		return nil
	case ReflectionValidation:
		if r.Correct == nil {
			return &ValidationError{Field: "correct", Message: "validation reflection requires a verdict"}
		}
		return nil
	case ReflectionResolution:
		if r.Path == "" {
			return &ValidationError{Field: "path", Message: "resolution reflection requires a path"}
		}
		return nil
	case ReflectionUnmatched, ReflectionSynthesis:
		return nil
	default:
		return &ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown reflection kind %q", r.Kind),
		}
	}
}
