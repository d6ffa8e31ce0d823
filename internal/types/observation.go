package types

import (
	"fmt"
	"time"
)

// ObservationKind classifies an observation record.
type ObservationKind string

const (
	// ObservationDecision records a choice noticed during execution.
	ObservationDecision ObservationKind = "decision"

	// ObservationPrediction records an expectation about a future outcome.
	ObservationPrediction ObservationKind = "prediction"

	// ObservationFriction records resistance encountered mid-work, optionally
	// contradicting an accumulated learning.
	ObservationFriction ObservationKind = "friction"

	// ObservationGap records missing capability or context.
	ObservationGap ObservationKind = "gap"

	// ObservationOutcome records what actually happened.
	ObservationOutcome ObservationKind = "outcome"

	// ObservationAssumption records something taken as true without verification.
	ObservationAssumption ObservationKind = "assumption"

	// ObservationInsight records a realization worth keeping.
	ObservationInsight ObservationKind = "insight"
)

// ObservationKinds lists every valid observation kind.
var ObservationKinds = []ObservationKind{
	ObservationDecision,
	ObservationPrediction,
	ObservationFriction,
	ObservationGap,
	ObservationOutcome,
	ObservationAssumption,
	ObservationInsight,
}

// GapSeverity grades how badly a gap blocked progress.
type GapSeverity string

const (
	GapSeverityLow      GapSeverity = "low"
	GapSeverityMedium   GapSeverity = "medium"
	GapSeverityHigh     GapSeverity = "high"
	GapSeverityBlocking GapSeverity = "blocking"
)

// QuantitativePrediction is the measurable payload of a prediction observation.
type QuantitativePrediction struct {
	// Metric names what is being predicted (e.g., "duration_minutes").
	Metric string `json:"metric"`

	// Value is the predicted quantity.
	Value float64 `json:"value"`

	// Tolerance is the acceptable absolute deviation before the
	// prediction counts as a miss.
	Tolerance float64 `json:"tolerance,omitempty"`
}

// Observation is an immutable, timestamped record noticed during execution.
// It is a tagged union keyed by Kind: the base fields are always present and
// the kind-specific fields are populated only for their kind.
type Observation struct {
	// ID is the unique observation identifier (e.g., "obs-a1b2c3").
	ID string `json:"id"`

	// Kind discriminates the observation variant.
	Kind ObservationKind `json:"kind"`

	// Timestamp is when the observation was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Content is the observation text.
	Content string `json:"content"`

	// AgentID attributes the observation to a specific agent, when known.
	AgentID string `json:"agent_id,omitempty"`

	// Category is the stage category the observation was recorded under,
	// when the log level carries one.
	Category string `json:"category,omitempty"`

	// --- friction fields ---

	// Taxonomy classifies the friction (e.g., "tooling", "stale-knowledge").
	Taxonomy string `json:"taxonomy,omitempty"`

	// Contradicts is the ID of a stored learning this friction contradicts.
	Contradicts string `json:"contradicts,omitempty"`

	// --- gap fields ---

	// Severity grades a gap observation.
	Severity GapSeverity `json:"severity,omitempty"`

	// --- prediction fields ---

	// Quantitative is the measurable prediction payload, if any.
	Quantitative *QuantitativePrediction `json:"quantitative,omitempty"`

	// Qualitative is the free-form prediction payload, if any.
	Qualitative string `json:"qualitative,omitempty"`
}

// Validate checks structural requirements before an observation is persisted.
func (o *Observation) Validate() error {
	if o.ID == "" {
		return &ValidationError{Field: "id", Message: "observation id is required"}
	}
	if o.Content == "" {
		return &ValidationError{Field: "content", Message: "observation content is required"}
	}
	if o.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "observation timestamp is required"}
	}
	switch o.Kind {
	case ObservationDecision, ObservationPrediction, ObservationOutcome,
		ObservationAssumption, ObservationInsight:
		return nil
	case ObservationFriction:
		if o.Taxonomy == "" {
			return &ValidationError{Field: "taxonomy", Message: "friction observation requires a taxonomy"}
		}
		return nil
	case ObservationGap:
		switch o.Severity {
		case GapSeverityLow, GapSeverityMedium, GapSeverityHigh, GapSeverityBlocking:
			return nil
		default:
			return &ValidationError{
				Field:   "severity",
				Message: fmt.Sprintf("invalid gap severity %q", o.Severity),
			}
		}
	default:
		return &ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown observation kind %q", o.Kind),
		}
	}
}
