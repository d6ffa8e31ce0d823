package types

import (
	"fmt"
	"time"
)

// LearningTier grades a learning's quality, mirroring the pool tiers.
type LearningTier string

const (
	LearningTierGold   LearningTier = "gold"
	LearningTierSilver LearningTier = "silver"
	LearningTierBronze LearningTier = "bronze"
)

// Permanence says how durable a learning is expected to be.
type Permanence string

const (
	// PermanenceOperational learnings describe current tooling and process;
	// they go stale fastest and are the first to be invalidated.
	PermanenceOperational Permanence = "operational"

	// PermanenceTactical learnings describe project-scoped technique.
	PermanenceTactical Permanence = "tactical"

	// PermanenceStrategic learnings describe durable principles.
	PermanenceStrategic Permanence = "strategic"
)

// Learning is accumulated, citable knowledge. Learnings are never
// physically deleted; archival records a reason and a citation edge.
type Learning struct {
	// ID is the unique learning identifier (e.g., "lrn-a1b2c3").
	ID string `json:"id"`

	// Tier grades the learning's quality.
	Tier LearningTier `json:"tier"`

	// Category groups learnings by topic or stage category.
	Category string `json:"category,omitempty"`

	// Content is the learning text.
	Content string `json:"content"`

	// Confidence is certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// Permanence says how durable the learning is expected to be.
	Permanence Permanence `json:"permanence,omitempty"`

	// Evidence cites observation or run ids backing the learning.
	Evidence []string `json:"evidence,omitempty"`

	// Archived marks the learning soft-deleted.
	Archived bool `json:"archived,omitempty"`

	// ArchiveReason says why the learning was archived.
	ArchiveReason string `json:"archive_reason,omitempty"`

	// CreatedAt is when the learning was captured.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the last mutation (archive) time.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks structural requirements before a learning is persisted.
func (l *Learning) Validate() error {
	if l.ID == "" {
		return &ValidationError{Field: "id", Message: "learning id is required"}
	}
	if l.Content == "" {
		return &ValidationError{Field: "content", Message: "learning content is required"}
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return &ValidationError{
			Field:   "confidence",
			Message: fmt.Sprintf("confidence %v outside [0,1]", l.Confidence),
		}
	}
	return nil
}

// SynthesisDepth parameterizes how much material a synthesis pass digests.
type SynthesisDepth string

const (
	SynthesisQuick    SynthesisDepth = "quick"
	SynthesisStandard SynthesisDepth = "standard"
	SynthesisThorough SynthesisDepth = "thorough"
)

// ValidSynthesisDepth reports whether d is a known depth.
func ValidSynthesisDepth(d SynthesisDepth) bool {
	switch d {
	case SynthesisQuick, SynthesisStandard, SynthesisThorough:
		return true
	default:
		return false
	}
}

// ProposalKind names a synthesis proposal action.
type ProposalKind string

const (
	// ProposalNewLearning captures a new learning.
	ProposalNewLearning ProposalKind = "new-learning"

	// ProposalArchive archives an existing learning.
	ProposalArchive ProposalKind = "archive"
)

// SynthesisProposal is one suggested knowledge mutation returned by an
// external synthesis step. Nothing is applied until a proposal id is
// explicitly accepted.
type SynthesisProposal struct {
	// ID is the unique proposal identifier.
	ID string `json:"id"`

	// Kind selects the proposal action.
	Kind ProposalKind `json:"kind"`

	// Learning is the learning to capture, for new-learning proposals.
	Learning *Learning `json:"learning,omitempty"`

	// LearningID names the learning to archive, for archive proposals.
	LearningID string `json:"learning_id,omitempty"`

	// Reason explains the proposal; archive proposals record it as the
	// archive reason.
	Reason string `json:"reason,omitempty"`
}

// SynthesisInput is the point-in-time snapshot handed to the external
// synthesis step during cooldown.
type SynthesisInput struct {
	// ID is the unique synthesis input identifier.
	ID string `json:"id"`

	// CycleID is the cycle being closed out.
	CycleID string `json:"cycle_id"`

	// Depth parameterizes the synthesis pass.
	Depth SynthesisDepth `json:"depth"`

	// Report is the cooldown report snapshot.
	Report any `json:"report,omitempty"`

	// Learnings snapshots current (unarchived) learnings.
	Learnings []Learning `json:"learnings,omitempty"`

	// CreatedAt is when the snapshot was taken.
	CreatedAt time.Time `json:"created_at"`
}

// SynthesisResult is what the external synthesis step writes back.
type SynthesisResult struct {
	// InputID links the result to its input snapshot.
	InputID string `json:"input_id"`

	// Proposals are the suggested knowledge mutations.
	Proposals []SynthesisProposal `json:"proposals,omitempty"`

	// CreatedAt is when the result was produced.
	CreatedAt time.Time `json:"created_at,omitempty"`
}
