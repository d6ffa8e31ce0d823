package reflection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boshu2/cadence/internal/knowledge"
	"github.com/boshu2/cadence/internal/runtree"
	"github.com/boshu2/cadence/internal/types"
)

// Override threshold: the analyzer only activates when frictions are
// either frequent in absolute terms or dominate the run's observations.
const (
	frictionAbsoluteThreshold = 3
	frictionShareThreshold    = 0.30
)

// Diagnostic confidence ladder.
const (
	baseDiagnosticConfidence    = 0.5
	contradictionBonus          = 0.2
	operationalPermanenceBonus  = 0.1
	keywordOverlapBonus         = 0.1
	taxonomyRecurrenceBonus     = 0.1
	keywordOverlapThreshold     = 0.60
	taxonomyRecurrenceThreshold = 3
)

// Resolution path cutoffs.
const (
	invalidateConfidence = 0.8
	scopeConfidence      = 0.7
	synthesizeConfidence = 0.6
)

// Resolution records one friction's outcome.
type Resolution struct {
	// FrictionID is the friction observation resolved.
	FrictionID string `json:"friction_id"`

	// LearningID is the contradicted learning, when one exists.
	LearningID string `json:"learning_id,omitempty"`

	// Path is the action taken.
	Path types.ResolutionPath `json:"path"`

	// DiagnosticConfidence is the computed confidence behind the path.
	DiagnosticConfidence float64 `json:"diagnostic_confidence"`

	// CapturedLearningID is the learning captured by scope or synthesize.
	CapturedLearningID string `json:"captured_learning_id,omitempty"`
}

// AnalyzeResult reports one analyzer pass.
type AnalyzeResult struct {
	// RunID is the scanned run.
	RunID string `json:"run_id"`

	// OverrideThresholdMet says whether the analyzer activated at all.
	OverrideThresholdMet bool `json:"override_threshold_met"`

	// FrictionCount is the number of friction observations seen.
	FrictionCount int `json:"friction_count"`

	// ObservationCount is the total observations seen.
	ObservationCount int `json:"observation_count"`

	// Resolutions holds one entry per resolved friction.
	Resolutions []Resolution `json:"resolutions,omitempty"`
}

// Analyzer resolves friction contradictions against stored knowledge.
type Analyzer struct {
	Store     *runtree.Store
	Knowledge knowledge.Store
}

// NewAnalyzer builds an analyzer over a run tree and a learning store.
func NewAnalyzer(store *runtree.Store, ks knowledge.Store) *Analyzer {
	return &Analyzer{Store: store, Knowledge: ks}
}

// Analyze scans the run's frictions and, when the override threshold is
// met, resolves each at most once per contradicted learning. Every
// resolution writes a Resolution reflection at run level; invalidate and
// scope also mutate the learning store.
func (a *Analyzer) Analyze(runID string) (*AnalyzeResult, error) {
	addrs, err := a.Store.LogAddresses(runID)
	if err != nil {
		return nil, err
	}

	var observations []types.Observation
	for _, addr := range addrs {
		obs, err := a.Store.ReadObservations(addr)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs...)
	}

	var frictions []types.Observation
	taxonomyCount := make(map[string]int)
	for _, o := range observations {
		if o.Kind != types.ObservationFriction {
			continue
		}
		frictions = append(frictions, o)
		taxonomyCount[o.Taxonomy]++
	}

	result := &AnalyzeResult{
		RunID:            runID,
		FrictionCount:    len(frictions),
		ObservationCount: len(observations),
	}

	share := 0.0
	if len(observations) > 0 {
		share = float64(len(frictions)) / float64(len(observations))
	}
	if len(frictions) < frictionAbsoluteThreshold && share <= frictionShareThreshold {
		return result, nil
	}
	result.OverrideThresholdMet = true

	resolvedLearnings := make(map[string]bool)
	for _, friction := range frictions {
		// Each contradicted learning is resolved at most once per pass.
		if friction.Contradicts != "" && resolvedLearnings[friction.Contradicts] {
			continue
		}

		resolution, err := a.resolve(friction, taxonomyCount)
		if err != nil {
			return nil, err
		}
		if friction.Contradicts != "" {
			resolvedLearnings[friction.Contradicts] = true
		}

		refl := types.Reflection{
			ID:                   types.NewID("refl"),
			Kind:                 types.ReflectionResolution,
			Timestamp:            time.Now().UTC(),
			Summary:              resolutionSummary(friction, resolution),
			ObservationIDs:       []string{friction.ID},
			Path:                 resolution.Path,
			LearningID:           resolution.LearningID,
			DiagnosticConfidence: resolution.DiagnosticConfidence,
		}
		if err := a.Store.AppendReflection(runtree.Address{RunID: runID}, &refl); err != nil {
			return nil, err
		}

		result.Resolutions = append(result.Resolutions, resolution)
	}

	return result, nil
}

// resolve computes the diagnostic confidence ladder and applies the
// selected path's knowledge mutation.
func (a *Analyzer) resolve(friction types.Observation, taxonomyCount map[string]int) (Resolution, error) {
	resolution := Resolution{
		FrictionID: friction.ID,
		LearningID: friction.Contradicts,
	}

	var learning *types.Learning
	if friction.Contradicts != "" {
		l, err := a.Knowledge.Get(friction.Contradicts)
		var notFound *types.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return Resolution{}, err
		}
		learning = l
	}

	confidence := baseDiagnosticConfidence
	if learning != nil {
		confidence += contradictionBonus
		if learning.Permanence == types.PermanenceOperational {
			confidence += operationalPermanenceBonus
		}
		if keywordOverlap(friction.Content, learning.Content) > keywordOverlapThreshold {
			confidence += keywordOverlapBonus
		}
	}
	if taxonomyCount[friction.Taxonomy] >= taxonomyRecurrenceThreshold {
		confidence += taxonomyRecurrenceBonus
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	resolution.DiagnosticConfidence = confidence

	switch {
	case learning == nil:
		resolution.Path = types.ResolutionEscalate

	case confidence >= invalidateConfidence:
		resolution.Path = types.ResolutionInvalidate
		reason := fmt.Sprintf("invalidated by friction %s (%s)", friction.ID, friction.Taxonomy)
		if err := a.Knowledge.ArchiveLearning(learning.ID, reason); err != nil {
			return Resolution{}, err
		}

	case confidence >= scopeConfidence:
		resolution.Path = types.ResolutionScope
		reason := fmt.Sprintf("scoped after friction %s (%s)", friction.ID, friction.Taxonomy)
		if err := a.Knowledge.ArchiveLearning(learning.ID, reason); err != nil {
			return Resolution{}, err
		}
		narrowed := &types.Learning{
			ID:         types.NewID("lrn"),
			Tier:       learning.Tier,
			Category:   learning.Category,
			Content:    "In most cases: " + learning.Content,
			Confidence: confidence,
			Permanence: learning.Permanence,
			Evidence:   append([]string{friction.ID}, learning.Evidence...),
			CreatedAt:  time.Now().UTC(),
		}
		if err := a.Knowledge.Capture(narrowed); err != nil {
			return Resolution{}, err
		}
		resolution.CapturedLearningID = narrowed.ID

	case confidence >= synthesizeConfidence:
		resolution.Path = types.ResolutionSynthesize
		merged := &types.Learning{
			ID:         types.NewID("lrn"),
			Tier:       learning.Tier,
			Category:   learning.Category,
			Content:    fmt.Sprintf("%s However: %s", learning.Content, friction.Content),
			Confidence: confidence,
			Permanence: learning.Permanence,
			Evidence:   append([]string{friction.ID}, learning.Evidence...),
			CreatedAt:  time.Now().UTC(),
		}
		if err := a.Knowledge.Capture(merged); err != nil {
			return Resolution{}, err
		}
		resolution.CapturedLearningID = merged.ID

	default:
		resolution.Path = types.ResolutionEscalate
	}

	return resolution, nil
}

func resolutionSummary(friction types.Observation, r Resolution) string {
	switch r.Path {
	case types.ResolutionInvalidate:
		return fmt.Sprintf("friction %q invalidated learning %s", friction.Taxonomy, r.LearningID)
	case types.ResolutionScope:
		return fmt.Sprintf("friction %q narrowed learning %s to a scoped variant", friction.Taxonomy, r.LearningID)
	case types.ResolutionSynthesize:
		return fmt.Sprintf("friction %q merged into learning %s", friction.Taxonomy, r.LearningID)
	default:
		if r.LearningID == "" {
			return fmt.Sprintf("friction %q has no contradicted learning; escalating for review", friction.Taxonomy)
		}
		return fmt.Sprintf("friction %q vs learning %s left for review (confidence %.2f)",
			friction.Taxonomy, r.LearningID, r.DiagnosticConfidence)
	}
}

// keywordOverlap measures how much of the friction's vocabulary appears
// in the learning text. Words of three characters or fewer are ignored.
func keywordOverlap(frictionText, learningText string) float64 {
	frictionWords := keywords(frictionText)
	if len(frictionWords) == 0 {
		return 0
	}
	learningWords := make(map[string]bool)
	for _, w := range keywords(learningText) {
		learningWords[w] = true
	}
	matched := 0
	for _, w := range frictionWords {
		if learningWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(frictionWords))
}

func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len(f) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
