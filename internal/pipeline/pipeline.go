// Package pipeline drives an ordered sequence of stage executions:
// artifact handoff strictly forward, decision recording per stage, and a
// closing pipeline-level reflection.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boshu2/cadence/internal/registry"
	"github.com/boshu2/cadence/internal/runtree"
	"github.com/boshu2/cadence/internal/types"
)

// StageRequest is the execution request handed to the injected executor
// for one stage.
type StageRequest struct {
	// RunID is the owning run.
	RunID string

	// Category is the stage category being executed.
	Category string

	// Flavor is the selected flavor name.
	Flavor string

	// AvailableArtifacts are the synthesis artifact names of every prior
	// stage in this run, in stage order. Stage 0 sees an empty list.
	AvailableArtifacts []string

	// Bet is the bet context, when the pipeline runs under one.
	Bet *types.Bet

	// Yolo passes through unchanged; its semantics are executor-owned.
	Yolo bool
}

// StageResult is what the executor returns for one stage.
type StageResult struct {
	// Category echoes the executed stage category.
	Category string `json:"category"`

	// Flavor echoes the executed flavor.
	Flavor string `json:"flavor"`

	// ArtifactName is the synthesis artifact name later stages will see.
	ArtifactName string `json:"artifact_name"`

	// ArtifactContent is the synthesis artifact body.
	ArtifactContent string `json:"artifact_content,omitempty"`

	// Summary is a short account of what the stage did.
	Summary string `json:"summary,omitempty"`
}

// Executor performs the actual stage work. It is an opaque, possibly
// failing boundary injected at construction.
type Executor interface {
	Execute(ctx context.Context, req StageRequest) (StageResult, error)
}

// Options tunes one RunPipeline call.
type Options struct {
	// Yolo is forwarded to the executor untouched.
	Yolo bool

	// FlavorOverrides maps a category to a flavor name, overriding the
	// default first-registered selection.
	FlavorOverrides map[string]string
}

// Result is the outcome of a completed pipeline.
type Result struct {
	// RunID is the run the pipeline executed under.
	RunID string `json:"run_id"`

	// StageResults holds one entry per category, in order.
	StageResults []StageResult `json:"stage_results"`

	// Reflection is the recorded pipeline-level reflection.
	Reflection types.Reflection `json:"reflection"`
}

// Orchestrator wires the run tree, the flavor registry, and the executor.
type Orchestrator struct {
	Store    *runtree.Store
	Registry *registry.Registry
	Executor Executor
}

// NewOrchestrator builds an orchestrator from its collaborators.
func NewOrchestrator(store *runtree.Store, reg *registry.Registry, exec Executor) *Orchestrator {
	return &Orchestrator{Store: store, Registry: reg, Executor: exec}
}

// RunPipeline executes the categories in order against the given run.
// When run is nil an ad-hoc run is created whose stage sequence is the
// category list. Validation is complete before any run tree is touched:
// an empty category list or a category without a registered flavor aborts
// with no partial run. Any executor error aborts remaining stages and
// propagates with the original error wrapped intact.
func (o *Orchestrator) RunPipeline(ctx context.Context, run *types.Run, bet *types.Bet, categories []string, opts Options) (*Result, error) {
	if len(categories) == 0 {
		return nil, &types.OrchestratorError{Message: "no stage categories to execute"}
	}

	flavors := make(map[string]registry.Flavor, len(categories))
	for _, category := range categories {
		available := o.Registry.FlavorsFor(category)
		if len(available) == 0 {
			return nil, &types.OrchestratorError{
				Message: fmt.Sprintf("no flavors registered for category %q", category),
			}
		}
		selected := available[0]
		if name, ok := opts.FlavorOverrides[category]; ok {
			f, err := o.Registry.GetFlavor(name)
			if err != nil {
				return nil, &types.OrchestratorError{
					Message: fmt.Sprintf("flavor override %q for category %q is not registered", name, category),
				}
			}
			selected = f
		}
		flavors[category] = selected
	}

	if run == nil {
		run = &types.Run{
			ID:            types.NewID("run"),
			StageSequence: categories,
			Status:        types.RunStatusPending,
			CreatedAt:     time.Now().UTC(),
		}
		if bet != nil {
			run.BetID = bet.ID
		}
		if err := o.Store.CreateRunTree(run); err != nil {
			return nil, err
		}
	}

	run.Status = types.RunStatusRunning
	result := &Result{RunID: run.ID}

	for _, category := range categories {
		run.CurrentStage = category
		if err := o.Store.WriteRun(run); err != nil {
			return nil, err
		}

		// Artifacts flow strictly forward: this stage sees exactly the
		// synthesis outputs of the stages before it, never later ones.
		available := artifactNames(result.StageResults)

		if err := o.recordCapabilityAnalysis(run, category, available, bet); err != nil {
			return nil, err
		}
		if err := o.setStageStatus(run.ID, category, types.RunStatusRunning, flavors[category].Name); err != nil {
			return nil, err
		}

		stageResult, err := o.Executor.Execute(ctx, StageRequest{
			RunID:              run.ID,
			Category:           category,
			Flavor:             flavors[category].Name,
			AvailableArtifacts: available,
			Bet:                bet,
			Yolo:               opts.Yolo,
		})
		if err != nil {
			o.abort(run, category)
			return nil, &types.OrchestratorError{
				Stage:   category,
				Message: "executor failed",
				Err:     err,
			}
		}

		if stageResult.Category == "" {
			stageResult.Category = category
		}
		if stageResult.Flavor == "" {
			stageResult.Flavor = flavors[category].Name
		}
		if stageResult.ArtifactName == "" {
			stageResult.ArtifactName = category + "-synthesis"
		}

		art := &types.Artifact{
			ID:        types.NewID("art"),
			Name:      stageResult.ArtifactName,
			Kind:      "synthesis",
			Content:   stageResult.ArtifactContent,
			Timestamp: time.Now().UTC(),
		}
		addr := runtree.Address{RunID: run.ID, Stage: category}
		if err := o.Store.AppendArtifact(addr, art); err != nil {
			return nil, err
		}
		if err := o.setStageStatus(run.ID, category, types.RunStatusCompleted, flavors[category].Name); err != nil {
			return nil, err
		}

		result.StageResults = append(result.StageResults, stageResult)
	}

	run.Status = types.RunStatusCompleted
	if err := o.Store.WriteRun(run); err != nil {
		return nil, err
	}

	reflection := buildPipelineReflection(categories, result.StageResults)
	if err := o.Store.AppendReflection(runtree.Address{RunID: run.ID}, &reflection); err != nil {
		return nil, err
	}
	result.Reflection = reflection

	return result, nil
}

// recordCapabilityAnalysis writes the per-stage capability-analysis
// decision carrying the artifacts visible at this point and the bet.
func (o *Orchestrator) recordCapabilityAnalysis(run *types.Run, category string, available []string, bet *types.Bet) error {
	decCtx := map[string]any{
		"availableArtifacts": available,
	}
	if bet != nil {
		decCtx["bet"] = bet
	}
	dec := &types.Decision{
		ID:         types.NewID("dec"),
		Type:       "capability-analysis",
		Confidence: 1,
		Context:    decCtx,
		Timestamp:  time.Now().UTC(),
	}
	return o.Store.AppendDecision(runtree.Address{RunID: run.ID, Stage: category}, dec)
}

func (o *Orchestrator) setStageStatus(runID, category string, status types.RunStatus, flavor string) error {
	state, err := o.Store.ReadStage(runID, category)
	if err != nil {
		return err
	}
	state.Status = status
	if flavor != "" && !containsString(state.SelectedFlavors, flavor) {
		state.SelectedFlavors = append(state.SelectedFlavors, flavor)
	}
	return o.Store.WriteStage(runID, state)
}

// abort marks the failing stage and the run failed; write errors here are
// secondary to the executor error already being propagated.
func (o *Orchestrator) abort(run *types.Run, category string) {
	if state, err := o.Store.ReadStage(run.ID, category); err == nil {
		state.Status = types.RunStatusFailed
		_ = o.Store.WriteStage(run.ID, state) //nolint:errcheck // executor error wins
	}
	run.Status = types.RunStatusFailed
	_ = o.Store.WriteRun(run) //nolint:errcheck // executor error wins
}

// buildPipelineReflection assembles the closing synthesis reflection: an
// overall-quality judgment, one learning per stage, and a summary learning
// naming the full sequence.
func buildPipelineReflection(categories []string, results []StageResult) types.Reflection {
	learnings := make([]string, 0, len(results)+1)
	substantive := 0
	for _, r := range results {
		note := r.Summary
		if note == "" {
			note = "produced " + r.ArtifactName
		} else {
			substantive++
		}
		learnings = append(learnings, fmt.Sprintf("%s: %s", r.Category, note))
	}
	learnings = append(learnings,
		fmt.Sprintf("completed stage sequence %s", strings.Join(categories, " -> ")))

	quality := "mixed"
	if substantive == len(results) {
		quality = "solid"
	}

	return types.Reflection{
		ID:        types.NewID("refl"),
		Kind:      types.ReflectionSynthesis,
		Timestamp: time.Now().UTC(),
		Summary:   fmt.Sprintf("pipeline of %d stages finished with %s quality", len(results), quality),
		Quality:   quality,
		Learnings: learnings,
	}
}

func artifactNames(results []StageResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.ArtifactName)
	}
	return names
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
