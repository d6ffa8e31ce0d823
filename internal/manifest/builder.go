// Package manifest composes one step's execution request: the prompt,
// gates, merged resources, and any learnings injected for context.
package manifest

import (
	"fmt"
	"strings"

	"github.com/boshu2/cadence/internal/registry"
	"github.com/boshu2/cadence/internal/types"
)

// Manifest is the execution request handed to an executor for one step.
type Manifest struct {
	// Step is the step name.
	Step string `json:"step"`

	// Category is the stage category.
	Category string `json:"category"`

	// Prompt is the fully assembled execution prompt.
	Prompt string `json:"prompt"`

	// EntryGate guards starting the step.
	EntryGate *types.Gate `json:"entry_gate,omitempty"`

	// ExitGate guards leaving the step.
	ExitGate *types.Gate `json:"exit_gate,omitempty"`

	// Artifacts names the expected outputs.
	Artifacts []string `json:"artifacts,omitempty"`

	// Resources is the merged tool/agent/skill set.
	Resources registry.Resources `json:"resources,omitempty"`
}

// Context carries the execution facts a manifest is built against.
type Context struct {
	// RunID is the owning run.
	RunID string

	// Bet is the bet description, included for executor context.
	Bet string
}

// Build assembles a manifest for one step. The prompt defaults to
// `Execute the "<type>" stage.` when the step sets no template; a
// learnings block and a resources block are appended only when non-empty.
// Step-level resources win over flavor-level resources on name collision,
// and each resource kind is deduplicated by name, first occurrence wins.
func Build(step registry.StepDef, mctx Context, learnings []types.Learning, flavorResources *registry.Resources) Manifest {
	prompt := step.PromptTemplate
	if prompt == "" {
		prompt = fmt.Sprintf("Execute the %q stage.", step.Type)
	}

	if block := learningsBlock(learnings); block != "" {
		prompt += "\n\n" + block
	}

	flavor := registry.Resources{}
	if flavorResources != nil {
		flavor = *flavorResources
	}
	merged := MergeResources(step.Resources, flavor)
	if block := resourcesBlock(merged); block != "" {
		prompt += "\n\n" + block
	}

	return Manifest{
		Step:      step.Name,
		Category:  step.Type,
		Prompt:    prompt,
		EntryGate: step.EntryGate,
		ExitGate:  step.ExitGate,
		Artifacts: step.Artifacts,
		Resources: merged,
	}
}

// AggregateFlavorResources walks the flavor's ordered step references,
// silently skipping unresolvable steps, and merges the resolved steps'
// resources with the flavor's own additions under the usual dedup rule.
func AggregateFlavorResources(flavor registry.Flavor, steps *registry.Registry) registry.Resources {
	merged := registry.Resources{}
	for _, ref := range flavor.Steps {
		step, err := steps.GetStep(ref)
		if err != nil {
			continue // unresolvable refs are not an error here
		}
		merged = MergeResources(merged, step.Resources)
	}
	return MergeResources(merged, flavor.Resources)
}

// MergeResources merges two resource sets. Entries from primary come
// first and win on name collision; each kind is deduplicated by name.
func MergeResources(primary, secondary registry.Resources) registry.Resources {
	return registry.Resources{
		Tools:  dedup(primary.Tools, secondary.Tools),
		Agents: dedup(primary.Agents, secondary.Agents),
		Skills: dedup(primary.Skills, secondary.Skills),
	}
}

func dedup(first, second []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range first {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range second {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func learningsBlock(learnings []types.Learning) string {
	if len(learnings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant learnings:\n")
	for _, l := range learnings {
		fmt.Fprintf(&b, "- [%s/%s, %.0f%%] %s", l.Tier, l.Category, l.Confidence*100, l.Content)
		if len(l.Evidence) > 0 {
			fmt.Fprintf(&b, " (evidence: %s)", strings.Join(l.Evidence, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func resourcesBlock(r registry.Resources) string {
	if len(r.Tools) == 0 && len(r.Agents) == 0 && len(r.Skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Resources:\n")
	if len(r.Tools) > 0 {
		fmt.Fprintf(&b, "- tools: %s\n", strings.Join(r.Tools, ", "))
	}
	if len(r.Agents) > 0 {
		fmt.Fprintf(&b, "- agents: %s\n", strings.Join(r.Agents, ", "))
	}
	if len(r.Skills) > 0 {
		fmt.Fprintf(&b, "- skills: %s\n", strings.Join(r.Skills, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
