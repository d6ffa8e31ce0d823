// Package registry provides lookup services for katas (stage sequences),
// flavors, and step definitions. Registries are read by the orchestrator
// and manifest builder; they never mutate core state.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/cadence/internal/types"
)

// Resources names the tools, agents, and skills a step or flavor needs.
type Resources struct {
	Tools  []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	Agents []string `yaml:"agents,omitempty" json:"agents,omitempty"`
	Skills []string `yaml:"skills,omitempty" json:"skills,omitempty"`
}

// StepDef is an atomic unit of work: prompt, gates, artifacts, resources.
type StepDef struct {
	// Name is the step identifier flavors reference.
	Name string `yaml:"name" json:"name"`

	// Type is the stage category the step belongs to.
	Type string `yaml:"type" json:"type"`

	// PromptTemplate overrides the default execution prompt when set.
	PromptTemplate string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`

	// EntryGate guards starting the step.
	EntryGate *types.Gate `yaml:"entry_gate,omitempty" json:"entry_gate,omitempty"`

	// ExitGate guards leaving the step.
	ExitGate *types.Gate `yaml:"exit_gate,omitempty" json:"exit_gate,omitempty"`

	// Artifacts names the outputs the step is expected to produce.
	Artifacts []string `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`

	// Resources are the step's own resource requirements.
	Resources Resources `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// Flavor is a named, ordered composition of steps implementing one
// stage category.
type Flavor struct {
	// Name is the flavor identifier.
	Name string `yaml:"name" json:"name"`

	// Category is the stage category the flavor implements.
	Category string `yaml:"category" json:"category"`

	// Steps references step definitions by name, in execution order.
	Steps []string `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Resources are additions on top of the referenced steps' resources.
	Resources Resources `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// Kata is a named stage sequence a bet can be assigned.
type Kata struct {
	// Name is the kata identifier.
	Name string `yaml:"name" json:"name"`

	// Categories is the ordered stage sequence.
	Categories []string `yaml:"categories" json:"categories"`
}

// Registry holds katas, flavors, and step definitions, typically loaded
// from a YAML file and optionally extended via Register calls.
type Registry struct {
	mu      sync.RWMutex
	katas   map[string]Kata
	flavors map[string]Flavor
	steps   map[string]StepDef
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		katas:   make(map[string]Kata),
		flavors: make(map[string]Flavor),
		steps:   make(map[string]StepDef),
	}
}

// file is the on-disk YAML layout.
type file struct {
	Katas   []Kata    `yaml:"katas"`
	Flavors []Flavor  `yaml:"flavors"`
	Steps   []StepDef `yaml:"steps"`
}

// Load reads a registry YAML file. A missing file yields an empty
// registry so a fresh workspace works without setup.
func Load(path string) (*Registry, error) {
	r := New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}

	for _, k := range f.Katas {
		if err := r.RegisterKata(k); err != nil {
			return nil, err
		}
	}
	for _, fl := range f.Flavors {
		if err := r.RegisterFlavor(fl); err != nil {
			return nil, err
		}
	}
	for _, st := range f.Steps {
		if err := r.RegisterStep(st); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterKata adds a kata.
func (r *Registry) RegisterKata(k Kata) error {
	if k.Name == "" {
		return &types.ValidationError{Field: "name", Message: "kata name is required"}
	}
	if len(k.Categories) == 0 {
		return &types.ValidationError{Field: "categories", Message: "kata requires at least one category"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.katas[k.Name] = k
	return nil
}

// RegisterFlavor adds a flavor.
func (r *Registry) RegisterFlavor(f Flavor) error {
	if f.Name == "" {
		return &types.ValidationError{Field: "name", Message: "flavor name is required"}
	}
	if f.Category == "" {
		return &types.ValidationError{Field: "category", Message: "flavor category is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flavors[f.Name] = f
	return nil
}

// RegisterStep adds a step definition.
func (r *Registry) RegisterStep(s StepDef) error {
	if s.Name == "" {
		return &types.ValidationError{Field: "name", Message: "step name is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[s.Name] = s
	return nil
}

// GetKata resolves a kata by name.
func (r *Registry) GetKata(name string) (Kata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.katas[name]
	if !ok {
		return Kata{}, &types.NotFoundError{Kind: "kata", ID: name}
	}
	return k, nil
}

// GetFlavor resolves a flavor by name.
func (r *Registry) GetFlavor(name string) (Flavor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flavors[name]
	if !ok {
		return Flavor{}, &types.NotFoundError{Kind: "flavor", ID: name}
	}
	return f, nil
}

// GetStep resolves a step definition by name.
func (r *Registry) GetStep(name string) (StepDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[name]
	if !ok {
		return StepDef{}, &types.NotFoundError{Kind: "step", ID: name}
	}
	return s, nil
}

// FlavorsFor lists flavors registered for a stage category, sorted by name.
func (r *Registry) FlavorsFor(category string) []Flavor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Flavor
	for _, f := range r.flavors {
		if f.Category == category {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListKatas lists katas sorted by name.
func (r *Registry) ListKatas() []Kata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kata, 0, len(r.katas))
	for _, k := range r.katas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
