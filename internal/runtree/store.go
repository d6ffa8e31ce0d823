// Package runtree persists the hierarchical run state: whole-document
// JSON for run/stage/flavor state and append-only JSONL logs for
// observations, reflections, decisions, and artifacts at every level.
package runtree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boshu2/cadence/internal/types"
)

const (
	// DefaultRunsRoot is the default run tree directory.
	DefaultRunsRoot = ".cadence/runs"

	// StagesDir nests stage state under a run.
	StagesDir = "stages"

	// FlavorsDir nests flavor state under a stage.
	FlavorsDir = "flavors"

	// StepsDir nests step logs under a flavor.
	StepsDir = "steps"

	// RunFile is the run state document.
	RunFile = "run.json"

	// StateFile is the stage/flavor state document.
	StateFile = "state.json"

	// ObservationsFile is the per-level observation log.
	ObservationsFile = "observations.jsonl"

	// ReflectionsFile is the per-level reflection log.
	ReflectionsFile = "reflections.jsonl"

	// DecisionsFile is the per-level decision log.
	DecisionsFile = "decisions.jsonl"

	// ArtifactsFile is the per-level artifact log.
	ArtifactsFile = "artifacts.jsonl"
)

// Address identifies one level of the run tree. RunID alone addresses the
// run level; adding Stage, then Flavor, then Step descends the hierarchy.
// Logs at different levels are never merged.
type Address struct {
	RunID  string
	Stage  string
	Flavor string
	Step   string
}

func (a Address) validate() error {
	if a.RunID == "" {
		return &types.ValidationError{Field: "run_id", Message: "address requires a run id"}
	}
	if a.Flavor != "" && a.Stage == "" {
		return &types.ValidationError{Field: "stage", Message: "flavor address requires a stage"}
	}
	if a.Step != "" && a.Flavor == "" {
		return &types.ValidationError{Field: "flavor", Message: "step address requires a flavor"}
	}
	return nil
}

// Store is the filesystem-backed run tree.
type Store struct {
	// Root is the runs root directory.
	Root string

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithRoot sets the runs root directory.
func WithRoot(root string) Option {
	return func(s *Store) { s.Root = root }
}

// NewStore creates a run tree store.
func NewStore(opts ...Option) *Store {
	s := &Store{Root: DefaultRunsRoot}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runDir returns the directory for a run id.
func (s *Store) runDir(runID string) string {
	return filepath.Join(s.Root, runID)
}

// levelDir returns the directory for an address.
func (s *Store) levelDir(addr Address) string {
	dir := s.runDir(addr.RunID)
	if addr.Stage != "" {
		dir = filepath.Join(dir, StagesDir, addr.Stage)
	}
	if addr.Flavor != "" {
		dir = filepath.Join(dir, FlavorsDir, addr.Flavor)
	}
	if addr.Step != "" {
		dir = filepath.Join(dir, StepsDir, addr.Step)
	}
	return dir
}

// CreateRunTree builds the directory skeleton for a run, initializing one
// pending stage state per entry in the stage sequence. The run document is
// validated before any directory is created.
func (s *Store) CreateRunTree(run *types.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.runDir(run.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if err := atomicWriteJSON(filepath.Join(dir, RunFile), run); err != nil {
		return err
	}

	for _, category := range run.StageSequence {
		stageDir := filepath.Join(dir, StagesDir, category)
		if err := os.MkdirAll(stageDir, 0700); err != nil {
			return fmt.Errorf("create stage directory %s: %w", category, err)
		}
		state := &types.StageState{
			Category: category,
			Status:   types.RunStatusPending,
		}
		if err := atomicWriteJSON(filepath.Join(stageDir, StateFile), state); err != nil {
			return err
		}
	}

	return nil
}

// ReadRun loads a run document. An unknown id is a NotFoundError.
func (s *Store) ReadRun(runID string) (*types.Run, error) {
	var run types.Run
	path := filepath.Join(s.runDir(runID), RunFile)
	if err := readJSON(path, &run, "run", runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// WriteRun atomically replaces a run document. The stage sequence is
// immutable once created; a changed sequence is rejected before any byte
// is written.
func (s *Store) WriteRun(run *types.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.runDir(run.ID), RunFile)
	var existing types.Run
	if err := readJSON(path, &existing, "run", run.ID); err == nil {
		if !sameSequence(existing.StageSequence, run.StageSequence) {
			return &types.ValidationError{
				Field:   "stage_sequence",
				Message: "stage sequence is immutable once the run is created",
			}
		}
	}
	run.UpdatedAt = time.Now().UTC()
	return atomicWriteJSON(path, run)
}

// ReadStage loads a stage state document.
func (s *Store) ReadStage(runID, category string) (*types.StageState, error) {
	var state types.StageState
	path := filepath.Join(s.levelDir(Address{RunID: runID, Stage: category}), StateFile)
	if err := readJSON(path, &state, "stage", category); err != nil {
		return nil, err
	}
	return &state, nil
}

// WriteStage atomically replaces a stage state document.
func (s *Store) WriteStage(runID string, state *types.StageState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.levelDir(Address{RunID: runID, Stage: state.Category})
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create stage directory: %w", err)
	}
	return atomicWriteJSON(filepath.Join(dir, StateFile), state)
}

// ReadFlavor loads a flavor state document.
func (s *Store) ReadFlavor(runID, category, flavor string) (*types.FlavorState, error) {
	var state types.FlavorState
	path := filepath.Join(s.levelDir(Address{RunID: runID, Stage: category, Flavor: flavor}), StateFile)
	if err := readJSON(path, &state, "flavor", flavor); err != nil {
		return nil, err
	}
	return &state, nil
}

// WriteFlavor atomically replaces a flavor state document, creating parent
// directories lazily.
func (s *Store) WriteFlavor(runID, category string, state *types.FlavorState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.levelDir(Address{RunID: runID, Stage: category, Flavor: state.Name})
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create flavor directory: %w", err)
	}
	return atomicWriteJSON(filepath.Join(dir, StateFile), state)
}

// AppendObservation appends one observation to the log at the given level.
func (s *Store) AppendObservation(addr Address, obs *types.Observation) error {
	if err := addr.validate(); err != nil {
		return err
	}
	if err := obs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(filepath.Join(s.levelDir(addr), ObservationsFile), obs)
}

// AppendReflection appends one reflection to the log at the given level.
func (s *Store) AppendReflection(addr Address, refl *types.Reflection) error {
	if err := addr.validate(); err != nil {
		return err
	}
	if err := refl.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(filepath.Join(s.levelDir(addr), ReflectionsFile), refl)
}

// AppendDecision appends one decision to the log at the given level.
func (s *Store) AppendDecision(addr Address, dec *types.Decision) error {
	if err := addr.validate(); err != nil {
		return err
	}
	if err := dec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(filepath.Join(s.levelDir(addr), DecisionsFile), dec)
}

// AppendArtifact appends one artifact record to the log at the given level.
func (s *Store) AppendArtifact(addr Address, art *types.Artifact) error {
	if err := addr.validate(); err != nil {
		return err
	}
	if err := art.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(filepath.Join(s.levelDir(addr), ArtifactsFile), art)
}

// ReadObservations returns all observations at exactly the addressed level
// in append order. A missing log file is an empty result, not an error.
func (s *Store) ReadObservations(addr Address) ([]types.Observation, error) {
	if err := addr.validate(); err != nil {
		return nil, err
	}
	return readJSONL[types.Observation](filepath.Join(s.levelDir(addr), ObservationsFile))
}

// ReadReflections returns all reflections at exactly the addressed level
// in append order.
func (s *Store) ReadReflections(addr Address) ([]types.Reflection, error) {
	if err := addr.validate(); err != nil {
		return nil, err
	}
	return readJSONL[types.Reflection](filepath.Join(s.levelDir(addr), ReflectionsFile))
}

// ReadDecisions returns all decisions at exactly the addressed level,
// merged so that outcome updates for the same decision id resolve
// latest-by-update-time wins.
func (s *Store) ReadDecisions(addr Address) ([]types.Decision, error) {
	if err := addr.validate(); err != nil {
		return nil, err
	}
	records, err := readJSONL[types.Decision](filepath.Join(s.levelDir(addr), DecisionsFile))
	if err != nil {
		return nil, err
	}
	return mergeDecisions(records), nil
}

// ReadArtifacts returns all artifact records at exactly the addressed level.
func (s *Store) ReadArtifacts(addr Address) ([]types.Artifact, error) {
	if err := addr.validate(); err != nil {
		return nil, err
	}
	return readJSONL[types.Artifact](filepath.Join(s.levelDir(addr), ArtifactsFile))
}

// StageAddresses lists the per-stage addresses of a run in sequence order.
func (s *Store) StageAddresses(runID string) ([]Address, error) {
	run, err := s.ReadRun(runID)
	if err != nil {
		return nil, err
	}
	addrs := make([]Address, 0, len(run.StageSequence))
	for _, category := range run.StageSequence {
		addrs = append(addrs, Address{RunID: runID, Stage: category})
	}
	return addrs, nil
}

// mergeDecisions folds outcome updates: the record with the latest
// UpdatedAt (falling back to Timestamp) wins per decision id, preserving
// first-seen order.
func mergeDecisions(records []types.Decision) []types.Decision {
	byID := make(map[string]int)
	var merged []types.Decision
	for _, rec := range records {
		if idx, ok := byID[rec.ID]; ok {
			if effectiveTime(rec).After(effectiveTime(merged[idx])) {
				merged[idx] = rec
			}
			continue
		}
		byID[rec.ID] = len(merged)
		merged = append(merged, rec)
	}
	return merged
}

func effectiveTime(d types.Decision) time.Time {
	if !d.UpdatedAt.IsZero() {
		return d.UpdatedAt
	}
	return d.Timestamp
}

func sameSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// readJSON loads a whole document. A missing file maps to NotFoundError;
// corruption of a whole document is an error, unlike per-line log corruption.
func readJSON(path string, v any, kind, id string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &types.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt %s document %s: %w", kind, path, err)
	}
	return nil
}
