package cycle

import (
	"fmt"
	"time"

	"github.com/boshu2/cadence/internal/registry"
	"github.com/boshu2/cadence/internal/runtree"
	"github.com/boshu2/cadence/internal/types"
)

// Manager drives the cycle lifecycle against the cycle store, the kata
// registry, and the run tree.
type Manager struct {
	// Cycles persists cycle documents.
	Cycles *Store

	// Runs builds run trees at start.
	Runs *runtree.Store

	// Registry resolves kata assignments.
	Registry *registry.Registry
}

// NewManager wires a manager from its collaborators.
func NewManager(cycles *Store, runs *runtree.Store, reg *registry.Registry) *Manager {
	return &Manager{Cycles: cycles, Runs: runs, Registry: reg}
}

// Create makes a new cycle in planning state with the default cooldown
// reserve unless one is given.
func (m *Manager) Create(name string, budget types.Budget, reserve float64) (*types.Cycle, error) {
	if reserve == 0 {
		reserve = types.DefaultCooldownReserve
	}
	c := &types.Cycle{
		ID:              types.NewID("cyc"),
		Name:            name,
		Budget:          budget,
		CooldownReserve: reserve,
		State:           types.CyclePlanning,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.Cycles.Write(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads a cycle.
func (m *Manager) Get(cycleID string) (*types.Cycle, error) {
	return m.Cycles.Read(cycleID)
}

// AddBet appends a bet during planning. The appetite invariant
// (sum of appetites + cooldown reserve <= 100) is checked against the
// whole would-be bet list before anything is persisted; a rejected add
// leaves the cycle unchanged.
func (m *Manager) AddBet(cycleID, description string, appetite float64, kata string) (*types.Bet, error) {
	c, err := m.Cycles.Read(cycleID)
	if err != nil {
		return nil, err
	}
	if c.State != types.CyclePlanning {
		return nil, &types.StateTransitionError{CycleID: c.ID, From: c.State, To: c.State}
	}
	if appetite <= 0 {
		return nil, &types.ValidationError{Field: "appetite", Message: "bet appetite must be positive"}
	}
	if kata != "" && m.Registry != nil {
		if _, err := m.Registry.GetKata(kata); err != nil {
			return nil, &types.ValidationError{
				Field:   "kata",
				Message: fmt.Sprintf("unknown kata %q", kata),
			}
		}
	}

	bet := types.Bet{
		ID:          types.NewID("bet"),
		Description: description,
		Appetite:    appetite,
		Outcome:     types.BetPending,
		Kata:        kata,
	}
	if total := c.AppetiteTotal() + appetite; total+c.CooldownReserve > 100 {
		return nil, &types.ValidationError{
			Field: "appetite",
			Message: fmt.Sprintf("adding appetite %.1f would bring total to %.1f with reserve %.1f, exceeding 100",
				appetite, total, c.CooldownReserve),
		}
	}

	c.Bets = append(c.Bets, bet)
	c.UpdatedAt = time.Now().UTC()
	if err := m.Cycles.Write(c); err != nil {
		return nil, err
	}
	return &bet, nil
}

// Start moves a planning cycle to active, creating one run tree per bet.
// The move is all-or-nothing: every bet must resolve a kata before any
// state mutation or run creation happens; a single unassigned bet leaves
// the cycle untouched and creates zero runs.
func (m *Manager) Start(cycleID string, mappings []types.PipelineMapping) (*types.Cycle, error) {
	c, err := m.Cycles.Read(cycleID)
	if err != nil {
		return nil, err
	}
	if c.State != types.CyclePlanning {
		return nil, &types.StateTransitionError{CycleID: c.ID, From: c.State, To: types.CycleActive}
	}
	if len(c.Bets) == 0 {
		return nil, &types.ValidationError{Field: "bets", Message: "cannot start a cycle with no bets"}
	}

	c.PipelineMappings = append(c.PipelineMappings, mappings...)

	// Validate fully before mutating anything.
	katas := make(map[string]registry.Kata, len(c.Bets))
	for _, bet := range c.Bets {
		name := c.KataFor(bet.ID)
		if name == "" {
			return nil, &types.ValidationError{
				Field:   "kata",
				Message: fmt.Sprintf("bet %s has no kata assignment", bet.ID),
			}
		}
		kata, err := m.Registry.GetKata(name)
		if err != nil {
			return nil, &types.ValidationError{
				Field:   "kata",
				Message: fmt.Sprintf("bet %s references unknown kata %q", bet.ID, name),
			}
		}
		katas[bet.ID] = kata
	}

	now := time.Now().UTC()
	for i := range c.Bets {
		kata := katas[c.Bets[i].ID]
		run := &types.Run{
			ID:            types.NewID("run"),
			CycleID:       c.ID,
			BetID:         c.Bets[i].ID,
			StageSequence: kata.Categories,
			Status:        types.RunStatusPending,
			CreatedAt:     now,
		}
		if err := m.Runs.CreateRunTree(run); err != nil {
			return nil, fmt.Errorf("create run tree for bet %s: %w", c.Bets[i].ID, err)
		}
		c.Bets[i].RunID = run.ID
		c.Bets[i].Kata = kata.Name
	}

	c.State = types.CycleActive
	c.UpdatedAt = now
	if err := m.Cycles.Write(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyOutcomes sets bet outcomes from the given map. Unknown bet ids are
// collected and reported, not errors; the cycle is written once.
func (m *Manager) ApplyOutcomes(cycleID string, outcomes map[string]types.BetOutcome) (unmatched []string, err error) {
	c, err := m.Cycles.Read(cycleID)
	if err != nil {
		return nil, err
	}
	changed := false
	for betID, outcome := range outcomes {
		bet := c.FindBet(betID)
		if bet == nil {
			unmatched = append(unmatched, betID)
			continue
		}
		bet.Outcome = outcome
		changed = true
	}
	if changed {
		c.UpdatedAt = time.Now().UTC()
		if err := m.Cycles.Write(c); err != nil {
			return unmatched, err
		}
	}
	return unmatched, nil
}

// CompletionRate is the percentage of bets with a complete outcome.
// Partial and abandoned bets count against the rate.
func CompletionRate(c *types.Cycle) float64 {
	if len(c.Bets) == 0 {
		return 0
	}
	complete := 0
	for _, b := range c.Bets {
		if b.Outcome == types.BetComplete {
			complete++
		}
	}
	return float64(complete) / float64(len(c.Bets)) * 100
}
