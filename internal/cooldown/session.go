// Package cooldown closes out a cycle in two phases: prepare transitions
// the cycle into cooldown and snapshots a synthesis input; complete
// applies accepted proposals and seals the cycle. Prepare is a
// compensating transaction: any failure after the state transition rolls
// the cycle back to exactly its pre-call state.
package cooldown

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boshu2/cadence/internal/cycle"
	"github.com/boshu2/cadence/internal/knowledge"
	"github.com/boshu2/cadence/internal/tokens"
	"github.com/boshu2/cadence/internal/types"
)

// AlertLevel grades budget utilization in the cooldown report.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Utilization alert thresholds, in percent used.
const (
	criticalThreshold = 100
	warningThreshold  = 90
	infoThreshold     = 75
)

// lowCompletionRate is the percentage below which completion counts as
// low and a cautionary learning is captured.
const lowCompletionRate = 50.0

// Report is the budget and completion summary built during prepare.
type Report struct {
	// CycleID is the cycle being closed out.
	CycleID string `json:"cycle_id"`

	// BudgetTokens is the cycle's token allowance.
	BudgetTokens int `json:"budget_tokens"`

	// TokensUsed is the recorded spend from the ledger.
	TokensUsed int `json:"tokens_used"`

	// UtilizationPct is TokensUsed over BudgetTokens, in percent.
	// Zero when the budget is untracked.
	UtilizationPct float64 `json:"utilization_pct"`

	// Alert grades the utilization.
	Alert AlertLevel `json:"alert"`

	// CompletionRate is the percentage of bets marked complete.
	CompletionRate float64 `json:"completion_rate"`

	// BetOutcomes summarizes each bet's final outcome.
	BetOutcomes map[string]types.BetOutcome `json:"bet_outcomes,omitempty"`
}

// PrepareResult is returned by Prepare.
type PrepareResult struct {
	// Report is the cooldown report.
	Report Report `json:"report"`

	// SynthesisInputID is always generated, configured directory or not.
	SynthesisInputID string `json:"synthesis_input_id"`

	// SynthesisInputPath is where the input snapshot was written; empty
	// when no synthesis directory is configured.
	SynthesisInputPath string `json:"synthesis_input_path,omitempty"`

	// UnmatchedBets lists outcome overrides whose bet id was unknown.
	UnmatchedBets []string `json:"unmatched_bets,omitempty"`
}

// CompleteResult is returned by Complete.
type CompleteResult struct {
	// AppliedProposals lists proposal ids that were applied.
	AppliedProposals []string `json:"applied_proposals,omitempty"`

	// CautionaryLearnings lists learning ids captured automatically.
	CautionaryLearnings []string `json:"cautionary_learnings,omitempty"`
}

// Session closes out cycles.
type Session struct {
	// Manager drives cycle state.
	Manager *cycle.Manager

	// Knowledge is the learning store proposals are applied to.
	Knowledge knowledge.Store

	// Ledger supplies recorded token usage.
	Ledger tokens.Ledger

	// SynthesisRoot is the directory synthesis inputs and results live
	// in; empty disables snapshot persistence.
	SynthesisRoot string

	// Depth is the session's configured synthesis depth, used when a
	// Prepare call passes none.
	Depth types.SynthesisDepth
}

// NewSession wires a session from its collaborators.
func NewSession(mgr *cycle.Manager, store knowledge.Store, ledger tokens.Ledger, synthesisRoot string, depth types.SynthesisDepth) *Session {
	if depth == "" {
		depth = types.SynthesisStandard
	}
	return &Session{
		Manager:       mgr,
		Knowledge:     store,
		Ledger:        ledger,
		SynthesisRoot: synthesisRoot,
		Depth:         depth,
	}
}

// Prepare applies bet outcome overrides, moves the cycle into cooldown,
// builds the report, and persists a synthesis input snapshot. Unknown bet
// ids in outcomes are reported, not errors. Any failure after the state
// transition restores the cycle's exact pre-call state before the error
// propagates.
func (s *Session) Prepare(cycleID string, outcomes map[string]types.BetOutcome, depth types.SynthesisDepth) (*PrepareResult, error) {
	if depth == "" {
		depth = s.Depth
	}
	if !types.ValidSynthesisDepth(depth) {
		return nil, &types.ValidationError{
			Field:   "depth",
			Message: fmt.Sprintf("invalid synthesis depth %q", depth),
		}
	}

	unmatched, err := s.Manager.ApplyOutcomes(cycleID, outcomes)
	if err != nil {
		return nil, err
	}

	c, err := s.Manager.Get(cycleID)
	if err != nil {
		return nil, err
	}
	switch c.State {
	case types.CyclePlanning, types.CycleActive:
	default:
		return nil, &types.StateTransitionError{CycleID: c.ID, From: c.State, To: types.CycleCooldown}
	}

	// Everything past this write is compensated on failure.
	prevState := c.State
	c.State = types.CycleCooldown
	c.UpdatedAt = time.Now().UTC()
	if err := s.Manager.Cycles.Write(c); err != nil {
		return nil, err
	}

	result, err := s.finishPrepare(c, depth, unmatched)
	if err != nil {
		s.rollback(cycleID, prevState)
		return nil, err
	}
	return result, nil
}

func (s *Session) finishPrepare(c *types.Cycle, depth types.SynthesisDepth, unmatched []string) (*PrepareResult, error) {
	report, err := s.buildReport(c)
	if err != nil {
		return nil, err
	}

	inputID := types.NewID("syn")
	result := &PrepareResult{
		Report:           report,
		SynthesisInputID: inputID,
		UnmatchedBets:    unmatched,
	}

	if s.SynthesisRoot == "" {
		return result, nil
	}

	learnings, err := s.Knowledge.Query(knowledge.Filter{})
	if err != nil {
		return nil, err
	}
	input := types.SynthesisInput{
		ID:        inputID,
		CycleID:   c.ID,
		Depth:     depth,
		Report:    report,
		Learnings: learnings,
		CreatedAt: time.Now().UTC(),
	}

	path := filepath.Join(s.SynthesisRoot, "pending-"+inputID+".json")
	if err := writeJSON(path, &input); err != nil {
		return nil, err
	}
	result.SynthesisInputPath = path
	return result, nil
}

// rollback restores the cycle state captured before prepare's first side
// effect. A cycle that vanished mid-flight leaves nothing to restore.
func (s *Session) rollback(cycleID string, prevState types.CycleState) {
	c, err := s.Manager.Get(cycleID)
	if err != nil {
		return
	}
	c.State = prevState
	c.UpdatedAt = time.Now().UTC()
	_ = s.Manager.Cycles.Write(c) //nolint:errcheck // original error wins
}

// Complete applies accepted proposals from the synthesis result, captures
// automatic cautionary learnings, and seals the cycle. A missing result
// file means zero proposals, not an error.
func (s *Session) Complete(cycleID, synthesisInputID string, acceptedProposalIDs []string) (*CompleteResult, error) {
	c, err := s.Manager.Get(cycleID)
	if err != nil {
		return nil, err
	}
	if c.State != types.CycleCooldown {
		return nil, &types.StateTransitionError{CycleID: c.ID, From: c.State, To: types.CycleComplete}
	}

	result := &CompleteResult{}

	if synthesisInputID != "" {
		proposals, err := s.loadProposals(synthesisInputID)
		if err != nil {
			return nil, err
		}
		accepted := make(map[string]bool, len(acceptedProposalIDs))
		for _, id := range acceptedProposalIDs {
			accepted[id] = true
		}
		for _, p := range proposals {
			if !accepted[p.ID] {
				continue
			}
			if err := s.applyProposal(p); err != nil {
				return nil, err
			}
			result.AppliedProposals = append(result.AppliedProposals, p.ID)
		}
	}

	cautionary, err := s.captureCautionaryLearnings(c)
	if err != nil {
		return nil, err
	}
	result.CautionaryLearnings = cautionary

	c.State = types.CycleComplete
	c.UpdatedAt = time.Now().UTC()
	if err := s.Manager.Cycles.Write(c); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Session) loadProposals(inputID string) ([]types.SynthesisProposal, error) {
	if s.SynthesisRoot == "" {
		return nil, nil
	}
	path := filepath.Join(s.SynthesisRoot, "result-"+inputID+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil // synthesis never ran; proceed with zero proposals
	}
	if err != nil {
		return nil, err
	}
	var res types.SynthesisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("corrupt synthesis result %s: %w", path, err)
	}
	return res.Proposals, nil
}

func (s *Session) applyProposal(p types.SynthesisProposal) error {
	switch p.Kind {
	case types.ProposalNewLearning:
		if p.Learning == nil {
			return &types.ValidationError{Field: "learning", Message: "new-learning proposal without a learning"}
		}
		l := *p.Learning
		if l.ID == "" {
			l.ID = types.NewID("lrn")
		}
		return s.Knowledge.Capture(&l)
	case types.ProposalArchive:
		return s.Knowledge.ArchiveLearning(p.LearningID, p.Reason)
	default:
		return &types.ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown proposal kind %q", p.Kind),
		}
	}
}

// captureCautionaryLearnings fires on a low completion rate or an
// over-budget token spend, independent of any synthesis result.
func (s *Session) captureCautionaryLearnings(c *types.Cycle) ([]string, error) {
	report, err := s.buildReport(c)
	if err != nil {
		return nil, err
	}

	var captured []string
	if len(c.Bets) > 0 && report.CompletionRate < lowCompletionRate {
		l := &types.Learning{
			ID:       types.NewID("lrn"),
			Tier:     types.LearningTierBronze,
			Category: "cycle-planning",
			Content: fmt.Sprintf("Cycle %s completed only %.0f%% of its bets; appetites may be oversized for the budget.",
				c.ID, report.CompletionRate),
			Confidence: 0.6,
			Permanence: types.PermanenceOperational,
			Evidence:   []string{c.ID},
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.Knowledge.Capture(l); err != nil {
			return captured, err
		}
		captured = append(captured, l.ID)
	}
	if report.BudgetTokens > 0 && report.TokensUsed > report.BudgetTokens {
		l := &types.Learning{
			ID:       types.NewID("lrn"),
			Tier:     types.LearningTierBronze,
			Category: "budget",
			Content: fmt.Sprintf("Cycle %s spent %d tokens against a %d budget (%.0f%%); reserve more headroom next cycle.",
				c.ID, report.TokensUsed, report.BudgetTokens, report.UtilizationPct),
			Confidence: 0.7,
			Permanence: types.PermanenceOperational,
			Evidence:   []string{c.ID},
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.Knowledge.Capture(l); err != nil {
			return captured, err
		}
		captured = append(captured, l.ID)
	}
	return captured, nil
}

// buildReport enriches budget utilization from the recorded token usage
// and computes the bet completion rate.
func (s *Session) buildReport(c *types.Cycle) (Report, error) {
	report := Report{
		CycleID:        c.ID,
		BudgetTokens:   c.Budget.Tokens,
		CompletionRate: cycle.CompletionRate(c),
		BetOutcomes:    make(map[string]types.BetOutcome, len(c.Bets)),
		Alert:          AlertNone,
	}
	for _, b := range c.Bets {
		report.BetOutcomes[b.ID] = b.Outcome
	}

	if s.Ledger != nil {
		total, err := s.Ledger.CycleUsage(c.ID)
		if err != nil {
			return Report{}, err
		}
		report.TokensUsed = total.Tokens()
	}

	if report.BudgetTokens > 0 {
		report.UtilizationPct = float64(report.TokensUsed) / float64(report.BudgetTokens) * 100
		switch {
		case report.UtilizationPct >= criticalThreshold:
			report.Alert = AlertCritical
		case report.UtilizationPct >= warningThreshold:
			report.Alert = AlertWarning
		case report.UtilizationPct >= infoThreshold:
			report.Alert = AlertInfo
		}
	}

	return report, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}
