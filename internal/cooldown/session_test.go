package cooldown

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/cadence/internal/cycle"
	"github.com/boshu2/cadence/internal/knowledge"
	"github.com/boshu2/cadence/internal/registry"
	"github.com/boshu2/cadence/internal/runtree"
	"github.com/boshu2/cadence/internal/tokens"
	"github.com/boshu2/cadence/internal/types"
)

type fixture struct {
	session *Session
	manager *cycle.Manager
	store   *knowledge.Memory
	ledger  *tokens.FileLedger
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New()
	require.NoError(t, reg.RegisterKata(registry.Kata{Name: "feature", Categories: []string{"research", "build"}}))

	manager := cycle.NewManager(
		cycle.NewStore(filepath.Join(dir, "cycles")),
		runtree.NewStore(runtree.WithRoot(filepath.Join(dir, "runs"))),
		reg,
	)
	store := knowledge.NewMemory()
	ledger := tokens.NewFileLedger(filepath.Join(dir, "tokens.jsonl"))
	session := NewSession(manager, store, ledger, filepath.Join(dir, "synthesis"), types.SynthesisStandard)

	return &fixture{session: session, manager: manager, store: store, ledger: ledger, dir: dir}
}

// activeCycle creates a started cycle with two bets against a 100k token budget.
func (f *fixture) activeCycle(t *testing.T) (*types.Cycle, string, string) {
	t.Helper()
	c, err := f.manager.Create("sprint", types.Budget{Tokens: 100000}, 10)
	require.NoError(t, err)
	first, err := f.manager.AddBet(c.ID, "first", 40, "feature")
	require.NoError(t, err)
	second, err := f.manager.AddBet(c.ID, "second", 40, "feature")
	require.NoError(t, err)
	c, err = f.manager.Start(c.ID, nil)
	require.NoError(t, err)
	return c, first.ID, second.ID
}

func TestPrepareBuildsReportAndSnapshot(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)

	require.NoError(t, f.ledger.Record(tokens.Usage{CycleID: c.ID, BetID: firstBet, Input: 60000, Output: 20000}))
	require.NoError(t, f.ledger.Record(tokens.Usage{CycleID: c.ID, BetID: secondBet, Input: 10000, Output: 5000}))

	result, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
		firstBet:  types.BetComplete,
		secondBet: types.BetPartial,
	}, "")
	require.NoError(t, err)

	assert.Equal(t, 95000, result.Report.TokensUsed)
	assert.InDelta(t, 95.0, result.Report.UtilizationPct, 0.01)
	assert.Equal(t, AlertWarning, result.Report.Alert)
	assert.InDelta(t, 50.0, result.Report.CompletionRate, 0.01)
	assert.NotEmpty(t, result.SynthesisInputID)
	assert.FileExists(t, result.SynthesisInputPath)

	got, err := f.manager.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CycleCooldown, got.State)

	var input types.SynthesisInput
	data, err := os.ReadFile(result.SynthesisInputPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &input))
	assert.Equal(t, result.SynthesisInputID, input.ID)
	assert.Equal(t, c.ID, input.CycleID)
}

func TestPrepareAlertLevels(t *testing.T) {
	tests := []struct {
		name  string
		used  int
		alert AlertLevel
	}{
		{"under info threshold", 50000, AlertNone},
		{"info at 75 percent", 75000, AlertInfo},
		{"warning at 90 percent", 90000, AlertWarning},
		{"critical at 100 percent", 100000, AlertCritical},
		{"critical over budget", 120000, AlertCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c, firstBet, secondBet := f.activeCycle(t)
			require.NoError(t, f.ledger.Record(tokens.Usage{CycleID: c.ID, Input: tt.used}))

			result, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
				firstBet:  types.BetComplete,
				secondBet: types.BetComplete,
			}, "")
			require.NoError(t, err)
			assert.Equal(t, tt.alert, result.Report.Alert)
		})
	}
}

func TestPrepareRejectsInvalidDepth(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.activeCycle(t)

	_, err := f.session.Prepare(c.ID, nil, "exhaustive")
	var validation *types.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "depth", validation.Field)
}

func TestPrepareRejectsCompletedCycle(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)
	_, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
		firstBet:  types.BetComplete,
		secondBet: types.BetComplete,
	}, "")
	require.NoError(t, err)
	_, err = f.session.Complete(c.ID, "", nil)
	require.NoError(t, err)

	_, err = f.session.Prepare(c.ID, nil, "")
	var transition *types.StateTransitionError
	require.ErrorAs(t, err, &transition)
}

func TestPrepareRollsBackOnSnapshotFailure(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)

	// A regular file where the synthesis directory should be makes the
	// snapshot write fail after the state transition.
	blocker := filepath.Join(f.dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	f.session.SynthesisRoot = blocker

	outcomes := map[string]types.BetOutcome{
		firstBet:  types.BetComplete,
		secondBet: types.BetAbandoned,
	}
	_, err := f.session.Prepare(c.ID, outcomes, "")
	require.Error(t, err)

	got, err := f.manager.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CycleActive, got.State, "state restored to exactly the pre-call value")
	// Outcome overrides were applied before the transition and persist.
	assert.Equal(t, types.BetComplete, got.FindBet(firstBet).Outcome)
}

func TestPrepareRollsBackPlanningCycle(t *testing.T) {
	f := newFixture(t)
	c, err := f.manager.Create("sprint", types.Budget{Tokens: 100000}, 10)
	require.NoError(t, err)
	_, err = f.manager.AddBet(c.ID, "first", 40, "feature")
	require.NoError(t, err)

	blocker := filepath.Join(f.dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	f.session.SynthesisRoot = blocker

	_, err = f.session.Prepare(c.ID, nil, "")
	require.Error(t, err)

	got, err := f.manager.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CyclePlanning, got.State, "a never-started cycle rolls back to planning, not active")
}

func TestCompleteAppliesOnlyAcceptedProposals(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)

	existing := &types.Learning{
		ID: "lrn-old", Tier: types.LearningTierBronze,
		Content: "old wisdom", Confidence: 0.5, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.Capture(existing))

	prep, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
		firstBet:  types.BetComplete,
		secondBet: types.BetComplete,
	}, "")
	require.NoError(t, err)

	res := types.SynthesisResult{
		InputID: prep.SynthesisInputID,
		Proposals: []types.SynthesisProposal{
			{ID: "prop-1", Kind: types.ProposalNewLearning, Learning: &types.Learning{
				Tier: types.LearningTierSilver, Content: "new wisdom", Confidence: 0.8,
			}},
			{ID: "prop-2", Kind: types.ProposalArchive, LearningID: "lrn-old", Reason: "superseded"},
			{ID: "prop-3", Kind: types.ProposalNewLearning, Learning: &types.Learning{
				Tier: types.LearningTierBronze, Content: "rejected wisdom", Confidence: 0.3,
			}},
		},
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	resultPath := filepath.Join(f.session.SynthesisRoot, "result-"+prep.SynthesisInputID+".json")
	require.NoError(t, os.WriteFile(resultPath, data, 0600))

	done, err := f.session.Complete(c.ID, prep.SynthesisInputID, []string{"prop-1", "prop-2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prop-1", "prop-2"}, done.AppliedProposals)

	got, err := f.manager.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CycleComplete, got.State)

	old, err := f.store.Get("lrn-old")
	require.NoError(t, err)
	assert.True(t, old.Archived)

	visible, err := f.store.Query(knowledge.Filter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "new wisdom", visible[0].Content)
}

func TestCompleteMissingResultMeansZeroProposals(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)

	prep, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
		firstBet:  types.BetComplete,
		secondBet: types.BetComplete,
	}, "")
	require.NoError(t, err)

	done, err := f.session.Complete(c.ID, prep.SynthesisInputID, []string{"prop-1"})
	require.NoError(t, err)
	assert.Empty(t, done.AppliedProposals)

	got, err := f.manager.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CycleComplete, got.State)
}

func TestCompleteCapturesCautionaryLearnings(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)

	// Over budget and only abandoned bets: both cautionary learnings fire.
	require.NoError(t, f.ledger.Record(tokens.Usage{CycleID: c.ID, Input: 105000}))
	_, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
		firstBet:  types.BetAbandoned,
		secondBet: types.BetAbandoned,
	}, "")
	require.NoError(t, err)

	done, err := f.session.Complete(c.ID, "", nil)
	require.NoError(t, err)
	require.Len(t, done.CautionaryLearnings, 2)

	learnings, err := f.store.Query(knowledge.Filter{})
	require.NoError(t, err)
	require.Len(t, learnings, 2)
	for _, l := range learnings {
		assert.Equal(t, types.LearningTierBronze, l.Tier)
		assert.Equal(t, types.PermanenceOperational, l.Permanence)
		assert.Contains(t, l.Evidence, c.ID)
	}
}

func TestCompleteRequiresCooldownState(t *testing.T) {
	f := newFixture(t)
	c, _, _ := f.activeCycle(t)

	_, err := f.session.Complete(c.ID, "", nil)
	var transition *types.StateTransitionError
	require.ErrorAs(t, err, &transition)
}

func TestExactlyFiftyPercentCompletionIsNotLow(t *testing.T) {
	f := newFixture(t)
	c, firstBet, secondBet := f.activeCycle(t)

	_, err := f.session.Prepare(c.ID, map[string]types.BetOutcome{
		firstBet:  types.BetComplete,
		secondBet: types.BetPartial,
	}, "")
	require.NoError(t, err)

	done, err := f.session.Complete(c.ID, "", nil)
	require.NoError(t, err)
	assert.Empty(t, done.CautionaryLearnings, "50%% completion within budget captures nothing")
}
