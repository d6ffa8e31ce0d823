package runtree

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/boshu2/cadence/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(WithRoot(t.TempDir()))
}

func newTestRun(t *testing.T, s *Store, sequence ...string) *types.Run {
	t.Helper()
	if len(sequence) == 0 {
		sequence = []string{"research", "build"}
	}
	run := &types.Run{
		ID:            types.NewID("run"),
		StageSequence: sequence,
		Status:        types.RunStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.CreateRunTree(run); err != nil {
		t.Fatalf("CreateRunTree() = %v", err)
	}
	return run
}

func TestCreateRunTreeInitializesPendingStages(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s, "research", "plan", "build")

	got, err := s.ReadRun(run.ID)
	if err != nil {
		t.Fatalf("ReadRun() = %v", err)
	}
	if len(got.StageSequence) != 3 {
		t.Fatalf("stage sequence length = %d, want 3", len(got.StageSequence))
	}

	for _, category := range run.StageSequence {
		state, err := s.ReadStage(run.ID, category)
		if err != nil {
			t.Fatalf("ReadStage(%s) = %v", category, err)
		}
		if state.Status != types.RunStatusPending {
			t.Errorf("stage %s status = %q, want pending", category, state.Status)
		}
	}
}

func TestRunDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)

	t.Run("all fields set", func(t *testing.T) {
		run := &types.Run{
			ID:            types.NewID("run"),
			CycleID:       "cyc-a1b2c3",
			BetID:         "bet-d4e5f6",
			StageSequence: []string{"research", "build"},
			CurrentStage:  "build",
			Status:        types.RunStatusRunning,
			CreatedAt:     time.Date(2026, 8, 24, 10, 30, 0, 123456789, time.UTC),
			UpdatedAt:     time.Date(2026, 8, 24, 11, 0, 0, 987654321, time.UTC),
		}
		if err := s.CreateRunTree(run); err != nil {
			t.Fatalf("CreateRunTree() = %v", err)
		}
		got, err := s.ReadRun(run.ID)
		if err != nil {
			t.Fatalf("ReadRun() = %v", err)
		}
		if !reflect.DeepEqual(got, run) {
			t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, run)
		}
	})

	t.Run("optional fields unset", func(t *testing.T) {
		run := &types.Run{
			ID:            types.NewID("run"),
			StageSequence: []string{"build"},
			Status:        types.RunStatusPending,
			CreatedAt:     time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC),
		}
		if err := s.CreateRunTree(run); err != nil {
			t.Fatalf("CreateRunTree() = %v", err)
		}
		got, err := s.ReadRun(run.ID)
		if err != nil {
			t.Fatalf("ReadRun() = %v", err)
		}
		if !reflect.DeepEqual(got, run) {
			t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, run)
		}
	})

	t.Run("after write run", func(t *testing.T) {
		run := newTestRun(t, s)
		run.CurrentStage = "research"
		run.Status = types.RunStatusRunning
		if err := s.WriteRun(run); err != nil {
			t.Fatalf("WriteRun() = %v", err)
		}
		got, err := s.ReadRun(run.ID)
		if err != nil {
			t.Fatalf("ReadRun() = %v", err)
		}
		// WriteRun stamps UpdatedAt on the document it was given, so the
		// in-memory run is the expected stored form.
		if !reflect.DeepEqual(got, run) {
			t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, run)
		}
	})
}

func TestReadRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadRun("run-missing")
	var notFound *types.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("ReadRun(missing) = %v, want NotFoundError", err)
	}
	if notFound.Kind != "run" {
		t.Errorf("NotFoundError.Kind = %q, want run", notFound.Kind)
	}
}

func TestWriteRunRejectsSequenceChange(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s, "research", "build")

	run.StageSequence = []string{"research", "review"}
	err := s.WriteRun(run)
	var validation *types.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("WriteRun(changed sequence) = %v, want ValidationError", err)
	}

	// The stored document is untouched.
	got, err := s.ReadRun(run.ID)
	if err != nil {
		t.Fatalf("ReadRun() = %v", err)
	}
	if got.StageSequence[1] != "build" {
		t.Errorf("stored sequence = %v, want original preserved", got.StageSequence)
	}
}

func TestLogsAtDifferentLevelsAreNotMerged(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s)
	now := time.Now().UTC()

	runLevel := Address{RunID: run.ID}
	stageLevel := Address{RunID: run.ID, Stage: "research"}

	if err := s.AppendObservation(runLevel, &types.Observation{
		ID: "obs-run", Kind: types.ObservationInsight, Content: "run-level", Timestamp: now,
	}); err != nil {
		t.Fatalf("AppendObservation(run) = %v", err)
	}
	if err := s.AppendObservation(stageLevel, &types.Observation{
		ID: "obs-stage", Kind: types.ObservationInsight, Content: "stage-level", Timestamp: now,
	}); err != nil {
		t.Fatalf("AppendObservation(stage) = %v", err)
	}

	atRun, err := s.ReadObservations(runLevel)
	if err != nil {
		t.Fatalf("ReadObservations(run) = %v", err)
	}
	if len(atRun) != 1 || atRun[0].ID != "obs-run" {
		t.Errorf("run-level observations = %+v, want only obs-run", atRun)
	}

	atStage, err := s.ReadObservations(stageLevel)
	if err != nil {
		t.Fatalf("ReadObservations(stage) = %v", err)
	}
	if len(atStage) != 1 || atStage[0].ID != "obs-stage" {
		t.Errorf("stage-level observations = %+v, want only obs-stage", atStage)
	}
}

func TestAppendObservationRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s)

	err := s.AppendObservation(Address{RunID: run.ID}, &types.Observation{
		ID: "obs-1", Kind: types.ObservationFriction, Content: "x", Timestamp: time.Now().UTC(),
	})
	var validation *types.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("AppendObservation(friction without taxonomy) = %v, want ValidationError", err)
	}

	// Nothing was appended.
	obs, err := s.ReadObservations(Address{RunID: run.ID})
	if err != nil {
		t.Fatalf("ReadObservations() = %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("observations after rejected append = %d, want 0", len(obs))
	}
}

func TestReadDecisionsMergesLatestOutcome(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s)
	addr := Address{RunID: run.ID, Stage: "research"}
	base := time.Now().UTC()

	records := []types.Decision{
		{ID: "dec-1", Type: "capability-analysis", Confidence: 0.9, Timestamp: base},
		{ID: "dec-2", Type: "capability-analysis", Confidence: 0.5, Timestamp: base},
		{ID: "dec-1", Type: "capability-analysis", Confidence: 0.9, Timestamp: base,
			Outcome: "stale", UpdatedAt: base.Add(time.Minute)},
		{ID: "dec-1", Type: "capability-analysis", Confidence: 0.9, Timestamp: base,
			Outcome: "final", UpdatedAt: base.Add(2 * time.Minute)},
	}
	for i := range records {
		if err := s.AppendDecision(addr, &records[i]); err != nil {
			t.Fatalf("AppendDecision(%d) = %v", i, err)
		}
	}

	merged, err := s.ReadDecisions(addr)
	if err != nil {
		t.Fatalf("ReadDecisions() = %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("merged decisions = %d, want 2", len(merged))
	}
	// First-seen order is preserved; latest update wins per id.
	if merged[0].ID != "dec-1" || merged[0].Outcome != "final" {
		t.Errorf("merged[0] = %+v, want dec-1 with final outcome", merged[0])
	}
	if merged[1].ID != "dec-2" {
		t.Errorf("merged[1].ID = %q, want dec-2", merged[1].ID)
	}
}

func TestReadJSONLSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s)
	addr := Address{RunID: run.ID}
	now := time.Now().UTC()

	if err := s.AppendObservation(addr, &types.Observation{
		ID: "obs-1", Kind: types.ObservationInsight, Content: "first", Timestamp: now,
	}); err != nil {
		t.Fatalf("AppendObservation() = %v", err)
	}

	path := filepath.Join(s.Root, run.ID, ObservationsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	if err := s.AppendObservation(addr, &types.Observation{
		ID: "obs-2", Kind: types.ObservationInsight, Content: "second", Timestamp: now,
	}); err != nil {
		t.Fatalf("AppendObservation() = %v", err)
	}

	obs, err := s.ReadObservations(addr)
	if err != nil {
		t.Fatalf("ReadObservations() = %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("observations = %d, want 2 (garbage line skipped)", len(obs))
	}
	if obs[0].ID != "obs-1" || obs[1].ID != "obs-2" {
		t.Errorf("observation order = %s, %s; want obs-1, obs-2", obs[0].ID, obs[1].ID)
	}
}

func TestCorruptRunDocumentIsAnError(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s)

	path := filepath.Join(s.Root, run.ID, RunFile)
	if err := os.WriteFile(path, []byte("{broken"), 0600); err != nil {
		t.Fatalf("corrupt run file: %v", err)
	}

	if _, err := s.ReadRun(run.ID); err == nil {
		t.Fatal("ReadRun(corrupt) = nil, want error")
	}
}

func TestStageAddressesFollowSequenceOrder(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s, "research", "plan", "build")

	addrs, err := s.StageAddresses(run.ID)
	if err != nil {
		t.Fatalf("StageAddresses() = %v", err)
	}
	if len(addrs) != 3 {
		t.Fatalf("got %d addresses, want 3", len(addrs))
	}
	for i, category := range run.StageSequence {
		if addrs[i].Stage != category || addrs[i].RunID != run.ID {
			t.Errorf("addrs[%d] = %+v, want stage %q", i, addrs[i], category)
		}
	}
}

func TestLogAddressesCoversAllLevels(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s, "research", "build")

	if err := s.WriteFlavor(run.ID, "research", &types.FlavorState{
		Name: "deep-dive", Status: types.RunStatusPending,
	}); err != nil {
		t.Fatalf("WriteFlavor() = %v", err)
	}
	stepDir := filepath.Join(s.Root, run.ID, StagesDir, "research", FlavorsDir, "deep-dive", StepsDir, "scan")
	if err := os.MkdirAll(stepDir, 0700); err != nil {
		t.Fatalf("create step dir: %v", err)
	}

	addrs, err := s.LogAddresses(run.ID)
	if err != nil {
		t.Fatalf("LogAddresses() = %v", err)
	}

	// run + 2 stages + 1 flavor + 1 step
	if len(addrs) != 5 {
		t.Fatalf("addresses = %d, want 5: %+v", len(addrs), addrs)
	}
	if addrs[0] != (Address{RunID: run.ID}) {
		t.Errorf("addrs[0] = %+v, want run level first", addrs[0])
	}
	last := addrs[3]
	if last.Flavor != "deep-dive" {
		t.Errorf("addrs[3] = %+v, want flavor level", last)
	}
	if addrs[4].Step != "scan" {
		t.Errorf("addrs[4] = %+v, want step level", addrs[4])
	}
}

func TestAddressValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadObservations(Address{RunID: "run-1", Flavor: "f"})
	var validation *types.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("flavor address without stage = %v, want ValidationError", err)
	}

	_, err = s.ReadObservations(Address{})
	if !errors.As(err, &validation) {
		t.Fatalf("empty address = %v, want ValidationError", err)
	}
}
