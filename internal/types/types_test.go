package types

import (
	"strings"
	"testing"
	"time"
)

func TestObservationValidate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		obs     Observation
		wantErr string
	}{
		{
			name: "valid decision",
			obs:  Observation{ID: "obs-1", Kind: ObservationDecision, Content: "chose A", Timestamp: now},
		},
		{
			name:    "missing content",
			obs:     Observation{ID: "obs-1", Kind: ObservationInsight, Timestamp: now},
			wantErr: "content",
		},
		{
			name:    "missing timestamp",
			obs:     Observation{ID: "obs-1", Kind: ObservationInsight, Content: "x"},
			wantErr: "timestamp",
		},
		{
			name:    "friction without taxonomy",
			obs:     Observation{ID: "obs-1", Kind: ObservationFriction, Content: "x", Timestamp: now},
			wantErr: "taxonomy",
		},
		{
			name: "friction with taxonomy",
			obs:  Observation{ID: "obs-1", Kind: ObservationFriction, Content: "x", Timestamp: now, Taxonomy: "tooling"},
		},
		{
			name:    "gap with bad severity",
			obs:     Observation{ID: "obs-1", Kind: ObservationGap, Content: "x", Timestamp: now, Severity: "huge"},
			wantErr: "severity",
		},
		{
			name: "gap with valid severity",
			obs:  Observation{ID: "obs-1", Kind: ObservationGap, Content: "x", Timestamp: now, Severity: GapSeverityBlocking},
		},
		{
			name:    "unknown kind",
			obs:     Observation{ID: "obs-1", Kind: "hunch", Content: "x", Timestamp: now},
			wantErr: "unknown observation kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestReflectionValidate(t *testing.T) {
	now := time.Now().UTC()
	correct := true

	tests := []struct {
		name    string
		refl    Reflection
		wantErr string
	}{
		{
			name: "valid calibration",
			refl: Reflection{ID: "refl-1", Kind: ReflectionCalibration, Timestamp: now, Bias: BiasOverconfidence},
		},
		{
			name:    "calibration without bias",
			refl:    Reflection{ID: "refl-1", Kind: ReflectionCalibration, Timestamp: now},
			wantErr: "bias",
		},
		{
			name: "valid validation",
			refl: Reflection{ID: "refl-1", Kind: ReflectionValidation, Timestamp: now, Correct: &correct},
		},
		{
			name:    "validation without verdict",
			refl:    Reflection{ID: "refl-1", Kind: ReflectionValidation, Timestamp: now},
			wantErr: "verdict",
		},
		{
			name:    "resolution without path",
			refl:    Reflection{ID: "refl-1", Kind: ReflectionResolution, Timestamp: now},
			wantErr: "path",
		},
		{
			name: "synthesis needs no extras",
			refl: Reflection{ID: "refl-1", Kind: ReflectionSynthesis, Timestamp: now},
		},
		{
			name:    "unknown kind",
			refl:    Reflection{ID: "refl-1", Kind: "musing", Timestamp: now},
			wantErr: "unknown reflection kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.refl.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCycleValidateAppetiteInvariant(t *testing.T) {
	c := Cycle{
		ID:              "cyc-1",
		State:           CyclePlanning,
		CooldownReserve: 10,
		Bets: []Bet{
			{ID: "bet-1", Appetite: 50},
			{ID: "bet-2", Appetite: 40},
		},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() at exactly 100 = %v, want nil", err)
	}

	c.Bets = append(c.Bets, Bet{ID: "bet-3", Appetite: 1})
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() over 100 = nil, want error")
	}
}

func TestCycleKataFor(t *testing.T) {
	c := Cycle{
		ID:    "cyc-1",
		State: CyclePlanning,
		Bets: []Bet{
			{ID: "bet-1", Appetite: 10, Kata: "feature"},
			{ID: "bet-2", Appetite: 10},
		},
		PipelineMappings: []PipelineMapping{
			{BetID: "bet-2", Kata: "spike"},
			{BetID: "bet-1", Kata: "ignored"},
		},
	}

	if got := c.KataFor("bet-1"); got != "feature" {
		t.Errorf("KataFor(bet-1) = %q, want bet-level assignment to win", got)
	}
	if got := c.KataFor("bet-2"); got != "spike" {
		t.Errorf("KataFor(bet-2) = %q, want mapping fallback", got)
	}
	if got := c.KataFor("bet-9"); got != "" {
		t.Errorf("KataFor(unknown) = %q, want empty", got)
	}
}

func TestDecisionValidateConfidenceBounds(t *testing.T) {
	d := Decision{ID: "dec-1", Type: "capability-analysis", Confidence: 1.5}
	if err := d.Validate(); err == nil {
		t.Fatal("Validate() with confidence 1.5 = nil, want error")
	}
	d.Confidence = 1
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate() with confidence 1 = %v, want nil", err)
	}
}

func TestNewID(t *testing.T) {
	id := NewID("cyc")
	if !strings.HasPrefix(id, "cyc-") {
		t.Fatalf("NewID prefix = %q, want cyc-", id)
	}
	if len(id) != len("cyc-")+8 {
		t.Fatalf("NewID length = %d, want %d", len(id), len("cyc-")+8)
	}
	if NewID("cyc") == id {
		t.Fatal("two NewID calls returned the same id")
	}
}
