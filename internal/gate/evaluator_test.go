package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boshu2/cadence/internal/types"
)

func TestEvaluateDeclarativeConditions(t *testing.T) {
	tests := []struct {
		name       string
		gate       types.Gate
		gctx       Context
		wantPassed bool
	}{
		{
			name: "artifact present",
			gate: types.Gate{Required: true, Conditions: []types.GateCondition{
				{Type: types.ConditionArtifactExists, Target: "research-synthesis"},
			}},
			gctx:       Context{AvailableArtifacts: []string{"research-synthesis"}},
			wantPassed: true,
		},
		{
			name: "artifact missing fails closed",
			gate: types.Gate{Required: true, Conditions: []types.GateCondition{
				{Type: types.ConditionArtifactExists, Target: "research-synthesis"},
			}},
			gctx:       Context{},
			wantPassed: false,
		},
		{
			name: "predecessor complete",
			gate: types.Gate{Required: true, Conditions: []types.GateCondition{
				{Type: types.ConditionPredecessorComplete, Target: "research"},
			}},
			gctx:       Context{CompletedStages: []string{"research"}},
			wantPassed: true,
		},
		{
			name: "human approval never assumed",
			gate: types.Gate{Required: true, Conditions: []types.GateCondition{
				{Type: types.ConditionHumanApproved},
			}},
			gctx:       Context{},
			wantPassed: false,
		},
		{
			name: "schema-valid always passes",
			gate: types.Gate{Required: true, Conditions: []types.GateCondition{
				{Type: types.ConditionSchemaValid},
			}},
			gctx:       Context{},
			wantPassed: true,
		},
		{
			name: "unknown condition type fails",
			gate: types.Gate{Required: true, Conditions: []types.GateCondition{
				{Type: "vibes"},
			}},
			gctx:       Context{},
			wantPassed: false,
		},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Evaluate(context.Background(), tt.gate, tt.gctx)
			if err != nil {
				t.Fatalf("Evaluate() = %v", err)
			}
			if result.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v (%+v)", result.Passed, tt.wantPassed, result.Conditions)
			}
		})
	}
}

func TestEvaluateNeverShortCircuits(t *testing.T) {
	g := types.Gate{Required: true, Conditions: []types.GateCondition{
		{Type: types.ConditionArtifactExists, Target: "missing-artifact"},
		{Type: types.ConditionPredecessorComplete, Target: "research"},
		{Type: types.ConditionSchemaValid},
	}}

	e := NewEvaluator()
	result, err := e.Evaluate(context.Background(), g, Context{CompletedStages: []string{"research"}})
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	if len(result.Conditions) != 3 {
		t.Fatalf("condition results = %d, want all 3 despite early failure", len(result.Conditions))
	}
	if result.Conditions[0].Passed || !result.Conditions[1].Passed || !result.Conditions[2].Passed {
		t.Errorf("per-condition results = %+v, want fail/pass/pass", result.Conditions)
	}
}

func TestEvaluateOptionalGateReportsButPasses(t *testing.T) {
	g := types.Gate{Required: false, Conditions: []types.GateCondition{
		{Type: types.ConditionArtifactExists, Target: "missing-artifact"},
	}}

	e := NewEvaluator()
	result, err := e.Evaluate(context.Background(), g, Context{})
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if !result.Passed {
		t.Error("optional gate Passed = false, want true")
	}
	if result.Conditions[0].Passed {
		t.Error("condition detail should still report the failure")
	}
}

func TestCommandPasses(t *testing.T) {
	e := NewEvaluator()

	g := types.Gate{Required: true, Conditions: []types.GateCondition{
		{Type: types.ConditionCommandPasses, Target: "echo ok"},
	}}
	result, err := e.Evaluate(context.Background(), g, Context{})
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if !result.Passed {
		t.Errorf("Passed = false, want true: %+v", result.Conditions)
	}
	if !strings.Contains(result.Conditions[0].Detail, "ok") {
		t.Errorf("Detail = %q, want captured output", result.Conditions[0].Detail)
	}
}

func TestCommandNonZeroExitIsFailedCondition(t *testing.T) {
	e := NewEvaluator()

	g := types.Gate{Required: true, Conditions: []types.GateCondition{
		{Type: types.ConditionCommandPasses, Target: "echo boom >&2; exit 3"},
	}}
	result, err := e.Evaluate(context.Background(), g, Context{})
	if err != nil {
		t.Fatalf("Evaluate() = %v, want failed condition not error", err)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	detail := result.Conditions[0].Detail
	if !strings.Contains(detail, "exit status 3") || !strings.Contains(detail, "boom") {
		t.Errorf("Detail = %q, want exit status and stderr", detail)
	}
}

func TestCommandTimeoutIsHardError(t *testing.T) {
	e := &Evaluator{Timeout: 50 * time.Millisecond}

	g := types.Gate{Required: true, Conditions: []types.GateCondition{
		{Type: types.ConditionCommandPasses, Target: "sleep 5"},
	}}
	_, err := e.Evaluate(context.Background(), g, Context{})
	var gateErr *types.GateEvaluationError
	if !errors.As(err, &gateErr) {
		t.Fatalf("Evaluate(timeout) = %v, want GateEvaluationError", err)
	}
	if gateErr.Command != "sleep 5" {
		t.Errorf("GateEvaluationError.Command = %q, want the command", gateErr.Command)
	}
}
