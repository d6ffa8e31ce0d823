// Package gate evaluates declarative advancement conditions. Evaluation
// never short-circuits: every condition's diagnostic is computed even when
// an early one fails, so callers always see the full picture.
package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/boshu2/cadence/internal/types"
)

const (
	// DefaultCommandTimeout bounds command-passes conditions.
	DefaultCommandTimeout = 30 * time.Second

	// OutputTruncateLimit caps captured stdout/stderr in condition detail.
	OutputTruncateLimit = 500
)

// Context carries the execution facts conditions are evaluated against.
// Missing fields fail closed: an absent artifact list fails artifact-exists
// rather than passing it.
type Context struct {
	// AvailableArtifacts lists artifact names visible at this point.
	AvailableArtifacts []string

	// CompletedStages lists stage categories that have finished.
	CompletedStages []string

	// HumanApproved is explicit human sign-off; never assumed.
	HumanApproved bool

	// WorkDir is the working directory for command-passes conditions.
	WorkDir string
}

// Evaluator evaluates gates. The zero value is usable; Timeout defaults
// to DefaultCommandTimeout.
type Evaluator struct {
	// Timeout bounds each command-passes condition.
	Timeout time.Duration
}

// NewEvaluator returns an evaluator with the default command timeout.
func NewEvaluator() *Evaluator {
	return &Evaluator{Timeout: DefaultCommandTimeout}
}

// Evaluate computes every condition independently, then combines:
// passed = !required || all(conditions). The only returned error is a
// GateEvaluationError from an unspawnable or timed-out command process;
// everything else is reported as per-condition detail.
func (e *Evaluator) Evaluate(ctx context.Context, g types.Gate, gctx Context) (types.GateResult, error) {
	result := types.GateResult{
		Required:   g.Required,
		Conditions: make([]types.ConditionResult, 0, len(g.Conditions)),
	}

	allPassed := true
	for _, cond := range g.Conditions {
		cr, err := e.evaluateCondition(ctx, cond, gctx)
		if err != nil {
			return types.GateResult{}, err
		}
		if !cr.Passed {
			allPassed = false
		}
		result.Conditions = append(result.Conditions, cr)
	}

	result.Passed = !g.Required || allPassed
	return result, nil
}

func (e *Evaluator) evaluateCondition(ctx context.Context, cond types.GateCondition, gctx Context) (types.ConditionResult, error) {
	cr := types.ConditionResult{Condition: cond}

	switch cond.Type {
	case types.ConditionArtifactExists:
		if contains(gctx.AvailableArtifacts, cond.Target) {
			cr.Passed = true
		} else {
			cr.Detail = fmt.Sprintf("artifact %q not found among available artifacts", cond.Target)
		}

	case types.ConditionPredecessorComplete:
		if contains(gctx.CompletedStages, cond.Target) {
			cr.Passed = true
		} else {
			cr.Detail = fmt.Sprintf("predecessor stage %q has not completed", cond.Target)
		}

	case types.ConditionHumanApproved:
		if gctx.HumanApproved {
			cr.Passed = true
		} else {
			cr.Detail = "human approval not granted"
		}

	case types.ConditionSchemaValid:
		// Schema validation is enforced at capture time; the condition
		// exists so gates can state the requirement explicitly.
		cr.Passed = true

	case types.ConditionCommandPasses:
		return e.runCommand(ctx, cond, gctx.WorkDir)

	default:
		cr.Detail = fmt.Sprintf("unknown condition type %q", cond.Type)
	}

	return cr, nil
}

// runCommand spawns the condition's shell command under the evaluator
// timeout. A non-zero exit or signal is a failed condition carrying
// truncated output; failure to spawn at all, or hitting the timeout,
// is a hard GateEvaluationError.
func (e *Evaluator) runCommand(ctx context.Context, cond types.GateCondition, workDir string) (types.ConditionResult, error) {
	cr := types.ConditionResult{Condition: cond}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", cond.Target)
	if workDir != "" {
		cmd.Dir = workDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cmdCtx.Err() == context.DeadlineExceeded {
		return types.ConditionResult{}, &types.GateEvaluationError{
			Command: cond.Target,
			Err:     fmt.Errorf("timed out after %s", timeout),
		}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cr.Detail = fmt.Sprintf("exit status %d: %s",
				exitErr.ExitCode(), truncateOutput(stdout.String(), stderr.String()))
			return cr, nil
		}
		// Binary or shell unavailable: propagate, do not report "not passed".
		return types.ConditionResult{}, &types.GateEvaluationError{Command: cond.Target, Err: err}
	}

	cr.Passed = true
	cr.Detail = truncateOutput(stdout.String(), stderr.String())
	return cr, nil
}

func truncateOutput(stdout, stderr string) string {
	combined := strings.TrimSpace(stdout)
	if s := strings.TrimSpace(stderr); s != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += s
	}
	if len(combined) > OutputTruncateLimit {
		combined = combined[:OutputTruncateLimit]
	}
	return combined
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
