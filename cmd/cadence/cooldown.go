package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/cadence/internal/types"
)

var (
	cooldownOutcomes []string
	cooldownDepth    string

	completeInputID  string
	completeAccepted []string
)

var cooldownCmd = &cobra.Command{
	Use:   "cooldown",
	Short: "Close out a cycle in two phases",
}

var cooldownPrepareCmd = &cobra.Command{
	Use:   "prepare <cycle-id>",
	Short: "Move a cycle into cooldown and build the budget report",
	Long: `Apply bet outcome overrides, transition the cycle to cooldown, and
write a synthesis input snapshot. Failures after the transition roll the
cycle back to its previous state.

Examples:
  cadence cooldown prepare cyc-a1b2c3 --outcome bet-d4e5f6=complete --outcome bet-g7h8i9=partial
  cadence cooldown prepare cyc-a1b2c3 --depth thorough`,
	Args: cobra.ExactArgs(1),
	RunE: runCooldownPrepare,
}

var cooldownCompleteCmd = &cobra.Command{
	Use:   "complete <cycle-id>",
	Short: "Apply accepted proposals and seal the cycle",
	Long: `Apply the accepted synthesis proposals, capture cautionary learnings,
and mark the cycle complete. A missing synthesis result means zero
proposals, not an error.

Examples:
  cadence cooldown complete cyc-a1b2c3 --input syn-j1k2l3 --accept prop-1 --accept prop-2
  cadence cooldown complete cyc-a1b2c3`,
	Args: cobra.ExactArgs(1),
	RunE: runCooldownComplete,
}

func init() {
	cooldownPrepareCmd.Flags().StringArrayVar(&cooldownOutcomes, "outcome", nil,
		"Bet outcome override (bet-id=complete|partial|abandoned, repeatable)")
	cooldownPrepareCmd.Flags().StringVar(&cooldownDepth, "depth", "",
		"Synthesis depth (quick, standard, thorough)")

	cooldownCompleteCmd.Flags().StringVar(&completeInputID, "input", "", "Synthesis input id from prepare")
	cooldownCompleteCmd.Flags().StringArrayVar(&completeAccepted, "accept", nil,
		"Accepted proposal id (repeatable)")

	cooldownCmd.AddCommand(cooldownPrepareCmd, cooldownCompleteCmd)
	rootCmd.AddCommand(cooldownCmd)
}

func runCooldownPrepare(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	outcomes, err := parseOutcomes(cooldownOutcomes)
	if err != nil {
		return err
	}
	VerbosePrintf("synthesis root: %s\n", app.cfg.Paths.SynthesisRoot)
	result, err := app.session.Prepare(args[0], outcomes, types.SynthesisDepth(cooldownDepth))
	if err != nil {
		return err
	}
	return render(result, func() error {
		r := result.Report
		fmt.Printf("Cycle %s is in cooldown\n", r.CycleID)
		if r.BudgetTokens > 0 {
			fmt.Printf("Budget:     %d / %d tokens (%.0f%%, alert: %s)\n",
				r.TokensUsed, r.BudgetTokens, r.UtilizationPct, r.Alert)
		}
		fmt.Printf("Completion: %.0f%%\n", r.CompletionRate)
		fmt.Printf("Synthesis:  %s", result.SynthesisInputID)
		if result.SynthesisInputPath != "" {
			fmt.Printf(" (%s)", result.SynthesisInputPath)
		}
		fmt.Println()
		for _, id := range result.UnmatchedBets {
			fmt.Printf("Warning: unknown bet id %s in --outcome\n", id)
		}
		return nil
	})
}

func runCooldownComplete(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	result, err := app.session.Complete(args[0], completeInputID, completeAccepted)
	if err != nil {
		return err
	}
	return render(result, func() error {
		fmt.Printf("Cycle %s is complete\n", args[0])
		fmt.Printf("Applied proposals:    %d\n", len(result.AppliedProposals))
		fmt.Printf("Cautionary learnings: %d\n", len(result.CautionaryLearnings))
		return nil
	})
}

// parseOutcomes parses repeated bet-id=outcome flags.
func parseOutcomes(raw []string) (map[string]types.BetOutcome, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	outcomes := make(map[string]types.BetOutcome, len(raw))
	for _, o := range raw {
		betID, val, ok := strings.Cut(o, "=")
		if !ok || betID == "" {
			return nil, &types.ValidationError{
				Field:   "outcome",
				Message: fmt.Sprintf("invalid outcome %q (want bet-id=outcome)", o),
			}
		}
		switch outcome := types.BetOutcome(val); outcome {
		case types.BetComplete, types.BetPartial, types.BetAbandoned:
			outcomes[betID] = outcome
		default:
			return nil, &types.ValidationError{
				Field:   "outcome",
				Message: fmt.Sprintf("invalid outcome %q (valid: complete|partial|abandoned)", val),
			}
		}
	}
	return outcomes, nil
}
