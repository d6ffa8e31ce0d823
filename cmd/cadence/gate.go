package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/boshu2/cadence/internal/gate"
	"github.com/boshu2/cadence/internal/types"
)

var (
	gateFile            string
	gateArtifacts       []string
	gateCompletedStages []string
	gateApproved        bool
	gateWorkDir         string
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate advancement gates",
}

var gateEvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a gate definition against a supplied context",
	Long: `Evaluate every condition of a gate (never short-circuited) and report
per-condition results. The command exits non-zero when a required gate
fails; an optional gate reports failures but passes overall.

The gate file is YAML:

  required: true
  conditions:
    - type: artifact-exists
      target: research-synthesis
    - type: command-passes
      target: "go test ./..."

Examples:
  cadence gate eval --file exit-gate.yaml --artifact research-synthesis
  cadence gate eval --file entry-gate.yaml --completed-stage research --approve`,
	RunE: runGateEval,
}

func init() {
	gateEvalCmd.Flags().StringVar(&gateFile, "file", "", "Gate definition file (YAML)")
	gateEvalCmd.Flags().StringArrayVar(&gateArtifacts, "artifact", nil, "Available artifact name (repeatable)")
	gateEvalCmd.Flags().StringArrayVar(&gateCompletedStages, "completed-stage", nil, "Completed stage category (repeatable)")
	gateEvalCmd.Flags().BoolVar(&gateApproved, "approve", false, "Grant human approval for this evaluation")
	gateEvalCmd.Flags().StringVar(&gateWorkDir, "workdir", "", "Working directory for command conditions")
	_ = gateEvalCmd.MarkFlagRequired("file") //nolint:errcheck // flag exists

	gateCmd.AddCommand(gateEvalCmd)
	rootCmd.AddCommand(gateCmd)
}

func runGateEval(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(gateFile)
	if err != nil {
		return fmt.Errorf("read gate file: %w", err)
	}
	var g types.Gate
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse gate file %s: %w", gateFile, err)
	}

	gctx := gate.Context{
		AvailableArtifacts: gateArtifacts,
		CompletedStages:    gateCompletedStages,
		HumanApproved:      gateApproved,
		WorkDir:            gateWorkDir,
	}
	result, err := app.evaluator.Evaluate(cmd.Context(), g, gctx)
	if err != nil {
		return err
	}

	renderErr := render(result, func() error {
		for _, c := range result.Conditions {
			mark := "PASS"
			if !c.Passed {
				mark = "FAIL"
			}
			fmt.Printf("%s  %s %s", mark, c.Condition.Type, c.Condition.Target)
			if c.Detail != "" {
				fmt.Printf(" (%s)", c.Detail)
			}
			fmt.Println()
		}
		if result.Passed {
			fmt.Println("Gate passed")
		} else {
			fmt.Println("Gate failed")
		}
		return nil
	})
	if renderErr != nil {
		return renderErr
	}
	if !result.Passed {
		return fmt.Errorf("gate failed: %d condition(s) did not pass", failedCount(result))
	}
	return nil
}

func failedCount(r types.GateResult) int {
	n := 0
	for _, c := range r.Conditions {
		if !c.Passed {
			n++
		}
	}
	return n
}
