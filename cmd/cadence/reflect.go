package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/cadence/internal/reflection"
)

var reflectConcurrency int

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Mine run logs for calibration biases and frictions",
}

var reflectCalibrateCmd = &cobra.Command{
	Use:   "calibrate <run-id>...",
	Short: "Detect prediction biases and write calibration reflections",
	Long: `Scan each run's observations and prediction validations for
overconfidence, estimation drift, predictor divergence, and domain bias.
Each detected bias appends a calibration reflection at run level.

Examples:
  cadence reflect calibrate run-a1b2c3
  cadence reflect calibrate run-a1b2c3 run-d4e5f6 --concurrency 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReflectCalibrate,
}

var reflectFrictionsCmd = &cobra.Command{
	Use:   "frictions <run-id>...",
	Short: "Resolve friction contradictions against stored knowledge",
	Long: `Scan each run's friction observations and, when frictions are frequent
enough, resolve each contradicted learning by confidence: invalidate,
scope, synthesize, or escalate.

Examples:
  cadence reflect frictions run-a1b2c3
  cadence reflect frictions run-a1b2c3 run-d4e5f6`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReflectFrictions,
}

func init() {
	reflectCmd.PersistentFlags().IntVar(&reflectConcurrency, "concurrency", 0,
		"Worker count for multi-run scans (0 = NumCPU)")

	reflectCmd.AddCommand(reflectCalibrateCmd, reflectFrictionsCmd)
	rootCmd.AddCommand(reflectCmd)
}

func runReflectCalibrate(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	detector := reflection.NewDetector(app.runs)
	results := detector.BatchDetect(args, reflectConcurrency)

	var firstErr error
	summaries := make([]*reflection.DetectResult, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("run %s: %w", args[r.Index], r.Err)
			}
			continue
		}
		summaries = append(summaries, r.Value)
	}

	renderErr := render(summaries, func() error {
		for _, s := range summaries {
			fmt.Printf("%s: %d calibration reflection(s)\n", s.RunID, len(s.Reflections))
			for _, ref := range s.Reflections {
				fmt.Printf("  [%s] %s\n", ref.Bias, ref.Summary)
			}
		}
		return nil
	})
	if renderErr != nil {
		return renderErr
	}
	return firstErr
}

func runReflectFrictions(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	analyzer := reflection.NewAnalyzer(app.runs, app.knowledge)
	results := analyzer.BatchAnalyze(args, reflectConcurrency)

	var firstErr error
	summaries := make([]*reflection.AnalyzeResult, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("run %s: %w", args[r.Index], r.Err)
			}
			continue
		}
		summaries = append(summaries, r.Value)
	}

	renderErr := render(summaries, func() error {
		for _, s := range summaries {
			if !s.OverrideThresholdMet {
				fmt.Printf("%s: %d friction(s) of %d observation(s), below override threshold\n",
					s.RunID, s.FrictionCount, s.ObservationCount)
				continue
			}
			fmt.Printf("%s: %d resolution(s)\n", s.RunID, len(s.Resolutions))
			for _, res := range s.Resolutions {
				fmt.Printf("  %s -> %s (confidence %.2f)\n", res.FrictionID, res.Path, res.DiagnosticConfidence)
			}
		}
		return nil
	})
	if renderErr != nil {
		return renderErr
	}
	return firstErr
}
