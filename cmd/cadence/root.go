package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/cadence/internal/config"
	"github.com/boshu2/cadence/internal/cooldown"
	"github.com/boshu2/cadence/internal/cycle"
	"github.com/boshu2/cadence/internal/gate"
	"github.com/boshu2/cadence/internal/knowledge"
	"github.com/boshu2/cadence/internal/registry"
	"github.com/boshu2/cadence/internal/runtree"
	"github.com/boshu2/cadence/internal/tokens"
	"github.com/boshu2/cadence/internal/types"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cycle and bet orchestration for agent-assisted delivery",
	Long: `cadence runs time-boxed cycles of budgeted bets, each executed as a
staged pipeline (research/plan/build/review) with gated advancement,
append-only observation logs, and a cooldown feedback loop that turns
frictions and prediction misses into updated knowledge.

Core Commands:
  cycle      Create cycles, place bets, start execution
  cooldown   Close out a cycle in two phases
  reflect    Mine run logs for calibration biases and frictions
  gate       Evaluate advancement gates
  version    Show version information`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table, yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.cadence/config.yaml)")
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(cfgFile)
	if path == "" {
		return
	}
	_ = os.Setenv("CADENCE_CONFIG", path)
}

// exitCode maps the domain error taxonomy onto process exit codes.
// This mapping lives only here, outside the core packages.
func exitCode(err error) int {
	var (
		notFound   *types.NotFoundError
		validation *types.ValidationError
		transition *types.StateTransitionError
		gateEval   *types.GateEvaluationError
		orch       *types.OrchestratorError
	)
	switch {
	case errors.As(err, &notFound):
		return 2
	case errors.As(err, &validation):
		return 3
	case errors.As(err, &transition):
		return 4
	case errors.As(err, &gateEval):
		return 5
	case errors.As(err, &orch):
		return 6
	default:
		return 1
	}
}

// VerbosePrintf prints only when verbose mode is enabled.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format, args...)
	}
}

// app bundles the wired collaborators every command needs.
type app struct {
	cfg       *config.Config
	runs      *runtree.Store
	cycles    *cycle.Manager
	registry  *registry.Registry
	knowledge knowledge.Store
	ledger    tokens.Ledger
	session   *cooldown.Session
	evaluator *gate.Evaluator
}

// newApp loads config and wires the stores and services.
func newApp() (*app, error) {
	cfg, err := config.Load(&config.Config{Output: output, Verbose: verbose})
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.Paths.RegistryFile)
	if err != nil {
		return nil, err
	}

	runs := runtree.NewStore(runtree.WithRoot(cfg.Paths.RunsRoot))
	cycles := cycle.NewManager(cycle.NewStore(cfg.Paths.CyclesRoot), runs, reg)
	ks := knowledge.NewFileStore(
		knowledge.WithPath(cfg.Paths.LearningsFile),
		knowledge.WithGraphPath(cfg.Paths.CitationsFile),
	)
	ledger := tokens.NewFileLedger(cfg.Paths.TokensFile)
	session := cooldown.NewSession(cycles, ks, ledger,
		cfg.Paths.SynthesisRoot, types.SynthesisDepth(cfg.Cooldown.Depth))

	return &app{
		cfg:       cfg,
		runs:      runs,
		cycles:    cycles,
		registry:  reg,
		knowledge: ks,
		ledger:    ledger,
		session:   session,
		evaluator: &gate.Evaluator{Timeout: time.Duration(cfg.Gate.CommandTimeoutSeconds) * time.Second},
	}, nil
}
