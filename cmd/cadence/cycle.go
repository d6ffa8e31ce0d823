package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/cadence/internal/cycle"
	"github.com/boshu2/cadence/internal/formatter"
	"github.com/boshu2/cadence/internal/types"
)

var (
	cycleName    string
	cycleTokens  int
	cycleHours   float64
	cycleReserve float64

	betDescription string
	betAppetite    float64
	betKata        string

	startMappings []string
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Create cycles, place bets, start execution",
}

var cycleNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new cycle in planning state",
	Long: `Create a new cycle with a token and/or hour budget.

The cooldown reserve defaults to 10 percent of the budget; bets added
later must fit within the remaining appetite.

Examples:
  cadence cycle new --name "Q3 sprint 4" --tokens 500000
  cadence cycle new --tokens 200000 --hours 40 --reserve 15`,
	RunE: runCycleNew,
}

var cycleAddBetCmd = &cobra.Command{
	Use:   "add-bet <cycle-id>",
	Short: "Add a bet to a planning cycle",
	Long: `Add a bet with a description and an appetite percentage.

The add is rejected when the appetite would push the cycle past 100
percent including the cooldown reserve. Rejection leaves the cycle
unchanged.

Examples:
  cadence cycle add-bet cyc-a1b2c3 --description "Ship billing export" --appetite 30
  cadence cycle add-bet cyc-a1b2c3 --description "Spike auth flow" --appetite 15 --kata feature`,
	Args: cobra.ExactArgs(1),
	RunE: runCycleAddBet,
}

var cycleStartCmd = &cobra.Command{
	Use:   "start <cycle-id>",
	Short: "Start a planning cycle, creating one run per bet",
	Long: `Move a cycle from planning to active. Every bet must have a kata
(directly or via --map); one unassigned bet aborts the whole start and
creates zero runs.

Examples:
  cadence cycle start cyc-a1b2c3
  cadence cycle start cyc-a1b2c3 --map bet-d4e5f6=feature --map bet-g7h8i9=spike`,
	Args: cobra.ExactArgs(1),
	RunE: runCycleStart,
}

var cycleStatusCmd = &cobra.Command{
	Use:   "status <cycle-id>",
	Short: "Show a cycle's state, bets, and appetite usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runCycleStatus,
}

var cycleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known cycles",
	RunE:  runCycleList,
}

func init() {
	cycleNewCmd.Flags().StringVar(&cycleName, "name", "", "Human label for the cycle")
	cycleNewCmd.Flags().IntVar(&cycleTokens, "tokens", 0, "Token budget (0 = untracked)")
	cycleNewCmd.Flags().Float64Var(&cycleHours, "hours", 0, "Hour budget (0 = untracked)")
	cycleNewCmd.Flags().Float64Var(&cycleReserve, "reserve", 0, "Cooldown reserve percent (default 10)")

	cycleAddBetCmd.Flags().StringVar(&betDescription, "description", "", "What the bet delivers")
	cycleAddBetCmd.Flags().Float64Var(&betAppetite, "appetite", 0, "Budget percentage for this bet")
	cycleAddBetCmd.Flags().StringVar(&betKata, "kata", "", "Kata (stage sequence) for this bet")
	_ = cycleAddBetCmd.MarkFlagRequired("description") //nolint:errcheck // flag exists
	_ = cycleAddBetCmd.MarkFlagRequired("appetite")    //nolint:errcheck // flag exists

	cycleStartCmd.Flags().StringArrayVar(&startMappings, "map", nil, "Bet-to-kata mapping (bet-id=kata, repeatable)")

	cycleCmd.AddCommand(cycleNewCmd, cycleAddBetCmd, cycleStartCmd, cycleStatusCmd, cycleListCmd)
	rootCmd.AddCommand(cycleCmd)
}

func runCycleNew(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	reserve := cycleReserve
	if reserve == 0 {
		reserve = app.cfg.Cooldown.ReservePercent
	}
	VerbosePrintf("cycles root: %s\n", app.cfg.Paths.CyclesRoot)
	c, err := app.cycles.Create(cycleName, types.Budget{Tokens: cycleTokens, Hours: cycleHours}, reserve)
	if err != nil {
		return err
	}
	return render(c, func() error {
		fmt.Printf("Created cycle %s (reserve %.0f%%)\n", c.ID, c.CooldownReserve)
		return nil
	})
}

func runCycleAddBet(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	bet, err := app.cycles.AddBet(args[0], betDescription, betAppetite, betKata)
	if err != nil {
		return err
	}
	return render(bet, func() error {
		fmt.Printf("Added bet %s (appetite %.0f%%)\n", bet.ID, bet.Appetite)
		return nil
	})
}

func runCycleStart(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	mappings, err := parseMappings(startMappings)
	if err != nil {
		return err
	}
	VerbosePrintf("applying %d kata mapping(s), runs root: %s\n", len(mappings), app.cfg.Paths.RunsRoot)
	c, err := app.cycles.Start(args[0], mappings)
	if err != nil {
		return err
	}
	return render(c, func() error {
		fmt.Printf("Started cycle %s with %d run(s)\n", c.ID, len(c.Bets))
		for _, b := range c.Bets {
			fmt.Printf("  %s -> run %s (kata %s)\n", b.ID, b.RunID, b.Kata)
		}
		return nil
	})
}

func runCycleStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	c, err := app.cycles.Get(args[0])
	if err != nil {
		return err
	}
	return render(c, func() error {
		fmt.Printf("Cycle:      %s", c.ID)
		if c.Name != "" {
			fmt.Printf(" (%s)", c.Name)
		}
		fmt.Println()
		fmt.Printf("State:      %s\n", c.State)
		fmt.Printf("Budget:     %d tokens, %.1f hours\n", c.Budget.Tokens, c.Budget.Hours)
		fmt.Printf("Appetite:   %.0f%% used, %.0f%% reserve\n", c.AppetiteTotal(), c.CooldownReserve)
		fmt.Printf("Completion: %.0f%%\n", cycle.CompletionRate(c))
		if len(c.Bets) == 0 {
			return nil
		}
		fmt.Println()
		table := formatter.NewTable(os.Stdout, "BET", "APPETITE", "OUTCOME", "KATA", "RUN", "DESCRIPTION")
		table.SetMaxWidth(5, 50)
		for _, b := range c.Bets {
			table.AddRow(b.ID, fmt.Sprintf("%.0f%%", b.Appetite), string(b.Outcome), b.Kata, b.RunID, b.Description)
		}
		return table.Render()
	})
}

func runCycleList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	ids, err := app.cycles.Cycles.List()
	if err != nil {
		return err
	}
	cycles := make([]*types.Cycle, 0, len(ids))
	for _, id := range ids {
		c, err := app.cycles.Get(id)
		if err != nil {
			return err
		}
		cycles = append(cycles, c)
	}
	return render(cycles, func() error {
		if len(cycles) == 0 {
			fmt.Println("No cycles found")
			return nil
		}
		table := formatter.NewTable(os.Stdout, "CYCLE", "NAME", "STATE", "BETS", "APPETITE")
		for _, c := range cycles {
			table.AddRow(c.ID, c.Name, string(c.State),
				strconv.Itoa(len(c.Bets)), fmt.Sprintf("%.0f%%", c.AppetiteTotal()))
		}
		return table.Render()
	})
}

// parseMappings parses repeated bet-id=kata flags.
func parseMappings(raw []string) ([]types.PipelineMapping, error) {
	mappings := make([]types.PipelineMapping, 0, len(raw))
	for _, m := range raw {
		betID, kata, ok := strings.Cut(m, "=")
		if !ok || betID == "" || kata == "" {
			return nil, &types.ValidationError{
				Field:   "map",
				Message: fmt.Sprintf("invalid mapping %q (want bet-id=kata)", m),
			}
		}
		mappings = append(mappings, types.PipelineMapping{BetID: betID, Kata: kata})
	}
	return mappings, nil
}
