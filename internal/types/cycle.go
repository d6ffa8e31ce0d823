package types

import (
	"fmt"
	"time"
)

// CycleState tracks the cycle lifecycle. Transitions are strictly forward
// except for the cooldown rollback compensation.
type CycleState string

const (
	// CyclePlanning is the initial state; bets may only be added here.
	CyclePlanning CycleState = "planning"

	// CycleActive means the cycle started and runs exist for every bet.
	CycleActive CycleState = "active"

	// CycleCooldown means cooldown prepare has begun closing the cycle out.
	CycleCooldown CycleState = "cooldown"

	// CycleComplete is terminal.
	CycleComplete CycleState = "complete"
)

// BetOutcome tracks how a bet ended.
type BetOutcome string

const (
	BetPending   BetOutcome = "pending"
	BetComplete  BetOutcome = "complete"
	BetPartial   BetOutcome = "partial"
	BetAbandoned BetOutcome = "abandoned"
)

// DefaultCooldownReserve is the percentage of budget held back for
// cooldown when a cycle does not set its own.
const DefaultCooldownReserve = 10.0

// Budget is the token and/or time allowance for a cycle.
type Budget struct {
	// Tokens is the token allowance; zero means untracked.
	Tokens int `json:"tokens,omitempty"`

	// Hours is the wall-clock allowance; zero means untracked.
	Hours float64 `json:"hours,omitempty"`
}

// Bet is one unit of scoped work inside a cycle.
type Bet struct {
	// ID is the unique bet identifier (e.g., "bet-a1b2c3").
	ID string `json:"id"`

	// Description says what the bet delivers.
	Description string `json:"description"`

	// Appetite is the percentage of the cycle budget this bet may spend.
	Appetite float64 `json:"appetite"`

	// Outcome is how the bet ended; pending until cooldown.
	Outcome BetOutcome `json:"outcome"`

	// Kata names the stage-sequence assigned to this bet, if any.
	Kata string `json:"kata,omitempty"`

	// RunID links to the run created when the cycle started.
	RunID string `json:"run_id,omitempty"`
}

// PipelineMapping assigns a kata to a bet at start time.
type PipelineMapping struct {
	// BetID is the bet being mapped.
	BetID string `json:"bet_id"`

	// Kata is the stage-sequence name.
	Kata string `json:"kata"`
}

// Cycle is a time-boxed, budgeted container of bets.
type Cycle struct {
	// ID is the unique cycle identifier (e.g., "cyc-a1b2c3").
	ID string `json:"id"`

	// Name is an optional human label.
	Name string `json:"name,omitempty"`

	// Budget is the cycle allowance.
	Budget Budget `json:"budget"`

	// Bets holds the cycle's bets in addition order.
	Bets []Bet `json:"bets"`

	// PipelineMappings holds kata assignments applied at start.
	PipelineMappings []PipelineMapping `json:"pipeline_mappings,omitempty"`

	// CooldownReserve is the budget percentage held back for cooldown.
	CooldownReserve float64 `json:"cooldown_reserve"`

	// State is the lifecycle state.
	State CycleState `json:"state"`

	// CreatedAt is when the cycle was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the last state change.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// AppetiteTotal sums the appetite of every bet.
func (c *Cycle) AppetiteTotal() float64 {
	var total float64
	for _, b := range c.Bets {
		total += b.Appetite
	}
	return total
}

// FindBet returns the bet with the given id, or nil.
func (c *Cycle) FindBet(id string) *Bet {
	for i := range c.Bets {
		if c.Bets[i].ID == id {
			return &c.Bets[i]
		}
	}
	return nil
}

// KataFor resolves the kata for a bet: the bet's own assignment first,
// then the cycle's pipeline mappings.
func (c *Cycle) KataFor(betID string) string {
	if b := c.FindBet(betID); b != nil && b.Kata != "" {
		return b.Kata
	}
	for _, m := range c.PipelineMappings {
		if m.BetID == betID {
			return m.Kata
		}
	}
	return ""
}

// Validate checks structural requirements before a cycle document is
// persisted, including the appetite invariant.
func (c *Cycle) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "cycle id is required"}
	}
	switch c.State {
	case CyclePlanning, CycleActive, CycleCooldown, CycleComplete:
	default:
		return &ValidationError{
			Field:   "state",
			Message: fmt.Sprintf("invalid cycle state %q", c.State),
		}
	}
	if c.CooldownReserve < 0 || c.CooldownReserve > 100 {
		return &ValidationError{
			Field:   "cooldown_reserve",
			Message: fmt.Sprintf("cooldown reserve %v outside [0,100]", c.CooldownReserve),
		}
	}
	for _, b := range c.Bets {
		if b.ID == "" {
			return &ValidationError{Field: "bets", Message: "bet id is required"}
		}
		if b.Appetite < 0 {
			return &ValidationError{
				Field:   "appetite",
				Message: fmt.Sprintf("bet %s appetite %v is negative", b.ID, b.Appetite),
			}
		}
	}
	if total := c.AppetiteTotal(); total+c.CooldownReserve > 100 {
		return &ValidationError{
			Field: "appetite",
			Message: fmt.Sprintf("appetite total %.1f + reserve %.1f exceeds 100",
				total, c.CooldownReserve),
		}
	}
	return nil
}
