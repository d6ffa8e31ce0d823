package types

// ConditionType names a gate advancement condition.
type ConditionType string

const (
	// ConditionArtifactExists passes when a named artifact is available.
	ConditionArtifactExists ConditionType = "artifact-exists"

	// ConditionPredecessorComplete passes when a stage category has finished.
	ConditionPredecessorComplete ConditionType = "predecessor-complete"

	// ConditionHumanApproved passes only on explicit human approval.
	ConditionHumanApproved ConditionType = "human-approved"

	// ConditionSchemaValid always passes; validation is enforced at capture.
	ConditionSchemaValid ConditionType = "schema-valid"

	// ConditionCommandPasses passes when a shell command exits zero.
	ConditionCommandPasses ConditionType = "command-passes"
)

// GateCondition is one declarative advancement condition.
type GateCondition struct {
	// Type selects the condition behavior.
	Type ConditionType `json:"type"`

	// Target is the condition argument: an artifact name, a stage
	// category, or a shell command, depending on Type.
	Target string `json:"target,omitempty"`
}

// Gate bundles ordered conditions with a required flag. Gates are
// evaluated, never mutated.
type Gate struct {
	// Required controls whether failing conditions block advancement.
	// An optional gate reports identical per-condition detail but
	// always passes overall.
	Required bool `json:"required"`

	// Conditions are evaluated in order, never short-circuited.
	Conditions []GateCondition `json:"conditions"`
}

// ConditionResult is the per-condition diagnostic of a gate evaluation.
type ConditionResult struct {
	// Condition is the condition that was evaluated.
	Condition GateCondition `json:"condition"`

	// Passed reports whether the condition held.
	Passed bool `json:"passed"`

	// Detail explains a failure, or summarizes command output.
	Detail string `json:"detail,omitempty"`
}

// GateResult is the outcome of evaluating every condition of a gate.
type GateResult struct {
	// Passed is !required || all conditions passed.
	Passed bool `json:"passed"`

	// Required echoes the gate's required flag.
	Required bool `json:"required"`

	// Conditions holds per-condition diagnostics in gate order.
	Conditions []ConditionResult `json:"conditions"`
}
