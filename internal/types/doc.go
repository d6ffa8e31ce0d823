// Package types defines the Cadence domain model: cycles and bets, the
// run tree state documents, the observation/reflection tagged unions,
// gates, learnings, and the shared error taxonomy.
package types
