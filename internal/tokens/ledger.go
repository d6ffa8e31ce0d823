// Package tokens provides the queryable token-usage ledger the cooldown
// budget report is enriched from.
package tokens

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLedgerFile is the default usage log location.
const DefaultLedgerFile = ".cadence/tokens.jsonl"

// Usage is one recorded token spend.
type Usage struct {
	// CycleID attributes the spend to a cycle.
	CycleID string `json:"cycle_id"`

	// BetID attributes the spend to a bet, when known.
	BetID string `json:"bet_id,omitempty"`

	// Input is the input token count.
	Input int `json:"input"`

	// Output is the output token count.
	Output int `json:"output"`

	// RecordedAt is when the spend was recorded.
	RecordedAt time.Time `json:"recorded_at"`
}

// Total is the summed usage for a cycle.
type Total struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Tokens is Input + Output.
func (t Total) Tokens() int { return t.Input + t.Output }

// Ledger is the capability interface the core consumes.
type Ledger interface {
	// Record appends one usage record.
	Record(u Usage) error

	// CycleUsage sums usage for a cycle. An unrecorded cycle sums to zero.
	CycleUsage(cycleID string) (Total, error)
}

// FileLedger is the JSONL-backed Ledger.
type FileLedger struct {
	// Path is the usage log file.
	Path string

	mu sync.Mutex
}

// NewFileLedger creates a ledger at the given path, or the default when
// path is empty.
func NewFileLedger(path string) *FileLedger {
	if path == "" {
		path = DefaultLedgerFile
	}
	return &FileLedger{Path: path}
}

// Record appends one usage record.
func (fl *FileLedger) Record(u Usage) error {
	if u.CycleID == "" {
		return fmt.Errorf("usage requires a cycle id")
	}
	if u.RecordedAt.IsZero() {
		u.RecordedAt = time.Now().UTC()
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fl.Path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	f, err := os.OpenFile(fl.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return f.Sync()
}

// CycleUsage sums the log for a cycle, skipping malformed lines.
func (fl *FileLedger) CycleUsage(cycleID string) (Total, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var total Total
	f, err := os.Open(fl.Path)
	if os.IsNotExist(err) {
		return total, nil
	}
	if err != nil {
		return total, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only, errors non-critical
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var u Usage
		if err := json.Unmarshal(scanner.Bytes(), &u); err != nil {
			continue
		}
		if u.CycleID != cycleID {
			continue
		}
		total.Input += u.Input
		total.Output += u.Output
	}
	return total, scanner.Err()
}
