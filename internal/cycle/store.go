// Package cycle owns the Cycle/Bet entities: budget accounting, the
// appetite invariant, and the all-or-nothing start that creates one run
// tree per bet.
package cycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/boshu2/cadence/internal/types"
)

// DefaultCyclesRoot is the default cycle document directory.
const DefaultCyclesRoot = ".cadence/cycles"

// Store persists cycle documents as <root>/<cycleID>.json with atomic
// whole-document replace.
type Store struct {
	// Root is the cycles root directory.
	Root string

	mu sync.Mutex
}

// NewStore creates a cycle store at the given root, or the default when
// root is empty.
func NewStore(root string) *Store {
	if root == "" {
		root = DefaultCyclesRoot
	}
	return &Store{Root: root}
}

func (s *Store) path(cycleID string) string {
	return filepath.Join(s.Root, cycleID+".json")
}

// Read loads a cycle document. An unknown id is a NotFoundError; a
// corrupt document is an error, not silently skipped.
func (s *Store) Read(cycleID string) (*types.Cycle, error) {
	data, err := os.ReadFile(s.path(cycleID))
	if os.IsNotExist(err) {
		return nil, &types.NotFoundError{Kind: "cycle", ID: cycleID}
	}
	if err != nil {
		return nil, err
	}
	var c types.Cycle
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("corrupt cycle document %s: %w", cycleID, err)
	}
	return &c, nil
}

// Write validates and atomically replaces a cycle document.
func (s *Store) Write(c *types.Cycle) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Root, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.Root, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(c.ID)); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// List returns all cycle ids under the root, sorted by filename.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}
