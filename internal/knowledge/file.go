package knowledge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boshu2/cadence/internal/types"
)

const (
	// DefaultLearningsFile is the default learning log location.
	DefaultLearningsFile = ".cadence/learnings.jsonl"

	// DefaultGraphFile is the default citation graph location.
	DefaultGraphFile = ".cadence/citations.jsonl"
)

// ArchiveEdge is the citation-graph record written when a learning is
// archived, linking the learning to whatever superseded it.
type ArchiveEdge struct {
	// LearningID is the archived learning.
	LearningID string `json:"learning_id"`

	// Reason says why the learning was archived.
	Reason string `json:"reason"`

	// SupersededBy is the replacement learning id, when one exists.
	SupersededBy string `json:"superseded_by,omitempty"`

	// ArchivedAt is when the archive happened.
	ArchivedAt time.Time `json:"archived_at"`
}

// FileStore is the JSONL-backed Store. The learning log is append-only;
// the current state of each learning is the latest record for its id.
type FileStore struct {
	// Path is the learning log file.
	Path string

	// GraphPath is the citation graph file.
	GraphPath string

	mu sync.Mutex
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithPath sets the learning log path.
func WithPath(path string) FileStoreOption {
	return func(fs *FileStore) { fs.Path = path }
}

// WithGraphPath sets the citation graph path.
func WithGraphPath(path string) FileStoreOption {
	return func(fs *FileStore) { fs.GraphPath = path }
}

// NewFileStore creates a JSONL-backed learning store.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	fs := &FileStore{
		Path:      DefaultLearningsFile,
		GraphPath: DefaultGraphFile,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Capture appends a learning record.
func (fs *FileStore) Capture(l *types.Learning) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return appendLine(fs.Path, l)
}

// Query folds the log and returns matching learnings in first-capture order.
func (fs *FileStore) Query(f Filter) ([]types.Learning, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, order, err := fs.fold()
	if err != nil {
		return nil, err
	}

	var out []types.Learning
	for _, id := range order {
		l := current[id]
		if !f.IncludeArchived && l.Archived {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.Tier != "" && l.Tier != f.Tier {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// ArchiveLearning appends an archived copy of the learning plus a
// citation-graph edge recording the reason.
func (fs *FileStore) ArchiveLearning(id, reason string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, _, err := fs.fold()
	if err != nil {
		return err
	}
	l, ok := current[id]
	if !ok {
		return &types.NotFoundError{Kind: "learning", ID: id}
	}

	l.Archived = true
	l.ArchiveReason = reason
	l.UpdatedAt = time.Now().UTC()
	if err := appendLine(fs.Path, &l); err != nil {
		return err
	}

	edge := ArchiveEdge{
		LearningID: id,
		Reason:     reason,
		ArchivedAt: l.UpdatedAt,
	}
	return appendLine(fs.GraphPath, &edge)
}

// Get resolves a learning by id from the folded log.
func (fs *FileStore) Get(id string) (*types.Learning, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, _, err := fs.fold()
	if err != nil {
		return nil, err
	}
	l, ok := current[id]
	if !ok {
		return nil, &types.NotFoundError{Kind: "learning", ID: id}
	}
	return &l, nil
}

// fold replays the log: latest record per learning id wins, order is
// first appearance. Malformed lines are skipped.
func (fs *FileStore) fold() (map[string]types.Learning, []string, error) {
	current := make(map[string]types.Learning)
	var order []string

	f, err := os.Open(fs.Path)
	if os.IsNotExist(err) {
		return current, order, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only, errors non-critical
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var l types.Learning
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			continue
		}
		if l.ID == "" {
			continue
		}
		if _, seen := current[l.ID]; !seen {
			order = append(order, l.ID)
		}
		current[l.ID] = l
	}
	return current, order, scanner.Err()
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
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
