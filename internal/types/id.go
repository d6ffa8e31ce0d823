package types

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed short identifier, e.g. NewID("run") -> "run-1a2b3c4d".
// The 8-hex-char suffix is enough for a single-user tool; full UUIDs would
// only hurt log readability.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + raw[:8]
}
