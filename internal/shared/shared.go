// package shared defines shared helpers
package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel parses level and applies it to l. Unknown levels leave l at [log.InfoLevel].
func SetLogLevel(l *log.Logger, level string) {
	if level == "" {
		l.SetLevel(log.InfoLevel)
		return
	}
	ll, err := log.ParseLevel(level)
	if err != nil {
		l.Warn("unknown log level, using info", "level", level)
		ll = log.InfoLevel
	}
	l.SetLevel(ll)
}

// MarshalJSON encodes v, indented with two spaces when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// FormatDuration renders seconds as m:ss (or h:mm:ss past an hour).
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// VisibilityString renders a playlist's public flag.
func VisibilityString(public bool) string {
	if public {
		return "Public"
	}
	return "Private"
}

// SplitIDs splits a comma separated list of identifiers, dropping blanks.
func SplitIDs(values ...string) []string {
	var ids []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, part)
			}
		}
	}
	return ids
}
