package memory

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-memory/core"
)

const (
	ContextHeader = "--- RELEVANT PAST CONVERSATIONS ---"
	ContextFooter = "--- END ---"

	// ContextTimeLayout renders timestamps in the context block, always UTC.
	ContextTimeLayout = "2006-01-02 15:04:05 UTC"
)

// FormatContext renders ranked results as a prompt block, preserving order.
// Each entry is "[timestamp] sender: text"; entries are separated by a blank
// line. Empty input yields "".
func FormatContext(results []core.RankedResult) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(ContextHeader)
	sb.WriteString("\n")
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", r.Timestamp.UTC().Format(ContextTimeLayout), r.Sender, r.Text)
	}
	sb.WriteString("\n")
	sb.WriteString(ContextFooter)
	return sb.String()
}
