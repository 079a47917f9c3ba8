package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the column width used for description cells
// in tabular output.
const DefaultDescriptionMaxLen = 60

// MinTruncateLen is the smallest usable maxLen. Anything shorter cannot
// hold a character plus the "..." marker.
const MinTruncateLen = 4

// TruncateDescription collapses s onto a single line and shortens it to at
// most maxLen runes, appending "..." when content was cut. All runs of
// whitespace, including newlines and tabs, become single spaces. Slicing is
// rune-based so multi-byte characters are never split. A maxLen below
// MinTruncateLen is raised to MinTruncateLen.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
