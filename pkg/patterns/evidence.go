package patterns

import (
	"sort"
	"strings"
)

// ContextSize selects how much surrounding text an evidence snippet
// carries.
type ContextSize string

const (
	ContextSmall  ContextSize = "small"
	ContextMedium ContextSize = "medium"
	ContextLarge  ContextSize = "large"
	ContextFull   ContextSize = "full"

	// DefaultProximityThreshold is the start-to-start distance within
	// which matches collapse into one evidence group.
	DefaultProximityThreshold = 200
)

// TruncationMarker flags snippets cut out of a larger content.
const TruncationMarker = "…"

// Window returns the context radius in characters, or -1 for full
// content.
func (c ContextSize) Window() int {
	switch c {
	case ContextSmall:
		return 50
	case ContextLarge:
		return 200
	case ContextFull:
		return -1
	default:
		return 100
	}
}

// ExtractEvidence returns up to maxEvidence unique snippets showing
// each match with surrounding context, sorted by content. A zero
// maxEvidence yields nothing. ContextFull returns the whole content
// as a single snippet.
func ExtractEvidence(content string, matches []Match, size ContextSize, maxEvidence int) []string {
	if maxEvidence <= 0 || len(matches) == 0 {
		return nil
	}
	w := size.Window()
	if w < 0 {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	seen := make(map[string]bool)
	var snippets []string
	for _, m := range matches {
		start := m.Start - w
		if start < 0 {
			start = 0
		}
		end := m.End + w
		if end > len(content) {
			end = len(content)
		}
		snippet := strings.TrimSpace(content[start:end])
		if snippet == "" {
			continue
		}
		if start > 0 {
			snippet = TruncationMarker + snippet
		}
		if end < len(content) {
			snippet += TruncationMarker
		}
		if seen[snippet] {
			continue
		}
		seen[snippet] = true
		snippets = append(snippets, snippet)
		if len(snippets) == maxEvidence {
			break
		}
	}
	sort.Strings(snippets)
	return snippets
}
