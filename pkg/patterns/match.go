package patterns

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Match locates one pattern occurrence in the content.
type Match struct {
	Pattern string
	Start   int
	End     int
}

var (
	regexMu    sync.RWMutex
	regexCache = map[string]*regexp.Regexp{}
)

func compileValuePattern(expr string) (*regexp.Regexp, error) {
	regexMu.RLock()
	re, ok := regexCache[expr]
	regexMu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile value pattern %q: %w", expr, err)
	}
	regexMu.Lock()
	regexCache[expr] = re
	regexMu.Unlock()
	return re, nil
}

// isWordChar treats letters, digits and underscore as identifier
// characters, so "email" does not match inside "user_email_hash".
func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// FindTextMatches returns every case-insensitive word-boundary
// occurrence of pattern in content, in offset order.
func FindTextMatches(content, pattern string) []Match {
	if pattern == "" {
		return nil
	}
	lc := strings.ToLower(content)
	lp := strings.ToLower(pattern)

	var matches []Match
	offset := 0
	for {
		i := strings.Index(lc[offset:], lp)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(lp)
		if boundaryBefore(lc, start) && boundaryAfter(lc, end) {
			matches = append(matches, Match{Pattern: pattern, Start: start, End: end})
		}
		offset = start + 1
	}
	return matches
}

func boundaryBefore(s string, start int) bool {
	if start == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:start])
	return !isWordChar(r)
}

func boundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !isWordChar(r)
}

// FindValueMatches applies a regex value pattern to content.
func FindValueMatches(content, expr string) ([]Match, error) {
	re, err := compileValuePattern(expr)
	if err != nil {
		return nil, err
	}
	var matches []Match
	for _, loc := range re.FindAllStringIndex(content, -1) {
		matches = append(matches, Match{Pattern: expr, Start: loc[0], End: loc[1]})
	}
	return matches, nil
}

// GroupByProximity collapses matches whose consecutive start-to-start
// distance is within threshold into one group and returns the first
// match of each group. A distance exactly at the threshold stays in
// the same group. Representatives are capped at maxRepresentatives;
// zero or negative means no cap.
func GroupByProximity(matches []Match, threshold, maxRepresentatives int) []Match {
	if len(matches) == 0 {
		return nil
	}
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	reps := []Match{sorted[0]}
	prevStart := sorted[0].Start
	for _, m := range sorted[1:] {
		if m.Start-prevStart > threshold {
			reps = append(reps, m)
		}
		prevStart = m.Start
	}
	if maxRepresentatives > 0 && len(reps) > maxRepresentatives {
		reps = reps[:maxRepresentatives]
	}
	return reps
}
