// Package matcher scans recognized text for profanity patterns.
package matcher

import "strings"

// MatchConfidence is reported whenever at least one pattern matches.
const MatchConfidence = 0.8

// Result is the outcome of scanning one text.
type Result struct {
	Detected   bool
	FirstMatch string
	Matches    []string
	Confidence float64
}

// Detect reports every pattern that occurs as a case-insensitive substring
// of text, in pattern order. No tokenization is done, so short patterns can
// match inside unrelated words.
func Detect(text string, patterns []string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Matches: []string{}}
	}

	lowered := strings.ToLower(text)
	matches := []string{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(p)) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		return Result{Matches: matches}
	}
	return Result{
		Detected:   true,
		FirstMatch: matches[0],
		Matches:    matches,
		Confidence: MatchConfidence,
	}
}
