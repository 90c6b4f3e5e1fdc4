// Package fuzzy scores free-text queries against candidate titles.
//
// Users search, select and delete entities by partial, reordered or
// inflected titles, so strict equality or edit distance would reject most
// real queries. Scoring is a pure function: identical inputs always yield
// identical scores and ordering.
package fuzzy

import (
	"sort"
	"strings"
)

// Score levels, highest precedence first.
const (
	scoreExact       = 1.0
	scoreContainment = 0.9
	// Token-overlap scores are scaled into [0.5, 0.9]; anything under 50%
	// token overlap does not score at all.
	overlapFloor = 0.5
)

// Default thresholds tuned per call-site: looser for search, tighter for
// destructive actions where a false positive deletes the wrong entity.
const (
	SearchThreshold = 0.5
	DeleteThreshold = 0.7
)

// Hebrew and English stop-words stripped before token comparison.
var stopWords = map[string]struct{}{
	"את": {}, "של": {}, "עם": {}, "על": {}, "אל": {}, "זה": {}, "גם": {},
	"the": {}, "a": {}, "an": {}, "to": {}, "of": {}, "in": {},
}

// Hebrew final letters folded to their base forms for comparison.
var finalLetters = strings.NewReplacer("ך", "כ", "ם", "מ", "ן", "נ", "ף", "פ", "ץ", "צ")

// Score returns a similarity score in [0,1] between a search phrase and a
// candidate title. Precedence: normalized exact equality, substring
// containment in either direction, then token overlap.
func Score(search, target string) float64 {
	s := normalize(search)
	t := normalize(target)
	if s == "" || t == "" {
		return 0
	}
	if s == t {
		return scoreExact
	}
	if strings.Contains(t, s) || strings.Contains(s, t) {
		return scoreContainment
	}

	sTokens := tokens(s)
	tTokens := tokens(t)
	if len(sTokens) == 0 || len(tTokens) == 0 {
		return 0
	}
	targetSet := make(map[string]struct{}, len(tTokens))
	for _, tok := range tTokens {
		targetSet[tok] = struct{}{}
	}
	matched := 0
	for _, tok := range sTokens {
		if _, ok := targetSet[tok]; ok {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(sTokens))
	if ratio < overlapFloor {
		return 0
	}
	return 0.5 + (ratio-overlapFloor)*0.8
}

// MatchCandidate pairs an item with its fuzzy-match score.
type MatchCandidate[T any] struct {
	Item  T
	Score float64
}

// Filter scores items against search using key to extract each item's title,
// drops anything under threshold, and returns the rest sorted by score
// descending. Ties keep the original item order.
func Filter[T any](items []T, search string, key func(T) string, threshold float64) []MatchCandidate[T] {
	var out []MatchCandidate[T]
	for _, item := range items {
		if score := Score(search, key(item)); score >= threshold && score > 0 {
			out = append(out, MatchCandidate[T]{Item: item, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = finalLetters.Replace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r >= 0x0590 && r <= 0x05FF: // Hebrew block
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokens splits normalized text into comparison tokens, stripping stop-words
// and single-character tokens.
func tokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(s) {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if len([]rune(tok)) < 2 {
			continue
		}
		out = append(out, tok)
	}
	return out
}
