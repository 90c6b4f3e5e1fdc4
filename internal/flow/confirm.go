package flow

import "strings"

// Answer is the outcome of interpreting a confirmation reply.
type Answer int

const (
	// AnswerUnknown means the reply matched neither token set. Callers must
	// re-prompt, never default.
	AnswerUnknown Answer = iota
	AnswerYes
	AnswerNo
)

// Confirmation tokens in both languages. Matching tolerates a single typo,
// so destructive actions survive trivial misspellings without silently doing
// the wrong thing.
var (
	yesTokens = []string{"כן", "כן.", "yes", "y", "אישור", "מאשר", "מאשרת", "ok", "אוקיי", "בטח"}
	noTokens  = []string{"לא", "לא.", "no", "n", "ביטול", "בטל", "לבטל"}
)

// ParseYesNo interprets text as a yes/no confirmation. Exact tokens and
// single-edit-distance typos resolve; anything else is AnswerUnknown.
func ParseYesNo(text string) Answer {
	reply := strings.ToLower(strings.TrimSpace(text))
	if reply == "" {
		return AnswerUnknown
	}
	for _, tok := range yesTokens {
		if withinOneEdit(reply, tok) {
			return AnswerYes
		}
	}
	for _, tok := range noTokens {
		if withinOneEdit(reply, tok) {
			return AnswerNo
		}
	}
	return AnswerUnknown
}

// withinOneEdit reports whether a and b are at most one insertion, deletion
// or substitution apart. Operates on runes so Hebrew counts letters, not
// bytes. Single-letter tokens require an exact match: one edit on them
// matches almost anything.
func withinOneEdit(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(rb) <= 1 {
		return a == b
	}
	if abs(len(ra)-len(rb)) > 1 {
		return false
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	i, j, edits := 0, 0, 0
	for i < len(ra) && j < len(rb) {
		if ra[i] == rb[j] {
			i++
			j++
			continue
		}
		edits++
		if edits > 1 {
			return false
		}
		if len(ra) == len(rb) {
			i++
		}
		j++
	}
	if j < len(rb) || i < len(ra) {
		edits++
	}
	return edits <= 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
