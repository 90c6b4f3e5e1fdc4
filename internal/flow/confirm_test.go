package flow

import "testing"

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		in   string
		want Answer
	}{
		{"כן", AnswerYes},
		{"yes", AnswerYes},
		{"y", AnswerYes},
		{"אישור", AnswerYes},
		{"לא", AnswerNo},
		{"no", AnswerNo},
		{"ביטול", AnswerNo},

		// Single-edit typos still resolve.
		{"כןן", AnswerYes},
		{"yess", AnswerYes},
		{"tes", AnswerYes},
		{"אישוק", AnswerYes},
		{"לאא", AnswerNo},
		{"ביטןל", AnswerNo},

		// Anything further off requires a re-prompt, never a guess.
		{"אולי", AnswerUnknown},
		{"בטח שלא", AnswerUnknown},
		{"123", AnswerUnknown},
		{"", AnswerUnknown},
		{"מחר", AnswerUnknown},
	}
	for _, tt := range tests {
		if got := ParseYesNo(tt.in); got != tt.want {
			t.Errorf("ParseYesNo(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithinOneEdit(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"כן", "כן", true},
		{"כו", "כן", true},   // substitution
		{"כןן", "כן", true},  // insertion
		{"ל", "לא", true},    // deletion
		{"אולי", "כן", false},
		{"שלום", "לא", false},
		{"y", "y", true},
		{"x", "y", false}, // single-letter tokens are exact-match only
	}
	for _, tt := range tests {
		if got := withinOneEdit(tt.a, tt.b); got != tt.want {
			t.Errorf("withinOneEdit(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
