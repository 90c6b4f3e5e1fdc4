package fuzzy

import "testing"

func TestScorePrecedence(t *testing.T) {
	cases := []struct {
		name   string
		search string
		target string
		want   float64
	}{
		{"exact", "פגישה עם דנה", "פגישה עם דנה", 1.0},
		{"exact after normalization", "  פגישה   עם דנה! ", "פגישה עם דנה", 1.0},
		{"inflected containment", "שיעור ריקוד", "שיעור ריקודים בעיר", 0.9},
		{"substring search in target", "דנה", "פגישה עם דנה", 0.9},
		{"substring target in search", "פגישה עם דנה בצהריים", "פגישה עם דנה", 0.9},
		{"empty search", "", "פגישה", 0},
		{"empty target", "פגישה", "", 0},
	}
	for _, c := range cases {
		if got := Score(c.search, c.target); got != c.want {
			t.Errorf("%s: Score(%q, %q) = %v, want %v", c.name, c.search, c.target, got, c.want)
		}
	}
}

func TestScoreTokenOverlap(t *testing.T) {
	// Reordered tokens: full overlap scores the top of the overlap band.
	if got := Score("דנה פגישה", "פגישה דנה"); got != 0.9 {
		t.Errorf("full token overlap: got %v, want 0.9", got)
	}
	// Half overlap hits exactly the floor.
	if got := Score("פגישה רופא", "פגישה חשובה"); got != 0.5 {
		t.Errorf("half token overlap: got %v, want 0.5", got)
	}
	// Under 50% overlap does not score at all.
	if got := Score("רופא שיניים כואב", "פגישה עם רופא אחר לגמרי"); got >= 0.5 {
		t.Errorf("low overlap should not reach floor, got %v", got)
	}
	if got := Score("אחד שתיים שלוש", "ארבע חמש שש"); got != 0 {
		t.Errorf("no overlap: got %v, want 0", got)
	}
}

func TestScoreIdempotent(t *testing.T) {
	a := Score("פגישת צוות", "פגישת צוות שבועית")
	b := Score("פגישת צוות", "פגישת צוות שבועית")
	if a != b {
		t.Errorf("identical inputs must yield identical scores: %v vs %v", a, b)
	}
}

func TestFilter(t *testing.T) {
	type item struct {
		ID    int
		Title string
	}
	items := []item{
		{1, "פגישה עם דנה"},
		{2, "רופא שיניים"},
		{3, "פגישה עם יוסי"},
		{4, "קניות לשבת"},
	}

	got := Filter(items, "פגישה", func(i item) string { return i.Title }, SearchThreshold)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	for _, m := range got {
		if m.Item.ID != 1 && m.Item.ID != 3 {
			t.Errorf("unexpected match %+v", m)
		}
		if m.Score != 0.9 {
			t.Errorf("containment match expected 0.9, got %v", m.Score)
		}
	}

	// Tighter destructive threshold drops weak overlap matches.
	weak := Filter(items, "פגישה חדשה בעיר", func(i item) string { return i.Title }, DeleteThreshold)
	for _, m := range weak {
		if m.Score < DeleteThreshold {
			t.Errorf("filter returned score below threshold: %v", m.Score)
		}
	}
}

func TestFilterSortedDescending(t *testing.T) {
	items := []string{"פגישה דנה אחת", "פגישה", "אחר לגמרי"}
	got := Filter(items, "פגישה", func(s string) string { return s }, 0.4)
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Errorf("results not sorted descending: %v", got)
		}
	}
}
