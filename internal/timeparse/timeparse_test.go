package timeparse

import (
	"testing"
	"time"
)

// Monday, March 10 2025, 14:30 local.
var anchor = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func testResolver() *Resolver {
	return NewResolver(WithClock(func() time.Time { return anchor }))
}

func TestResolveRelativeDays(t *testing.T) {
	r := testResolver()
	cases := []struct {
		text string
		want time.Time
	}{
		{"היום", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"מחר", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"מחרתיים", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"בעוד 3 ימים", time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)},
		{"בעוד יומיים", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"בעוד שבוע", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		res := r.Resolve(c.text, time.UTC)
		if !res.OK {
			t.Errorf("%q: expected success, got hint %q", c.text, res.Hint)
			continue
		}
		if !res.Query.Date.Equal(c.want) {
			t.Errorf("%q: got %v, want %v", c.text, res.Query.Date, c.want)
		}
		if res.Query.HasTime {
			t.Errorf("%q: date-only phrase should not carry a time", c.text)
		}
		if res.Query.Source != SourceRelative {
			t.Errorf("%q: expected relative source, got %q", c.text, res.Query.Source)
		}
	}
}

func TestResolveWeekday(t *testing.T) {
	r := testResolver()
	// Anchor is a Monday. Tuesday is tomorrow; Monday wraps a full week.
	cases := []struct {
		text string
		want time.Time
	}{
		{"יום שלישי", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"ביום שלישי", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"יום שלישי הבא", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"שבת", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"יום שני", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"ראשון", time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		res := r.Resolve(c.text, time.UTC)
		if !res.OK {
			t.Errorf("%q: expected success, got hint %q", c.text, res.Hint)
			continue
		}
		if !res.Query.Date.Equal(c.want) {
			t.Errorf("%q: got %v, want %v", c.text, res.Query.Date, c.want)
		}
	}
}

func TestResolveLiteralDateYearRollover(t *testing.T) {
	r := testResolver()

	// A past day/month with no year advances to next year.
	res := r.Resolve("05/01", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.Date, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("past date: got %v, want %v", got, want)
	}

	// A future day/month stays in the current year.
	res = r.Resolve("12.05", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.Date, time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("future date: got %v, want %v", got, want)
	}
	if res.Query.Source != SourceLiteral {
		t.Errorf("expected literal source, got %q", res.Query.Source)
	}

	// Today itself stays in the current year.
	res = r.Resolve("10/03", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.Date, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("today: got %v, want %v", got, want)
	}

	// An explicit year is never adjusted.
	res = r.Resolve("05/01/2024", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.Date, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("explicit year: got %v, want %v", got, want)
	}
}

func TestResolveLiteralDateInvalid(t *testing.T) {
	r := testResolver()
	for _, text := range []string{"31/02", "32/01", "15/13"} {
		if res := r.Resolve(text, time.UTC); res.OK {
			t.Errorf("%q: expected failure, got %v", text, res.Query.Date)
		}
	}
}

func TestResolveBareNumberTime(t *testing.T) {
	r := testResolver()

	// 16:00 is still ahead of the 14:30 anchor: today.
	res := r.Resolve("16", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.Date, time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("future hour: got %v, want %v", got, want)
	}
	if !res.Query.HasTime {
		t.Error("bare number should resolve with a time")
	}

	// 9:00 already passed: tomorrow.
	res = r.Resolve("9", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.Date, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("past hour: got %v, want %v", got, want)
	}
}

func TestResolveClockTime(t *testing.T) {
	r := testResolver()
	cases := []struct {
		text string
		want time.Time
	}{
		{"מחר 17:30", time.Date(2025, 3, 11, 17, 30, 0, 0, time.UTC)},
		{"מחר בשעה 17:30", time.Date(2025, 3, 11, 17, 30, 0, 0, time.UTC)},
		{"מחר ב17:30", time.Date(2025, 3, 11, 17, 30, 0, 0, time.UTC)},
		{"מחר 8 בערב", time.Date(2025, 3, 11, 20, 0, 0, 0, time.UTC)},
		{"מחר 3 אחרי הצהריים", time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)},
		{"מחר 8 בבוקר", time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)},
		{"מחר 11 בלילה", time.Date(2025, 3, 11, 23, 0, 0, 0, time.UTC)},
		{"מחר 2 בלילה", time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		res := r.Resolve(c.text, time.UTC)
		if !res.OK {
			t.Errorf("%q: expected success, got hint %q", c.text, res.Hint)
			continue
		}
		if !res.Query.Date.Equal(c.want) {
			t.Errorf("%q: got %v, want %v", c.text, res.Query.Date, c.want)
		}
		if !res.Query.HasTime {
			t.Errorf("%q: expected HasTime", c.text)
		}
	}
}

func TestResolveWeekRange(t *testing.T) {
	r := testResolver()

	res := r.ResolveRange("השבוע", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	q := res.Query
	if q.Range != RangeWeek {
		t.Fatalf("expected week range, got %q", q.Range)
	}
	// Sunday-aligned window containing the anchor, exactly one week long.
	if got, want := q.RangeStart, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("range start: got %v, want %v", got, want)
	}
	if got := q.RangeEnd.Sub(q.RangeStart); got != 7*24*time.Hour {
		t.Errorf("range span: got %v, want one week", got)
	}
	if q.Date.Before(q.RangeStart) || q.Date.After(q.RangeEnd) {
		t.Errorf("anchor %v outside range [%v, %v]", q.Date, q.RangeStart, q.RangeEnd)
	}

	res = r.ResolveRange("שבוע הבא", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.RangeStart, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("next week start: got %v, want %v", got, want)
	}
}

func TestResolveMonthRange(t *testing.T) {
	r := testResolver()

	res := r.ResolveRange("החודש", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if res.Query.Range != RangeMonth {
		t.Fatalf("expected month range, got %q", res.Query.Range)
	}
	if got, want := res.Query.RangeStart, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("month start: got %v, want %v", got, want)
	}
	if got, want := res.Query.RangeEnd, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("month end: got %v, want %v", got, want)
	}

	res = r.ResolveRange("חודש הבא", time.UTC)
	if !res.OK {
		t.Fatalf("expected success, got hint %q", res.Hint)
	}
	if got, want := res.Query.RangeStart, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("next month start: got %v, want %v", got, want)
	}
}

func TestResolveFailure(t *testing.T) {
	r := testResolver()
	for _, text := range []string{"", "סתם טקסט", "בלה בלה 99/99", "מתישהו"} {
		res := r.Resolve(text, time.UTC)
		if res.OK {
			t.Errorf("%q: expected failure, got %v", text, res.Query.Date)
			continue
		}
		if res.Hint == "" {
			t.Errorf("%q: failure must carry a localized hint", text)
		}
	}
}

func TestResolveTimeOnRangeFails(t *testing.T) {
	r := testResolver()
	if res := r.Resolve("השבוע 17:00", time.UTC); res.OK {
		t.Errorf("time of day on a week range should fail, got %v", res.Query)
	}
}
