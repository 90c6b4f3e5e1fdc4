// Package timeparse resolves natural-language Hebrew date and time
// expressions into absolute timestamps in a target timezone.
//
// Parsing is organized as an ordered list of independent strategies tried in
// priority order. Each strategy is total: it either claims the input and
// returns a resolved query, or declines. A failed resolution is always
// reported explicitly with a localized hint; callers must never interpret a
// failed parse as "no date".
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source distinguishes how a date was derived, which affects downstream
// display formatting but not semantics.
type Source string

const (
	// SourceRelative marks dates resolved from a relative phrase ("מחר").
	SourceRelative Source = "relative"
	// SourceLiteral marks dates resolved from a calendar literal ("12/05").
	SourceLiteral Source = "literal"
)

// RangeKind tags a resolved query that denotes a span rather than an instant.
type RangeKind string

const (
	RangeNone  RangeKind = ""
	RangeWeek  RangeKind = "week"
	RangeMonth RangeKind = "month"
)

// DateQuery is the resolved output of a successful parse.
type DateQuery struct {
	Date       time.Time
	HasTime    bool // whether the input carried an explicit time of day
	Range      RangeKind
	RangeStart time.Time
	RangeEnd   time.Time
	Source     Source
}

// Result reports the outcome of a resolution attempt. When OK is false,
// Hint carries a localized corrective message for the user.
type Result struct {
	OK    bool
	Query DateQuery
	Hint  string
}

// FailureHint is the localized hint returned when no strategy matches.
const FailureHint = "לא הצלחתי להבין את התאריך. אפשר לכתוב למשל: מחר, יום שלישי, 12/05 או 15:30"

// Resolver parses date/time text relative to an injectable clock.
type Resolver struct {
	now func() time.Time
}

// Option defines a configuration option for the Resolver.
type Option func(*Resolver)

// WithClock overrides the clock used as the "now" anchor. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// relative day phrases mapped to day offsets from today.
var relativeDays = map[string]int{
	"היום":     0,
	"today":    0,
	"מחר":      1,
	"tomorrow": 1,
	"מחרתיים":  2,
}

// weekday names mapped to time.Weekday. Hebrew weeks start on Sunday.
var weekdays = map[string]time.Weekday{
	"ראשון": time.Sunday,
	"שני":   time.Monday,
	"שלישי": time.Tuesday,
	"רביעי": time.Wednesday,
	"חמישי": time.Thursday,
	"שישי":  time.Friday,
	"שבת":   time.Saturday,
}

var (
	inDaysPattern      = regexp.MustCompile(`^בעוד (\d{1,3}) ימים?$`)
	nextWeekdayPattern = regexp.MustCompile(`^(?:ב?יום )?(ראשון|שני|שלישי|רביעי|חמישי|שישי|שבת)(?: הבא)?$`)
	literalDatePattern = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})(?:[./](\d{2,4}))?$`)
	clockPattern       = regexp.MustCompile(`(?:^|\s)(?:בשעה |ב)?(\d{1,2}):(\d{2})(?:\s|$)`)
	periodTimePattern  = regexp.MustCompile(`(?:^|\s)(?:בשעה )?(\d{1,2})( בבוקר| לפנות בוקר| בצהריים| אחרי הצהריים| אחה"צ| בערב| בלילה)(?:\s|$)`)
	bareNumberPattern  = regexp.MustCompile(`^(\d{1,2})$`)
)

// Resolve parses text into a single date (and optionally a time) in loc.
// Range phrases resolve to the range start; use ResolveRange when the caller
// cares about bounds.
func (r *Resolver) Resolve(text string, loc *time.Location) Result {
	return r.resolve(text, loc)
}

// ResolveRange parses text like Resolve but additionally reports week/month
// range bounds when the phrase denotes a span.
func (r *Resolver) ResolveRange(text string, loc *time.Location) Result {
	return r.resolve(text, loc)
}

func (r *Resolver) resolve(text string, loc *time.Location) Result {
	if loc == nil {
		loc = time.Local
	}
	now := r.now().In(loc)
	text = normalize(text)
	if text == "" {
		return Result{OK: false, Hint: FailureHint}
	}

	// Time-of-day extraction is layered independently of date parsing: pull
	// the time component out first, then resolve whatever text remains as a
	// date.
	hour, minute, hasTime, remainder := extractTime(text)

	if remainder == "" {
		if !hasTime {
			return Result{OK: false, Hint: FailureHint}
		}
		// Bare time with no date content: today at that hour, rolling to
		// tomorrow if the instant has already passed.
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return Result{OK: true, Query: DateQuery{Date: at, HasTime: true, Source: SourceRelative}}
	}

	q, ok := r.resolveDate(remainder, now, loc)
	if !ok {
		return Result{OK: false, Hint: FailureHint}
	}
	if hasTime {
		if q.Range != RangeNone {
			// A time of day is meaningless on a week/month span.
			return Result{OK: false, Hint: FailureHint}
		}
		q.Date = time.Date(q.Date.Year(), q.Date.Month(), q.Date.Day(), hour, minute, 0, 0, loc)
		q.HasTime = true
	}
	return Result{OK: true, Query: q}
}

// resolveDate tries each date strategy in priority order.
func (r *Resolver) resolveDate(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	strategies := []func(string, time.Time, *time.Location) (DateQuery, bool){
		parseRelativeDay,
		parseWeekRange,
		parseMonthRange,
		parseInDays,
		parseWeekday,
		parseLiteralDate,
	}
	for _, s := range strategies {
		if q, ok := s(text, now, loc); ok {
			return q, true
		}
	}
	return DateQuery{}, false
}

func parseRelativeDay(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	offset, ok := relativeDays[text]
	if !ok {
		return DateQuery{}, false
	}
	d := midnight(now, loc).AddDate(0, 0, offset)
	return DateQuery{Date: d, Source: SourceRelative}, true
}

func parseWeekRange(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	var offsetWeeks int
	switch text {
	case "השבוע":
		offsetWeeks = 0
	case "שבוע הבא", "בשבוע הבא":
		offsetWeeks = 1
	case "בעוד שבוע":
		d := midnight(now, loc).AddDate(0, 0, 7)
		return DateQuery{Date: d, Source: SourceRelative}, true
	case "בעוד שבועיים":
		d := midnight(now, loc).AddDate(0, 0, 14)
		return DateQuery{Date: d, Source: SourceRelative}, true
	default:
		return DateQuery{}, false
	}
	// Weeks are Sunday-aligned.
	start := midnight(now, loc).AddDate(0, 0, -int(now.Weekday())+7*offsetWeeks)
	end := start.AddDate(0, 0, 7)
	anchor := start
	if offsetWeeks == 0 {
		anchor = midnight(now, loc)
	}
	return DateQuery{
		Date:       anchor,
		Range:      RangeWeek,
		RangeStart: start,
		RangeEnd:   end,
		Source:     SourceRelative,
	}, true
}

func parseMonthRange(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	var offsetMonths int
	switch text {
	case "החודש":
		offsetMonths = 0
	case "חודש הבא", "בחודש הבא":
		offsetMonths = 1
	default:
		return DateQuery{}, false
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, offsetMonths, 0)
	end := start.AddDate(0, 1, 0)
	anchor := start
	if offsetMonths == 0 {
		anchor = midnight(now, loc)
	}
	return DateQuery{
		Date:       anchor,
		Range:      RangeMonth,
		RangeStart: start,
		RangeEnd:   end,
		Source:     SourceRelative,
	}, true
}

func parseInDays(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	switch text {
	case "בעוד יום":
		return DateQuery{Date: midnight(now, loc).AddDate(0, 0, 1), Source: SourceRelative}, true
	case "בעוד יומיים":
		return DateQuery{Date: midnight(now, loc).AddDate(0, 0, 2), Source: SourceRelative}, true
	}
	m := inDaysPattern.FindStringSubmatch(text)
	if m == nil {
		return DateQuery{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DateQuery{}, false
	}
	return DateQuery{Date: midnight(now, loc).AddDate(0, 0, n), Source: SourceRelative}, true
}

// parseWeekday handles both "יום שלישי הבא" and bare weekday names. The
// target weekday wraps to the following week when it is today or already
// past: a user naming a weekday always means the next occurrence.
func parseWeekday(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	m := nextWeekdayPattern.FindStringSubmatch(text)
	if m == nil {
		return DateQuery{}, false
	}
	target, ok := weekdays[m[1]]
	if !ok {
		return DateQuery{}, false
	}
	delta := (int(target) - int(now.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return DateQuery{Date: midnight(now, loc).AddDate(0, 0, delta), Source: SourceRelative}, true
}

// parseLiteralDate handles DD/MM[/YYYY] and DD.MM[.YYYY]. When the year is
// omitted and the resulting date already passed this year, the year advances
// by one: a bare day/month almost always means the next occurrence.
func parseLiteralDate(text string, now time.Time, loc *time.Location) (DateQuery, bool) {
	m := literalDatePattern.FindStringSubmatch(text)
	if m == nil {
		return DateQuery{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return DateQuery{}, false
	}
	year := now.Year()
	explicitYear := false
	if m[3] != "" {
		y, err := strconv.Atoi(m[3])
		if err != nil {
			return DateQuery{}, false
		}
		if y < 100 {
			y += 2000
		}
		year = y
		explicitYear = true
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// Reject rollover like 31/02 -> 03/03.
	if d.Day() != day || d.Month() != time.Month(month) {
		return DateQuery{}, false
	}
	if !explicitYear && d.Before(midnight(now, loc)) {
		d = d.AddDate(1, 0, 0)
	}
	return DateQuery{Date: d, Source: SourceLiteral}, true
}

// extractTime pulls a time-of-day component out of text, returning the
// remaining date text. Recognizes HH:MM literals, period-qualified hours
// ("8 בערב"), and a bare number when it is the entire input.
func extractTime(text string) (hour, minute int, ok bool, remainder string) {
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h <= 23 && mm <= 59 {
			rest := normalize(strings.Replace(text, strings.TrimSpace(m[0]), "", 1))
			return h, mm, true, rest
		}
	}
	if m := periodTimePattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			h = shiftByPeriod(h, strings.TrimSpace(m[2]))
			rest := normalize(strings.Replace(text, strings.TrimSpace(m[0]), "", 1))
			return h, 0, true, rest
		}
	}
	if m := bareNumberPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h <= 23 {
			return h, 0, true, ""
		}
	}
	return 0, 0, false, text
}

// shiftByPeriod converts an hour plus a Hebrew day-period qualifier to
// 24-hour time: 1-11 in the afternoon/evening become 13-23.
func shiftByPeriod(hour int, period string) int {
	switch period {
	case "בבוקר", "לפנות בוקר":
		if hour == 12 {
			return 0
		}
		return hour
	case "בצהריים", "אחרי הצהריים", `אחה"צ`:
		if hour < 12 {
			return hour + 12
		}
		return hour
	case "בערב":
		if hour < 12 {
			return hour + 12
		}
		return hour
	case "בלילה":
		// "1 בלילה" through "4 בלילה" are small hours; later hours are PM.
		if hour >= 5 && hour < 12 {
			return hour + 12
		}
		return hour
	}
	return hour
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Join(strings.Fields(s), " ")
}
