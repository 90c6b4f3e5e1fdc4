package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	base := Event{UserID: "u1", Title: "פגישה", StartTime: time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)}

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr error
	}{
		{"valid", func(e *Event) {}, nil},
		{"missing user", func(e *Event) { e.UserID = "" }, ErrEmptyUserID},
		{"blank title", func(e *Event) { e.Title = "   " }, ErrEmptyTitle},
		{"title too long", func(e *Event) { e.Title = strings.Repeat("א", MaxTitleLength+1) }, ErrTitleTooLong},
		{"zero start", func(e *Event) { e.StartTime = time.Time{} }, ErrZeroStartTime},
		{"end before start", func(e *Event) { e.EndTime = e.StartTime.Add(-time.Hour) }, ErrEndBeforeStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			tt.mutate(&ev)
			if err := ev.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventOverlaps(t *testing.T) {
	start := time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC)
	ev := Event{StartTime: start, EndTime: start.Add(time.Hour)}

	tests := []struct {
		name   string
		qStart time.Time
		qEnd   time.Time
		want   bool
	}{
		{"same window", start, start.Add(time.Hour), true},
		{"partial overlap", start.Add(30 * time.Minute), start.Add(90 * time.Minute), true},
		{"adjacent after", start.Add(time.Hour), start.Add(2 * time.Hour), false},
		{"adjacent before", start.Add(-time.Hour), start, false},
		{"disjoint", start.Add(3 * time.Hour), start.Add(4 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ev.Overlaps(tt.qStart, tt.qEnd); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.qStart, tt.qEnd, got, tt.want)
			}
		})
	}
}

func TestEventOverlapsDefaultsToOneHour(t *testing.T) {
	start := time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC)
	ev := Event{StartTime: start} // no end time

	if !ev.Overlaps(start.Add(30*time.Minute), start.Add(90*time.Minute)) {
		t.Error("open-ended event should overlap within the implied hour")
	}
	if ev.Overlaps(start.Add(time.Hour), start.Add(2*time.Hour)) {
		t.Error("open-ended event should not overlap past the implied hour")
	}
}

func TestReminderNextOccurrence(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) // Monday

	daily := Reminder{DueAt: base, Recurrence: RecurrenceDaily}
	if got := daily.NextOccurrence(base); !got.Equal(base.AddDate(0, 0, 1)) {
		t.Errorf("daily next after base = %v, want next day", got)
	}
	// Strictly after: an instant just before the base yields the base itself.
	if got := daily.NextOccurrence(base.Add(-time.Minute)); !got.Equal(base) {
		t.Errorf("daily next before base = %v, want base", got)
	}

	weekly := Reminder{DueAt: base, Recurrence: RecurrenceWeekly}
	if got := weekly.NextOccurrence(base.AddDate(0, 0, 3)); !got.Equal(base.AddDate(0, 0, 7)) {
		t.Errorf("weekly next = %v, want base+7d", got)
	}

	monthly := Reminder{DueAt: base, Recurrence: RecurrenceMonthly}
	if got := monthly.NextOccurrence(base); !got.Equal(base.AddDate(0, 1, 0)) {
		t.Errorf("monthly next = %v, want base+1mo", got)
	}

	oneOff := Reminder{DueAt: base}
	if got := oneOff.NextOccurrence(base.AddDate(0, 0, 5)); !got.Equal(base) {
		t.Errorf("one-off next = %v, want DueAt", got)
	}
}

func TestReminderValidate(t *testing.T) {
	rem := Reminder{UserID: "u1", Title: "להתקשר", DueAt: time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)}
	if err := rem.Validate(); err != nil {
		t.Fatalf("valid reminder rejected: %v", err)
	}
	rem.LeadMinutes = -5
	if err := rem.Validate(); !errors.Is(err, ErrNegativeLeadTime) {
		t.Errorf("negative lead = %v, want ErrNegativeLeadTime", err)
	}
	rem.LeadMinutes = 0
	rem.Recurrence = "hourly"
	if err := rem.Validate(); !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("bad recurrence = %v, want ErrInvalidRecurrence", err)
	}
}

func TestTaskValidate(t *testing.T) {
	task := Task{UserID: "u1", Title: "קניות"}
	if err := task.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}
	task.Priority = "urgent"
	if err := task.Validate(); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("bad priority = %v, want ErrInvalidPriority", err)
	}
}

func TestLengthLimitsCountRunes(t *testing.T) {
	// Hebrew is two bytes per rune in UTF-8; a title at the rune limit
	// must pass even though its byte length is double.
	title := strings.Repeat("א", MaxTitleLength)

	ev := Event{UserID: "u1", Title: title, StartTime: time.Date(2025, 3, 11, 14, 0, 0, 0, time.UTC)}
	if err := ev.Validate(); err != nil {
		t.Errorf("event title of %d Hebrew characters rejected: %v", MaxTitleLength, err)
	}
	rem := Reminder{UserID: "u1", Title: title, DueAt: time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)}
	if err := rem.Validate(); err != nil {
		t.Errorf("reminder title of %d Hebrew characters rejected: %v", MaxTitleLength, err)
	}
	task := Task{UserID: "u1", Title: title, Description: strings.Repeat("ב", MaxDescriptionLength)}
	if err := task.Validate(); err != nil {
		t.Errorf("task at the rune limits rejected: %v", err)
	}
}

func TestAppendHistoryTrims(t *testing.T) {
	sess := NewSession("u1")
	for i := 0; i < MaxHistoryMessages+10; i++ {
		sess.AppendHistory("user", "הודעה")
	}
	if len(sess.History) != MaxHistoryMessages {
		t.Errorf("history length = %d, want %d", len(sess.History), MaxHistoryMessages)
	}
}
