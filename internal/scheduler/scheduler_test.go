package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

type capture struct {
	mu    sync.Mutex
	fired []models.Reminder
	ch    chan struct{}
}

func newCapture() *capture {
	return &capture{ch: make(chan struct{}, 8)}
}

func (c *capture) notify(rem models.Reminder, to string) {
	c.mu.Lock()
	c.fired = append(c.fired, rem)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fired)
}

func TestScheduleOneShotFires(t *testing.T) {
	c := newCapture()
	s := NewService(c.notify)
	defer s.Stop()

	rem := models.Reminder{ID: 1, UserID: "u1", Title: "call", DueAt: time.Now().Add(10 * time.Millisecond), Active: true}
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	select {
	case <-c.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot reminder never fired")
	}
	if c.count() != 1 {
		t.Errorf("fired %d times, want 1", c.count())
	}
}

func TestCancelStopsOneShot(t *testing.T) {
	c := newCapture()
	s := NewService(c.notify)
	defer s.Stop()

	rem := models.Reminder{ID: 2, UserID: "u1", Title: "call", DueAt: time.Now().Add(50 * time.Millisecond), Active: true}
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	s.Cancel(rem.ID)

	select {
	case <-c.ch:
		t.Fatal("cancelled reminder fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestLeadTimeAdvancesFiring(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c := newCapture()
	s := NewService(c.notify, WithClock(func() time.Time { return base }))
	defer s.Stop()

	// Due in 15 minutes with a 15-minute lead: fires immediately.
	rem := models.Reminder{ID: 3, UserID: "u1", Title: "meeting", DueAt: base.Add(15 * time.Minute), LeadMinutes: 15, Active: true}
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	select {
	case <-c.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("lead-adjusted reminder never fired")
	}
}

func TestRescheduleReplacesExisting(t *testing.T) {
	c := newCapture()
	s := NewService(c.notify)
	defer s.Stop()

	rem := models.Reminder{ID: 4, UserID: "u1", Title: "call", DueAt: time.Now().Add(time.Hour), Active: true}
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	rem.DueAt = time.Now().Add(10 * time.Millisecond)
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}

	select {
	case <-c.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("rescheduled reminder never fired")
	}
	if c.count() != 1 {
		t.Errorf("fired %d times, want 1", c.count())
	}
}

func TestSkipUntilSuppressesFirings(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	clock := base
	c := newCapture()
	s := NewService(c.notify, WithClock(func() time.Time { return clock }))

	s.SkipUntil(7, base.Add(48*time.Hour))
	if !s.suppressed(7) {
		t.Error("firing inside the window must be suppressed")
	}
	clock = base.Add(48 * time.Hour)
	if !s.suppressed(7) {
		t.Error("firing exactly at the window end must be suppressed")
	}
	clock = base.Add(48*time.Hour + time.Minute)
	if s.suppressed(7) {
		t.Error("firing past the window must go through")
	}
	s.mu.Lock()
	_, kept := s.skips[7]
	s.mu.Unlock()
	if kept {
		t.Error("expired window must be dropped")
	}
}

func TestSkipUntilKeepsSeriesRegistered(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c := newCapture()
	s := NewService(c.notify, WithClock(func() time.Time { return base }))
	defer s.Stop()

	rem := models.Reminder{ID: 5, UserID: "u1", Title: "pill", DueAt: base, Recurrence: models.RecurrenceDaily, Active: true}
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	s.SkipUntil(rem.ID, base.Add(48*time.Hour))

	s.mu.Lock()
	_, ok := s.entries[rem.ID]
	s.mu.Unlock()
	if !ok {
		t.Error("skip window must not drop the recurring entry")
	}
}

func TestCancelClearsSkipWindow(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c := newCapture()
	s := NewService(c.notify, WithClock(func() time.Time { return base }))

	s.SkipUntil(6, base.Add(time.Hour))
	s.Cancel(6)
	if s.suppressed(6) {
		t.Error("cancel must drop the skip window")
	}
}

func TestOneShotCompletionRetiresReminder(t *testing.T) {
	c := newCapture()
	done := make(chan models.Reminder, 1)
	s := NewService(c.notify, WithCompletionFunc(func(rem models.Reminder) { done <- rem }))
	defer s.Stop()

	rem := models.Reminder{ID: 9, UserID: "u1", Title: "call", DueAt: time.Now().Add(10 * time.Millisecond), Active: true}
	if err := s.Schedule(rem, "u1"); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	select {
	case got := <-done:
		if got.ID != rem.ID {
			t.Errorf("completion for reminder %d, want %d", got.ID, rem.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never ran")
	}
}

func TestRestoreSkipsPastDueOneOffs(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c := newCapture()
	s := NewService(c.notify, WithClock(func() time.Time { return base }))
	defer s.Stop()

	rems := []models.Reminder{
		{ID: 10, UserID: "u1", Title: "stale", DueAt: base.Add(-time.Hour), Active: true},
		{ID: 11, UserID: "u1", Title: "future", DueAt: base.Add(time.Hour), Active: true},
		{ID: 12, UserID: "u1", Title: "series", DueAt: base.Add(-48 * time.Hour), Recurrence: models.RecurrenceDaily, Active: true},
	}
	stale, err := s.Restore(rems)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != 10 {
		t.Fatalf("stale = %+v, want only the past-due one-off", stale)
	}
	if c.count() != 0 {
		t.Errorf("restore fired %d notifications, want 0", c.count())
	}
	s.mu.Lock()
	_, staleArmed := s.timers[10]
	_, futureArmed := s.timers[11]
	_, seriesArmed := s.entries[12]
	s.mu.Unlock()
	if staleArmed {
		t.Error("past-due one-off must not be armed")
	}
	if !futureArmed {
		t.Error("future one-off must be armed")
	}
	if !seriesArmed {
		t.Error("recurring series must be registered")
	}
}

func TestCronSpec(t *testing.T) {
	at := time.Date(2025, 3, 12, 19, 30, 0, 0, time.UTC) // Wednesday
	tests := []struct {
		rule models.Recurrence
		want string
	}{
		{models.RecurrenceDaily, "30 19 * * *"},
		{models.RecurrenceWeekly, "30 19 * * 3"},
		{models.RecurrenceMonthly, "30 19 12 * *"},
	}
	for _, tt := range tests {
		if got := cronSpec(tt.rule, at); got != tt.want {
			t.Errorf("cronSpec(%s) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}
