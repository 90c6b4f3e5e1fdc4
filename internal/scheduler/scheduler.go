// Package scheduler fires reminder notifications at their due time.
//
// One-off reminders are armed as single timers at due time minus lead time;
// recurring reminders are registered as cron entries derived from the
// recurrence rule. The scheduler owns no persistence: callers re-register
// active reminders on startup.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dorshemer/yoman/internal/models"
)

// NotifyFunc delivers a due reminder to its user.
type NotifyFunc func(rem models.Reminder, to string)

// Opts holds configuration options for the Service.
type Opts struct {
	Location   *time.Location
	Clock      func() time.Time
	Completion func(rem models.Reminder)
}

// Option defines a configuration option for the Service.
type Option func(*Opts)

// WithLocation sets the timezone cron entries evaluate in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the clock used to arm one-shot timers. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// WithCompletionFunc registers a callback invoked after a one-shot reminder
// fires, so the caller can retire it in the store.
func WithCompletionFunc(fn func(rem models.Reminder)) Option {
	return func(o *Opts) { o.Completion = fn }
}

// Service schedules reminder firings.
type Service struct {
	cron     *cron.Cron
	notify   NotifyFunc
	complete func(rem models.Reminder)
	now      func() time.Time

	mu      sync.Mutex
	entries map[int64]cron.EntryID
	timers  map[int64]*time.Timer
	skips   map[int64]time.Time
}

// NewService creates a scheduler delivering through notify.
func NewService(notify NotifyFunc, opts ...Option) *Service {
	cfg := Opts{Location: time.Local, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		notify:   notify,
		complete: cfg.Completion,
		now:      cfg.Clock,
		entries:  make(map[int64]cron.EntryID),
		timers:   make(map[int64]*time.Timer),
		skips:    make(map[int64]time.Time),
	}
}

// Start begins evaluating cron entries.
func (s *Service) Start() {
	s.cron.Start()
	slog.Info("Scheduler.Start: scheduler running")
}

// Stop halts cron evaluation and drops all armed timers.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	slog.Info("Scheduler.Stop: scheduler stopped")
}

// Schedule arms a firing for the reminder. A previously registered firing
// for the same reminder is replaced.
func (s *Service) Schedule(rem models.Reminder, to string) error {
	s.Cancel(rem.ID)

	fireAt := rem.DueAt.Add(-time.Duration(rem.LeadMinutes) * time.Minute)
	if rem.IsRecurring() {
		spec := cronSpec(rem.Recurrence, fireAt)
		entryID, err := s.cron.AddFunc(spec, func() {
			if s.suppressed(rem.ID) {
				slog.Debug("Scheduler: recurring firing suppressed", "reminderID", rem.ID)
				return
			}
			s.notify(rem, to)
		})
		if err != nil {
			return fmt.Errorf("registering recurring reminder %d: %w", rem.ID, err)
		}
		s.mu.Lock()
		s.entries[rem.ID] = entryID
		s.mu.Unlock()
		slog.Debug("Scheduler.Schedule: recurring reminder registered", "reminderID", rem.ID, "spec", spec)
		return nil
	}

	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, rem.ID)
		s.mu.Unlock()
		s.notify(rem, to)
		if s.complete != nil {
			s.complete(rem)
		}
	})
	s.mu.Lock()
	s.timers[rem.ID] = timer
	s.mu.Unlock()
	slog.Debug("Scheduler.Schedule: one-shot reminder armed", "reminderID", rem.ID, "fireAt", fireAt)
	return nil
}

// SkipUntil suppresses the reminder's recurring firings up to and including
// the given instant. The cron entry stays registered, so the series resumes
// with the first occurrence after the window.
func (s *Service) SkipUntil(reminderID int64, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skips[reminderID] = until
	slog.Debug("Scheduler.SkipUntil: firings suppressed", "reminderID", reminderID, "until", until)
}

// suppressed reports whether the reminder is inside a skip window. An
// expired window is dropped on first check past its end.
func (s *Service) suppressed(reminderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.skips[reminderID]
	if !ok {
		return false
	}
	if s.now().After(until) {
		delete(s.skips, reminderID)
		return false
	}
	return true
}

// Restore arms firings for reminders loaded at startup. Recurring reminders
// are always re-registered. One-off reminders whose firing time has already
// passed are not armed; they are returned so the caller can retire them
// instead of replaying stale notifications.
func (s *Service) Restore(rems []models.Reminder) ([]models.Reminder, error) {
	var stale []models.Reminder
	for _, rem := range rems {
		if !rem.IsRecurring() {
			fireAt := rem.DueAt.Add(-time.Duration(rem.LeadMinutes) * time.Minute)
			if !fireAt.After(s.now()) {
				stale = append(stale, rem)
				continue
			}
		}
		if err := s.Schedule(rem, rem.UserID); err != nil {
			return stale, err
		}
	}
	return stale, nil
}

// Cancel drops any armed firing for the reminder. Unknown IDs are a no-op.
func (s *Service) Cancel(reminderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[reminderID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, reminderID)
	}
	if timer, ok := s.timers[reminderID]; ok {
		timer.Stop()
		delete(s.timers, reminderID)
	}
	delete(s.skips, reminderID)
}

// cronSpec derives a cron expression from the recurrence rule and the
// firing instant.
func cronSpec(rule models.Recurrence, fireAt time.Time) string {
	switch rule {
	case models.RecurrenceDaily:
		return fmt.Sprintf("%d %d * * *", fireAt.Minute(), fireAt.Hour())
	case models.RecurrenceWeekly:
		return fmt.Sprintf("%d %d * * %d", fireAt.Minute(), fireAt.Hour(), int(fireAt.Weekday()))
	case models.RecurrenceMonthly:
		return fmt.Sprintf("%d %d %d * *", fireAt.Minute(), fireAt.Hour(), fireAt.Day())
	default:
		return ""
	}
}
