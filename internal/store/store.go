// Package store provides storage backends for Yoman.
//
// It defines the session, domain-entity and counter storage contracts used by
// the flow engine and the intent pipeline, with SQLite and PostgreSQL
// implementations plus an in-memory store for tests and ephemeral setups.
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

// Default configuration constants.
const (
	// DefaultSessionTTL is how long an idle conversation session survives.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultCounterTTL bounds rolling failure/proficiency counters.
	DefaultCounterTTL = 10 * time.Minute
	// DefaultScratchTTL bounds one-shot context-injection entries.
	DefaultScratchTTL = 5 * time.Minute
)

// Error variables shared by store implementations.
var (
	ErrNotFound = errors.New("record not found")
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-looking connection strings
// and "sqlite" for everything else (file paths included).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Mismatch records a disagreement between the keyword pre-filter and the
// external classifier, kept for offline review.
type Mismatch struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	RawText    string    `json:"raw_text"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionStore persists conversation sessions keyed by user.
// Contract: last-write-wins; the caller serializes turns per user.
type SessionStore interface {
	GetSession(userID string) (*models.Session, error)
	SaveSession(session models.Session, ttl time.Duration) error
	DeleteSession(userID string) error
}

// EventRepository persists calendar events.
type EventRepository interface {
	AddEvent(event *models.Event) error
	GetEvent(id int64) (*models.Event, error)
	UpdateEvent(event models.Event) error
	DeleteEvent(id int64) error
	GetEventsByDate(userID string, dayStart, dayEnd time.Time) ([]models.Event, error)
	GetUpcomingEvents(userID string, from time.Time, limit int) ([]models.Event, error)
	GetAllEvents(userID string, limit, offset int, descending bool) ([]models.Event, error)
	GetOverlappingEvents(userID string, start, end time.Time) ([]models.Event, error)
}

// ReminderRepository persists reminders.
type ReminderRepository interface {
	AddReminder(reminder *models.Reminder) error
	GetReminder(id int64) (*models.Reminder, error)
	GetActiveReminders(userID string) ([]models.Reminder, error)
	ListAllActiveReminders() ([]models.Reminder, error)
	UpdateReminder(reminder models.Reminder) error
	DeleteReminder(id int64) error
}

// TaskRepository persists tasks.
type TaskRepository interface {
	AddTask(task *models.Task) error
	GetTask(id int64) (*models.Task, error)
	GetOpenTasks(userID string) ([]models.Task, error)
	UpdateTask(task models.Task) error
	DeleteTask(id int64) error
}

// CounterStore provides TTL-bounded counters and one-shot scratch entries.
// Counters back failure/proficiency tracking; scratch entries back transient
// context injection. Both carry explicit expirations so transient state
// cannot leak into unrelated future conversations.
type CounterStore interface {
	IncrCounter(key string, ttl time.Duration) (int, error)
	GetCounter(key string) (int, error)
	ResetCounter(key string) error
	SetScratch(key, value string, ttl time.Duration) error
	GetScratch(key string) (string, bool, error)
	DeleteScratch(key string) error
}

// MismatchStore records classifier/keyword disagreements for offline review.
type MismatchStore interface {
	RecordMismatch(m Mismatch) error
	ListMismatches(limit int) ([]Mismatch, error)
}

// Store is the full storage contract a backend must satisfy.
type Store interface {
	SessionStore
	EventRepository
	ReminderRepository
	TaskRepository
	CounterStore
	MismatchStore
	Close() error
}
