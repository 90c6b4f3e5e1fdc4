// Package models defines the core data structures for Yoman.
//
// It includes the calendar, reminder and task entities shared across modules,
// along with the conversation and intent types used by the flow engine.
package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Recurrence describes how often a reminder repeats.
type Recurrence string

const (
	// RecurrenceNone marks a one-off reminder.
	RecurrenceNone Recurrence = ""
	// RecurrenceDaily repeats every day at the base time.
	RecurrenceDaily Recurrence = "daily"
	// RecurrenceWeekly repeats every week at the base time.
	RecurrenceWeekly Recurrence = "weekly"
	// RecurrenceMonthly repeats every month at the base time.
	RecurrenceMonthly Recurrence = "monthly"
)

// IsValidRecurrence checks if the given recurrence is supported.
func IsValidRecurrence(r Recurrence) bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// TaskPriority indicates the urgency of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// IsValidPriority checks if the given priority is supported.
func IsValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Validation constants for user supplied fields. Lengths are measured in
// runes so Hebrew text gets the full budget.
const (
	// MaxTitleLength defines the maximum allowed length for entity titles.
	MaxTitleLength = 256
	// MaxDescriptionLength defines the maximum allowed length for descriptions.
	MaxDescriptionLength = 2048
	// MaxCommentLength defines the maximum allowed length for comment bodies.
	MaxCommentLength = 1024
	// MaxParticipants defines the maximum number of participants on an event.
	MaxParticipants = 32
)

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID         = errors.New("user id cannot be empty")
	ErrEmptyTitle          = errors.New("title cannot be empty")
	ErrTitleTooLong        = errors.New("title exceeds maximum length")
	ErrDescriptionTooLong  = errors.New("description exceeds maximum length")
	ErrZeroStartTime       = errors.New("start time is required")
	ErrEndBeforeStart      = errors.New("end time precedes start time")
	ErrInvalidRecurrence   = errors.New("invalid recurrence rule")
	ErrInvalidPriority     = errors.New("invalid task priority")
	ErrNegativeLeadTime    = errors.New("lead time cannot be negative")
	ErrEmptyComment        = errors.New("comment body cannot be empty")
	ErrCommentTooLong      = errors.New("comment body exceeds maximum length")
	ErrTooManyParticipants = errors.New("too many participants")
)

// Comment is a free-text note attached to an event.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a calendar entry owned by a single user.
type Event struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time,omitempty"`
	Location     string    `json:"location,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate performs validation on an Event structure.
func (e *Event) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(e.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if e.StartTime.IsZero() {
		return ErrZeroStartTime
	}
	if !e.EndTime.IsZero() && e.EndTime.Before(e.StartTime) {
		return ErrEndBeforeStart
	}
	if len(e.Participants) > MaxParticipants {
		return ErrTooManyParticipants
	}
	return nil
}

// Overlaps reports whether the event's time window intersects [start, end).
// Events without an explicit end are treated as one hour long.
func (e *Event) Overlaps(start, end time.Time) bool {
	evEnd := e.EndTime
	if evEnd.IsZero() {
		evEnd = e.StartTime.Add(time.Hour)
	}
	if end.IsZero() {
		end = start.Add(time.Hour)
	}
	return e.StartTime.Before(end) && start.Before(evEnd)
}

// Reminder represents a scheduled notification owned by a single user.
//
// For recurring reminders DueAt is the recurrence base time: the next
// occurrence is derived from it and the recurrence rule.
type Reminder struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	DueAt       time.Time  `json:"due_at"`
	LeadMinutes int        `json:"lead_minutes,omitempty"`
	Recurrence  Recurrence `json:"recurrence,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate performs validation on a Reminder structure.
func (r *Reminder) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if r.DueAt.IsZero() {
		return ErrZeroStartTime
	}
	if r.LeadMinutes < 0 {
		return ErrNegativeLeadTime
	}
	if !IsValidRecurrence(r.Recurrence) {
		return ErrInvalidRecurrence
	}
	return nil
}

// IsRecurring reports whether the reminder has a recurrence rule.
func (r *Reminder) IsRecurring() bool {
	return r.Recurrence != RecurrenceNone
}

// NextOccurrence returns the first occurrence of the reminder strictly
// after the given instant. For one-off reminders it returns DueAt.
func (r *Reminder) NextOccurrence(after time.Time) time.Time {
	next := r.DueAt
	if !r.IsRecurring() {
		return next
	}
	for !next.After(after) {
		switch r.Recurrence {
		case RecurrenceDaily:
			next = next.AddDate(0, 0, 1)
		case RecurrenceWeekly:
			next = next.AddDate(0, 0, 7)
		case RecurrenceMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			return next
		}
	}
	return next
}

// Task represents a to-do item owned by a single user.
type Task struct {
	ID          int64        `json:"id"`
	UserID      string       `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Priority    TaskPriority `json:"priority,omitempty"`
	DueAt       time.Time    `json:"due_at,omitempty"`
	Done        bool         `json:"done"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate performs validation on a Task structure.
func (t *Task) Validate() error {
	if t.UserID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if t.Priority != "" && !IsValidPriority(t.Priority) {
		return ErrInvalidPriority
	}
	return nil
}

// Receipt records a message delivery status event from the transport.
type Receipt struct {
	To     string `json:"to"`
	Status string `json:"status"`
	Time   int64  `json:"time"`
}

// Response records an incoming message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
