// Package models defines intent classification structures shared between the
// resolution pipeline and the flow engine.
package models

// Intent is the classified purpose of a user message.
type Intent string

// Intent name constants. The external classifier is prompted to emit exactly
// these names; anything else is mapped to IntentUnknown.
const (
	IntentCreateEvent    Intent = "create_event"
	IntentCreateReminder Intent = "create_reminder"
	IntentCreateTask     Intent = "create_task"
	IntentListEvents     Intent = "list_events"
	IntentListReminders  Intent = "list_reminders"
	IntentListTasks      Intent = "list_tasks"
	IntentSearchEvent    Intent = "search_event"
	IntentUpdateEvent    Intent = "update_event"
	IntentUpdateReminder Intent = "update_reminder"
	IntentDeleteEvent    Intent = "delete_event"
	IntentDeleteReminder Intent = "delete_reminder"
	IntentDeleteTask     Intent = "delete_task"
	IntentCompleteTask   Intent = "complete_task"
	IntentShowMenu       Intent = "show_menu"
	IntentHelp           Intent = "help"
	IntentUnknown        Intent = "unknown"
)

// IsValidIntent checks if the given intent name is one the pipeline knows.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentCreateEvent, IntentCreateReminder, IntentCreateTask,
		IntentListEvents, IntentListReminders, IntentListTasks,
		IntentSearchEvent, IntentUpdateEvent, IntentUpdateReminder,
		IntentDeleteEvent, IntentDeleteReminder, IntentDeleteTask,
		IntentCompleteTask, IntentShowMenu, IntentHelp, IntentUnknown:
		return true
	default:
		return false
	}
}

// IsDestructive reports whether acting on the intent deletes user data.
// Destructive intents carry a higher acceptance threshold.
func (i Intent) IsDestructive() bool {
	switch i {
	case IntentDeleteEvent, IntentDeleteReminder, IntentDeleteTask:
		return true
	default:
		return false
	}
}

// IsReadOnly reports whether the intent only reads data.
func (i Intent) IsReadOnly() bool {
	switch i {
	case IntentListEvents, IntentListReminders, IntentListTasks,
		IntentSearchEvent, IntentShowMenu, IntentHelp:
		return true
	default:
		return false
	}
}

// IntentEntities is the intent-specific entity bag extracted by the
// classifier. Fields are populated per intent; absent values stay zero.
type IntentEntities struct {
	Title        string       `json:"title,omitempty"`
	DateText     string       `json:"date_text,omitempty"` // raw phrase, resolved by timeparse
	TimeText     string       `json:"time_text,omitempty"`
	Location     string       `json:"location,omitempty"`
	Participants []string     `json:"participants,omitempty"`
	LeadMinutes  int          `json:"lead_minutes,omitempty"`
	Recurrence   Recurrence   `json:"recurrence,omitempty"`
	Priority     TaskPriority `json:"priority,omitempty"`
	DeleteTarget string       `json:"delete_target,omitempty"` // free text naming the entity to delete
	SearchQuery  string       `json:"search_query,omitempty"`
}

// ResolvedIntent is the output of the intent resolution pipeline.
//
// Confidence is only meaningful relative to the intent-specific threshold
// chosen for Intent; an intent below its threshold must never be acted upon
// directly.
type ResolvedIntent struct {
	Intent        Intent         `json:"intent"`
	Confidence    float64        `json:"confidence"`
	Entities      IntentEntities `json:"entities"`
	Clarification string         `json:"clarification,omitempty"` // question to ask instead of acting
	Warnings      []string       `json:"warnings,omitempty"`
}

// Actionable reports whether the resolution may be acted on directly,
// i.e. it carries a known intent and no pending clarification.
func (r *ResolvedIntent) Actionable() bool {
	return r.Intent != IntentUnknown && r.Clarification == ""
}
