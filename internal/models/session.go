// Package models defines conversation state structures for Yoman flows.
package models

import "time"

// SessionState represents a specific state within a conversation.
type SessionState string

// DataKey represents a key for storing state-specific session data.
type DataKey string

// State constants. StateMainMenu is both the initial state for a fresh
// session and the terminal state every flow returns to.
const (
	StateMainMenu SessionState = "MAIN_MENU"

	// Event creation flow.
	StateEventAwaitingName         SessionState = "EVENT_AWAITING_NAME"
	StateEventAwaitingDate         SessionState = "EVENT_AWAITING_DATE"
	StateEventAwaitingTime         SessionState = "EVENT_AWAITING_TIME"
	StateEventAwaitingLocation     SessionState = "EVENT_AWAITING_LOCATION"
	StateEventAwaitingParticipants SessionState = "EVENT_AWAITING_PARTICIPANTS"
	StateEventConflictConfirm      SessionState = "EVENT_CONFLICT_CONFIRM"

	// Event list/search/edit/delete flows.
	StateEventSearchQuery       SessionState = "EVENT_SEARCH_QUERY"
	StateEventSelectingForEdit  SessionState = "EVENT_SELECTING_FOR_EDIT"
	StateEventEditingField      SessionState = "EDITING_EVENT_FIELD"
	StateEventEditNewValue      SessionState = "EVENT_EDIT_NEW_VALUE"
	StateEventSelectingForView  SessionState = "EVENT_SELECTING_FOR_VIEW"
	StateEventSelectingForDelete SessionState = "EVENT_SELECTING_FOR_DELETE"
	StateEventDeleteConfirm     SessionState = "EVENT_DELETE_CONFIRM"

	// Event comment sub-flow.
	StateEventSelectingForComment SessionState = "EVENT_SELECTING_FOR_COMMENT"
	StateEventCommentAction       SessionState = "EVENT_COMMENT_ACTION"
	StateEventAwaitingCommentText SessionState = "EVENT_AWAITING_COMMENT_TEXT"
	StateEventSelectingComment    SessionState = "EVENT_SELECTING_COMMENT"

	// Reminder creation flow.
	StateReminderAwaitingTitle      SessionState = "REMINDER_AWAITING_TITLE"
	StateReminderAwaitingDateTime   SessionState = "REMINDER_AWAITING_DATETIME"
	StateReminderAwaitingRecurrence SessionState = "REMINDER_AWAITING_RECURRENCE"
	StateReminderAwaitingLeadTime   SessionState = "REMINDER_AWAITING_LEAD_TIME"
	StateReminderConfirm            SessionState = "REMINDER_CONFIRM"

	// Reminder edit/delete flows.
	StateReminderSelectingForEdit      SessionState = "REMINDER_SELECTING_FOR_EDIT"
	StateReminderAwaitingNewTime       SessionState = "REMINDER_AWAITING_NEW_TIME"
	StateReminderUpdateScope           SessionState = "REMINDER_UPDATE_SCOPE"
	StateReminderSelectingForDelete    SessionState = "REMINDER_SELECTING_FOR_DELETE"
	StateReminderDeleteConfirm         SessionState = "REMINDER_DELETE_CONFIRM"
	StateReminderDeleteScope           SessionState = "REMINDER_DELETE_SCOPE"

	// Task flows.
	StateTaskAwaitingTitle       SessionState = "TASK_AWAITING_TITLE"
	StateTaskAwaitingDescription SessionState = "TASK_AWAITING_DESCRIPTION"
	StateTaskAwaitingPriority    SessionState = "TASK_AWAITING_PRIORITY"
	StateTaskAwaitingDueDate     SessionState = "TASK_AWAITING_DUE_DATE"
	StateTaskConfirm             SessionState = "TASK_CONFIRM"
	StateTaskSelectingForDone    SessionState = "TASK_SELECTING_FOR_DONE"
	StateTaskSelectingForDelete  SessionState = "TASK_SELECTING_FOR_DELETE"
	StateTaskDeleteConfirm       SessionState = "TASK_DELETE_CONFIRM"

	// Settings flow.
	StateSettingsMenu             SessionState = "SETTINGS_MENU"
	StateSettingsAwaitingTimezone SessionState = "SETTINGS_AWAITING_TIMEZONE"
	StateSettingsAwaitingLanguage SessionState = "SETTINGS_AWAITING_LANGUAGE"

	// Free search flow.
	StateSearchAwaitingQuery SessionState = "SEARCH_AWAITING_QUERY"
)

// Data key constants for session context. The context payload is a flow-local
// scratch structure: different states populate different keys, and handlers
// treat a missing key as an expired session rather than guessing a value.
const (
	DataKeyPendingEvent     DataKey = "pendingEvent"     // JSON-encoded partially built event
	DataKeyPendingReminder  DataKey = "pendingReminder"  // JSON-encoded partially built reminder
	DataKeyPendingTask      DataKey = "pendingTask"      // JSON-encoded partially built task
	DataKeyCandidateIDs     DataKey = "candidateIDs"     // JSON array of entity IDs awaiting selection
	DataKeySelectedID       DataKey = "selectedID"       // chosen entity ID as decimal string
	DataKeyEditField        DataKey = "editField"        // event field currently being edited
	DataKeyDeleteTargetID   DataKey = "deleteTargetID"   // entity ID pending delete confirmation
	DataKeyNewReminderTime  DataKey = "newReminderTime"  // RFC3339 replacement time awaiting scope choice
	DataKeyCommentEventID   DataKey = "commentEventID"   // event whose comments are being edited
	DataKeyCommentAction    DataKey = "commentAction"    // add/update/delete within the comment sub-flow
)

// MaxHistoryMessages bounds the conversational memory kept on a session.
const MaxHistoryMessages = 20

// HistoryMessage is a single turn of conversational memory.
type HistoryMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Session carries a user's conversation across turns.
//
// Context is only meaningful relative to State: every transition must either
// carry the relevant keys forward or clear them.
type Session struct {
	UserID    string              `json:"user_id"`
	State     SessionState        `json:"state"`
	Context   map[DataKey]string  `json:"context,omitempty"`
	History   []HistoryMessage    `json:"history,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// NewSession creates a fresh session at the main menu.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:    userID,
		State:     StateMainMenu,
		Context:   make(map[DataKey]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Get returns the context value for key, with a presence flag.
func (s *Session) Get(key DataKey) (string, bool) {
	if s.Context == nil {
		return "", false
	}
	v, ok := s.Context[key]
	return v, ok
}

// Set stores a context value for key.
func (s *Session) Set(key DataKey, value string) {
	if s.Context == nil {
		s.Context = make(map[DataKey]string)
	}
	s.Context[key] = value
}

// ClearContext drops all flow-local scratch data. Called on every return to
// the main menu so transient disambiguation state cannot leak into an
// unrelated future conversation.
func (s *Session) ClearContext() {
	s.Context = make(map[DataKey]string)
}

// AppendHistory records a conversation turn, trimming to MaxHistoryMessages.
func (s *Session) AppendHistory(role, content string) {
	s.History = append(s.History, HistoryMessage{Role: role, Content: content})
	if len(s.History) > MaxHistoryMessages {
		s.History = s.History[len(s.History)-MaxHistoryMessages:]
	}
}
