// Package flow implements the conversation state machine.
//
// Every inbound message is handled as one sequential unit of work per user:
// the machine loads the session, dispatches either to the state-specific
// handler or to the intent pipeline at the main menu, applies side effects
// through its collaborators, and persists the resulting session. Callers
// must serialize turns per user; the session is read-modify-written
// non-atomically.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/store"
	"github.com/dorshemer/yoman/internal/timeparse"
)

// Reaction emoji used to acknowledge completed operations.
const (
	SuccessReaction = "👍"
	DeleteReaction  = "🗑️"
)

const (
	// maxStateFailures is how many consecutive unrecognized replies in the
	// same state are tolerated before the user is returned to the main menu.
	maxStateFailures = 3

	stateFailurePrefix = "flow:fail:"
)

// IntentResolver is the slice of the intent pipeline the machine uses.
type IntentResolver interface {
	Resolve(ctx context.Context, userID, rawText string, history []models.HistoryMessage) (*models.ResolvedIntent, error)
	NoteRecentEntity(userID, description string, at time.Time)
	NeedsGuidance(userID string) bool
}

// Messenger is the outbound messaging surface the machine writes to.
type Messenger interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
	ReactToLastMessage(ctx context.Context, userID, emoji string) error
}

// ReminderScheduler registers, suppresses and cancels reminder firings.
type ReminderScheduler interface {
	Schedule(rem models.Reminder, to string) error
	SkipUntil(reminderID int64, until time.Time)
	Cancel(reminderID int64)
}

// handlerFunc processes one message for one state. It mutates the session
// (state and context) and returns the reply to send. A returned error means
// an infrastructure failure: the machine resets the flow and reports a
// generic transient message.
type handlerFunc func(ctx context.Context, sess *models.Session, text string) (string, error)

// Machine routes inbound messages through the conversation state machine.
type Machine struct {
	sessions  store.SessionStore
	events    store.EventRepository
	reminders store.ReminderRepository
	tasks     store.TaskRepository
	counters  store.CounterStore
	resolver  IntentResolver
	messenger Messenger
	scheduler ReminderScheduler
	dates     *timeparse.Resolver
	loc       *time.Location
	now       func() time.Time

	handlers map[models.SessionState]handlerFunc
}

// Opts holds configuration options for the Machine.
type Opts struct {
	Location *time.Location
	Clock    func() time.Time
}

// Option defines a configuration option for the Machine.
type Option func(*Opts)

// WithLocation sets the timezone conversations are anchored in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithClock overrides the machine's clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Deps bundles the machine's collaborators.
type Deps struct {
	Sessions  store.SessionStore
	Events    store.EventRepository
	Reminders store.ReminderRepository
	Tasks     store.TaskRepository
	Counters  store.CounterStore
	Resolver  IntentResolver
	Messenger Messenger
	Scheduler ReminderScheduler
}

// NewMachine creates a Machine and registers its state handler table.
func NewMachine(deps Deps, opts ...Option) *Machine {
	cfg := Opts{Location: time.Local, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Machine{
		sessions:  deps.Sessions,
		events:    deps.Events,
		reminders: deps.Reminders,
		tasks:     deps.Tasks,
		counters:  deps.Counters,
		resolver:  deps.Resolver,
		messenger: deps.Messenger,
		scheduler: deps.Scheduler,
		dates:     timeparse.NewResolver(timeparse.WithClock(cfg.Clock)),
		loc:       cfg.Location,
		now:       cfg.Clock,
	}
	m.handlers = map[models.SessionState]handlerFunc{
		models.StateMainMenu: m.handleMainMenu,

		models.StateEventAwaitingName:         m.handleEventName,
		models.StateEventAwaitingDate:         m.handleEventDate,
		models.StateEventAwaitingTime:         m.handleEventTime,
		models.StateEventAwaitingLocation:     m.handleEventLocation,
		models.StateEventAwaitingParticipants: m.handleEventParticipants,
		models.StateEventConflictConfirm:      m.handleEventConflictConfirm,

		models.StateEventSearchQuery:         m.handleEventSearchQuery,
		models.StateEventSelectingForView:    m.handleEventSelectForView,
		models.StateEventSelectingForEdit:    m.handleEventSelectForEdit,
		models.StateEventEditingField:        m.handleEventEditField,
		models.StateEventEditNewValue:        m.handleEventEditNewValue,
		models.StateEventSelectingForDelete:  m.handleEventSelectForDelete,
		models.StateEventDeleteConfirm:       m.handleEventDeleteConfirm,

		models.StateEventSelectingForComment: m.handleEventSelectForComment,
		models.StateEventCommentAction:       m.handleEventCommentAction,
		models.StateEventAwaitingCommentText: m.handleEventCommentText,
		models.StateEventSelectingComment:    m.handleEventSelectComment,

		models.StateReminderAwaitingTitle:      m.handleReminderTitle,
		models.StateReminderAwaitingDateTime:   m.handleReminderDateTime,
		models.StateReminderAwaitingRecurrence: m.handleReminderRecurrence,
		models.StateReminderAwaitingLeadTime:   m.handleReminderLeadTime,
		models.StateReminderConfirm:            m.handleReminderConfirm,

		models.StateReminderSelectingForEdit:   m.handleReminderSelectForEdit,
		models.StateReminderAwaitingNewTime:    m.handleReminderNewTime,
		models.StateReminderUpdateScope:        m.handleReminderUpdateScope,
		models.StateReminderSelectingForDelete: m.handleReminderSelectForDelete,
		models.StateReminderDeleteConfirm:      m.handleReminderDeleteConfirm,
		models.StateReminderDeleteScope:        m.handleReminderDeleteScope,

		models.StateTaskAwaitingTitle:       m.handleTaskTitle,
		models.StateTaskAwaitingDescription: m.handleTaskDescription,
		models.StateTaskAwaitingPriority:    m.handleTaskPriority,
		models.StateTaskAwaitingDueDate:     m.handleTaskDueDate,
		models.StateTaskConfirm:             m.handleTaskConfirm,
		models.StateTaskSelectingForDone:    m.handleTaskSelectForDone,
		models.StateTaskSelectingForDelete:  m.handleTaskSelectForDelete,
		models.StateTaskDeleteConfirm:       m.handleTaskDeleteConfirm,

		models.StateSettingsMenu:             m.handleSettingsMenu,
		models.StateSettingsAwaitingTimezone: m.handleSettingsTimezone,
		models.StateSettingsAwaitingLanguage: m.handleSettingsLanguage,

		models.StateSearchAwaitingQuery: m.handleSearchQuery,
	}
	return m
}

// HandleMessage processes one inbound message for one user. All replies and
// reactions go out through the messenger; the returned error covers only
// delivery or session-persistence failures.
func (m *Machine) HandleMessage(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	slog.Debug("Machine.HandleMessage: processing", "userID", userID, "textLength", len(text))

	sess, err := m.sessions.GetSession(userID)
	if err != nil {
		if err != store.ErrNotFound {
			slog.Error("Machine.HandleMessage: session load failed", "error", err, "userID", userID)
		}
		sess = nil
	}
	if sess == nil {
		sess = models.NewSession(userID)
	}

	reply := m.dispatch(ctx, sess, text)

	sess.AppendHistory("user", text)
	sess.AppendHistory("assistant", reply)
	sess.UpdatedAt = m.now()
	if err := m.sessions.SaveSession(*sess, store.DefaultSessionTTL); err != nil {
		slog.Error("Machine.HandleMessage: session save failed", "error", err, "userID", userID)
	}

	if _, err := m.messenger.SendMessage(ctx, userID, reply); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// dispatch routes the message and returns the reply text. Infrastructure
// errors from handlers are converted to a generic transient message with
// the flow reset.
func (m *Machine) dispatch(ctx context.Context, sess *models.Session, text string) string {
	// Global escape hatches work from any state.
	if isMenuCommand(text) {
		m.resetToMenu(sess)
		return MainMenuText
	}
	if isCancelCommand(text) && sess.State != models.StateMainMenu {
		m.resetToMenu(sess)
		return MsgFlowCancelled + "\n\n" + MainMenuText
	}

	// Confusion phrases inside a structured step re-show the step's options
	// instead of being treated as a value, and reset the failure counter.
	if sess.State != models.StateMainMenu && isConfusedReply(text) {
		m.resetStateFailures(sess)
		return m.promptFor(sess)
	}

	handler, ok := m.handlers[sess.State]
	if !ok {
		slog.Error("Machine.dispatch: no handler for state", "state", sess.State, "userID", sess.UserID)
		m.resetToMenu(sess)
		return MsgSessionExpired + "\n\n" + MainMenuText
	}

	reply, err := handler(ctx, sess, text)
	if err != nil {
		slog.Error("Machine.dispatch: handler failed", "error", err, "state", sess.State, "userID", sess.UserID)
		m.resetToMenu(sess)
		return MsgTransientFailure
	}
	return reply
}

// unrecognized handles an input the current state cannot interpret. After
// maxStateFailures consecutive misses in the same state the user is returned
// to the main menu regardless of what they typed.
func (m *Machine) unrecognized(sess *models.Session, reprompt string) string {
	key := stateFailureKey(sess)
	count, err := m.counters.IncrCounter(key, store.DefaultCounterTTL)
	if err != nil {
		slog.Warn("Machine.unrecognized: failure counter unavailable", "error", err, "userID", sess.UserID)
	}
	if count >= maxStateFailures {
		slog.Info("Machine.unrecognized: escalating to main menu", "userID", sess.UserID, "state", sess.State, "failures", count)
		m.resetToMenu(sess)
		return MsgEscalatedToMenu + "\n\n" + MainMenuText
	}
	return reprompt
}

// advance moves the session to a new state and clears the failure counter
// accumulated in the previous one.
func (m *Machine) advance(sess *models.Session, next models.SessionState) {
	m.resetStateFailures(sess)
	sess.State = next
}

// resetToMenu terminates the current flow. Flow-local scratch is dropped so
// transient disambiguation state cannot leak into a future conversation;
// user settings survive the wipe.
func (m *Machine) resetToMenu(sess *models.Session) {
	m.resetStateFailures(sess)
	tz, hasTZ := sess.Get(dataKeySettingsTimezone)
	lang, hasLang := sess.Get(dataKeySettingsLanguage)
	sess.ClearContext()
	if hasTZ {
		sess.Set(dataKeySettingsTimezone, tz)
	}
	if hasLang {
		sess.Set(dataKeySettingsLanguage, lang)
	}
	sess.State = models.StateMainMenu
}

func (m *Machine) resetStateFailures(sess *models.Session) {
	if err := m.counters.ResetCounter(stateFailureKey(sess)); err != nil {
		slog.Warn("Machine.resetStateFailures: reset failed", "error", err, "userID", sess.UserID)
	}
}

func stateFailureKey(sess *models.Session) string {
	return stateFailurePrefix + sess.UserID + ":" + string(sess.State)
}

// userLocation returns the timezone conversations with this user resolve in,
// honoring a per-user settings override.
func (m *Machine) userLocation(sess *models.Session) *time.Location {
	if tz, ok := sess.Get(dataKeySettingsTimezone); ok && tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return m.loc
}

// react emits a reaction emoji, best-effort.
func (m *Machine) react(ctx context.Context, userID, emoji string) {
	if err := m.messenger.ReactToLastMessage(ctx, userID, emoji); err != nil {
		slog.Warn("Machine.react: reaction failed", "error", err, "userID", userID)
	}
}

// Context payload helpers. The context blob is flow-local scratch: a missing
// expected key means the session expired mid-flow, and handlers reset to the
// menu rather than guess.

func putJSON(sess *models.Session, key models.DataKey, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	sess.Set(key, string(raw))
	return nil
}

func getJSON(sess *models.Session, key models.DataKey, v any) bool {
	raw, ok := sess.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

// expired resets the flow when a handler finds its expected context missing.
func (m *Machine) expired(sess *models.Session) string {
	slog.Info("Machine.expired: missing flow context, resetting", "userID", sess.UserID, "state", sess.State)
	m.resetToMenu(sess)
	return MsgSessionExpired + "\n\n" + MainMenuText
}

// storeCandidates records a numbered candidate list awaiting selection.
func storeCandidates(sess *models.Session, ids []int64) error {
	return putJSON(sess, models.DataKeyCandidateIDs, ids)
}

// pickCandidate interprets text as a 1-based selection from the stored
// candidate list. ok is false when the input is not a valid selection.
func pickCandidate(sess *models.Session, text string) (id int64, ok bool, present bool) {
	var ids []int64
	if !getJSON(sess, models.DataKeyCandidateIDs, &ids) || len(ids) == 0 {
		return 0, false, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(ids) {
		return 0, false, true
	}
	return ids[n-1], true, true
}

// Command and confusion phrase detection.

var menuCommands = []string{"תפריט", "menu", "/menu", "התחלה", "/start"}

var cancelCommands = []string{"ביטול", "בטל", "cancel", "/cancel", "עזוב"}

// confusionPhrases are help-seeking replies inside a structured step. They
// re-show the current step's options instead of being parsed as a value.
var confusionPhrases = []string{
	"לא הבנתי", "מה", "מה?", "לא ברור", "עזרה", "help", "?",
	"מה האפשרויות", "אני לא מבין", "אני לא מבינה", "מה עכשיו",
}

func isMenuCommand(text string) bool {
	return matchesPhrase(text, menuCommands)
}

func isCancelCommand(text string) bool {
	return matchesPhrase(text, cancelCommands)
}

func isConfusedReply(text string) bool {
	return matchesPhrase(text, confusionPhrases)
}

func matchesPhrase(text string, phrases []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range phrases {
		if t == p {
			return true
		}
	}
	return false
}

// classify invokes the intent pipeline for a message arriving at the main
// menu.
func (m *Machine) classify(ctx context.Context, sess *models.Session, text string) (*models.ResolvedIntent, error) {
	resolved, err := m.resolver.Resolve(ctx, sess.UserID, text, sess.History)
	if err != nil {
		return nil, fmt.Errorf("resolving intent: %w", err)
	}
	return resolved, nil
}
