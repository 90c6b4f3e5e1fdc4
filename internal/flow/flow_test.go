package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dorshemer/yoman/internal/intent"
	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/store"
	"github.com/dorshemer/yoman/internal/testutil"
)

// Monday, 10 March 2025, 14:30 UTC.
var anchor = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

const testUser = "972500000001"

type fixture struct {
	st       *store.InMemoryStore
	msgr     *testutil.FakeMessenger
	sched    *testutil.FakeScheduler
	resolver *testutil.ScriptedIntentResolver
	m        *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:       store.NewInMemoryStore(),
		msgr:     &testutil.FakeMessenger{},
		sched:    &testutil.FakeScheduler{},
		resolver: &testutil.ScriptedIntentResolver{},
	}
	f.m = NewMachine(Deps{
		Sessions:  f.st,
		Events:    f.st,
		Reminders: f.st,
		Tasks:     f.st,
		Counters:  f.st,
		Resolver:  f.resolver,
		Messenger: f.msgr,
		Scheduler: f.sched,
	}, WithLocation(time.UTC), WithClock(func() time.Time { return anchor }))
	return f
}

func (f *fixture) send(t *testing.T, text string) string {
	t.Helper()
	if err := f.m.HandleMessage(context.Background(), testUser, text); err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", text, err)
	}
	return f.msgr.LastBody()
}

func (f *fixture) session(t *testing.T) *models.Session {
	t.Helper()
	sess, err := f.st.GetSession(testUser)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	return sess
}

func (f *fixture) saveSession(t *testing.T, sess *models.Session) {
	t.Helper()
	if err := f.st.SaveSession(*sess, store.DefaultSessionTTL); err != nil {
		t.Fatalf("saving session: %v", err)
	}
}

func TestMainMenuNumericChoiceStartsReminderFlow(t *testing.T) {
	f := newFixture(t)
	reply := f.send(t, "3")
	if reply != promptReminderTitle {
		t.Errorf("reply: got %q", reply)
	}
	if got := f.session(t).State; got != models.StateReminderAwaitingTitle {
		t.Errorf("state: got %q", got)
	}
}

func TestMenuCommandEscapesAnyState(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.State = models.StateEventAwaitingDate
	sess.Set(models.DataKeyPendingEvent, `{"title":"פגישה"}`)
	f.saveSession(t, sess)

	reply := f.send(t, "תפריט")
	if !strings.Contains(reply, "מה תרצו לעשות") {
		t.Errorf("expected main menu, got %q", reply)
	}
	got := f.session(t)
	if got.State != models.StateMainMenu {
		t.Errorf("state: got %q", got.State)
	}
	if _, ok := got.Get(models.DataKeyPendingEvent); ok {
		t.Error("flow context must be cleared on reset")
	}
}

func TestEventDateWithoutTimePromptsForTime(t *testing.T) {
	f := newFixture(t)
	f.resolver.Queue = []*models.ResolvedIntent{{
		Intent:     models.IntentCreateEvent,
		Confidence: 0.9,
		Entities:   models.IntentEntities{Title: "פגישה עם דנה"},
	}}

	f.send(t, "קבע פגישה עם דנה")
	if got := f.session(t).State; got != models.StateEventAwaitingDate {
		t.Fatalf("state after title: got %q", got)
	}

	// A date with no time must not commit midnight; the flow asks for the
	// time as a separate step.
	reply := f.send(t, "מחר")
	if reply != promptEventTime {
		t.Errorf("reply: got %q", reply)
	}
	sess := f.session(t)
	if sess.State != models.StateEventAwaitingTime {
		t.Errorf("state: got %q", sess.State)
	}
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) {
		t.Fatal("pending event missing")
	}
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	if !pe.Start.Equal(want) || pe.HasTime {
		t.Errorf("pending start: got %v hasTime=%v, want %v midnight", pe.Start, pe.HasTime, want)
	}
}

func TestConflictConfirmYesCommitsEvent(t *testing.T) {
	f := newFixture(t)
	existing := models.Event{
		UserID:    testUser,
		Title:     "שיעור יוגה",
		StartTime: time.Date(2025, 3, 11, 17, 0, 0, 0, time.UTC),
	}
	if err := f.st.AddEvent(&existing); err != nil {
		t.Fatalf("seeding event: %v", err)
	}

	f.resolver.Queue = []*models.ResolvedIntent{{
		Intent:     models.IntentCreateEvent,
		Confidence: 0.9,
		Entities: models.IntentEntities{
			Title:        "פגישה עם דנה",
			DateText:     "מחר",
			TimeText:     "17:00",
			Location:     "משרד",
			Participants: []string{"דנה"},
		},
	}}

	reply := f.send(t, "קבע פגישה עם דנה מחר ב17:00")
	if !strings.Contains(reply, "לקבוע בכל זאת") {
		t.Fatalf("expected conflict prompt, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateEventConflictConfirm {
		t.Fatalf("state: got %q", got)
	}
	if all, _ := f.st.GetAllEvents(testUser, 10, 0, false); len(all) != 1 {
		t.Fatalf("event must not be created before confirmation, have %d", len(all))
	}

	reply = f.send(t, "כן")
	if !strings.Contains(reply, "נקבע") {
		t.Errorf("expected success reply, got %q", reply)
	}
	all, err := f.st.GetAllEvents(testUser, 10, 0, false)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected committed event, have %d", len(all))
	}
	if len(f.msgr.Reactions) == 0 || f.msgr.Reactions[len(f.msgr.Reactions)-1].Emoji != SuccessReaction {
		t.Error("expected a success reaction")
	}
	if got := f.session(t).State; got != models.StateMainMenu {
		t.Errorf("state after commit: got %q", got)
	}
}

func TestConflictConfirmNoDiscards(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.State = models.StateEventConflictConfirm
	pe := pendingEvent{Title: "פגישה", Start: anchor.Add(24 * time.Hour), HasTime: true, LocationDone: true, ParticipantsDone: true}
	if err := putJSON(sess, models.DataKeyPendingEvent, &pe); err != nil {
		t.Fatal(err)
	}
	f.saveSession(t, sess)

	f.send(t, "לא")
	if all, _ := f.st.GetAllEvents(testUser, 10, 0, false); len(all) != 0 {
		t.Error("declined event must not be created")
	}
	if got := f.session(t).State; got != models.StateMainMenu {
		t.Errorf("state: got %q", got)
	}
}

func TestConflictConfirmAmbiguousReprompts(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.State = models.StateEventConflictConfirm
	pe := pendingEvent{Title: "פגישה", Start: anchor.Add(24 * time.Hour), HasTime: true, LocationDone: true, ParticipantsDone: true}
	if err := putJSON(sess, models.DataKeyPendingEvent, &pe); err != nil {
		t.Fatal(err)
	}
	f.saveSession(t, sess)

	reply := f.send(t, "אולי")
	if !strings.Contains(reply, "כן/לא") {
		t.Errorf("ambiguous confirmation must re-prompt, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateEventConflictConfirm {
		t.Errorf("state must not advance, got %q", got)
	}
	if all, _ := f.st.GetAllEvents(testUser, 10, 0, false); len(all) != 0 {
		t.Error("ambiguous confirmation must not commit")
	}
}

func TestDeleteRecurringReminderOnlyNext(t *testing.T) {
	f := newFixture(t)
	rem := models.Reminder{
		UserID:     testUser,
		Title:      "לקחת כדור",
		DueAt:      time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		Recurrence: models.RecurrenceDaily,
		Active:     true,
	}
	if err := f.st.AddReminder(&rem); err != nil {
		t.Fatalf("seeding reminder: %v", err)
	}

	f.resolver.Queue = []*models.ResolvedIntent{{
		Intent:     models.IntentDeleteReminder,
		Confidence: 0.9,
		Entities:   models.IntentEntities{DeleteTarget: "לקחת כדור"},
	}}

	reply := f.send(t, "תבטל את התזכורת לקחת כדור")
	if !strings.Contains(reply, "רק המופע הבא") {
		t.Fatalf("recurring delete must ask for scope, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateReminderDeleteScope {
		t.Fatalf("state: got %q", got)
	}

	f.send(t, "1")

	// Original rule and base time untouched.
	orig, err := f.st.GetReminder(rem.ID)
	if err != nil {
		t.Fatalf("original reminder gone: %v", err)
	}
	if orig.Recurrence != models.RecurrenceDaily || !orig.DueAt.Equal(rem.DueAt) {
		t.Errorf("original reminder mutated: %+v", orig)
	}

	// The occurrence after the skipped one is materialized as a one-off.
	// Next occurrence after the anchor is 11/03 08:00; the skip resumes at
	// 12/03 08:00.
	rems, err := f.st.GetActiveReminders(testUser)
	if err != nil {
		t.Fatalf("listing reminders: %v", err)
	}
	var oneOff *models.Reminder
	for i := range rems {
		if rems[i].ID != rem.ID {
			oneOff = &rems[i]
		}
	}
	if oneOff == nil {
		t.Fatal("expected a materialized one-off reminder")
	}
	want := time.Date(2025, 3, 12, 8, 0, 0, 0, time.UTC)
	if !oneOff.DueAt.Equal(want) || oneOff.IsRecurring() {
		t.Errorf("one-off: got due %v recurring=%v, want %v one-off", oneOff.DueAt, oneOff.IsRecurring(), want)
	}
	// The series itself must stay armed with its firings suppressed
	// through the one-off's time, so later occurrences still fire.
	if len(f.sched.Cancelled) != 0 {
		t.Errorf("series must not be cancelled, got cancels for %v", f.sched.Cancelled)
	}
	if len(f.sched.Skips) != 1 || f.sched.Skips[0].ReminderID != rem.ID || !f.sched.Skips[0].Until.Equal(want) {
		t.Errorf("expected a skip window on the series until %v, got %+v", want, f.sched.Skips)
	}
}

func TestThreeUnrecognizedRepliesEscalateToMenu(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.State = models.StateEventEditingField
	sess.Set(models.DataKeySelectedID, "1")
	f.saveSession(t, sess)

	for i := 0; i < 2; i++ {
		reply := f.send(t, "בלה בלה")
		if !strings.Contains(reply, "מה לערוך") {
			t.Fatalf("attempt %d: expected re-prompt, got %q", i+1, reply)
		}
		if got := f.session(t).State; got != models.StateEventEditingField {
			t.Fatalf("attempt %d: state advanced to %q", i+1, got)
		}
	}

	reply := f.send(t, "בלה בלה")
	if !strings.Contains(reply, MsgEscalatedToMenu) {
		t.Errorf("expected escalation message, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateMainMenu {
		t.Errorf("state: got %q", got)
	}
}

func TestConfusionPhraseResetsFailureCounter(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.State = models.StateEventEditingField
	sess.Set(models.DataKeySelectedID, "1")
	f.saveSession(t, sess)

	f.send(t, "בלה")
	f.send(t, "בלה")
	reply := f.send(t, "לא הבנתי")
	if !strings.Contains(reply, "מה לערוך") {
		t.Fatalf("confusion must re-show options, got %q", reply)
	}

	// The counter was reset: two more misses stay in the same state.
	f.send(t, "בלה")
	f.send(t, "בלה")
	if got := f.session(t).State; got != models.StateEventEditingField {
		t.Errorf("state: got %q, counter was not reset", got)
	}
}

func TestMissingContextResetsToMenu(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.State = models.StateEventAwaitingDate
	f.saveSession(t, sess)

	reply := f.send(t, "מחר")
	if !strings.Contains(reply, MsgSessionExpired) {
		t.Errorf("expected expiry message, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateMainMenu {
		t.Errorf("state: got %q", got)
	}
}

// failingEvents forces repository errors on the listing path.
type failingEvents struct {
	store.EventRepository
}

func (f *failingEvents) GetUpcomingEvents(userID string, from time.Time, limit int) ([]models.Event, error) {
	return nil, errors.New("connection refused")
}

func TestRepositoryFailureResetsToMenu(t *testing.T) {
	f := newFixture(t)
	f.m.events = &failingEvents{EventRepository: f.st}
	f.resolver.Queue = []*models.ResolvedIntent{{
		Intent:     models.IntentListEvents,
		Confidence: 0.9,
	}}

	reply := f.send(t, "מה יש לי")
	if reply != MsgTransientFailure {
		t.Errorf("expected generic transient message, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateMainMenu {
		t.Errorf("state: got %q", got)
	}
}

func TestReminderClarificationYesStartsReminder(t *testing.T) {
	f := newFixture(t)
	sess := models.NewSession(testUser)
	sess.AppendHistory("user", "אל תשכח את הדבר ההוא")
	sess.AppendHistory("assistant", intent.ReminderClarification)
	f.saveSession(t, sess)

	reply := f.send(t, "כן")
	if reply != promptReminderTitle {
		t.Errorf("expected reminder flow start, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateReminderAwaitingTitle {
		t.Errorf("state: got %q", got)
	}
}

func TestFullReminderCreationFlow(t *testing.T) {
	f := newFixture(t)
	f.send(t, "3")
	f.send(t, "להתקשר לרופא")

	reply := f.send(t, "מחר ב10:00")
	if reply != promptReminderRecurrence {
		t.Fatalf("after datetime: got %q", reply)
	}
	f.send(t, "1")
	f.send(t, "דלג")

	reply = f.send(t, "כן")
	if !strings.Contains(reply, "התזכורת נקבעה") {
		t.Fatalf("expected creation confirmation, got %q", reply)
	}
	rems, err := f.st.GetActiveReminders(testUser)
	if err != nil || len(rems) != 1 {
		t.Fatalf("expected 1 reminder, got %d (err %v)", len(rems), err)
	}
	want := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	if !rems[0].DueAt.Equal(want) {
		t.Errorf("due: got %v, want %v", rems[0].DueAt, want)
	}
	if len(f.sched.Scheduled) != 1 {
		t.Errorf("expected 1 scheduled firing, got %d", len(f.sched.Scheduled))
	}
	if len(f.resolver.Notes) == 0 || !strings.Contains(f.resolver.Notes[0], "להתקשר לרופא") {
		t.Error("created reminder must be noted for context injection")
	}
}

func TestUpdateRecurringReminderScopeOnlyNext(t *testing.T) {
	f := newFixture(t)
	rem := models.Reminder{
		UserID:     testUser,
		Title:      "שיעור ריקוד",
		DueAt:      time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC),
		Recurrence: models.RecurrenceWeekly,
		Active:     true,
	}
	if err := f.st.AddReminder(&rem); err != nil {
		t.Fatal(err)
	}

	f.resolver.Queue = []*models.ResolvedIntent{{
		Intent:     models.IntentUpdateReminder,
		Confidence: 0.9,
		Entities:   models.IntentEntities{Title: "שיעור ריקוד"},
	}}
	f.send(t, "תעדכן את התזכורת של שיעור ריקוד")

	reply := f.send(t, "13/03 ב20:00")
	if !strings.Contains(reply, "רק המופע הבא") {
		t.Fatalf("recurring update must ask for scope, got %q", reply)
	}

	f.send(t, "1")

	orig, err := f.st.GetReminder(rem.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !orig.DueAt.Equal(rem.DueAt) || orig.Recurrence != models.RecurrenceWeekly {
		t.Errorf("original must stay untouched, got %+v", orig)
	}
	rems, _ := f.st.GetActiveReminders(testUser)
	if len(rems) != 2 {
		t.Fatalf("expected materialized one-off, have %d reminders", len(rems))
	}

	// The moved occurrence must not also fire at its original time, and
	// the series must survive the edit.
	if len(f.sched.Cancelled) != 0 {
		t.Errorf("series must not be cancelled, got cancels for %v", f.sched.Cancelled)
	}
	oldNext := time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC)
	if len(f.sched.Skips) != 1 || f.sched.Skips[0].ReminderID != rem.ID || !f.sched.Skips[0].Until.Equal(oldNext) {
		t.Errorf("expected a skip window on the series until %v, got %+v", oldNext, f.sched.Skips)
	}
}

func TestSearchThenViewEvent(t *testing.T) {
	f := newFixture(t)
	ev := models.Event{
		UserID:    testUser,
		Title:     "פגישה עם דנה",
		StartTime: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		Location:  "משרד",
	}
	if err := f.st.AddEvent(&ev); err != nil {
		t.Fatal(err)
	}

	f.send(t, "7")
	reply := f.send(t, "דנה")
	if !strings.Contains(reply, "פגישה עם דנה") {
		t.Fatalf("expected match in results, got %q", reply)
	}
	if got := f.session(t).State; got != models.StateEventSelectingForView {
		t.Fatalf("state: got %q", got)
	}

	reply = f.send(t, "1")
	if !strings.Contains(reply, "מיקום: משרד") {
		t.Errorf("expected event details, got %q", reply)
	}
}
