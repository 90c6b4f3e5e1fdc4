package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dorshemer/yoman/internal/fuzzy"
	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/store"
	"github.com/dorshemer/yoman/internal/timeparse"
)

// pendingEvent is the event-creation flow's in-flight payload, carried in
// session context between turns.
type pendingEvent struct {
	Title            string    `json:"title,omitempty"`
	Start            time.Time `json:"start,omitempty"`
	HasTime          bool      `json:"has_time,omitempty"`
	Location         string    `json:"location,omitempty"`
	LocationDone     bool      `json:"location_done,omitempty"`
	Participants     []string  `json:"participants,omitempty"`
	ParticipantsDone bool      `json:"participants_done,omitempty"`
}

// Event field identifiers used by the edit flow.
const (
	fieldTitle        = "title"
	fieldDate         = "date"
	fieldTime         = "time"
	fieldLocation     = "location"
	fieldParticipants = "participants"
)

// startEventCreation opens the event-creation flow, prefilled from whatever
// entities the classifier extracted.
func (m *Machine) startEventCreation(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	pe := pendingEvent{
		Title:        strings.TrimSpace(ent.Title),
		Location:     strings.TrimSpace(ent.Location),
		Participants: ent.Participants,
	}
	if pe.Location != "" {
		pe.LocationDone = true
	}
	if len(pe.Participants) > 0 {
		pe.ParticipantsDone = true
	}
	if ent.DateText != "" {
		res := m.dates.Resolve(joinDateTime(ent.DateText, ent.TimeText), m.userLocation(sess))
		if res.OK && res.Query.Range == timeparse.RangeNone {
			pe.Start = res.Query.Date
			pe.HasTime = res.Query.HasTime
		}
	}
	return m.nextEventStep(ctx, sess, &pe)
}

// nextEventStep stores the pending payload and transitions to the first
// step still missing data, finalizing when nothing is.
func (m *Machine) nextEventStep(ctx context.Context, sess *models.Session, pe *pendingEvent) (string, error) {
	if err := putJSON(sess, models.DataKeyPendingEvent, pe); err != nil {
		return "", err
	}
	switch {
	case pe.Title == "":
		m.advance(sess, models.StateEventAwaitingName)
		return promptEventName, nil
	case pe.Start.IsZero():
		m.advance(sess, models.StateEventAwaitingDate)
		return promptEventDate, nil
	case !pe.HasTime:
		m.advance(sess, models.StateEventAwaitingTime)
		return promptEventTime, nil
	case !pe.LocationDone:
		m.advance(sess, models.StateEventAwaitingLocation)
		return promptEventLocation, nil
	case !pe.ParticipantsDone:
		m.advance(sess, models.StateEventAwaitingParticipants)
		return promptEventParticipants, nil
	default:
		return m.finalizeEvent(ctx, sess, pe)
	}
}

func (m *Machine) handleEventName(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) {
		return m.expired(sess), nil
	}
	title := strings.TrimSpace(text)
	if title == "" || utf8.RuneCountInString(title) > models.MaxTitleLength {
		return m.unrecognized(sess, promptEventName), nil
	}
	pe.Title = title
	return m.nextEventStep(ctx, sess, &pe)
}

func (m *Machine) handleEventDate(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) {
		return m.expired(sess), nil
	}
	res := m.dates.Resolve(text, m.userLocation(sess))
	if !res.OK {
		return m.unrecognized(sess, res.Hint), nil
	}
	if res.Query.Range != timeparse.RangeNone {
		return m.unrecognized(sess, "צריך תאריך בודד לאירוע. "+promptEventDate), nil
	}
	pe.Start = res.Query.Date
	pe.HasTime = res.Query.HasTime
	return m.nextEventStep(ctx, sess, &pe)
}

func (m *Machine) handleEventTime(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) || pe.Start.IsZero() {
		return m.expired(sess), nil
	}
	res := m.dates.Resolve(text, m.userLocation(sess))
	if !res.OK || !res.Query.HasTime {
		return m.unrecognized(sess, promptEventTime), nil
	}
	pe.Start = withClock(pe.Start, res.Query.Date, m.userLocation(sess))
	pe.HasTime = true
	return m.nextEventStep(ctx, sess, &pe)
}

func (m *Machine) handleEventLocation(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) {
		return m.expired(sess), nil
	}
	if !isSkip(text) {
		pe.Location = strings.TrimSpace(text)
	}
	pe.LocationDone = true
	return m.nextEventStep(ctx, sess, &pe)
}

func (m *Machine) handleEventParticipants(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) {
		return m.expired(sess), nil
	}
	if !isSkip(text) {
		pe.Participants = splitNames(text)
		if len(pe.Participants) > models.MaxParticipants {
			return m.unrecognized(sess, fmt.Sprintf("אפשר עד %d משתתפים. %s", models.MaxParticipants, promptEventParticipants)), nil
		}
	}
	pe.ParticipantsDone = true
	return m.nextEventStep(ctx, sess, &pe)
}

// finalizeEvent checks the calendar for overlaps before committing. On a
// conflict the event is not created; the pending payload stays in context
// and only an explicit yes commits it.
func (m *Machine) finalizeEvent(ctx context.Context, sess *models.Session, pe *pendingEvent) (string, error) {
	overlaps, err := m.events.GetOverlappingEvents(sess.UserID, pe.Start, pe.Start.Add(time.Hour))
	if err != nil {
		return "", fmt.Errorf("checking for conflicts: %w", err)
	}
	if len(overlaps) > 0 {
		if err := putJSON(sess, models.DataKeyPendingEvent, pe); err != nil {
			return "", err
		}
		m.advance(sess, models.StateEventConflictConfirm)
		return formatEventList("יש כבר ביומן באותו זמן:", overlaps) + "\n\nלקבוע בכל זאת? כן/לא", nil
	}
	return m.commitPendingEvent(ctx, sess, pe)
}

func (m *Machine) commitPendingEvent(ctx context.Context, sess *models.Session, pe *pendingEvent) (string, error) {
	ev := models.Event{
		UserID:       sess.UserID,
		Title:        pe.Title,
		StartTime:    pe.Start,
		Location:     pe.Location,
		Participants: pe.Participants,
		CreatedAt:    m.now(),
		UpdatedAt:    m.now(),
	}
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("validating event: %w", err)
	}
	if err := m.events.AddEvent(&ev); err != nil {
		return "", fmt.Errorf("creating event: %w", err)
	}
	m.resolver.NoteRecentEntity(sess.UserID, "אירוע: "+ev.Title, ev.StartTime)
	m.react(ctx, sess.UserID, SuccessReaction)
	m.resetToMenu(sess)
	return "נקבע! " + formatEventLine(ev), nil
}

func (m *Machine) handleEventConflictConfirm(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pe pendingEvent
	if !getJSON(sess, models.DataKeyPendingEvent, &pe) {
		return m.expired(sess), nil
	}
	switch ParseYesNo(text) {
	case AnswerYes:
		return m.commitPendingEvent(ctx, sess, &pe)
	case AnswerNo:
		m.resetToMenu(sess)
		return MsgFlowCancelled + "\n\n" + MainMenuText, nil
	default:
		return m.unrecognized(sess, "לקבוע בכל זאת? כן/לא"), nil
	}
}

// listEvents renders events for a requested date or range, defaulting to the
// next upcoming ones.
func (m *Machine) listEvents(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	loc := m.userLocation(sess)
	var (
		events []models.Event
		header string
		err    error
	)
	if ent.DateText != "" {
		res := m.dates.ResolveRange(ent.DateText, loc)
		if !res.OK {
			return res.Hint, nil
		}
		start, end := res.Query.Date, res.Query.Date.AddDate(0, 0, 1)
		if res.Query.Range != timeparse.RangeNone {
			start, end = res.Query.RangeStart, res.Query.RangeEnd
		}
		events, err = m.events.GetEventsByDate(sess.UserID, start, end)
		header = fmt.Sprintf("אירועים בין %s ל-%s:", formatDate(start), formatDate(end.AddDate(0, 0, -1)))
	} else {
		events, err = m.events.GetUpcomingEvents(sess.UserID, m.now(), 10)
		header = "האירועים הקרובים:"
	}
	if err != nil {
		return "", fmt.Errorf("listing events: %w", err)
	}
	if len(events) == 0 {
		return "אין אירועים ביומן לתקופה הזו.", nil
	}
	if err := storeCandidates(sess, eventIDs(events)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateEventSelectingForView)
	return formatEventList(header, events) + "\n\nלפרטים כתבו מספר, או 'תפריט'", nil
}

func (m *Machine) handleEventSelectForView(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	ev, err := m.events.GetEvent(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "האירוע הזה כבר לא קיים.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading event: %w", err)
	}
	m.resolver.NoteRecentEntity(sess.UserID, "אירוע: "+ev.Title, ev.StartTime)
	sess.Set(models.DataKeyCommentEventID, strconv.FormatInt(ev.ID, 10))
	m.advance(sess, models.StateEventSelectingForComment)
	return formatEventDetails(*ev) + "\n\nלניהול הערות כתבו 'הערות', לעריכה 'עריכה', או 'תפריט'", nil
}

// handleEventSelectForComment chooses what to do with the event just viewed.
func (m *Machine) handleEventSelectForComment(ctx context.Context, sess *models.Session, text string) (string, error) {
	if _, ok := sess.Get(models.DataKeyCommentEventID); !ok {
		return m.expired(sess), nil
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "הערות", "הערה", "comments":
		m.advance(sess, models.StateEventCommentAction)
		return promptCommentAction, nil
	case "עריכה", "edit":
		id, _ := sess.Get(models.DataKeyCommentEventID)
		sess.Set(models.DataKeySelectedID, id)
		m.advance(sess, models.StateEventEditingField)
		return promptEditField, nil
	default:
		return m.unrecognized(sess, "כתבו 'הערות', 'עריכה' או 'תפריט'"), nil
	}
}

// Search.

func (m *Machine) handleSearchQuery(ctx context.Context, sess *models.Session, text string) (string, error) {
	return m.handleEventSearchQuery(ctx, sess, text)
}

func (m *Machine) handleEventSearchQuery(ctx context.Context, sess *models.Session, text string) (string, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return m.unrecognized(sess, promptSearchQuery), nil
	}
	return m.searchEvents(ctx, sess, query)
}

func (m *Machine) searchEvents(ctx context.Context, sess *models.Session, query string) (string, error) {
	events, err := m.events.GetAllEvents(sess.UserID, 200, 0, false)
	if err != nil {
		return "", fmt.Errorf("searching events: %w", err)
	}
	matches := fuzzy.Filter(events, query, func(ev models.Event) string { return ev.Title }, fuzzy.SearchThreshold)
	if len(matches) == 0 {
		m.resetToMenu(sess)
		return fmt.Sprintf("לא מצאתי אירוע שמתאים ל'%s'.", query) + "\n\n" + MainMenuText, nil
	}
	found := make([]models.Event, len(matches))
	for i, c := range matches {
		found[i] = c.Item
	}
	if err := storeCandidates(sess, eventIDs(found)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateEventSelectingForView)
	return formatEventList("מצאתי:", found) + "\n\nלפרטים כתבו מספר, או 'תפריט'", nil
}

// Edit flow.

func (m *Machine) startEventEdit(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	target := firstNonEmpty(ent.Title, ent.SearchQuery, ent.DeleteTarget)
	events, err := m.events.GetAllEvents(sess.UserID, 200, 0, false)
	if err != nil {
		return "", fmt.Errorf("loading events: %w", err)
	}
	if len(events) == 0 {
		return "אין אירועים ביומן לעריכה.", nil
	}
	if target != "" {
		matches := fuzzy.Filter(events, target, func(ev models.Event) string { return ev.Title }, fuzzy.SearchThreshold)
		if len(matches) == 1 {
			sess.Set(models.DataKeySelectedID, strconv.FormatInt(matches[0].Item.ID, 10))
			m.advance(sess, models.StateEventEditingField)
			return formatEventLine(matches[0].Item) + "\n\n" + promptEditField, nil
		}
		if len(matches) > 1 {
			events = events[:0]
			for _, c := range matches {
				events = append(events, c.Item)
			}
		}
		if len(matches) == 0 {
			return fmt.Sprintf("לא מצאתי אירוע שמתאים ל'%s'.", target), nil
		}
	}
	if err := storeCandidates(sess, eventIDs(events)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateEventSelectingForEdit)
	return formatEventList("איזה אירוע לערוך?", events), nil
}

func (m *Machine) handleEventSelectForEdit(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	sess.Set(models.DataKeySelectedID, strconv.FormatInt(id, 10))
	m.advance(sess, models.StateEventEditingField)
	return promptEditField, nil
}

func (m *Machine) handleEventEditField(ctx context.Context, sess *models.Session, text string) (string, error) {
	if _, ok := sess.Get(models.DataKeySelectedID); !ok {
		return m.expired(sess), nil
	}
	var field, prompt string
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "שם":
		field, prompt = fieldTitle, promptEditNewValue
	case "2", "תאריך":
		field, prompt = fieldDate, promptEventDate
	case "3", "שעה":
		field, prompt = fieldTime, promptEventTime
	case "4", "מיקום":
		field, prompt = fieldLocation, promptEditNewValue
	case "5", "משתתפים":
		field, prompt = fieldParticipants, promptEventParticipants
	default:
		return m.unrecognized(sess, promptEditField), nil
	}
	sess.Set(models.DataKeyEditField, field)
	m.advance(sess, models.StateEventEditNewValue)
	return prompt, nil
}

func (m *Machine) handleEventEditNewValue(ctx context.Context, sess *models.Session, text string) (string, error) {
	idRaw, hasID := sess.Get(models.DataKeySelectedID)
	field, hasField := sess.Get(models.DataKeyEditField)
	if !hasID || !hasField {
		return m.expired(sess), nil
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return m.expired(sess), nil
	}
	ev, err := m.events.GetEvent(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "האירוע הזה כבר לא קיים.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading event: %w", err)
	}

	loc := m.userLocation(sess)
	switch field {
	case fieldTitle:
		title := strings.TrimSpace(text)
		if title == "" || utf8.RuneCountInString(title) > models.MaxTitleLength {
			return m.unrecognized(sess, promptEditNewValue), nil
		}
		ev.Title = title
	case fieldDate:
		res := m.dates.Resolve(text, loc)
		if !res.OK {
			return m.unrecognized(sess, res.Hint), nil
		}
		if res.Query.Range != timeparse.RangeNone {
			return m.unrecognized(sess, promptEventDate), nil
		}
		d := res.Query.Date
		ev.StartTime = time.Date(d.Year(), d.Month(), d.Day(), ev.StartTime.Hour(), ev.StartTime.Minute(), 0, 0, loc)
	case fieldTime:
		res := m.dates.Resolve(text, loc)
		if !res.OK || !res.Query.HasTime {
			return m.unrecognized(sess, promptEventTime), nil
		}
		ev.StartTime = withClock(ev.StartTime, res.Query.Date, loc)
	case fieldLocation:
		ev.Location = strings.TrimSpace(text)
	case fieldParticipants:
		ev.Participants = splitNames(text)
	default:
		return m.expired(sess), nil
	}

	ev.UpdatedAt = m.now()
	if err := m.events.UpdateEvent(*ev); err != nil {
		return "", fmt.Errorf("updating event: %w", err)
	}
	m.resolver.NoteRecentEntity(sess.UserID, "אירוע: "+ev.Title, ev.StartTime)
	m.react(ctx, sess.UserID, SuccessReaction)
	m.resetToMenu(sess)
	return "עודכן. " + formatEventLine(*ev), nil
}

// Delete flow. Thresholds are tighter here than for search: a false positive
// costs user data.

func (m *Machine) startEventDelete(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	target := firstNonEmpty(ent.DeleteTarget, ent.Title)
	events, err := m.events.GetAllEvents(sess.UserID, 200, 0, false)
	if err != nil {
		return "", fmt.Errorf("loading events: %w", err)
	}
	if len(events) == 0 {
		return "אין אירועים ביומן למחיקה.", nil
	}
	if target != "" {
		matches := fuzzy.Filter(events, target, func(ev models.Event) string { return ev.Title }, fuzzy.DeleteThreshold)
		switch len(matches) {
		case 0:
			return fmt.Sprintf("לא מצאתי אירוע שמתאים ל'%s'.", target), nil
		case 1:
			sess.Set(models.DataKeyDeleteTargetID, strconv.FormatInt(matches[0].Item.ID, 10))
			m.advance(sess, models.StateEventDeleteConfirm)
			return fmt.Sprintf("למחוק את '%s'? כן/לא", formatEventLine(matches[0].Item)), nil
		default:
			events = events[:0]
			for _, c := range matches {
				events = append(events, c.Item)
			}
		}
	}
	if err := storeCandidates(sess, eventIDs(events)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateEventSelectingForDelete)
	return formatEventList("איזה אירוע למחוק?", events), nil
}

func (m *Machine) handleEventSelectForDelete(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	ev, err := m.events.GetEvent(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "האירוע הזה כבר לא קיים.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading event: %w", err)
	}
	sess.Set(models.DataKeyDeleteTargetID, strconv.FormatInt(id, 10))
	m.advance(sess, models.StateEventDeleteConfirm)
	return fmt.Sprintf("למחוק את '%s'? כן/לא", formatEventLine(*ev)), nil
}

func (m *Machine) handleEventDeleteConfirm(ctx context.Context, sess *models.Session, text string) (string, error) {
	idRaw, hasID := sess.Get(models.DataKeyDeleteTargetID)
	if !hasID {
		return m.expired(sess), nil
	}
	switch ParseYesNo(text) {
	case AnswerYes:
		id, err := strconv.ParseInt(idRaw, 10, 64)
		if err != nil {
			return m.expired(sess), nil
		}
		if err := m.events.DeleteEvent(id); err != nil && err != store.ErrNotFound {
			return "", fmt.Errorf("deleting event: %w", err)
		}
		m.react(ctx, sess.UserID, DeleteReaction)
		m.resetToMenu(sess)
		return "נמחק.\n\n" + MainMenuText, nil
	case AnswerNo:
		m.resetToMenu(sess)
		return MsgFlowCancelled + "\n\n" + MainMenuText, nil
	default:
		return m.unrecognized(sess, promptDeleteConfirm), nil
	}
}

// Comment sub-flow.

func (m *Machine) handleEventCommentAction(ctx context.Context, sess *models.Session, text string) (string, error) {
	ev, reply, err := m.commentEvent(sess)
	if ev == nil {
		return reply, err
	}
	switch strings.TrimSpace(text) {
	case "1", "הוספה":
		sess.Set(models.DataKeyCommentAction, "add")
		m.advance(sess, models.StateEventAwaitingCommentText)
		return promptCommentText, nil
	case "2", "עריכה":
		if len(ev.Comments) == 0 {
			return "אין הערות לאירוע הזה. " + promptCommentAction, nil
		}
		sess.Set(models.DataKeyCommentAction, "update")
		m.advance(sess, models.StateEventSelectingComment)
		return formatCommentList(ev.Comments) + "\n" + promptSelectComment, nil
	case "3", "מחיקה":
		if len(ev.Comments) == 0 {
			return "אין הערות לאירוע הזה. " + promptCommentAction, nil
		}
		sess.Set(models.DataKeyCommentAction, "delete")
		m.advance(sess, models.StateEventSelectingComment)
		return formatCommentList(ev.Comments) + "\n" + promptSelectComment, nil
	default:
		return m.unrecognized(sess, promptCommentAction), nil
	}
}

func (m *Machine) handleEventSelectComment(ctx context.Context, sess *models.Session, text string) (string, error) {
	ev, reply, err := m.commentEvent(sess)
	if ev == nil {
		return reply, err
	}
	action, hasAction := sess.Get(models.DataKeyCommentAction)
	if !hasAction {
		return m.expired(sess), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(ev.Comments) {
		return m.unrecognized(sess, promptSelectComment), nil
	}
	idx := n - 1
	if action == "delete" {
		ev.Comments = append(ev.Comments[:idx], ev.Comments[idx+1:]...)
		ev.UpdatedAt = m.now()
		if err := m.events.UpdateEvent(*ev); err != nil {
			return "", fmt.Errorf("deleting comment: %w", err)
		}
		m.react(ctx, sess.UserID, DeleteReaction)
		m.resetToMenu(sess)
		return "ההערה נמחקה.\n\n" + MainMenuText, nil
	}
	sess.Set(models.DataKeySelectedID, strconv.Itoa(idx))
	m.advance(sess, models.StateEventAwaitingCommentText)
	return promptCommentText, nil
}

func (m *Machine) handleEventCommentText(ctx context.Context, sess *models.Session, text string) (string, error) {
	ev, reply, err := m.commentEvent(sess)
	if ev == nil {
		return reply, err
	}
	action, hasAction := sess.Get(models.DataKeyCommentAction)
	if !hasAction {
		return m.expired(sess), nil
	}
	body := strings.TrimSpace(text)
	if body == "" || utf8.RuneCountInString(body) > models.MaxCommentLength {
		return m.unrecognized(sess, promptCommentText), nil
	}
	switch action {
	case "add":
		ev.Comments = append(ev.Comments, models.Comment{Body: body, CreatedAt: m.now()})
	case "update":
		idxRaw, ok := sess.Get(models.DataKeySelectedID)
		if !ok {
			return m.expired(sess), nil
		}
		idx, err := strconv.Atoi(idxRaw)
		if err != nil || idx < 0 || idx >= len(ev.Comments) {
			return m.expired(sess), nil
		}
		ev.Comments[idx].Body = body
	default:
		return m.expired(sess), nil
	}
	ev.UpdatedAt = m.now()
	if err := m.events.UpdateEvent(*ev); err != nil {
		return "", fmt.Errorf("saving comment: %w", err)
	}
	m.react(ctx, sess.UserID, SuccessReaction)
	m.resetToMenu(sess)
	return "ההערה נשמרה.\n\n" + MainMenuText, nil
}

// commentEvent loads the event the comment sub-flow is operating on. A nil
// event means the returned reply (or error) should go out as-is.
func (m *Machine) commentEvent(sess *models.Session) (*models.Event, string, error) {
	idRaw, ok := sess.Get(models.DataKeyCommentEventID)
	if !ok {
		return nil, m.expired(sess), nil
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return nil, m.expired(sess), nil
	}
	ev, err := m.events.GetEvent(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return nil, "האירוע הזה כבר לא קיים.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading event: %w", err)
	}
	return ev, "", nil
}

func formatCommentList(comments []models.Comment) string {
	var b strings.Builder
	b.WriteString("ההערות:")
	for i, c := range comments {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Body)
	}
	return b.String()
}

func eventIDs(events []models.Event) []int64 {
	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}

func splitNames(text string) []string {
	var names []string
	for _, part := range strings.Split(text, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func joinDateTime(dateText, timeText string) string {
	if timeText == "" {
		return dateText
	}
	return dateText + " " + timeText
}

// withClock keeps base's calendar date and takes the clock from t.
func withClock(base, t time.Time, loc *time.Location) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}
