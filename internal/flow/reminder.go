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

// pendingReminder is the reminder-creation flow's in-flight payload.
type pendingReminder struct {
	Title         string            `json:"title,omitempty"`
	Due           time.Time         `json:"due,omitempty"`
	HasTime       bool              `json:"has_time,omitempty"`
	Recurrence    models.Recurrence `json:"recurrence,omitempty"`
	RecurrenceSet bool              `json:"recurrence_set,omitempty"`
	LeadMinutes   int               `json:"lead_minutes,omitempty"`
	LeadSet       bool              `json:"lead_set,omitempty"`
}

func (m *Machine) startReminderCreation(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	pr := pendingReminder{Title: strings.TrimSpace(ent.Title)}
	if ent.DateText != "" {
		res := m.dates.Resolve(joinDateTime(ent.DateText, ent.TimeText), m.userLocation(sess))
		if res.OK && res.Query.Range == timeparse.RangeNone {
			pr.Due = res.Query.Date
			pr.HasTime = res.Query.HasTime
		}
	}
	if ent.Recurrence != "" && models.IsValidRecurrence(ent.Recurrence) {
		pr.Recurrence = ent.Recurrence
		pr.RecurrenceSet = true
	}
	if ent.LeadMinutes > 0 {
		pr.LeadMinutes = ent.LeadMinutes
		pr.LeadSet = true
	}
	return m.nextReminderStep(sess, &pr)
}

func (m *Machine) nextReminderStep(sess *models.Session, pr *pendingReminder) (string, error) {
	if err := putJSON(sess, models.DataKeyPendingReminder, pr); err != nil {
		return "", err
	}
	switch {
	case pr.Title == "":
		m.advance(sess, models.StateReminderAwaitingTitle)
		return promptReminderTitle, nil
	case pr.Due.IsZero() || !pr.HasTime:
		m.advance(sess, models.StateReminderAwaitingDateTime)
		if !pr.Due.IsZero() {
			return "באיזו שעה באותו יום?", nil
		}
		return promptReminderDateTime, nil
	case !pr.RecurrenceSet:
		m.advance(sess, models.StateReminderAwaitingRecurrence)
		return promptReminderRecurrence, nil
	case !pr.LeadSet:
		m.advance(sess, models.StateReminderAwaitingLeadTime)
		return promptReminderLeadTime, nil
	default:
		m.advance(sess, models.StateReminderConfirm)
		return m.reminderSummary(pr) + "\n\nלקבוע? כן/לא", nil
	}
}

func (m *Machine) reminderSummary(pr *pendingReminder) string {
	s := fmt.Sprintf("תזכורת: %s\nמתי: %s\nתדירות: %s", pr.Title, formatDateTime(pr.Due), recurrenceLabel(pr.Recurrence))
	if pr.LeadMinutes > 0 {
		s += fmt.Sprintf("\nהתראה %d דקות לפני", pr.LeadMinutes)
	}
	return s
}

func (m *Machine) handleReminderTitle(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pr pendingReminder
	if !getJSON(sess, models.DataKeyPendingReminder, &pr) {
		return m.expired(sess), nil
	}
	title := strings.TrimSpace(text)
	if title == "" || utf8.RuneCountInString(title) > models.MaxTitleLength {
		return m.unrecognized(sess, promptReminderTitle), nil
	}
	pr.Title = title
	return m.nextReminderStep(sess, &pr)
}

func (m *Machine) handleReminderDateTime(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pr pendingReminder
	if !getJSON(sess, models.DataKeyPendingReminder, &pr) {
		return m.expired(sess), nil
	}
	loc := m.userLocation(sess)
	res := m.dates.Resolve(text, loc)
	if !res.OK {
		return m.unrecognized(sess, res.Hint), nil
	}
	if res.Query.Range != timeparse.RangeNone {
		return m.unrecognized(sess, "צריך מועד מדויק לתזכורת. "+promptReminderDateTime), nil
	}
	if !pr.Due.IsZero() && res.Query.HasTime {
		// A date was already collected; this turn supplies the clock.
		pr.Due = withClock(pr.Due, res.Query.Date, loc)
		pr.HasTime = true
	} else {
		pr.Due = res.Query.Date
		pr.HasTime = res.Query.HasTime
	}
	if pr.HasTime && pr.Due.Before(m.now()) {
		pr.Due, pr.HasTime = time.Time{}, false
		if err := putJSON(sess, models.DataKeyPendingReminder, &pr); err != nil {
			return "", err
		}
		return m.unrecognized(sess, "המועד הזה כבר עבר. "+promptReminderDateTime), nil
	}
	return m.nextReminderStep(sess, &pr)
}

func (m *Machine) handleReminderRecurrence(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pr pendingReminder
	if !getJSON(sess, models.DataKeyPendingReminder, &pr) {
		return m.expired(sess), nil
	}
	switch strings.TrimSpace(text) {
	case "1", "חד פעמי":
		pr.Recurrence = models.RecurrenceNone
	case "2", "כל יום":
		pr.Recurrence = models.RecurrenceDaily
	case "3", "כל שבוע":
		pr.Recurrence = models.RecurrenceWeekly
	case "4", "כל חודש":
		pr.Recurrence = models.RecurrenceMonthly
	default:
		return m.unrecognized(sess, promptReminderRecurrence), nil
	}
	pr.RecurrenceSet = true
	return m.nextReminderStep(sess, &pr)
}

func (m *Machine) handleReminderLeadTime(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pr pendingReminder
	if !getJSON(sess, models.DataKeyPendingReminder, &pr) {
		return m.expired(sess), nil
	}
	if !isSkip(text) {
		minutes, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || minutes < 0 || minutes > 7*24*60 {
			return m.unrecognized(sess, promptReminderLeadTime), nil
		}
		pr.LeadMinutes = minutes
	}
	pr.LeadSet = true
	return m.nextReminderStep(sess, &pr)
}

func (m *Machine) handleReminderConfirm(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pr pendingReminder
	if !getJSON(sess, models.DataKeyPendingReminder, &pr) {
		return m.expired(sess), nil
	}
	switch ParseYesNo(text) {
	case AnswerYes:
		return m.commitPendingReminder(ctx, sess, &pr)
	case AnswerNo:
		m.resetToMenu(sess)
		return MsgFlowCancelled + "\n\n" + MainMenuText, nil
	default:
		return m.unrecognized(sess, "לקבוע את התזכורת? כן/לא"), nil
	}
}

func (m *Machine) commitPendingReminder(ctx context.Context, sess *models.Session, pr *pendingReminder) (string, error) {
	rem := models.Reminder{
		UserID:      sess.UserID,
		Title:       pr.Title,
		DueAt:       pr.Due,
		LeadMinutes: pr.LeadMinutes,
		Recurrence:  pr.Recurrence,
		Active:      true,
		CreatedAt:   m.now(),
		UpdatedAt:   m.now(),
	}
	if err := rem.Validate(); err != nil {
		return "", fmt.Errorf("validating reminder: %w", err)
	}
	if err := m.reminders.AddReminder(&rem); err != nil {
		return "", fmt.Errorf("creating reminder: %w", err)
	}
	if err := m.scheduler.Schedule(rem, sess.UserID); err != nil {
		return "", fmt.Errorf("scheduling reminder: %w", err)
	}
	m.resolver.NoteRecentEntity(sess.UserID, "תזכורת: "+rem.Title, rem.DueAt)
	m.react(ctx, sess.UserID, SuccessReaction)
	m.resetToMenu(sess)
	return "התזכורת נקבעה! " + formatReminderLine(rem), nil
}

func (m *Machine) listReminders(ctx context.Context, sess *models.Session) (string, error) {
	rems, err := m.reminders.GetActiveReminders(sess.UserID)
	if err != nil {
		return "", fmt.Errorf("listing reminders: %w", err)
	}
	if len(rems) == 0 {
		return "אין תזכורות פעילות.", nil
	}
	return formatReminderList("התזכורות הפעילות:", rems), nil
}

// Update flow. Changing a recurring reminder's time always asks whether the
// change applies to the next occurrence only or to all of them; never
// inferred.

func (m *Machine) startReminderEdit(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	rems, err := m.reminders.GetActiveReminders(sess.UserID)
	if err != nil {
		return "", fmt.Errorf("loading reminders: %w", err)
	}
	if len(rems) == 0 {
		return "אין תזכורות פעילות לעדכון.", nil
	}
	target := firstNonEmpty(ent.Title, ent.DeleteTarget, ent.SearchQuery)
	if target != "" {
		matches := fuzzy.Filter(rems, target, func(r models.Reminder) string { return r.Title }, fuzzy.SearchThreshold)
		if len(matches) == 1 {
			sess.Set(models.DataKeySelectedID, strconv.FormatInt(matches[0].Item.ID, 10))
			m.advance(sess, models.StateReminderAwaitingNewTime)
			return formatReminderLine(matches[0].Item) + "\n" + promptReminderNewTime, nil
		}
		if len(matches) > 1 {
			rems = rems[:0]
			for _, c := range matches {
				rems = append(rems, c.Item)
			}
		}
		if len(matches) == 0 {
			return fmt.Sprintf("לא מצאתי תזכורת שמתאימה ל'%s'.", target), nil
		}
	}
	if err := storeCandidates(sess, reminderIDs(rems)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateReminderSelectingForEdit)
	return formatReminderList("איזו תזכורת לעדכן?", rems), nil
}

func (m *Machine) handleReminderSelectForEdit(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	sess.Set(models.DataKeySelectedID, strconv.FormatInt(id, 10))
	m.advance(sess, models.StateReminderAwaitingNewTime)
	return promptReminderNewTime, nil
}

func (m *Machine) handleReminderNewTime(ctx context.Context, sess *models.Session, text string) (string, error) {
	idRaw, hasID := sess.Get(models.DataKeySelectedID)
	if !hasID {
		return m.expired(sess), nil
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return m.expired(sess), nil
	}
	rem, err := m.reminders.GetReminder(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "התזכורת הזו כבר לא קיימת.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading reminder: %w", err)
	}

	loc := m.userLocation(sess)
	res := m.dates.Resolve(text, loc)
	if !res.OK {
		return m.unrecognized(sess, res.Hint), nil
	}
	if res.Query.Range != timeparse.RangeNone {
		return m.unrecognized(sess, "צריך מועד מדויק. "+promptReminderNewTime), nil
	}
	newTime := res.Query.Date
	if !res.Query.HasTime {
		// Keep the original clock when only a date was given.
		newTime = withClock(newTime, rem.DueAt, loc)
	}
	sess.Set(models.DataKeyNewReminderTime, newTime.Format(time.RFC3339))

	if rem.IsRecurring() {
		m.advance(sess, models.StateReminderUpdateScope)
		return promptReminderScope, nil
	}
	return m.applyReminderTimeToAll(ctx, sess, rem, newTime)
}

func (m *Machine) handleReminderUpdateScope(ctx context.Context, sess *models.Session, text string) (string, error) {
	idRaw, hasID := sess.Get(models.DataKeySelectedID)
	newRaw, hasTime := sess.Get(models.DataKeyNewReminderTime)
	if !hasID || !hasTime {
		return m.expired(sess), nil
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return m.expired(sess), nil
	}
	newTime, err := time.Parse(time.RFC3339, newRaw)
	if err != nil {
		return m.expired(sess), nil
	}
	rem, err := m.reminders.GetReminder(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "התזכורת הזו כבר לא קיימת.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading reminder: %w", err)
	}

	switch strings.TrimSpace(text) {
	case "1", "רק המופע הבא":
		// Only the next occurrence: materialized as a fresh one-off
		// reminder at the new time; the recurrence rule and base time
		// stay untouched. The occurrence being moved is suppressed so
		// it does not also fire at its original time.
		oneOff := models.Reminder{
			UserID:      sess.UserID,
			Title:       rem.Title,
			DueAt:       newTime,
			LeadMinutes: rem.LeadMinutes,
			Active:      true,
			CreatedAt:   m.now(),
			UpdatedAt:   m.now(),
		}
		if err := m.reminders.AddReminder(&oneOff); err != nil {
			return "", fmt.Errorf("creating one-off reminder: %w", err)
		}
		m.scheduler.SkipUntil(rem.ID, rem.NextOccurrence(m.now()))
		if err := m.scheduler.Schedule(oneOff, sess.UserID); err != nil {
			return "", fmt.Errorf("scheduling one-off reminder: %w", err)
		}
		m.react(ctx, sess.UserID, SuccessReaction)
		m.resetToMenu(sess)
		return "המופע הבא הועבר ל-" + formatDateTime(newTime) + ". שאר המופעים נשארו כרגיל.", nil
	case "2", "כל המופעים":
		return m.applyReminderTimeToAll(ctx, sess, rem, newTime)
	default:
		return m.unrecognized(sess, promptReminderScope), nil
	}
}

func (m *Machine) applyReminderTimeToAll(ctx context.Context, sess *models.Session, rem *models.Reminder, newTime time.Time) (string, error) {
	rem.DueAt = newTime
	rem.UpdatedAt = m.now()
	if err := m.reminders.UpdateReminder(*rem); err != nil {
		return "", fmt.Errorf("updating reminder: %w", err)
	}
	m.scheduler.Cancel(rem.ID)
	if err := m.scheduler.Schedule(*rem, sess.UserID); err != nil {
		return "", fmt.Errorf("rescheduling reminder: %w", err)
	}
	m.react(ctx, sess.UserID, SuccessReaction)
	m.resetToMenu(sess)
	return "עודכן. " + formatReminderLine(*rem), nil
}

// Delete flow.

func (m *Machine) startReminderDelete(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	rems, err := m.reminders.GetActiveReminders(sess.UserID)
	if err != nil {
		return "", fmt.Errorf("loading reminders: %w", err)
	}
	if len(rems) == 0 {
		return "אין תזכורות פעילות למחיקה.", nil
	}
	target := firstNonEmpty(ent.DeleteTarget, ent.Title)
	if target != "" {
		matches := fuzzy.Filter(rems, target, func(r models.Reminder) string { return r.Title }, fuzzy.DeleteThreshold)
		switch len(matches) {
		case 0:
			return fmt.Sprintf("לא מצאתי תזכורת שמתאימה ל'%s'.", target), nil
		case 1:
			return m.askReminderDelete(sess, matches[0].Item)
		default:
			rems = rems[:0]
			for _, c := range matches {
				rems = append(rems, c.Item)
			}
		}
	}
	if err := storeCandidates(sess, reminderIDs(rems)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateReminderSelectingForDelete)
	return formatReminderList("איזו תזכורת למחוק?", rems), nil
}

func (m *Machine) handleReminderSelectForDelete(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	rem, err := m.reminders.GetReminder(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "התזכורת הזו כבר לא קיימת.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading reminder: %w", err)
	}
	return m.askReminderDelete(sess, *rem)
}

// askReminderDelete branches on recurrence: deleting a recurring reminder
// requires an explicit scope choice first.
func (m *Machine) askReminderDelete(sess *models.Session, rem models.Reminder) (string, error) {
	sess.Set(models.DataKeyDeleteTargetID, strconv.FormatInt(rem.ID, 10))
	if rem.IsRecurring() {
		m.advance(sess, models.StateReminderDeleteScope)
		return "התזכורת '" + rem.Title + "' חוזרת. מה לבטל?\n1. רק המופע הבא\n2. כל המופעים", nil
	}
	m.advance(sess, models.StateReminderDeleteConfirm)
	return fmt.Sprintf("למחוק את '%s'? כן/לא", formatReminderLine(rem)), nil
}

func (m *Machine) handleReminderDeleteConfirm(ctx context.Context, sess *models.Session, text string) (string, error) {
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
		if err := m.reminders.DeleteReminder(id); err != nil && err != store.ErrNotFound {
			return "", fmt.Errorf("deleting reminder: %w", err)
		}
		m.scheduler.Cancel(id)
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

// handleReminderDeleteScope cancels either just the next occurrence or the
// whole series. Skipping only the next occurrence leaves the original
// reminder armed with its firings suppressed through the materialized
// one-off's time, so the series resumes on its own afterwards.
func (m *Machine) handleReminderDeleteScope(ctx context.Context, sess *models.Session, text string) (string, error) {
	idRaw, hasID := sess.Get(models.DataKeyDeleteTargetID)
	if !hasID {
		return m.expired(sess), nil
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil {
		return m.expired(sess), nil
	}
	rem, err := m.reminders.GetReminder(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "התזכורת הזו כבר לא קיימת.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading reminder: %w", err)
	}

	switch strings.TrimSpace(text) {
	case "1", "רק המופע הבא":
		skipped := rem.NextOccurrence(m.now())
		resumeAt := rem.NextOccurrence(skipped)
		oneOff := models.Reminder{
			UserID:      sess.UserID,
			Title:       rem.Title,
			DueAt:       resumeAt,
			LeadMinutes: rem.LeadMinutes,
			Active:      true,
			CreatedAt:   m.now(),
			UpdatedAt:   m.now(),
		}
		if err := m.reminders.AddReminder(&oneOff); err != nil {
			return "", fmt.Errorf("creating resume reminder: %w", err)
		}
		m.scheduler.SkipUntil(rem.ID, resumeAt)
		if err := m.scheduler.Schedule(oneOff, sess.UserID); err != nil {
			return "", fmt.Errorf("scheduling resume reminder: %w", err)
		}
		m.react(ctx, sess.UserID, SuccessReaction)
		m.resetToMenu(sess)
		return "המופע של " + formatDateTime(skipped) + " בוטל. הבא יהיה ב-" + formatDateTime(resumeAt) + ".", nil
	case "2", "כל המופעים":
		if err := m.reminders.DeleteReminder(rem.ID); err != nil && err != store.ErrNotFound {
			return "", fmt.Errorf("deleting reminder: %w", err)
		}
		m.scheduler.Cancel(rem.ID)
		m.react(ctx, sess.UserID, DeleteReaction)
		m.resetToMenu(sess)
		return "כל המופעים בוטלו.\n\n" + MainMenuText, nil
	default:
		return m.unrecognized(sess, promptReminderScope), nil
	}
}

func reminderIDs(rems []models.Reminder) []int64 {
	ids := make([]int64, len(rems))
	for i, r := range rems {
		ids[i] = r.ID
	}
	return ids
}
