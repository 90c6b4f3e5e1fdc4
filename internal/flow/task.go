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

// pendingTask is the task-creation flow's in-flight payload.
type pendingTask struct {
	Title          string              `json:"title,omitempty"`
	Description    string              `json:"description,omitempty"`
	DescriptionSet bool                `json:"description_set,omitempty"`
	Priority       models.TaskPriority `json:"priority,omitempty"`
	PrioritySet    bool                `json:"priority_set,omitempty"`
	Due            time.Time           `json:"due,omitempty"`
	DueSet         bool                `json:"due_set,omitempty"`
}

func (m *Machine) startTaskCreation(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	pt := pendingTask{Title: strings.TrimSpace(ent.Title)}
	if ent.Priority != "" && models.IsValidPriority(ent.Priority) {
		pt.Priority = ent.Priority
		pt.PrioritySet = true
	}
	if ent.DateText != "" {
		res := m.dates.Resolve(ent.DateText, m.userLocation(sess))
		if res.OK && res.Query.Range == timeparse.RangeNone {
			pt.Due = res.Query.Date
			pt.DueSet = true
		}
	}
	return m.nextTaskStep(sess, &pt)
}

func (m *Machine) nextTaskStep(sess *models.Session, pt *pendingTask) (string, error) {
	if err := putJSON(sess, models.DataKeyPendingTask, pt); err != nil {
		return "", err
	}
	switch {
	case pt.Title == "":
		m.advance(sess, models.StateTaskAwaitingTitle)
		return promptTaskTitle, nil
	case !pt.DescriptionSet:
		m.advance(sess, models.StateTaskAwaitingDescription)
		return promptTaskDescription, nil
	case !pt.PrioritySet:
		m.advance(sess, models.StateTaskAwaitingPriority)
		return promptTaskPriority, nil
	case !pt.DueSet:
		m.advance(sess, models.StateTaskAwaitingDueDate)
		return promptTaskDueDate, nil
	default:
		m.advance(sess, models.StateTaskConfirm)
		return m.taskSummary(pt) + "\n\nלשמור? כן/לא", nil
	}
}

func (m *Machine) taskSummary(pt *pendingTask) string {
	s := "משימה: " + pt.Title
	if pt.Description != "" {
		s += "\n" + pt.Description
	}
	if lbl := priorityLabel(pt.Priority); lbl != "" {
		s += "\nדחיפות: " + lbl
	}
	if !pt.Due.IsZero() {
		s += "\nעד: " + formatDate(pt.Due)
	}
	return s
}

func (m *Machine) handleTaskTitle(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pt pendingTask
	if !getJSON(sess, models.DataKeyPendingTask, &pt) {
		return m.expired(sess), nil
	}
	title := strings.TrimSpace(text)
	if title == "" || utf8.RuneCountInString(title) > models.MaxTitleLength {
		return m.unrecognized(sess, promptTaskTitle), nil
	}
	pt.Title = title
	return m.nextTaskStep(sess, &pt)
}

func (m *Machine) handleTaskDescription(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pt pendingTask
	if !getJSON(sess, models.DataKeyPendingTask, &pt) {
		return m.expired(sess), nil
	}
	if !isSkip(text) {
		desc := strings.TrimSpace(text)
		if utf8.RuneCountInString(desc) > models.MaxDescriptionLength {
			return m.unrecognized(sess, promptTaskDescription), nil
		}
		pt.Description = desc
	}
	pt.DescriptionSet = true
	return m.nextTaskStep(sess, &pt)
}

func (m *Machine) handleTaskPriority(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pt pendingTask
	if !getJSON(sess, models.DataKeyPendingTask, &pt) {
		return m.expired(sess), nil
	}
	switch strings.TrimSpace(text) {
	case "1", "נמוכה":
		pt.Priority = models.PriorityLow
	case "2", "בינונית":
		pt.Priority = models.PriorityMedium
	case "3", "גבוהה":
		pt.Priority = models.PriorityHigh
	default:
		return m.unrecognized(sess, promptTaskPriority), nil
	}
	pt.PrioritySet = true
	return m.nextTaskStep(sess, &pt)
}

func (m *Machine) handleTaskDueDate(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pt pendingTask
	if !getJSON(sess, models.DataKeyPendingTask, &pt) {
		return m.expired(sess), nil
	}
	if !isSkip(text) {
		res := m.dates.Resolve(text, m.userLocation(sess))
		if !res.OK {
			return m.unrecognized(sess, res.Hint), nil
		}
		if res.Query.Range != timeparse.RangeNone {
			return m.unrecognized(sess, promptTaskDueDate), nil
		}
		pt.Due = res.Query.Date
	}
	pt.DueSet = true
	return m.nextTaskStep(sess, &pt)
}

func (m *Machine) handleTaskConfirm(ctx context.Context, sess *models.Session, text string) (string, error) {
	var pt pendingTask
	if !getJSON(sess, models.DataKeyPendingTask, &pt) {
		return m.expired(sess), nil
	}
	switch ParseYesNo(text) {
	case AnswerYes:
		task := models.Task{
			UserID:      sess.UserID,
			Title:       pt.Title,
			Description: pt.Description,
			Priority:    pt.Priority,
			DueAt:       pt.Due,
			CreatedAt:   m.now(),
			UpdatedAt:   m.now(),
		}
		if err := task.Validate(); err != nil {
			return "", fmt.Errorf("validating task: %w", err)
		}
		if err := m.tasks.AddTask(&task); err != nil {
			return "", fmt.Errorf("creating task: %w", err)
		}
		m.react(ctx, sess.UserID, SuccessReaction)
		m.resetToMenu(sess)
		return "המשימה נשמרה! " + formatTaskLine(task), nil
	case AnswerNo:
		m.resetToMenu(sess)
		return MsgFlowCancelled + "\n\n" + MainMenuText, nil
	default:
		return m.unrecognized(sess, "לשמור את המשימה? כן/לא"), nil
	}
}

func (m *Machine) listTasks(ctx context.Context, sess *models.Session) (string, error) {
	tasks, err := m.tasks.GetOpenTasks(sess.UserID)
	if err != nil {
		return "", fmt.Errorf("listing tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "אין משימות פתוחות.", nil
	}
	return formatTaskList("המשימות הפתוחות:", tasks), nil
}

func (m *Machine) startTaskComplete(ctx context.Context, sess *models.Session) (string, error) {
	tasks, err := m.tasks.GetOpenTasks(sess.UserID)
	if err != nil {
		return "", fmt.Errorf("loading tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "אין משימות פתוחות.", nil
	}
	if err := storeCandidates(sess, taskIDs(tasks)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateTaskSelectingForDone)
	return formatTaskList("איזו משימה הושלמה?", tasks), nil
}

func (m *Machine) handleTaskSelectForDone(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	task, err := m.tasks.GetTask(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "המשימה הזו כבר לא קיימת.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading task: %w", err)
	}
	task.Done = true
	task.UpdatedAt = m.now()
	if err := m.tasks.UpdateTask(*task); err != nil {
		return "", fmt.Errorf("completing task: %w", err)
	}
	m.react(ctx, sess.UserID, SuccessReaction)
	m.resetToMenu(sess)
	return "כל הכבוד! '" + task.Title + "' סומנה כהושלמה.", nil
}

func (m *Machine) startTaskDelete(ctx context.Context, sess *models.Session, ent models.IntentEntities) (string, error) {
	tasks, err := m.tasks.GetOpenTasks(sess.UserID)
	if err != nil {
		return "", fmt.Errorf("loading tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "אין משימות פתוחות למחיקה.", nil
	}
	target := firstNonEmpty(ent.DeleteTarget, ent.Title)
	if target != "" {
		matches := fuzzy.Filter(tasks, target, func(t models.Task) string { return t.Title }, fuzzy.DeleteThreshold)
		switch len(matches) {
		case 0:
			return fmt.Sprintf("לא מצאתי משימה שמתאימה ל'%s'.", target), nil
		case 1:
			sess.Set(models.DataKeyDeleteTargetID, strconv.FormatInt(matches[0].Item.ID, 10))
			m.advance(sess, models.StateTaskDeleteConfirm)
			return fmt.Sprintf("למחוק את '%s'? כן/לא", matches[0].Item.Title), nil
		default:
			tasks = tasks[:0]
			for _, c := range matches {
				tasks = append(tasks, c.Item)
			}
		}
	}
	if err := storeCandidates(sess, taskIDs(tasks)); err != nil {
		return "", err
	}
	m.advance(sess, models.StateTaskSelectingForDelete)
	return formatTaskList("איזו משימה למחוק?", tasks), nil
}

func (m *Machine) handleTaskSelectForDelete(ctx context.Context, sess *models.Session, text string) (string, error) {
	id, ok, present := pickCandidate(sess, text)
	if !present {
		return m.expired(sess), nil
	}
	if !ok {
		return m.unrecognized(sess, promptSelectNumber), nil
	}
	task, err := m.tasks.GetTask(id)
	if err == store.ErrNotFound {
		m.resetToMenu(sess)
		return "המשימה הזו כבר לא קיימת.\n\n" + MainMenuText, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading task: %w", err)
	}
	sess.Set(models.DataKeyDeleteTargetID, strconv.FormatInt(task.ID, 10))
	m.advance(sess, models.StateTaskDeleteConfirm)
	return fmt.Sprintf("למחוק את '%s'? כן/לא", task.Title), nil
}

func (m *Machine) handleTaskDeleteConfirm(ctx context.Context, sess *models.Session, text string) (string, error) {
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
		if err := m.tasks.DeleteTask(id); err != nil && err != store.ErrNotFound {
			return "", fmt.Errorf("deleting task: %w", err)
		}
		m.react(ctx, sess.UserID, DeleteReaction)
		m.resetToMenu(sess)
		return "נמחקה.\n\n" + MainMenuText, nil
	case AnswerNo:
		m.resetToMenu(sess)
		return MsgFlowCancelled + "\n\n" + MainMenuText, nil
	default:
		return m.unrecognized(sess, promptDeleteConfirm), nil
	}
}

func taskIDs(tasks []models.Task) []int64 {
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
