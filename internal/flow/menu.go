package flow

import (
	"context"
	"strings"

	"github.com/dorshemer/yoman/internal/intent"
	"github.com/dorshemer/yoman/internal/models"
)

const helpText = `אני עוזר לנהל יומן, תזכורות ומשימות.
אפשר לכתוב בחופשיות, למשל:
- קבע פגישה עם דנה מחר ב17:00
- תזכיר לי להתקשר לרופא ביום חמישי
- מה יש לי השבוע?
או לכתוב 'תפריט' לרשימת הפעולות.`

// handleMainMenu routes a message arriving at the main menu: numeric menu
// choices are handled directly, anything else goes through the intent
// pipeline.
func (m *Machine) handleMainMenu(ctx context.Context, sess *models.Session, text string) (string, error) {
	switch strings.TrimSpace(text) {
	case "1":
		return m.startEventCreation(ctx, sess, models.IntentEntities{})
	case "2":
		return m.listEvents(ctx, sess, models.IntentEntities{})
	case "3":
		return m.startReminderCreation(ctx, sess, models.IntentEntities{})
	case "4":
		return m.listReminders(ctx, sess)
	case "5":
		return m.startTaskCreation(ctx, sess, models.IntentEntities{})
	case "6":
		return m.listTasks(ctx, sess)
	case "7":
		m.advance(sess, models.StateSearchAwaitingQuery)
		return promptSearchQuery, nil
	case "8":
		m.advance(sess, models.StateSettingsMenu)
		return promptSettingsMenu, nil
	}

	// A bare "yes" right after the pipeline asked its targeted reminder
	// clarification means the user confirmed the reminder reading.
	if ParseYesNo(text) == AnswerYes && strings.Contains(lastAssistantMessage(sess), intent.ReminderClarification) {
		return m.startReminderCreation(ctx, sess, models.IntentEntities{})
	}

	resolved, err := m.classify(ctx, sess, text)
	if err != nil {
		return "", err
	}
	if !resolved.Actionable() {
		reply := resolved.Clarification
		if m.resolver.NeedsGuidance(sess.UserID) {
			reply += "\n\n" + MainMenuText
		}
		return reply, nil
	}

	switch resolved.Intent {
	case models.IntentCreateEvent:
		return m.startEventCreation(ctx, sess, resolved.Entities)
	case models.IntentCreateReminder:
		return m.startReminderCreation(ctx, sess, resolved.Entities)
	case models.IntentCreateTask:
		return m.startTaskCreation(ctx, sess, resolved.Entities)
	case models.IntentListEvents:
		return m.listEvents(ctx, sess, resolved.Entities)
	case models.IntentListReminders:
		return m.listReminders(ctx, sess)
	case models.IntentListTasks:
		return m.listTasks(ctx, sess)
	case models.IntentSearchEvent:
		query := firstNonEmpty(resolved.Entities.SearchQuery, resolved.Entities.Title)
		if query == "" {
			m.advance(sess, models.StateEventSearchQuery)
			return promptSearchQuery, nil
		}
		return m.searchEvents(ctx, sess, query)
	case models.IntentUpdateEvent:
		return m.startEventEdit(ctx, sess, resolved.Entities)
	case models.IntentUpdateReminder:
		return m.startReminderEdit(ctx, sess, resolved.Entities)
	case models.IntentDeleteEvent:
		return m.startEventDelete(ctx, sess, resolved.Entities)
	case models.IntentDeleteReminder:
		return m.startReminderDelete(ctx, sess, resolved.Entities)
	case models.IntentDeleteTask:
		return m.startTaskDelete(ctx, sess, resolved.Entities)
	case models.IntentCompleteTask:
		return m.startTaskComplete(ctx, sess)
	case models.IntentShowMenu:
		return MainMenuText, nil
	case models.IntentHelp:
		return helpText, nil
	default:
		return intent.GenericClarification, nil
	}
}

func lastAssistantMessage(sess *models.Session) string {
	for i := len(sess.History) - 1; i >= 0; i-- {
		if sess.History[i].Role == "assistant" {
			return sess.History[i].Content
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
