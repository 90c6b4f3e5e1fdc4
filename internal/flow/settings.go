package flow

import (
	"context"
	"strings"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

// Settings keys live in session context but survive flow resets.
const (
	dataKeySettingsTimezone models.DataKey = "settings:timezone"
	dataKeySettingsLanguage models.DataKey = "settings:language"
)

func (m *Machine) handleSettingsMenu(ctx context.Context, sess *models.Session, text string) (string, error) {
	switch strings.TrimSpace(text) {
	case "1", "אזור זמן":
		m.advance(sess, models.StateSettingsAwaitingTimezone)
		return promptSettingsTimezone, nil
	case "2", "שפה":
		m.advance(sess, models.StateSettingsAwaitingLanguage)
		return promptSettingsLanguage, nil
	default:
		return m.unrecognized(sess, promptSettingsMenu), nil
	}
}

func (m *Machine) handleSettingsTimezone(ctx context.Context, sess *models.Session, text string) (string, error) {
	tz := strings.TrimSpace(text)
	if _, err := time.LoadLocation(tz); err != nil {
		return m.unrecognized(sess, "לא מכיר את אזור הזמן הזה. "+promptSettingsTimezone), nil
	}
	sess.Set(dataKeySettingsTimezone, tz)
	m.resetToMenu(sess)
	return "אזור הזמן עודכן ל-" + tz + ".\n\n" + MainMenuText, nil
}

func (m *Machine) handleSettingsLanguage(ctx context.Context, sess *models.Session, text string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "עברית":
		sess.Set(dataKeySettingsLanguage, "he")
	case "english", "אנגלית":
		sess.Set(dataKeySettingsLanguage, "en")
	default:
		return m.unrecognized(sess, promptSettingsLanguage), nil
	}
	m.resetToMenu(sess)
	return "השפה עודכנה.\n\n" + MainMenuText, nil
}
