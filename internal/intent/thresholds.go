package intent

import "github.com/dorshemer/yoman/internal/models"

// Acceptance thresholds are intent-class-dependent rather than global:
// lower for read-only intents where an error is cheap to recover from,
// higher for destructive intents where it is expensive.
const (
	readOnlyThreshold    = 0.50
	defaultThreshold     = 0.60
	destructiveThreshold = 0.75
	// keywordReminderThreshold applies only to reminder creation when the
	// keyword pre-filter fired: explicit user language outweighs classifier
	// calibration. This asymmetry is deliberate and applies to reminders
	// only.
	keywordReminderThreshold = 0.40
)

// thresholdFor returns the acceptance threshold for an intent, accounting
// for an explicit reminder keyword hit.
func thresholdFor(intent models.Intent, reminderKeyword bool) float64 {
	if intent == models.IntentCreateReminder && reminderKeyword {
		return keywordReminderThreshold
	}
	switch {
	case intent.IsDestructive():
		return destructiveThreshold
	case intent.IsReadOnly():
		return readOnlyThreshold
	default:
		return defaultThreshold
	}
}
