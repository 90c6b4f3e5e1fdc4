package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

// User-facing texts. Failure messages always say what to type next.
const (
	MainMenuText = `מה תרצו לעשות?
1. קביעת אירוע
2. הצגת אירועים
3. יצירת תזכורת
4. הצגת תזכורות
5. יצירת משימה
6. הצגת משימות
7. חיפוש אירוע
8. הגדרות
אפשר גם פשוט לכתוב בחופשיות, למשל: קבע פגישה עם דנה מחר ב17:00`

	MsgFlowCancelled    = "בוטל."
	MsgSessionExpired   = "נראה שהשיחה הקודמת פגה. נתחיל מההתחלה."
	MsgTransientFailure = "משהו השתבש אצלי, נסו שוב בעוד רגע. אפשר לכתוב 'תפריט' כדי להתחיל מחדש."
	MsgEscalatedToMenu  = "לא הסתדרנו עם השלב הזה, נחזור לתפריט הראשי."

	promptEventName         = "איך לקרוא לאירוע?"
	promptEventDate         = "לאיזה תאריך? אפשר למשל: מחר, יום שלישי, 12/05"
	promptEventTime         = "באיזו שעה? אפשר למשל: 17:30, 5 בערב"
	promptEventLocation     = "איפה האירוע? אפשר לכתוב 'דלג'"
	promptEventParticipants = "מי משתתף? שמות מופרדים בפסיק, או 'דלג'"
	promptEditField         = "מה לערוך?\n1. שם\n2. תאריך\n3. שעה\n4. מיקום\n5. משתתפים"
	promptEditNewValue      = "מה הערך החדש?"
	promptDeleteConfirm     = "למחוק? כן/לא"
	promptCommentAction     = "מה לעשות עם ההערות?\n1. הוספת הערה\n2. עריכת הערה\n3. מחיקת הערה"
	promptCommentText       = "מה תוכן ההערה?"
	promptSelectComment     = "איזו הערה? כתבו מספר"
	promptSelectNumber      = "כתבו מספר מהרשימה"
	promptSearchQuery       = "מה לחפש?"

	promptReminderTitle      = "על מה להזכיר?"
	promptReminderDateTime   = "מתי? אפשר למשל: מחר ב10:00, יום חמישי 17:30"
	promptReminderRecurrence = "באיזו תדירות?\n1. חד פעמי\n2. כל יום\n3. כל שבוע\n4. כל חודש"
	promptReminderLeadTime   = "כמה דקות לפני להזכיר? כתבו מספר, או 'דלג'"
	promptReminderNewTime    = "לאיזה מועד להעביר את התזכורת?"
	promptReminderScope      = "התזכורת חוזרת. על מה להחיל?\n1. רק המופע הבא\n2. כל המופעים"

	promptTaskTitle       = "מה המשימה?"
	promptTaskDescription = "פרטים נוספים? אפשר לכתוב 'דלג'"
	promptTaskPriority    = "מה הדחיפות?\n1. נמוכה\n2. בינונית\n3. גבוהה"
	promptTaskDueDate     = "עד מתי? תאריך, או 'דלג'"

	promptSettingsMenu     = "הגדרות:\n1. אזור זמן\n2. שפה"
	promptSettingsTimezone = "מה אזור הזמן? למשל: Asia/Jerusalem"
	promptSettingsLanguage = "באיזו שפה לענות? עברית/English"
)

const skipWord = "דלג"

func isSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == skipWord || t == "skip" || t == "-"
}

// promptFor re-renders the current step's options, used when the user asks
// for help mid-flow.
func (m *Machine) promptFor(sess *models.Session) string {
	switch sess.State {
	case models.StateEventAwaitingName:
		return promptEventName
	case models.StateEventAwaitingDate, models.StateTaskAwaitingDueDate:
		return promptEventDate
	case models.StateEventAwaitingTime:
		return promptEventTime
	case models.StateEventAwaitingLocation:
		return promptEventLocation
	case models.StateEventAwaitingParticipants:
		return promptEventParticipants
	case models.StateEventConflictConfirm:
		return "יש חפיפה ביומן. לקבוע בכל זאת? כן/לא"
	case models.StateEventEditingField:
		return promptEditField
	case models.StateEventEditNewValue:
		return promptEditNewValue
	case models.StateEventDeleteConfirm, models.StateTaskDeleteConfirm, models.StateReminderDeleteConfirm:
		return promptDeleteConfirm
	case models.StateEventCommentAction:
		return promptCommentAction
	case models.StateEventAwaitingCommentText:
		return promptCommentText
	case models.StateEventSelectingComment:
		return promptSelectComment
	case models.StateEventSearchQuery, models.StateSearchAwaitingQuery:
		return promptSearchQuery
	case models.StateReminderAwaitingTitle:
		return promptReminderTitle
	case models.StateReminderAwaitingDateTime:
		return promptReminderDateTime
	case models.StateReminderAwaitingRecurrence:
		return promptReminderRecurrence
	case models.StateReminderAwaitingLeadTime:
		return promptReminderLeadTime
	case models.StateReminderAwaitingNewTime:
		return promptReminderNewTime
	case models.StateReminderUpdateScope, models.StateReminderDeleteScope:
		return promptReminderScope
	case models.StateTaskAwaitingTitle:
		return promptTaskTitle
	case models.StateTaskAwaitingDescription:
		return promptTaskDescription
	case models.StateTaskAwaitingPriority:
		return promptTaskPriority
	case models.StateTaskConfirm:
		return "לשמור את המשימה? כן/לא"
	case models.StateReminderConfirm:
		return "לקבוע את התזכורת? כן/לא"
	case models.StateSettingsMenu:
		return promptSettingsMenu
	case models.StateSettingsAwaitingTimezone:
		return promptSettingsTimezone
	case models.StateSettingsAwaitingLanguage:
		return promptSettingsLanguage
	case models.StateEventSelectingForView, models.StateEventSelectingForEdit,
		models.StateEventSelectingForDelete, models.StateEventSelectingForComment,
		models.StateReminderSelectingForEdit, models.StateReminderSelectingForDelete,
		models.StateTaskSelectingForDone, models.StateTaskSelectingForDelete:
		return promptSelectNumber
	default:
		return MainMenuText
	}
}

// Display formatting. Relative-phrase provenance gets a friendlier rendering
// than calendar literals.

func formatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func formatTime(t time.Time) string {
	return t.Format("15:04")
}

func formatDateTime(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}

var hebrewWeekdays = map[time.Weekday]string{
	time.Sunday:    "ראשון",
	time.Monday:    "שני",
	time.Tuesday:   "שלישי",
	time.Wednesday: "רביעי",
	time.Thursday:  "חמישי",
	time.Friday:    "שישי",
	time.Saturday:  "שבת",
}

func formatEventLine(ev models.Event) string {
	line := fmt.Sprintf("%s - יום %s %s", ev.Title, hebrewWeekdays[ev.StartTime.Weekday()], formatDateTime(ev.StartTime))
	if ev.Location != "" {
		line += " (" + ev.Location + ")"
	}
	return line
}

func formatEventList(header string, events []models.Event) string {
	var b strings.Builder
	b.WriteString(header)
	for i, ev := range events {
		fmt.Fprintf(&b, "\n%d. %s", i+1, formatEventLine(ev))
	}
	return b.String()
}

func formatEventDetails(ev models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nיום %s %s", ev.Title, hebrewWeekdays[ev.StartTime.Weekday()], formatDateTime(ev.StartTime))
	if !ev.EndTime.IsZero() {
		fmt.Fprintf(&b, " עד %s", formatTime(ev.EndTime))
	}
	if ev.Location != "" {
		fmt.Fprintf(&b, "\nמיקום: %s", ev.Location)
	}
	if len(ev.Participants) > 0 {
		fmt.Fprintf(&b, "\nמשתתפים: %s", strings.Join(ev.Participants, ", "))
	}
	if len(ev.Comments) > 0 {
		b.WriteString("\nהערות:")
		for i, c := range ev.Comments {
			fmt.Fprintf(&b, "\n%d. %s", i+1, c.Body)
		}
	}
	return b.String()
}

func recurrenceLabel(r models.Recurrence) string {
	switch r {
	case models.RecurrenceDaily:
		return "כל יום"
	case models.RecurrenceWeekly:
		return "כל שבוע"
	case models.RecurrenceMonthly:
		return "כל חודש"
	default:
		return "חד פעמי"
	}
}

func formatReminderLine(rem models.Reminder) string {
	line := fmt.Sprintf("%s - %s", rem.Title, formatDateTime(rem.DueAt))
	if rem.IsRecurring() {
		line += " (" + recurrenceLabel(rem.Recurrence) + ")"
	}
	return line
}

func formatReminderList(header string, rems []models.Reminder) string {
	var b strings.Builder
	b.WriteString(header)
	for i, rem := range rems {
		fmt.Fprintf(&b, "\n%d. %s", i+1, formatReminderLine(rem))
	}
	return b.String()
}

func priorityLabel(p models.TaskPriority) string {
	switch p {
	case models.PriorityHigh:
		return "גבוהה"
	case models.PriorityMedium:
		return "בינונית"
	case models.PriorityLow:
		return "נמוכה"
	default:
		return ""
	}
}

func formatTaskLine(t models.Task) string {
	line := t.Title
	if lbl := priorityLabel(t.Priority); lbl != "" {
		line += " [" + lbl + "]"
	}
	if !t.DueAt.IsZero() {
		line += " עד " + formatDate(t.DueAt)
	}
	return line
}

func formatTaskList(header string, tasks []models.Task) string {
	var b strings.Builder
	b.WriteString(header)
	for i, t := range tasks {
		fmt.Fprintf(&b, "\n%d. %s", i+1, formatTaskLine(t))
	}
	return b.String()
}
