// Package intent implements the intent resolution pipeline.
package intent

import "regexp"

// reminderKeywordPattern matches unambiguous lexical markers of a reminder
// request anywhere in a message, covering the common inflected Hebrew verb
// forms (תזכיר, תזכירי, להזכיר, מזכיר) and the noun forms (תזכורת,
// תזכורות), plus the English verb. The external classifier is probabilistic
// and can miss these obvious cases the rule catches for free.
var reminderKeywordPattern = regexp.MustCompile(`תזכיר|תזכירי|תזכרו|להזכיר|מזכיר|מזכירה|תזכורת|תזכורות|remind`)

// HasReminderKeyword reports whether text carries an explicit reminder marker.
func HasReminderKeyword(text string) bool {
	return reminderKeywordPattern.MatchString(text)
}
