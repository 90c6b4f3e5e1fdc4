// Package intent implements the intent resolution pipeline.
//
// The pipeline wraps the external AI classifier with deterministic pre- and
// post-filters: context injection, a keyword pre-filter, a forced-intent
// override, adaptive per-intent confidence thresholding, and a fallback
// disambiguation layer for keyword/classifier disagreements. It is stateless
// aside from its injected collaborators and performs no entity mutations of
// its own.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dorshemer/yoman/internal/genai"
	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/store"
)

// Clarification questions surfaced instead of acting on a weak resolution.
const (
	// ReminderClarification is the targeted question asked when a reminder
	// keyword is present but the classifier disagreed.
	ReminderClarification = "לא הייתי בטוח - התכוונת שאקבע תזכורת?"
	// GenericClarification asks the user to rephrase when nothing stronger
	// is available.
	GenericClarification = "לא הצלחתי להבין למה התכוונת. אפשר לנסח מחדש, או לכתוב 'תפריט' לרשימת הפעולות."
)

// Counter and scratch key prefixes. Proficiency counters roll over a long
// window; recent-entity scratch entries are one-shot with a short TTL.
const (
	successCounterPrefix = "intent:ok:"
	failureCounterPrefix = "intent:fail:"
	recentEntityPrefix   = "intent:recent:"

	proficiencyTTL = 7 * 24 * time.Hour
	recentEntityTTL = store.DefaultScratchTTL
)

// Pipeline resolves raw message text into a ResolvedIntent.
type Pipeline struct {
	classifier genai.ClientInterface
	counters   store.CounterStore
	mismatches store.MismatchStore
	timezone   string
}

// Opts holds configuration options for the Pipeline.
type Opts struct {
	Timezone string
}

// Option defines a configuration option for the Pipeline.
type Option func(*Opts)

// WithTimezone sets the IANA timezone name passed to the classifier.
func WithTimezone(tz string) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// NewPipeline creates a Pipeline with its collaborators.
func NewPipeline(classifier genai.ClientInterface, counters store.CounterStore, mismatches store.MismatchStore, opts ...Option) *Pipeline {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("intent.NewPipeline: creating pipeline", "hasClassifier", classifier != nil, "timezone", cfg.Timezone)
	return &Pipeline{
		classifier: classifier,
		counters:   counters,
		mismatches: mismatches,
		timezone:   cfg.Timezone,
	}
}

// NoteRecentEntity records a just-created or just-referenced entity for
// one-shot context injection on the user's next message. The entity's
// date/time is included alongside its description: without that anchor,
// relative-offset phrases like "תזכיר לי יום לפני" cannot be resolved by
// the classifier.
func (p *Pipeline) NoteRecentEntity(userID, description string, at time.Time) {
	payload := description
	if !at.IsZero() {
		payload = fmt.Sprintf("%s (%s)", description, at.Format("02/01/2006 15:04"))
	}
	if err := p.counters.SetScratch(recentEntityPrefix+userID, payload, recentEntityTTL); err != nil {
		slog.Warn("intent.NoteRecentEntity: failed to store scratch context", "error", err, "userID", userID)
	}
}

// Resolve runs the full pipeline for one inbound message.
func (p *Pipeline) Resolve(ctx context.Context, userID, rawText string, history []models.HistoryMessage) (*models.ResolvedIntent, error) {
	slog.Debug("Pipeline.Resolve: resolving", "userID", userID, "textLength", len(rawText))

	// Stage 1: context injection. A one-shot scratch entry describing a
	// recently referenced entity is appended to the text before
	// classification, then consumed.
	enhanced := rawText
	if recent, ok, err := p.counters.GetScratch(recentEntityPrefix + userID); err != nil {
		slog.Warn("Pipeline.Resolve: scratch read failed", "error", err, "userID", userID)
	} else if ok {
		enhanced = fmt.Sprintf("%s\nבהקשר של: %s", rawText, recent)
		if err := p.counters.DeleteScratch(recentEntityPrefix + userID); err != nil {
			slog.Warn("Pipeline.Resolve: scratch delete failed", "error", err, "userID", userID)
		}
		slog.Debug("Pipeline.Resolve: injected recent-entity context", "userID", userID)
	}

	// Stage 2: deterministic keyword pre-filter over the raw text.
	keywordHit := HasReminderKeyword(rawText)

	// Stage 3: external classification of the context-enhanced text.
	verdict, err := p.classifier.Classify(ctx, genai.ClassifyRequest{
		UserID:   userID,
		Text:     enhanced,
		Timezone: p.timezone,
		History:  history,
	})
	if err != nil {
		p.trackFailure(userID)
		return nil, fmt.Errorf("intent resolution failed: %w", err)
	}

	resolved := &models.ResolvedIntent{
		Intent:        verdict.Intent,
		Confidence:    verdict.Confidence,
		Entities:      verdict.Entities,
		Clarification: verdict.Clarification,
	}

	// Stage 4: forced-intent override. Explicit lexical evidence outweighs
	// classifier uncertainty, but only when the classifier either agreed or
	// gave up entirely.
	forced := keywordHit && (verdict.Intent == models.IntentUnknown || verdict.Intent == models.IntentCreateReminder)
	if forced {
		if verdict.Intent == models.IntentUnknown {
			slog.Info("Pipeline.Resolve: keyword override forced reminder intent",
				"userID", userID, "classifierIntent", verdict.Intent, "confidence", verdict.Confidence)
		}
		resolved.Intent = models.IntentCreateReminder
		resolved.Clarification = ""
	}

	// Stage 5: adaptive confidence thresholding. A forced reminder intent
	// is accepted outright: the lowered reminder threshold already encodes
	// that explicit keywords beat classifier calibration, and the override
	// is the extreme of the same product choice.
	threshold := thresholdFor(resolved.Intent, keywordHit)
	accepted := resolved.Intent != models.IntentUnknown &&
		(forced || resolved.Confidence >= threshold)

	if !accepted {
		// Stage 6: fallback disambiguation. A reminder keyword anywhere in
		// the raw text turns a generic failure into a targeted yes/no
		// question, and the disagreement is recorded for offline review.
		if keywordHit && resolved.Intent != models.IntentCreateReminder {
			resolved.Clarification = ReminderClarification
			p.recordMismatch(userID, rawText, verdict)
		} else if resolved.Clarification == "" {
			resolved.Clarification = GenericClarification
		}
		resolved.Warnings = append(resolved.Warnings,
			fmt.Sprintf("confidence %.2f below threshold %.2f for %s", resolved.Confidence, threshold, resolved.Intent))
		p.trackFailure(userID)
		slog.Debug("Pipeline.Resolve: below threshold", "userID", userID, "intent", resolved.Intent,
			"confidence", resolved.Confidence, "threshold", threshold)
		return resolved, nil
	}

	// Stage 7: rolling proficiency tracking for graceful guidance.
	p.trackSuccess(userID)
	slog.Debug("Pipeline.Resolve: resolved", "userID", userID, "intent", resolved.Intent, "confidence", resolved.Confidence)
	return resolved, nil
}

// NeedsGuidance reports whether the user has been failing to resolve intents
// more often than succeeding lately, in which case callers surface menus and
// tips rather than relying on free text.
func (p *Pipeline) NeedsGuidance(userID string) bool {
	ok, err := p.counters.GetCounter(successCounterPrefix + userID)
	if err != nil {
		return false
	}
	fail, err := p.counters.GetCounter(failureCounterPrefix + userID)
	if err != nil {
		return false
	}
	return fail > ok
}

// recordMismatch logs a keyword/classifier disagreement for offline review.
// Best-effort: a storage failure never blocks the user's turn.
func (p *Pipeline) recordMismatch(userID, rawText string, verdict *genai.Classification) {
	err := p.mismatches.RecordMismatch(store.Mismatch{
		UserID:     userID,
		RawText:    rawText,
		Intent:     string(verdict.Intent),
		Confidence: verdict.Confidence,
	})
	if err != nil {
		slog.Warn("Pipeline.recordMismatch: failed to record", "error", err, "userID", userID)
	}
}

func (p *Pipeline) trackSuccess(userID string) {
	if _, err := p.counters.IncrCounter(successCounterPrefix+userID, proficiencyTTL); err != nil {
		slog.Warn("Pipeline.trackSuccess: counter failed", "error", err, "userID", userID)
	}
}

func (p *Pipeline) trackFailure(userID string) {
	if _, err := p.counters.IncrCounter(failureCounterPrefix+userID, proficiencyTTL); err != nil {
		slog.Warn("Pipeline.trackFailure: counter failed", "error", err, "userID", userID)
	}
}
