package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dorshemer/yoman/internal/genai"
	"github.com/dorshemer/yoman/internal/models"
	"github.com/dorshemer/yoman/internal/store"
)

// scriptedClassifier returns a canned verdict and records what it was asked.
type scriptedClassifier struct {
	verdict *genai.Classification
	err     error
	gotText string
}

func (s *scriptedClassifier) Classify(ctx context.Context, req genai.ClassifyRequest) (*genai.Classification, error) {
	s.gotText = req.Text
	if s.err != nil {
		return nil, s.err
	}
	return s.verdict, nil
}

func newTestPipeline(c genai.ClientInterface) (*Pipeline, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	return NewPipeline(c, st, st, WithTimezone("Asia/Jerusalem")), st
}

func TestResolveAcceptsConfidentIntent(t *testing.T) {
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentCreateEvent,
		Confidence: 0.9,
		Entities:   models.IntentEntities{Title: "פגישה עם דנה", DateText: "מחר"},
	}}
	p, _ := newTestPipeline(c)

	got, err := p.Resolve(context.Background(), "u1", "קבע פגישה עם דנה מחר", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != models.IntentCreateEvent {
		t.Errorf("intent: got %q", got.Intent)
	}
	if !got.Actionable() {
		t.Errorf("expected actionable resolution, got clarification %q", got.Clarification)
	}
	if got.Entities.Title != "פגישה עם דנה" {
		t.Errorf("entities not carried: %+v", got.Entities)
	}
}

func TestResolveKeywordForcesReminderOverUnknown(t *testing.T) {
	// The classifier gives up at confidence 0.3 but the message carries an
	// inflected reminder verb: the intent is forced and acted on.
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentUnknown,
		Confidence: 0.3,
	}}
	p, _ := newTestPipeline(c)

	got, err := p.Resolve(context.Background(), "u1", "תזכיר לי להוציא את הזבל", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != models.IntentCreateReminder {
		t.Errorf("expected forced reminder intent, got %q", got.Intent)
	}
	if !got.Actionable() {
		t.Errorf("forced intent must be actionable, got clarification %q", got.Clarification)
	}
}

func TestResolveKeywordMismatchAsksTargetedClarification(t *testing.T) {
	// Reminder keyword present, classifier weakly claims a different intent:
	// no generic "didn't understand", a targeted question plus an offline
	// review record.
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentCreateEvent,
		Confidence: 0.45,
	}}
	p, st := newTestPipeline(c)

	got, err := p.Resolve(context.Background(), "u1", "אל תשכח להזכיר לי על הפגישה", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Clarification != ReminderClarification {
		t.Errorf("expected targeted reminder clarification, got %q", got.Clarification)
	}
	if got.Actionable() {
		t.Error("below-threshold resolution must not be actionable")
	}

	mismatches, err := st.ListMismatches(10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch record, got %d", len(mismatches))
	}
	if mismatches[0].Intent != string(models.IntentCreateEvent) || mismatches[0].Confidence != 0.45 {
		t.Errorf("mismatch record incomplete: %+v", mismatches[0])
	}
	if mismatches[0].RawText == "" {
		t.Error("mismatch record must carry the raw text")
	}
}

func TestResolveDestructiveThresholdHigher(t *testing.T) {
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentDeleteEvent,
		Confidence: 0.7,
	}}
	p, _ := newTestPipeline(c)

	got, err := p.Resolve(context.Background(), "u1", "תמחק את הפגישה", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Actionable() {
		t.Error("0.70 must not clear the destructive threshold")
	}

	// The same confidence clears the read-only threshold.
	c.verdict = &genai.Classification{Intent: models.IntentListEvents, Confidence: 0.7}
	got, err = p.Resolve(context.Background(), "u1", "מה יש לי השבוע", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Actionable() {
		t.Errorf("0.70 should clear the read-only threshold, got clarification %q", got.Clarification)
	}
}

func TestResolveLowConfidenceGenericClarification(t *testing.T) {
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentCreateTask,
		Confidence: 0.2,
	}}
	p, _ := newTestPipeline(c)

	got, err := p.Resolve(context.Background(), "u1", "משהו לא ברור", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Clarification != GenericClarification {
		t.Errorf("expected generic clarification, got %q", got.Clarification)
	}
	if len(got.Warnings) == 0 {
		t.Error("expected a threshold warning")
	}
}

func TestResolveClassifierFailure(t *testing.T) {
	c := &scriptedClassifier{err: errors.New("timeout")}
	p, _ := newTestPipeline(c)
	if _, err := p.Resolve(context.Background(), "u1", "קבע פגישה", nil); err == nil {
		t.Error("classifier failure must surface as a resolution failure")
	}
}

func TestResolveContextInjectionIsOneShot(t *testing.T) {
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentCreateReminder,
		Confidence: 0.9,
	}}
	p, _ := newTestPipeline(c)

	at := time.Date(2025, 5, 20, 16, 0, 0, 0, time.UTC)
	p.NoteRecentEntity("u1", "פגישה עם דנה", at)

	_, err := p.Resolve(context.Background(), "u1", "תזכיר לי יום לפני", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.gotText, "פגישה עם דנה") {
		t.Errorf("expected injected entity description, got %q", c.gotText)
	}
	// The date/time anchor must ride along or relative offsets break.
	if !strings.Contains(c.gotText, "20/05/2025 16:00") {
		t.Errorf("expected injected date anchor, got %q", c.gotText)
	}

	// Second turn: the scratch entry was consumed.
	_, err = p.Resolve(context.Background(), "u1", "תזכיר לי שוב", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(c.gotText, "פגישה עם דנה") {
		t.Error("context injection must be one-shot")
	}
}

func TestNeedsGuidance(t *testing.T) {
	c := &scriptedClassifier{verdict: &genai.Classification{
		Intent:     models.IntentUnknown,
		Confidence: 0.1,
	}}
	p, _ := newTestPipeline(c)

	if p.NeedsGuidance("u1") {
		t.Error("fresh user should not need guidance")
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Resolve(context.Background(), "u1", "בלה בלה", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !p.NeedsGuidance("u1") {
		t.Error("repeated failures should flip guidance on")
	}
}
