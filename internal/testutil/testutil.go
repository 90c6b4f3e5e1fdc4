// Package testutil provides in-memory fakes shared by tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

// SentMessage records one outbound message captured by FakeMessenger.
type SentMessage struct {
	To   string
	Body string
}

// Reaction records one emoji reaction captured by FakeMessenger.
type Reaction struct {
	UserID string
	Emoji  string
}

// FakeMessenger captures outbound traffic instead of sending it.
type FakeMessenger struct {
	mu        sync.Mutex
	Sent      []SentMessage
	Reactions []Reaction
	SendErr   error
	nextID    int
}

func (f *FakeMessenger) SendMessage(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.nextID++
	f.Sent = append(f.Sent, SentMessage{To: to, Body: body})
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *FakeMessenger) ReactToLastMessage(ctx context.Context, userID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions = append(f.Reactions, Reaction{UserID: userID, Emoji: emoji})
	return nil
}

// LastBody returns the most recently sent message body, or "".
func (f *FakeMessenger) LastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return ""
	}
	return f.Sent[len(f.Sent)-1].Body
}

// SkipWindow records one suppression window captured by FakeScheduler.
type SkipWindow struct {
	ReminderID int64
	Until      time.Time
}

// FakeScheduler records schedule/skip/cancel calls.
type FakeScheduler struct {
	mu        sync.Mutex
	Scheduled []models.Reminder
	Cancelled []int64
	Skips     []SkipWindow
}

func (f *FakeScheduler) Schedule(rem models.Reminder, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scheduled = append(f.Scheduled, rem)
	return nil
}

func (f *FakeScheduler) SkipUntil(reminderID int64, until time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Skips = append(f.Skips, SkipWindow{ReminderID: reminderID, Until: until})
}

func (f *FakeScheduler) Cancel(reminderID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cancelled = append(f.Cancelled, reminderID)
}

// ScriptedIntentResolver replays queued resolutions in order. When the queue
// is empty it answers with an unknown intent.
type ScriptedIntentResolver struct {
	mu       sync.Mutex
	Queue    []*models.ResolvedIntent
	Err      error
	Notes    []string
	Guidance bool
}

func (s *ScriptedIntentResolver) Resolve(ctx context.Context, userID, rawText string, history []models.HistoryMessage) (*models.ResolvedIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Queue) == 0 {
		return &models.ResolvedIntent{Intent: models.IntentUnknown, Clarification: "?"}, nil
	}
	next := s.Queue[0]
	s.Queue = s.Queue[1:]
	return next, nil
}

func (s *ScriptedIntentResolver) NoteRecentEntity(userID, description string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notes = append(s.Notes, description)
}

func (s *ScriptedIntentResolver) NeedsGuidance(userID string) bool {
	return s.Guidance
}
