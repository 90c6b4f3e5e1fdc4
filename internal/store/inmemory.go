// Package store provides storage backends for Yoman.
//
// This file implements an in-memory store used by tests and ephemeral
// deployments without a database.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/dorshemer/yoman/internal/models"
)

type expiringCounter struct {
	count     int
	expiresAt time.Time
}

type expiringValue struct {
	value     string
	expiresAt time.Time
}

type expiringSession struct {
	session   models.Session
	expiresAt time.Time
}

// InMemoryStore implements Store entirely in process memory.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]expiringSession
	events     map[int64]models.Event
	reminders  map[int64]models.Reminder
	tasks      map[int64]models.Task
	counters   map[string]expiringCounter
	scratch    map[string]expiringValue
	mismatches []Mismatch
	nextID     int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:  make(map[string]expiringSession),
		events:    make(map[int64]models.Event),
		reminders: make(map[int64]models.Reminder),
		tasks:     make(map[int64]models.Task),
		counters:  make(map[string]expiringCounter),
		scratch:   make(map[string]expiringValue),
		nextID:    1,
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// GetSession retrieves a conversation session, honoring its TTL.
func (s *InMemoryStore) GetSession(userID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es, ok := s.sessions[userID]
	if !ok || time.Now().After(es.expiresAt) {
		return nil, nil
	}
	sess := es.session
	return &sess, nil
}

// SaveSession stores or updates a conversation session with the given TTL.
func (s *InMemoryStore) SaveSession(session models.Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = time.Now()
	s.sessions[session.UserID] = expiringSession{session: session, expiresAt: time.Now().Add(ttl)}
	return nil
}

// DeleteSession removes a conversation session.
func (s *InMemoryStore) DeleteSession(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// AddEvent inserts a new event and sets its ID.
func (s *InMemoryStore) AddEvent(event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	event.ID = s.allocID()
	event.CreatedAt = now
	event.UpdatedAt = now
	s.events[event.ID] = *event
	return nil
}

// GetEvent retrieves a single event by ID.
func (s *InMemoryStore) GetEvent(id int64) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ev, nil
}

// UpdateEvent overwrites an existing event.
func (s *InMemoryStore) UpdateEvent(event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return ErrNotFound
	}
	event.UpdatedAt = time.Now()
	s.events[event.ID] = event
	return nil
}

// DeleteEvent removes an event by ID.
func (s *InMemoryStore) DeleteEvent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *InMemoryStore) eventsForUser(userID string) []models.Event {
	var out []models.Event
	for _, ev := range s.events {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// GetEventsByDate returns a user's events within [dayStart, dayEnd).
func (s *InMemoryStore) GetEventsByDate(userID string, dayStart, dayEnd time.Time) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, ev := range s.eventsForUser(userID) {
		if !ev.StartTime.Before(dayStart) && ev.StartTime.Before(dayEnd) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetUpcomingEvents returns up to limit events starting at or after from.
func (s *InMemoryStore) GetUpcomingEvents(userID string, from time.Time, limit int) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, ev := range s.eventsForUser(userID) {
		if !ev.StartTime.Before(from) {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// GetAllEvents returns a page of a user's events ordered by start time.
func (s *InMemoryStore) GetAllEvents(userID string, limit, offset int, descending bool) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.eventsForUser(userID)
	if descending {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetOverlappingEvents returns events whose time window intersects [start, end).
func (s *InMemoryStore) GetOverlappingEvents(userID string, start, end time.Time) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, ev := range s.eventsForUser(userID) {
		if ev.Overlaps(start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// AddReminder inserts a new reminder and sets its ID.
func (s *InMemoryStore) AddReminder(reminder *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	reminder.ID = s.allocID()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now
	s.reminders[reminder.ID] = *reminder
	return nil
}

// GetReminder retrieves a single reminder by ID.
func (s *InMemoryStore) GetReminder(id int64) (*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// GetActiveReminders returns a user's active reminders ordered by due time.
func (s *InMemoryStore) GetActiveReminders(userID string) ([]models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.UserID == userID && r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// ListAllActiveReminders returns active reminders across all users, used to
// re-arm the scheduler on startup.
func (s *InMemoryStore) ListAllActiveReminders() ([]models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// UpdateReminder overwrites an existing reminder.
func (s *InMemoryStore) UpdateReminder(reminder models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[reminder.ID]; !ok {
		return ErrNotFound
	}
	reminder.UpdatedAt = time.Now()
	s.reminders[reminder.ID] = reminder
	return nil
}

// DeleteReminder removes a reminder by ID.
func (s *InMemoryStore) DeleteReminder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

// AddTask inserts a new task and sets its ID.
func (s *InMemoryStore) AddTask(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	task.ID = s.allocID()
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = *task
	return nil
}

// GetTask retrieves a single task by ID.
func (s *InMemoryStore) GetTask(id int64) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// GetOpenTasks returns a user's unfinished tasks.
func (s *InMemoryStore) GetOpenTasks(userID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Task
	for _, t := range s.tasks {
		if t.UserID == userID && !t.Done {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateTask overwrites an existing task.
func (s *InMemoryStore) UpdateTask(task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = task
	return nil
}

// DeleteTask removes a task by ID.
func (s *InMemoryStore) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// IncrCounter atomically increments a TTL-bounded counter, restarting an
// expired counter at 1.
func (s *InMemoryStore) IncrCounter(key string, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = DefaultCounterTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = expiringCounter{count: 0}
	}
	c.count++
	c.expiresAt = now.Add(ttl)
	s.counters[key] = c
	return c.count, nil
}

// GetCounter returns a counter's current value, or zero if absent/expired.
func (s *InMemoryStore) GetCounter(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[key]
	if !ok || time.Now().After(c.expiresAt) {
		return 0, nil
	}
	return c.count, nil
}

// ResetCounter removes a counter.
func (s *InMemoryStore) ResetCounter(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

// SetScratch stores a one-shot scratch entry with the given TTL.
func (s *InMemoryStore) SetScratch(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultScratchTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scratch[key] = expiringValue{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetScratch returns a scratch entry if present and unexpired.
func (s *InMemoryStore) GetScratch(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.scratch[key]
	if !ok || time.Now().After(v.expiresAt) {
		return "", false, nil
	}
	return v.value, true, nil
}

// DeleteScratch removes a scratch entry.
func (s *InMemoryStore) DeleteScratch(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scratch, key)
	return nil
}

// RecordMismatch appends a classifier mismatch record for offline review.
func (s *InMemoryStore) RecordMismatch(m Mismatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.allocID()
	m.CreatedAt = time.Now()
	s.mismatches = append(s.mismatches, m)
	return nil
}

// ListMismatches returns the most recent mismatch records.
func (s *InMemoryStore) ListMismatches(limit int) ([]Mismatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mismatch, len(s.mismatches))
	copy(out, s.mismatches)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
