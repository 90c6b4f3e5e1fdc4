// Package store provides storage backends for Yoman.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/dorshemer/yoman/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on top of a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; the containing
// directory is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite database", "error", err)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("SQLiteStore migrations failed", "error", err)
		return nil, fmt.Errorf("failed to apply sqlite migrations: %w", err)
	}
	slog.Info("SQLiteStore initialized", "dsn", dsn)
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a conversation session, honoring its TTL.
func (s *SQLiteStore) GetSession(userID string) (*models.Session, error) {
	query := `SELECT user_id, state, context, history, created_at, updated_at, expires_at
			  FROM sessions WHERE user_id = ?`
	var (
		sess      models.Session
		state     string
		contextJS sql.NullString
		historyJS sql.NullString
		expiresAt time.Time
	)
	err := s.db.QueryRow(query, userID).Scan(&sess.UserID, &state, &contextJS, &historyJS, &sess.CreatedAt, &sess.UpdatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if time.Now().After(expiresAt) {
		slog.Debug("SQLiteStore GetSession expired", "userID", userID, "expiresAt", expiresAt)
		return nil, nil
	}
	sess.State = models.SessionState(state)
	if contextJS.Valid && contextJS.String != "" {
		if err := json.Unmarshal([]byte(contextJS.String), &sess.Context); err != nil {
			slog.Error("SQLiteStore GetSession context unmarshal failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to decode session context: %w", err)
		}
	}
	if historyJS.Valid && historyJS.String != "" {
		if err := json.Unmarshal([]byte(historyJS.String), &sess.History); err != nil {
			slog.Error("SQLiteStore GetSession history unmarshal failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to decode session history: %w", err)
		}
	}
	return &sess, nil
}

// SaveSession stores or updates a conversation session with the given TTL.
func (s *SQLiteStore) SaveSession(session models.Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	contextJS, err := json.Marshal(session.Context)
	if err != nil {
		slog.Error("SQLiteStore SaveSession context marshal failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to encode session context: %w", err)
	}
	historyJS, err := json.Marshal(session.History)
	if err != nil {
		slog.Error("SQLiteStore SaveSession history marshal failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to encode session history: %w", err)
	}
	query := `INSERT OR REPLACE INTO sessions (user_id, state, context, history, created_at, updated_at, expires_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, session.UserID, string(session.State), string(contextJS), string(historyJS),
		session.CreatedAt, time.Now(), time.Now().Add(ttl))
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", session.UserID, "state", session.State)
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", session.UserID, "state", session.State)
	return nil
}

// DeleteSession removes a conversation session.
func (s *SQLiteStore) DeleteSession(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AddEvent inserts a new event and sets its ID.
func (s *SQLiteStore) AddEvent(event *models.Event) error {
	participants, comments, err := encodeEventBlobs(event)
	if err != nil {
		return err
	}
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	res, err := s.db.Exec(`INSERT INTO events (user_id, title, start_time, end_time, location, participants, comments, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.UserID, event.Title, event.StartTime, nullableTime(event.EndTime), event.Location, participants, comments, now, now)
	if err != nil {
		slog.Error("SQLiteStore AddEvent failed", "error", err, "userID", event.UserID)
		return fmt.Errorf("failed to add event: %w", err)
	}
	event.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	slog.Debug("SQLiteStore AddEvent succeeded", "userID", event.UserID, "eventID", event.ID)
	return nil
}

const eventColumns = `id, user_id, title, start_time, end_time, location, participants, comments, created_at, updated_at`

// GetEvent retrieves a single event by ID.
func (s *SQLiteStore) GetEvent(id int64) (*models.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetEvent failed", "error", err, "eventID", id)
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// UpdateEvent overwrites an existing event.
func (s *SQLiteStore) UpdateEvent(event models.Event) error {
	participants, comments, err := encodeEventBlobs(&event)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE events SET title = ?, start_time = ?, end_time = ?, location = ?, participants = ?, comments = ?, updated_at = ?
			  WHERE id = ?`,
		event.Title, event.StartTime, nullableTime(event.EndTime), event.Location, participants, comments, time.Now(), event.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateEvent failed", "error", err, "eventID", event.ID)
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event by ID.
func (s *SQLiteStore) DeleteEvent(id int64) error {
	res, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteEvent failed", "error", err, "eventID", id)
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEventsByDate returns a user's events within [dayStart, dayEnd).
func (s *SQLiteStore) GetEventsByDate(userID string, dayStart, dayEnd time.Time) ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = ? AND start_time >= ? AND start_time < ? ORDER BY start_time`,
		userID, dayStart, dayEnd)
	if err != nil {
		slog.Error("SQLiteStore GetEventsByDate failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query events by date: %w", err)
	}
	return collectEvents(rows)
}

// GetUpcomingEvents returns up to limit events starting at or after from.
func (s *SQLiteStore) GetUpcomingEvents(userID string, from time.Time, limit int) ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = ? AND start_time >= ? ORDER BY start_time LIMIT ?`,
		userID, from, limit)
	if err != nil {
		slog.Error("SQLiteStore GetUpcomingEvents failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	return collectEvents(rows)
}

// GetAllEvents returns a page of a user's events ordered by start time.
func (s *SQLiteStore) GetAllEvents(userID string, limit, offset int, descending bool) ([]models.Event, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = ? ORDER BY start_time `+order+` LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		slog.Error("SQLiteStore GetAllEvents failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return collectEvents(rows)
}

// GetOverlappingEvents returns events whose time window intersects [start, end).
func (s *SQLiteStore) GetOverlappingEvents(userID string, start, end time.Time) ([]models.Event, error) {
	// Fetch a candidate window and apply the overlap predicate in code: the
	// end time column is nullable and defaulted events are one hour long.
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = ? AND start_time < ? ORDER BY start_time`,
		userID, end)
	if err != nil {
		slog.Error("SQLiteStore GetOverlappingEvents failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query overlapping events: %w", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	var out []models.Event
	for _, ev := range events {
		if ev.Overlaps(start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// AddReminder inserts a new reminder and sets its ID.
func (s *SQLiteStore) AddReminder(reminder *models.Reminder) error {
	now := time.Now()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now
	res, err := s.db.Exec(`INSERT INTO reminders (user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reminder.UserID, reminder.Title, reminder.DueAt, reminder.LeadMinutes, string(reminder.Recurrence), reminder.Active, now, now)
	if err != nil {
		slog.Error("SQLiteStore AddReminder failed", "error", err, "userID", reminder.UserID)
		return fmt.Errorf("failed to add reminder: %w", err)
	}
	reminder.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get reminder id: %w", err)
	}
	slog.Debug("SQLiteStore AddReminder succeeded", "userID", reminder.UserID, "reminderID", reminder.ID)
	return nil
}

// GetReminder retrieves a single reminder by ID.
func (s *SQLiteStore) GetReminder(id int64) (*models.Reminder, error) {
	var (
		r          models.Reminder
		recurrence string
	)
	err := s.db.QueryRow(`SELECT id, user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at
			  FROM reminders WHERE id = ?`, id).
		Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.LeadMinutes, &recurrence, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetReminder failed", "error", err, "reminderID", id)
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	r.Recurrence = models.Recurrence(recurrence)
	return &r, nil
}

// GetActiveReminders returns a user's active reminders ordered by due time.
func (s *SQLiteStore) GetActiveReminders(userID string) ([]models.Reminder, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at
			  FROM reminders WHERE user_id = ? AND active = 1 ORDER BY due_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetActiveReminders failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()
	var out []models.Reminder
	for rows.Next() {
		var (
			r          models.Reminder
			recurrence string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.LeadMinutes, &recurrence, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		r.Recurrence = models.Recurrence(recurrence)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListAllActiveReminders returns active reminders across all users, used to
// re-arm the scheduler on startup.
func (s *SQLiteStore) ListAllActiveReminders() ([]models.Reminder, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at
			  FROM reminders WHERE active = 1 ORDER BY due_at`)
	if err != nil {
		slog.Error("SQLiteStore ListAllActiveReminders failed", "error", err)
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()
	var out []models.Reminder
	for rows.Next() {
		var (
			r          models.Reminder
			recurrence string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.LeadMinutes, &recurrence, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		r.Recurrence = models.Recurrence(recurrence)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateReminder overwrites an existing reminder.
func (s *SQLiteStore) UpdateReminder(reminder models.Reminder) error {
	res, err := s.db.Exec(`UPDATE reminders SET title = ?, due_at = ?, lead_minutes = ?, recurrence = ?, active = ?, updated_at = ?
			  WHERE id = ?`,
		reminder.Title, reminder.DueAt, reminder.LeadMinutes, string(reminder.Recurrence), reminder.Active, time.Now(), reminder.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateReminder failed", "error", err, "reminderID", reminder.ID)
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReminder removes a reminder by ID.
func (s *SQLiteStore) DeleteReminder(id int64) error {
	res, err := s.db.Exec(`DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteReminder failed", "error", err, "reminderID", id)
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTask inserts a new task and sets its ID.
func (s *SQLiteStore) AddTask(task *models.Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	res, err := s.db.Exec(`INSERT INTO tasks (user_id, title, description, priority, due_at, done, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.UserID, task.Title, task.Description, string(task.Priority), nullableTime(task.DueAt), task.Done, now, now)
	if err != nil {
		slog.Error("SQLiteStore AddTask failed", "error", err, "userID", task.UserID)
		return fmt.Errorf("failed to add task: %w", err)
	}
	task.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get task id: %w", err)
	}
	return nil
}

// GetTask retrieves a single task by ID.
func (s *SQLiteStore) GetTask(id int64) (*models.Task, error) {
	var (
		t        models.Task
		priority string
		dueAt    sql.NullTime
	)
	err := s.db.QueryRow(`SELECT id, user_id, title, description, priority, due_at, done, created_at, updated_at
			  FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &priority, &dueAt, &t.Done, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetTask failed", "error", err, "taskID", id)
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	t.Priority = models.TaskPriority(priority)
	if dueAt.Valid {
		t.DueAt = dueAt.Time
	}
	return &t, nil
}

// GetOpenTasks returns a user's unfinished tasks.
func (s *SQLiteStore) GetOpenTasks(userID string) ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, description, priority, due_at, done, created_at, updated_at
			  FROM tasks WHERE user_id = ? AND done = 0 ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetOpenTasks failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()
	var out []models.Task
	for rows.Next() {
		var (
			t        models.Task
			priority string
			dueAt    sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &priority, &dueAt, &t.Done, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Priority = models.TaskPriority(priority)
		if dueAt.Valid {
			t.DueAt = dueAt.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask overwrites an existing task.
func (s *SQLiteStore) UpdateTask(task models.Task) error {
	res, err := s.db.Exec(`UPDATE tasks SET title = ?, description = ?, priority = ?, due_at = ?, done = ?, updated_at = ?
			  WHERE id = ?`,
		task.Title, task.Description, string(task.Priority), nullableTime(task.DueAt), task.Done, time.Now(), task.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateTask failed", "error", err, "taskID", task.ID)
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *SQLiteStore) DeleteTask(id int64) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteTask failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrCounter atomically increments a TTL-bounded counter, restarting an
// expired counter at 1.
func (s *SQLiteStore) IncrCounter(key string, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = DefaultCounterTTL
	}
	now := time.Now()
	var (
		count     int
		expiresAt time.Time
	)
	err := s.db.QueryRow(`SELECT count, expires_at FROM counters WHERE key = ?`, key).Scan(&count, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		count = 1
	case err != nil:
		slog.Error("SQLiteStore IncrCounter failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to read counter: %w", err)
	case now.After(expiresAt):
		count = 1
	default:
		count++
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO counters (key, count, expires_at) VALUES (?, ?, ?)`,
		key, count, now.Add(ttl))
	if err != nil {
		slog.Error("SQLiteStore IncrCounter write failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to write counter: %w", err)
	}
	return count, nil
}

// GetCounter returns a counter's current value, or zero if absent/expired.
func (s *SQLiteStore) GetCounter(key string) (int, error) {
	var (
		count     int
		expiresAt time.Time
	)
	err := s.db.QueryRow(`SELECT count, expires_at FROM counters WHERE key = ?`, key).Scan(&count, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	if time.Now().After(expiresAt) {
		return 0, nil
	}
	return count, nil
}

// ResetCounter removes a counter.
func (s *SQLiteStore) ResetCounter(key string) error {
	if _, err := s.db.Exec(`DELETE FROM counters WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to reset counter: %w", err)
	}
	return nil
}

// SetScratch stores a one-shot scratch entry with the given TTL.
func (s *SQLiteStore) SetScratch(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultScratchTTL
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO scratch (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Add(ttl))
	if err != nil {
		slog.Error("SQLiteStore SetScratch failed", "error", err, "key", key)
		return fmt.Errorf("failed to set scratch entry: %w", err)
	}
	return nil
}

// GetScratch returns a scratch entry if present and unexpired.
func (s *SQLiteStore) GetScratch(key string) (string, bool, error) {
	var (
		value     string
		expiresAt time.Time
	)
	err := s.db.QueryRow(`SELECT value, expires_at FROM scratch WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read scratch entry: %w", err)
	}
	if time.Now().After(expiresAt) {
		return "", false, nil
	}
	return value, true, nil
}

// DeleteScratch removes a scratch entry.
func (s *SQLiteStore) DeleteScratch(key string) error {
	if _, err := s.db.Exec(`DELETE FROM scratch WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete scratch entry: %w", err)
	}
	return nil
}

// RecordMismatch appends a classifier mismatch record for offline review.
func (s *SQLiteStore) RecordMismatch(m Mismatch) error {
	_, err := s.db.Exec(`INSERT INTO mismatches (user_id, raw_text, intent, confidence, created_at)
			  VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.RawText, m.Intent, m.Confidence, time.Now())
	if err != nil {
		slog.Error("SQLiteStore RecordMismatch failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to record mismatch: %w", err)
	}
	return nil
}

// ListMismatches returns the most recent mismatch records.
func (s *SQLiteStore) ListMismatches(limit int) ([]Mismatch, error) {
	rows, err := s.db.Query(`SELECT id, user_id, raw_text, intent, confidence, created_at
			  FROM mismatches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore ListMismatches failed", "error", err)
		return nil, fmt.Errorf("failed to query mismatches: %w", err)
	}
	defer rows.Close()
	var out []Mismatch
	for rows.Next() {
		var m Mismatch
		if err := rows.Scan(&m.ID, &m.UserID, &m.RawText, &m.Intent, &m.Confidence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mismatch: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared event scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		ev           models.Event
		endTime      sql.NullTime
		participants sql.NullString
		comments     sql.NullString
	)
	err := row.Scan(&ev.ID, &ev.UserID, &ev.Title, &ev.StartTime, &endTime, &ev.Location, &participants, &comments, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		ev.EndTime = endTime.Time
	}
	if participants.Valid && participants.String != "" {
		if err := json.Unmarshal([]byte(participants.String), &ev.Participants); err != nil {
			return nil, fmt.Errorf("failed to decode participants: %w", err)
		}
	}
	if comments.Valid && comments.String != "" {
		if err := json.Unmarshal([]byte(comments.String), &ev.Comments); err != nil {
			return nil, fmt.Errorf("failed to decode comments: %w", err)
		}
	}
	return &ev, nil
}

func collectEvents(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()
	var out []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func encodeEventBlobs(event *models.Event) (participants, comments string, err error) {
	p, err := json.Marshal(event.Participants)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode participants: %w", err)
	}
	c, err := json.Marshal(event.Comments)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode comments: %w", err)
	}
	return string(p), string(c), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
