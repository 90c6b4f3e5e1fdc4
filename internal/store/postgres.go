// Package store provides storage backends for Yoman.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/dorshemer/yoman/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL database", "error", err)
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		slog.Error("PostgresStore migrations failed", "error", err)
		return nil, fmt.Errorf("failed to apply postgres migrations: %w", err)
	}
	slog.Info("PostgresStore initialized")
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a conversation session, honoring its TTL.
func (s *PostgresStore) GetSession(userID string) (*models.Session, error) {
	query := `SELECT user_id, state, context, history, created_at, updated_at, expires_at
			  FROM sessions WHERE user_id = $1`
	var (
		sess      models.Session
		state     string
		contextJS sql.NullString
		historyJS sql.NullString
		expiresAt time.Time
	)
	err := s.db.QueryRow(query, userID).Scan(&sess.UserID, &state, &contextJS, &historyJS, &sess.CreatedAt, &sess.UpdatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, nil
	}
	sess.State = models.SessionState(state)
	if contextJS.Valid && contextJS.String != "" {
		if err := json.Unmarshal([]byte(contextJS.String), &sess.Context); err != nil {
			return nil, fmt.Errorf("failed to decode session context: %w", err)
		}
	}
	if historyJS.Valid && historyJS.String != "" {
		if err := json.Unmarshal([]byte(historyJS.String), &sess.History); err != nil {
			return nil, fmt.Errorf("failed to decode session history: %w", err)
		}
	}
	return &sess, nil
}

// SaveSession stores or updates a conversation session with the given TTL.
func (s *PostgresStore) SaveSession(session models.Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	contextJS, err := json.Marshal(session.Context)
	if err != nil {
		return fmt.Errorf("failed to encode session context: %w", err)
	}
	historyJS, err := json.Marshal(session.History)
	if err != nil {
		return fmt.Errorf("failed to encode session history: %w", err)
	}
	query := `INSERT INTO sessions (user_id, state, context, history, created_at, updated_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (user_id) DO UPDATE SET
				state = EXCLUDED.state, context = EXCLUDED.context, history = EXCLUDED.history,
				updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`
	_, err = s.db.Exec(query, session.UserID, string(session.State), string(contextJS), string(historyJS),
		session.CreatedAt, time.Now(), time.Now().Add(ttl))
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", session.UserID, "state", session.State)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession removes a conversation session.
func (s *PostgresStore) DeleteSession(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AddEvent inserts a new event and sets its ID.
func (s *PostgresStore) AddEvent(event *models.Event) error {
	participants, comments, err := encodeEventBlobs(event)
	if err != nil {
		return err
	}
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	err = s.db.QueryRow(`INSERT INTO events (user_id, title, start_time, end_time, location, participants, comments, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		event.UserID, event.Title, event.StartTime, nullableTime(event.EndTime), event.Location, participants, comments, now, now).
		Scan(&event.ID)
	if err != nil {
		slog.Error("PostgresStore AddEvent failed", "error", err, "userID", event.UserID)
		return fmt.Errorf("failed to add event: %w", err)
	}
	return nil
}

// GetEvent retrieves a single event by ID.
func (s *PostgresStore) GetEvent(id int64) (*models.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetEvent failed", "error", err, "eventID", id)
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// UpdateEvent overwrites an existing event.
func (s *PostgresStore) UpdateEvent(event models.Event) error {
	participants, comments, err := encodeEventBlobs(&event)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE events SET title = $1, start_time = $2, end_time = $3, location = $4, participants = $5, comments = $6, updated_at = $7
			  WHERE id = $8`,
		event.Title, event.StartTime, nullableTime(event.EndTime), event.Location, participants, comments, time.Now(), event.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateEvent failed", "error", err, "eventID", event.ID)
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event by ID.
func (s *PostgresStore) DeleteEvent(id int64) error {
	res, err := s.db.Exec(`DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteEvent failed", "error", err, "eventID", id)
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEventsByDate returns a user's events within [dayStart, dayEnd).
func (s *PostgresStore) GetEventsByDate(userID string, dayStart, dayEnd time.Time) ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = $1 AND start_time >= $2 AND start_time < $3 ORDER BY start_time`,
		userID, dayStart, dayEnd)
	if err != nil {
		slog.Error("PostgresStore GetEventsByDate failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query events by date: %w", err)
	}
	return collectEvents(rows)
}

// GetUpcomingEvents returns up to limit events starting at or after from.
func (s *PostgresStore) GetUpcomingEvents(userID string, from time.Time, limit int) ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = $1 AND start_time >= $2 ORDER BY start_time LIMIT $3`,
		userID, from, limit)
	if err != nil {
		slog.Error("PostgresStore GetUpcomingEvents failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	return collectEvents(rows)
}

// GetAllEvents returns a page of a user's events ordered by start time.
func (s *PostgresStore) GetAllEvents(userID string, limit, offset int, descending bool) ([]models.Event, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = $1 ORDER BY start_time `+order+` LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		slog.Error("PostgresStore GetAllEvents failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return collectEvents(rows)
}

// GetOverlappingEvents returns events whose time window intersects [start, end).
func (s *PostgresStore) GetOverlappingEvents(userID string, start, end time.Time) ([]models.Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events
			  WHERE user_id = $1 AND start_time < $2 ORDER BY start_time`,
		userID, end)
	if err != nil {
		slog.Error("PostgresStore GetOverlappingEvents failed", "error", err, "userID", userID)
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
func (s *PostgresStore) AddReminder(reminder *models.Reminder) error {
	now := time.Now()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now
	err := s.db.QueryRow(`INSERT INTO reminders (user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		reminder.UserID, reminder.Title, reminder.DueAt, reminder.LeadMinutes, string(reminder.Recurrence), reminder.Active, now, now).
		Scan(&reminder.ID)
	if err != nil {
		slog.Error("PostgresStore AddReminder failed", "error", err, "userID", reminder.UserID)
		return fmt.Errorf("failed to add reminder: %w", err)
	}
	return nil
}

// GetReminder retrieves a single reminder by ID.
func (s *PostgresStore) GetReminder(id int64) (*models.Reminder, error) {
	var (
		r          models.Reminder
		recurrence string
	)
	err := s.db.QueryRow(`SELECT id, user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at
			  FROM reminders WHERE id = $1`, id).
		Scan(&r.ID, &r.UserID, &r.Title, &r.DueAt, &r.LeadMinutes, &recurrence, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetReminder failed", "error", err, "reminderID", id)
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	r.Recurrence = models.Recurrence(recurrence)
	return &r, nil
}

// GetActiveReminders returns a user's active reminders ordered by due time.
func (s *PostgresStore) GetActiveReminders(userID string) ([]models.Reminder, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at
			  FROM reminders WHERE user_id = $1 AND active = TRUE ORDER BY due_at`, userID)
	if err != nil {
		slog.Error("PostgresStore GetActiveReminders failed", "error", err, "userID", userID)
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
func (s *PostgresStore) ListAllActiveReminders() ([]models.Reminder, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, due_at, lead_minutes, recurrence, active, created_at, updated_at
			  FROM reminders WHERE active = TRUE ORDER BY due_at`)
	if err != nil {
		slog.Error("PostgresStore ListAllActiveReminders failed", "error", err)
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
func (s *PostgresStore) UpdateReminder(reminder models.Reminder) error {
	res, err := s.db.Exec(`UPDATE reminders SET title = $1, due_at = $2, lead_minutes = $3, recurrence = $4, active = $5, updated_at = $6
			  WHERE id = $7`,
		reminder.Title, reminder.DueAt, reminder.LeadMinutes, string(reminder.Recurrence), reminder.Active, time.Now(), reminder.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateReminder failed", "error", err, "reminderID", reminder.ID)
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReminder removes a reminder by ID.
func (s *PostgresStore) DeleteReminder(id int64) error {
	res, err := s.db.Exec(`DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteReminder failed", "error", err, "reminderID", id)
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTask inserts a new task and sets its ID.
func (s *PostgresStore) AddTask(task *models.Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	err := s.db.QueryRow(`INSERT INTO tasks (user_id, title, description, priority, due_at, done, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		task.UserID, task.Title, task.Description, string(task.Priority), nullableTime(task.DueAt), task.Done, now, now).
		Scan(&task.ID)
	if err != nil {
		slog.Error("PostgresStore AddTask failed", "error", err, "userID", task.UserID)
		return fmt.Errorf("failed to add task: %w", err)
	}
	return nil
}

// GetTask retrieves a single task by ID.
func (s *PostgresStore) GetTask(id int64) (*models.Task, error) {
	var (
		t        models.Task
		priority string
		dueAt    sql.NullTime
	)
	err := s.db.QueryRow(`SELECT id, user_id, title, description, priority, due_at, done, created_at, updated_at
			  FROM tasks WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &priority, &dueAt, &t.Done, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetTask failed", "error", err, "taskID", id)
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	t.Priority = models.TaskPriority(priority)
	if dueAt.Valid {
		t.DueAt = dueAt.Time
	}
	return &t, nil
}

// GetOpenTasks returns a user's unfinished tasks.
func (s *PostgresStore) GetOpenTasks(userID string) ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT id, user_id, title, description, priority, due_at, done, created_at, updated_at
			  FROM tasks WHERE user_id = $1 AND done = FALSE ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore GetOpenTasks failed", "error", err, "userID", userID)
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
func (s *PostgresStore) UpdateTask(task models.Task) error {
	res, err := s.db.Exec(`UPDATE tasks SET title = $1, description = $2, priority = $3, due_at = $4, done = $5, updated_at = $6
			  WHERE id = $7`,
		task.Title, task.Description, string(task.Priority), nullableTime(task.DueAt), task.Done, time.Now(), task.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateTask failed", "error", err, "taskID", task.ID)
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *PostgresStore) DeleteTask(id int64) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteTask failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrCounter atomically increments a TTL-bounded counter, restarting an
// expired counter at 1.
func (s *PostgresStore) IncrCounter(key string, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = DefaultCounterTTL
	}
	now := time.Now()
	var count int
	err := s.db.QueryRow(`INSERT INTO counters (key, count, expires_at) VALUES ($1, 1, $2)
			  ON CONFLICT (key) DO UPDATE SET
				count = CASE WHEN counters.expires_at < $3 THEN 1 ELSE counters.count + 1 END,
				expires_at = $2
			  RETURNING count`,
		key, now.Add(ttl), now).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore IncrCounter failed", "error", err, "key", key)
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return count, nil
}

// GetCounter returns a counter's current value, or zero if absent/expired.
func (s *PostgresStore) GetCounter(key string) (int, error) {
	var (
		count     int
		expiresAt time.Time
	)
	err := s.db.QueryRow(`SELECT count, expires_at FROM counters WHERE key = $1`, key).Scan(&count, &expiresAt)
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
func (s *PostgresStore) ResetCounter(key string) error {
	if _, err := s.db.Exec(`DELETE FROM counters WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to reset counter: %w", err)
	}
	return nil
}

// SetScratch stores a one-shot scratch entry with the given TTL.
func (s *PostgresStore) SetScratch(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultScratchTTL
	}
	_, err := s.db.Exec(`INSERT INTO scratch (key, value, expires_at) VALUES ($1, $2, $3)
			  ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, time.Now().Add(ttl))
	if err != nil {
		slog.Error("PostgresStore SetScratch failed", "error", err, "key", key)
		return fmt.Errorf("failed to set scratch entry: %w", err)
	}
	return nil
}

// GetScratch returns a scratch entry if present and unexpired.
func (s *PostgresStore) GetScratch(key string) (string, bool, error) {
	var (
		value     string
		expiresAt time.Time
	)
	err := s.db.QueryRow(`SELECT value, expires_at FROM scratch WHERE key = $1`, key).Scan(&value, &expiresAt)
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
func (s *PostgresStore) DeleteScratch(key string) error {
	if _, err := s.db.Exec(`DELETE FROM scratch WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete scratch entry: %w", err)
	}
	return nil
}

// RecordMismatch appends a classifier mismatch record for offline review.
func (s *PostgresStore) RecordMismatch(m Mismatch) error {
	_, err := s.db.Exec(`INSERT INTO mismatches (user_id, raw_text, intent, confidence, created_at)
			  VALUES ($1, $2, $3, $4, $5)`,
		m.UserID, m.RawText, m.Intent, m.Confidence, time.Now())
	if err != nil {
		slog.Error("PostgresStore RecordMismatch failed", "error", err, "userID", m.UserID)
		return fmt.Errorf("failed to record mismatch: %w", err)
	}
	return nil
}

// ListMismatches returns the most recent mismatch records.
func (s *PostgresStore) ListMismatches(limit int) ([]Mismatch, error) {
	rows, err := s.db.Query(`SELECT id, user_id, raw_text, intent, confidence, created_at
			  FROM mismatches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore ListMismatches failed", "error", err)
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
