package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/coursegpt-sync/internal/domain"
	"github.com/ashureev/coursegpt-sync/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	kindUser   = "user"
	kindChat   = "chat"
	kindCourse = "course"

	metaUserID         = "user_id"
	metaSelectedCourse = "selected_course"
	metaSavedAt        = "saved_at"
)

var _ Repository = (*SQLiteStore)(nil)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes writers to avoid SQLITE_BUSY between our own connections

	maxRetries int
	baseDelay  time.Duration
}

// NewSQLite creates a new SQLite-backed snapshot repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, maxRetries: 3, baseDelay: 100 * time.Millisecond}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS entities (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);

	CREATE TABLE IF NOT EXISTS session_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return s.Clear(ctx)
	}
	return s.withRetry(ctx, "save snapshot", func() error {
		return s.saveOnce(ctx, snap)
	})
}

func (s *SQLiteStore) saveOnce(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_meta`); err != nil {
		return fmt.Errorf("clear session meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (kind, id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare entity insert: %w", err)
	}
	defer stmt.Close()

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	now := savedAt.Unix()

	insert := func(kind, id string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
		if _, err := stmt.ExecContext(ctx, kind, id, string(payload), now); err != nil {
			return fmt.Errorf("insert %s %s: %w", kind, id, err)
		}
		return nil
	}
	for _, u := range snap.Users {
		if err := insert(kindUser, u.ID, u); err != nil {
			return err
		}
	}
	for _, c := range snap.Chats {
		if err := insert(kindChat, c.ID, c); err != nil {
			return err
		}
	}
	for _, c := range snap.Courses {
		if err := insert(kindCourse, c.ID, c); err != nil {
			return err
		}
	}

	meta := map[string]string{
		metaUserID:         snap.UserID,
		metaSelectedCourse: snap.SelectedCourse,
		metaSavedAt:        savedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("write session meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil if nothing is stored.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	found := false

	metaRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_meta`)
	if err != nil {
		return nil, fmt.Errorf("query session meta: %w", err)
	}
	defer func() {
		if closeErr := metaRows.Close(); closeErr != nil {
			slog.Warn("failed to close session meta rows", "error", closeErr)
		}
	}()
	for metaRows.Next() {
		var key, value string
		if err := metaRows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan session meta row: %w", err)
		}
		found = true
		switch key {
		case metaUserID:
			snap.UserID = value
		case metaSelectedCourse:
			snap.SelectedCourse = value
		case metaSavedAt:
			if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
				snap.SavedAt = t
			}
		}
	}
	if err := metaRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, payload FROM entities ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close entity rows", "error", closeErr)
		}
	}()
	for rows.Next() {
		var kind, id, payload string
		if err := rows.Scan(&kind, &id, &payload); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		found = true
		if err := decodeEntity(snap, kind, []byte(payload)); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	if !found {
		return nil, nil
	}
	return snap, nil
}

func decodeEntity(snap *Snapshot, kind string, payload []byte) error {
	switch kind {
	case kindUser:
		var u domain.User
		if err := json.Unmarshal(payload, &u); err != nil {
			return err
		}
		snap.Users = append(snap.Users, u)
	case kindChat:
		var c domain.Chat
		if err := json.Unmarshal(payload, &c); err != nil {
			return err
		}
		snap.Chats = append(snap.Chats, c)
	case kindCourse:
		var c domain.Course
		if err := json.Unmarshal(payload, &c); err != nil {
			return err
		}
		snap.Courses = append(snap.Courses, c)
	default:
		slog.Warn("skipping unknown snapshot entity kind", "kind", kind)
	}
	return nil
}

// Clear removes the stored snapshot.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.withRetry(ctx, "clear snapshot", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
			return fmt.Errorf("clear entities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_meta`); err != nil {
			return fmt.Errorf("clear session meta: %w", err)
		}
		return tx.Commit()
	})
}

// withRetry runs fn, retrying with exponential backoff (100ms, 200ms, ...)
// while SQLite reports the database as busy or locked.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == s.maxRetries-1 {
			break
		}

		delay := s.baseDelay * time.Duration(1<<i)
		slog.Debug("snapshot write hit SQLITE_BUSY, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(fmt.Errorf("%s: %w", op, ctx.Err()), err)
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
