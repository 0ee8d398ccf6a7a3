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
	"strings"
	"time"

	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/transcript"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 100

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		steps INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT '',
		task_json TEXT NOT NULL,
		transcript_json TEXT NOT NULL,
		history_json TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_state ON attempts(state);
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

// SaveAttempt inserts or replaces an archived attempt.
// Retries with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) SaveAttempt(ctx context.Context, rec *domain.AttemptRecord) error {
	taskJSON, err := json.Marshal(rec.Task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	transcriptJSON, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	history := rec.History
	if history == nil {
		history = []prover.Step{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	var finishedAt interface{}
	if !rec.FinishedAt.IsZero() {
		finishedAt = rec.FinishedAt.UnixMilli()
	}

	query := `
	INSERT INTO attempts (id, name, kind, state, reason, error, steps, source,
		task_json, transcript_json, history_json, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		reason = excluded.reason,
		error = excluded.error,
		steps = excluded.steps,
		source = excluded.source,
		transcript_json = excluded.transcript_json,
		history_json = excluded.history_json,
		finished_at = excluded.finished_at`

	return withBusyRetry(ctx, "save attempt", func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.ID, rec.Name, string(rec.Task.Kind), string(rec.State), string(rec.Reason),
			rec.Error, rec.Steps, rec.Source,
			string(taskJSON), string(transcriptJSON), string(historyJSON),
			rec.StartedAt.UnixMilli(), finishedAt,
		)
		if err != nil {
			return fmt.Errorf("save attempt %s: %w", rec.ID, err)
		}
		return nil
	})
}

// GetAttempt retrieves an attempt with its transcript.
func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*domain.AttemptRecord, error) {
	query := `
		SELECT id, name, state, reason, error, steps, source,
		       task_json, transcript_json, history_json, started_at, finished_at
		FROM attempts WHERE id = ?`

	var rec domain.AttemptRecord
	var state, reason string
	var taskJSON, transcriptJSON, historyJSON string
	var startedAt int64
	var finishedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Name, &state, &reason, &rec.Error, &rec.Steps, &rec.Source,
		&taskJSON, &transcriptJSON, &historyJSON, &startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt row: %w", err)
	}

	rec.State = prover.State(state)
	rec.Reason = prover.Reason(reason)
	rec.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		rec.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	if err := json.Unmarshal([]byte(taskJSON), &rec.Task); err != nil {
		return nil, fmt.Errorf("decode task of attempt %s: %w", id, err)
	}
	var t transcript.Transcript
	if err := json.Unmarshal([]byte(transcriptJSON), &t); err != nil {
		return nil, fmt.Errorf("decode transcript of attempt %s: %w", id, err)
	}
	rec.Transcript = t
	if err := json.Unmarshal([]byte(historyJSON), &rec.History); err != nil {
		return nil, fmt.Errorf("decode history of attempt %s: %w", id, err)
	}

	return &rec, nil
}

// ListAttempts returns attempt summaries, newest first.
func (s *SQLiteStore) ListAttempts(ctx context.Context, filter ListFilter) ([]domain.AttemptSummary, error) {
	query := `SELECT id, name, kind, state, reason, steps, started_at, finished_at FROM attempts`
	var args []interface{}
	if filter.State != "" {
		query += ` WHERE state = ?`
		args = append(args, strings.ToUpper(filter.State))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close attempt rows", "error", closeErr)
		}
	}()

	summaries := []domain.AttemptSummary{}
	for rows.Next() {
		var sum domain.AttemptSummary
		var kind, state, reason string
		var startedAt int64
		var finishedAt sql.NullInt64

		if err := rows.Scan(&sum.ID, &sum.Name, &kind, &state, &reason, &sum.Steps, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan attempt summary row: %w", err)
		}
		sum.Kind = prover.TaskKind(kind)
		sum.State = prover.State(state)
		sum.Reason = prover.Reason(reason)
		sum.StartedAt = time.UnixMilli(startedAt)
		if finishedAt.Valid {
			sum.FinishedAt = time.UnixMilli(finishedAt.Int64)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return summaries, nil
}

// DeleteAttemptsBefore removes attempts that started before cutoff.
func (s *SQLiteStore) DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := withBusyRetry(ctx, "delete attempts", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE started_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete attempts before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
