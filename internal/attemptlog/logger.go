// Package attemptlog writes an append-only NDJSON trail of every proof attempt.
package attemptlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/transcript"
)

// Config controls attempt logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Entry types.
const (
	TypeTransition = "transition"
	TypeMessage    = "message"
)

// Entry is one NDJSON line.
type Entry struct {
	Timestamp time.Time     `json:"ts"`
	AttemptID string        `json:"attempt_id"`
	Type      string        `json:"type"`
	Step      int           `json:"step,omitempty"`
	State     prover.State  `json:"state,omitempty"`
	Reason    prover.Reason `json:"reason,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Role      string        `json:"role,omitempty"`
	Content   string        `json:"content,omitempty"`
}

// Logger writes entries asynchronously to <dir>/<attempt-id>.ndjson.
// A full queue drops entries rather than stalling the search loop.
type Logger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Entry
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

var _ prover.Observer = (*Logger)(nil)

// New creates a Logger. A disabled config yields a Logger that discards everything.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{cfg: cfg, logger: logger}
	if !cfg.Enabled {
		return l, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("attempt log dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
		l.cfg.QueueSize = cfg.QueueSize
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create attempt log dir: %w", err)
	}

	l.queue = make(chan Entry, cfg.QueueSize)
	l.done = make(chan struct{})
	go l.run()
	return l, nil
}

// Log enqueues an entry without blocking.
func (l *Logger) Log(e Entry) {
	if l.queue == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		l.dropped.Add(1)
		l.logger.Warn("Attempt log queue full, dropping entry", "attempt_id", e.AttemptID, "type", e.Type)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Observe records a controller transition.
func (l *Logger) Observe(ev prover.Event) {
	l.Log(Entry{
		Timestamp: ev.At.UTC(),
		AttemptID: ev.AttemptID,
		Type:      TypeTransition,
		Step:      ev.Step,
		State:     ev.State,
		Reason:    ev.Reason,
		Detail:    ev.Detail,
	})
}

// LogTranscript records every turn of a finished attempt's transcript.
func (l *Logger) LogTranscript(attemptID string, t transcript.Transcript) {
	for _, m := range t.Messages() {
		l.Log(Entry{
			AttemptID: attemptID,
			Type:      TypeMessage,
			Role:      string(m.Role),
			Content:   m.Content,
		})
	}
}

// Path returns the log file for an attempt.
func (l *Logger) Path(attemptID string) string {
	return filepath.Join(l.cfg.Dir, sanitize(attemptID)+".ndjson")
}

// Close stops accepting entries and waits for the queue to drain.
func (l *Logger) Close() error {
	if l.queue == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		if err := l.write(e); err != nil {
			l.logger.Warn("Failed to write attempt log entry", "attempt_id", e.AttemptID, "error", err)
		}
	}
}

func (l *Logger) write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	f, err := os.OpenFile(l.Path(e.AttemptID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write attempt log: %w", err)
	}
	return f.Close()
}

func sanitize(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if id == "" {
		return "unknown"
	}
	return id
}
