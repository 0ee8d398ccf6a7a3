package checker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds a single RunCode call when the session has no timeout set.
const DefaultTimeout = 60 * time.Second

// SessionConfig tunes a REPL session.
type SessionConfig struct {
	// Timeout bounds each RunCode call. Zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Session is a live conversation with one REPL process. Requests are
// serialized; a session that timed out or lost its stream is unusable and
// every later call fails with ErrCheckerUnavailable.
type Session struct {
	mu      sync.Mutex
	w       io.Writer
	r       *bufio.Reader
	closeFn func() error
	timeout time.Duration
	logger  *slog.Logger

	broken    error
	closeOnce sync.Once
	closeErr  error
}

var _ Client = (*Session)(nil)

// NewSession wraps the REPL's stdin (w) and stdout (r). closeFn releases the
// underlying process or stream and is called exactly once by Close.
func NewSession(w io.Writer, r io.Reader, closeFn func() error, cfg SessionConfig) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		w:       w,
		r:       bufio.NewReaderSize(r, 64*1024),
		closeFn: closeFn,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

type replCommand struct {
	Cmd string `json:"cmd"`
	Env *int   `json:"env,omitempty"`
}

type replResponse struct {
	Env      *int      `json:"env"`
	Messages []Message `json:"messages"`
	Sorries  []Sorry   `json:"sorries"`
	// Message is set instead of the fields above when the REPL rejects the
	// command itself, e.g. "Unknown environment.".
	Message string `json:"message"`
}

type callResult struct {
	feedback *Feedback
	err      error
}

// RunCode sends source to the REPL and waits for its feedback.
func (s *Session) RunCode(ctx context.Context, source string, env *Env) (*Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckerUnavailable, s.broken)
	}

	cmd := replCommand{Cmd: source}
	if env != nil && env.Valid() {
		id := env.id
		cmd.Env = &id
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode checker command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	done := make(chan callResult, 1)
	go func() {
		fb, err := s.roundTrip(payload)
		done <- callResult{feedback: fb, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, ErrCheckerUnavailable) {
				s.broken = res.err
			}
			return nil, res.err
		}
		s.logger.Debug("Checker call completed",
			"duration", time.Since(started),
			"messages", len(res.feedback.Messages),
			"sorries", len(res.feedback.Sorries),
		)
		return res.feedback, nil
	case <-ctx.Done():
		// The REPL may still answer later; the stream is now out of sync.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.broken = ErrCheckerTimeout
			s.logger.Warn("Checker call timed out", "timeout", s.timeout)
			return nil, fmt.Errorf("%w after %s", ErrCheckerTimeout, s.timeout)
		}
		s.broken = ctx.Err()
		return nil, ctx.Err()
	}
}

func (s *Session) roundTrip(payload []byte) (*Feedback, error) {
	if _, err := s.w.Write(append(payload, '\n', '\n')); err != nil {
		return nil, fmt.Errorf("%w: write command: %v", ErrCheckerUnavailable, err)
	}

	raw, err := s.readResponse()
	if err != nil {
		return nil, err
	}

	var resp replResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProtocolError{Raw: string(raw), Err: err}
	}

	if resp.Env == nil && resp.Message != "" {
		return &Feedback{
			Messages: []Message{{Severity: SeverityError, Data: resp.Message}},
		}, nil
	}

	fb := &Feedback{
		Messages: resp.Messages,
		Sorries:  resp.Sorries,
	}
	if resp.Env != nil {
		fb.Env = newEnv(*resp.Env)
	}
	return fb, nil
}

// readResponse reads one JSON object, which the REPL terminates with a blank line.
// Blank lines before the object are skipped.
func (s *Session) readResponse() ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := s.r.ReadString('\n')
		if strings.TrimSpace(line) == "" {
			if buf.Len() > 0 {
				return buf.Bytes(), nil
			}
		} else {
			buf.WriteString(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && json.Valid(bytes.TrimSpace(buf.Bytes())) && buf.Len() > 0 {
				return bytes.TrimSpace(buf.Bytes()), nil
			}
			return nil, fmt.Errorf("%w: read response: %v", ErrCheckerUnavailable, err)
		}
	}
}

// Close releases the underlying process. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}
