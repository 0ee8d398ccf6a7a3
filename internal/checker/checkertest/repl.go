// Package checkertest provides an in-memory REPL for tests.
package checkertest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/sagredo/internal/checker"
)

// Command is one request the fake REPL received.
type Command struct {
	Cmd string `json:"cmd"`
	Env *int   `json:"env,omitempty"`
}

// Handler answers a command with the raw JSON the REPL would print.
// Returning an empty string makes the REPL hang until the session closes.
type Handler func(cmd Command) string

// REPL is a scripted stand-in for the Lean REPL process.
type REPL struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
}

// Commands returns every command received so far.
func (r *REPL) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Closed reports whether the session released the fake process.
func (r *REPL) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// NewSession starts a fake REPL and returns a checker session wired to it.
// The session is closed when the test ends.
func NewSession(t testing.TB, cfg checker.SessionConfig, h Handler) (*checker.Session, *REPL) {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	repl := &REPL{}

	go repl.serve(stdinR, stdoutW, h)

	sess := checker.NewSession(stdinW, stdoutR, func() error {
		repl.mu.Lock()
		repl.closed = true
		repl.mu.Unlock()
		_ = stdinW.Close()
		_ = stdoutR.Close()
		return nil
	}, cfg)
	t.Cleanup(func() { _ = sess.Close() })
	return sess, repl
}

func (r *REPL) serve(in io.ReadCloser, out *io.PipeWriter, h Handler) {
	defer out.Close()
	reader := bufio.NewReader(in)
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) == "" && buf.Len() > 0 {
			var cmd Command
			if jerr := json.Unmarshal(buf.Bytes(), &cmd); jerr != nil {
				return
			}
			buf.Reset()
			r.mu.Lock()
			r.commands = append(r.commands, cmd)
			r.mu.Unlock()

			resp := h(cmd)
			if resp == "" {
				_, _ = io.Copy(io.Discard, in)
				return
			}
			if _, werr := io.WriteString(out, resp+"\n\n"); werr != nil {
				return
			}
		} else {
			buf.WriteString(line)
		}
		if err != nil {
			return
		}
	}
}

