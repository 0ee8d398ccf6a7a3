//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/checker/checkertest"
	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/oracle"
	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/runner"
	"github.com/ashureev/sagredo/internal/store"
	"github.com/ashureev/sagredo/internal/transcript"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type fakeStarter struct {
	t       *testing.T
	handler checkertest.Handler
	err     error
}

func (s *fakeStarter) Start(context.Context) (*checker.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	sess, _ := checkertest.NewSession(s.t, checker.SessionConfig{}, s.handler)
	return sess, nil
}

type oracleFunc func(ctx context.Context, t transcript.Transcript) (string, error)

func (f oracleFunc) Complete(ctx context.Context, t transcript.Transcript, _ oracle.Options) (string, error) {
	return f(ctx, t)
}

type testServer struct {
	router  chi.Router
	runner  *runner.Runner
	repo    *store.SQLiteStore
	starter *fakeStarter
}

func newTestServer(t *testing.T, o oracle.Completer) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	starter := &fakeStarter{t: t, handler: func(checkertest.Command) string { return `{"env": 0}` }}
	run := runner.New(runner.Config{
		Starter: starter,
		Oracle:  o,
		Prover:  prover.Config{MaxSteps: 3},
		Repo:    repo,
		Logger:  logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = run.Shutdown(ctx)
	})

	h := NewHandler(context.Background(), run, repo, starter, time.Second, logger)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testServer{router: r, runner: run, repo: repo, starter: starter}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func proving(code string) oracleFunc {
	return func(context.Context, transcript.Transcript) (string, error) {
		return "```lean\n" + code + "\n```", nil
	}
}

func TestStartAttempt_RunsToCompletion(t *testing.T) {
	s := newTestServer(t, proving("example : 2 = 2 := rfl"))

	w := s.do(t, http.MethodPost, "/api/attempts", `{"name":"two","kind":"continue","code":"example : 2 = 2 := by"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var started map[string]string
	if err := json.NewDecoder(w.Body).Decode(&started); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	id := started["id"]
	if id == "" {
		t.Fatal("Expected an attempt id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.runner.Wait(ctx, id); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	w = s.do(t, http.MethodGet, "/api/attempts/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var st runner.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if st.Running || st.Record == nil || st.Record.State != prover.StateComplete {
		t.Errorf("Expected finished COMPLETE record, got %+v", st)
	}
	if st.Record.Source != "example : 2 = 2 := rfl" {
		t.Errorf("Unexpected source %q", st.Record.Source)
	}
}

func TestStartAttempt_RejectsInvalidTask(t *testing.T) {
	s := newTestServer(t, proving("x"))

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"kind":`},
		{"unknown field", `{"kind":"continue","code":"x","steps":3}`},
		{"missing code", `{"kind":"continue"}`},
		{"unknown kind", `{"kind":"guess","code":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/attempts", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestGetAttempt_FromArchive(t *testing.T) {
	s := newTestServer(t, proving("x"))
	now := time.Now().Truncate(time.Millisecond)
	rec := &domain.AttemptRecord{
		ID:         "archived-1",
		Name:       "old",
		Task:       prover.Task{Kind: prover.KindContinue, Code: "example : 1 = 1 := by"},
		State:      prover.StateStuckSorry,
		Steps:      2,
		Source:     "example : 1 = 1 := by sorry",
		Transcript: transcript.New("sys", "go"),
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
	}
	if err := s.repo.SaveAttempt(context.Background(), rec); err != nil {
		t.Fatalf("SaveAttempt failed: %v", err)
	}

	w := s.do(t, http.MethodGet, "/api/attempts/archived-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var st runner.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if st.State != prover.StateStuckSorry || st.Record == nil || st.Record.Transcript.Len() != 2 {
		t.Errorf("Unexpected archived status %+v", st)
	}

	w = s.do(t, http.MethodGet, "/api/attempts?state=stuck_sorry", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var list struct {
		Archived []domain.AttemptSummary `json:"archived"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(list.Archived) != 1 || list.Archived[0].ID != "archived-1" {
		t.Errorf("Unexpected list %+v", list.Archived)
	}
}

func TestGetAttempt_NotFound(t *testing.T) {
	s := newTestServer(t, proving("x"))
	if w := s.do(t, http.MethodGet, "/api/attempts/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/attempts/nope/cancel", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on cancel, got %d", w.Code)
	}
}

func TestListAttempts_BadLimit(t *testing.T) {
	s := newTestServer(t, proving("x"))
	if w := s.do(t, http.MethodGet, "/api/attempts?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestCancelAttempt(t *testing.T) {
	release := make(chan struct{})
	s := newTestServer(t, oracleFunc(func(ctx context.Context, _ transcript.Transcript) (string, error) {
		<-release
		return "no code here", nil
	}))

	w := s.do(t, http.MethodPost, "/api/attempts", `{"kind":"continue","code":"example : 2 = 2 := by"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	var started map[string]string
	_ = json.NewDecoder(w.Body).Decode(&started)

	w = s.do(t, http.MethodPost, "/api/attempts/"+started["id"]+"/cancel", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := s.runner.Wait(ctx, started["id"])
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if rec.State != prover.StateFailed || rec.Reason != prover.ReasonCancelled {
		t.Errorf("Expected FAILED/cancelled, got %s/%s", rec.State, rec.Reason)
	}
}

func TestCheck(t *testing.T) {
	s := newTestServer(t, proving("x"))
	s.starter.handler = func(cmd checkertest.Command) string {
		if strings.Contains(cmd.Cmd, "by") {
			return `{"messages": [{"severity": "error", "pos": {"line": 1, "column": 19}, "data": "unsolved goals\n⊢ 2 = 2"}], "env": 1}`
		}
		return `{"env": 0}`
	}

	w := s.do(t, http.MethodPost, "/api/check", `{"code":"example : 2 = 2 := rfl"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var clean CheckResponse
	if err := json.NewDecoder(w.Body).Decode(&clean); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !clean.Clean || clean.Errors {
		t.Errorf("Expected clean result, got %+v", clean)
	}

	w = s.do(t, http.MethodPost, "/api/check", `{"code":"example : 2 = 2 := by"}`)
	var bad CheckResponse
	if err := json.NewDecoder(w.Body).Decode(&bad); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !bad.Errors || len(bad.Messages) != 1 || !strings.HasPrefix(bad.Messages[0].Data, "unsolved goals") {
		t.Errorf("Expected unsolved goals error, got %+v", bad)
	}
}

func TestCheck_Errors(t *testing.T) {
	s := newTestServer(t, proving("x"))

	if w := s.do(t, http.MethodPost, "/api/check", `{"code":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty code, got %d", w.Code)
	}

	s.starter.err = errors.Join(checker.ErrCheckerUnavailable, errors.New("no repl"))
	if w := s.do(t, http.MethodPost, "/api/check", `{"code":"def f := 1"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}

	s.starter.err = nil
	s.starter.handler = func(checkertest.Command) string { return "" }
	if w := s.do(t, http.MethodPost, "/api/check", `{"code":"def f := 1"}`); w.Code != http.StatusGatewayTimeout {
		t.Errorf("Expected 504 when the checker hangs, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, proving("x"))
	h := NewHealthHandler(s.repo, time.Second, map[string]string{"oracle": "configured"})
	r := chi.NewRouter()
	h.RegisterHealth(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"oracle":"configured"`)) {
		t.Errorf("Expected static component in body: %s", w.Body.String())
	}

	_ = s.repo.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with closed database, got %d", w.Code)
	}
}
