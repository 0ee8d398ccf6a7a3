package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ashureev/sagredo/internal/transcript"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zeroDelayPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Retryable: IsRetryable}
}

func fixedTokens(string) (int, error) { return 42, nil }

// newTestServer fails the first failures requests with status, then answers with reply.
func newTestServer(t *testing.T, failures int32, status int, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Unexpected Authorization header %q", got)
		}
		if n <= failures {
			http.Error(w, `{"error":{"message":"slow down"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server, maxRetries int) *Client {
	return New(NewOpenAITransport(srv.URL, "sk-test"), Config{
		Retry:  zeroDelayPolicy(maxRetries),
		Tokens: fixedTokens,
		Logger: quietLogger(),
	})
}

func TestComplete_RetriesRateLimitThenSucceeds(t *testing.T) {
	srv, calls := newTestServer(t, 3, http.StatusTooManyRequests, "```lean\nrfl\n```")
	c := newTestClient(srv, 5)

	got, err := c.Complete(context.Background(), transcript.New("sys", "prove it"), DefaultOptions())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "```lean\nrfl\n```" {
		t.Errorf("Unexpected completion %q", got)
	}
	if calls.Load() != 4 {
		t.Errorf("Expected 4 calls, got %d", calls.Load())
	}
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	srv, calls := newTestServer(t, 100, http.StatusServiceUnavailable, "")
	c := newTestClient(srv, 2)

	_, err := c.Complete(context.Background(), transcript.New("", "prove it"), DefaultOptions())
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("Expected ErrOracleUnavailable, got %v", err)
	}
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Expected *UnavailableError, got %T", err)
	}
	if unavailable.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", unavailable.Attempts)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected last error to be HTTP 503, got %v", unavailable.Last)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestComplete_DoesNotRetryAuthFailure(t *testing.T) {
	srv, calls := newTestServer(t, 100, http.StatusUnauthorized, "")
	c := newTestClient(srv, 5)

	_, err := c.Complete(context.Background(), transcript.New("", "prove it"), DefaultOptions())
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("Expected ErrOracleUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("401 must not be retried, got %d calls", calls.Load())
	}
}

func TestComplete_SendsTranscriptAndOptions(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()
	c := newTestClient(srv, 0)

	tr := transcript.New("be rigorous", "prove it").
		Append(transcript.RoleAssistant, "attempt").
		Append(transcript.RoleUser, "try again")
	opts := Options{Model: "gpt-4o", Temperature: 0.2, TopP: 0.9, MaxTokens: 512}
	if _, err := c.Complete(context.Background(), tr, opts); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if got.Model != "gpt-4o" || got.Temperature != 0.2 || got.TopP != 0.9 || got.MaxTokens != 512 {
		t.Errorf("Options not forwarded: %+v", got)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("Expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("Message %d: expected role %s, got %s", i, role, got.Messages[i].Role)
		}
	}
	if got.Messages[3].Content != "try again" {
		t.Errorf("Unexpected last message %q", got.Messages[3].Content)
	}
}

func TestCompleteChat_AppendsAssistantTurn(t *testing.T) {
	srv, _ := newTestServer(t, 0, 0, "done")
	c := newTestClient(srv, 0)

	tr := transcript.New("", "prove it")
	out, err := c.CompleteChat(context.Background(), tr, DefaultOptions())
	if err != nil {
		t.Fatalf("CompleteChat failed: %v", err)
	}
	if tr.Len() != 1 {
		t.Errorf("Input transcript must not change, got %d messages", tr.Len())
	}
	last, ok := out.Last()
	if !ok || last.Role != transcript.RoleAssistant || last.Content != "done" {
		t.Errorf("Unexpected last message %+v", last)
	}
}

func TestComplete_CanceledContext(t *testing.T) {
	srv, calls := newTestServer(t, 100, http.StatusServiceUnavailable, "")
	c := newTestClient(srv, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, transcript.New("", "prove it"), DefaultOptions())
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("Expected ErrOracleUnavailable, got %v", err)
	}
	if calls.Load() > 1 {
		t.Errorf("Canceled call should not keep retrying, got %d calls", calls.Load())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &StatusError{StatusCode: 429}, true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"401", &StatusError{StatusCode: 401}, false},
		{"403", &StatusError{StatusCode: 403}, false},
		{"404", &StatusError{StatusCode: 404}, false},
		{"canceled", context.Canceled, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"plain", errors.New("decode chat response"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCL100KCounter(t *testing.T) {
	n, err := CL100KCounter()("hello world")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 tokens, got %d", n)
	}
}
