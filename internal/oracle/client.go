package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ashureev/sagredo/internal/transcript"
)

// ErrOracleUnavailable is matched by every failed completion.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// UnavailableError reports a completion that failed after Attempts tries.
type UnavailableError struct {
	Attempts int
	Last     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle unavailable after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrOracleUnavailable, e.Last}
}

// Completer produces the next assistant turn for a transcript.
type Completer interface {
	Complete(ctx context.Context, t transcript.Transcript, opts Options) (string, error)
}

// Config configures a Client.
type Config struct {
	Retry RetryPolicy
	// RequestsPerMinute paces attempts from this client. Zero disables pacing.
	RequestsPerMinute int
	Tokens            TokenCounter
	Logger            *slog.Logger
}

// Client wraps a Transport with retries, pacing, and logging.
type Client struct {
	transport Transport
	retry     RetryPolicy
	limiter   *rate.Limiter
	tokens    TokenCounter
	logger    *slog.Logger
}

var _ Completer = (*Client)(nil)

// New creates a Client over transport.
func New(transport Transport, cfg Config) *Client {
	c := &Client{
		transport: transport,
		retry:     cfg.Retry,
		tokens:    cfg.Tokens,
		logger:    cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tokens == nil {
		c.tokens = CL100KCounter()
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

// Complete asks the model for the next assistant turn. Transient failures are
// retried per the client's policy; any failure is an *UnavailableError.
func (c *Client) Complete(ctx context.Context, t transcript.Transcript, opts Options) (string, error) {
	req := newChatRequest(t, opts.withDefaults())

	attempts := 0
	var content string
	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempts++
		out, err := c.transport.ChatCompletion(ctx, req)
		if err != nil {
			if !c.retry.retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		content = out
		return nil
	}

	notify := func(err error, delay time.Duration) {
		attrs := []any{
			"attempt", attempts,
			"max_retries", c.retry.MaxRetries,
			"delay", delay,
			"model", req.Model,
			"error", err,
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			attrs = append(attrs, "status", statusErr.StatusCode)
		}
		if n, terr := c.tokens(t.Render()); terr == nil {
			attrs = append(attrs, "prompt_tokens", n)
		}
		c.logger.Warn("Oracle request failed, retrying", attrs...)
	}

	started := time.Now()
	if err := backoff.RetryNotify(operation, c.retry.newBackOff(ctx), notify); err != nil {
		c.logger.Error("Oracle request failed",
			"attempts", attempts,
			"model", req.Model,
			"duration", time.Since(started),
			"error", err,
		)
		return "", &UnavailableError{Attempts: attempts, Last: err}
	}

	c.logger.Debug("Oracle request completed",
		"attempts", attempts,
		"model", req.Model,
		"duration", time.Since(started),
		"response_chars", len(content),
	)
	return content, nil
}

// CompleteChat returns t extended with the model's reply as an assistant turn.
func (c *Client) CompleteChat(ctx context.Context, t transcript.Transcript, opts Options) (transcript.Transcript, error) {
	reply, err := c.Complete(ctx, t, opts)
	if err != nil {
		return t, err
	}
	return t.Append(transcript.RoleAssistant, reply), nil
}
