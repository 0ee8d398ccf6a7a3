package checker

import (
	"context"
	"errors"
	"fmt"
)

// WithSession starts a session, hands it to fn, and closes it when fn
// returns, whether fn succeeded, failed, or panicked.
func WithSession(ctx context.Context, starter Starter, fn func(Client) error) (err error) {
	sess, err := starter.Start(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close checker session: %w", cerr))
		}
	}()
	return fn(sess)
}

// Check runs code through a fresh session. A non-empty preamble is elaborated
// first and code is checked in its environment.
func Check(ctx context.Context, starter Starter, preamble, code string) (*Feedback, error) {
	var fb *Feedback
	err := WithSession(ctx, starter, func(c Client) error {
		var env *Env
		if preamble != "" {
			pre, err := c.RunCode(ctx, preamble, nil)
			if err != nil {
				return fmt.Errorf("preamble: %w", err)
			}
			if pre.HasErrors() {
				fb = pre
				return nil
			}
			if pre.Env.Valid() {
				env = &pre.Env
			}
		}
		var err error
		fb, err = c.RunCode(ctx, code, env)
		return err
	})
	if err != nil && fb == nil {
		return nil, err
	}
	return fb, err
}
