package oracle

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how transient oracle failures are retried.
// A call makes at most MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxElapsedTime caps the whole retry sequence. Zero means no cap.
	MaxElapsedTime time.Duration
	// Retryable classifies errors. Nil means IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy is exponential backoff with jitter starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          5,
		InitialInterval:     time.Second,
		MaxInterval:         60 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		Retryable:           IsRetryable,
	}
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsRetryable(err)
	}
	return p.Retryable(err)
}

// newBackOff builds a fresh schedule for one call. A zero InitialInterval
// retries immediately.
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.InitialInterval <= 0 {
		b = &backoff.ZeroBackOff{}
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.InitialInterval
		if p.MaxInterval > 0 {
			exp.MaxInterval = p.MaxInterval
		}
		if p.Multiplier > 0 {
			exp.Multiplier = p.Multiplier
		}
		exp.RandomizationFactor = p.RandomizationFactor
		exp.MaxElapsedTime = p.MaxElapsedTime
		exp.Reset()
		b = exp
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
