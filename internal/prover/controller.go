package prover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/oracle"
	"github.com/ashureev/sagredo/internal/prompts"
	"github.com/ashureev/sagredo/internal/transcript"
)

const (
	DefaultMaxSteps       = 20
	DefaultOracleTimeout  = 10 * time.Minute
	DefaultCheckerTimeout = 2 * time.Minute
)

// Config tunes a Controller.
type Config struct {
	// MaxSteps bounds oracle calls per attempt.
	MaxSteps       int
	Options        oracle.Options
	OracleTimeout  time.Duration
	CheckerTimeout time.Duration
	// SystemPrompt overrides prompts.System when non-empty.
	SystemPrompt string
	Observer     Observer
	Logger       *slog.Logger
}

// Controller runs proof attempts against one oracle and one checker session.
// A Controller runs one attempt at a time; use one per concurrent attempt.
type Controller struct {
	oracle  oracle.Completer
	checker checker.Client
	cfg     Config
	logger  *slog.Logger
}

// New creates a Controller.
func New(o oracle.Completer, c checker.Client, cfg Config) *Controller {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = DefaultOracleTimeout
	}
	if cfg.CheckerTimeout <= 0 {
		cfg.CheckerTimeout = DefaultCheckerTimeout
	}
	if cfg.Options == (oracle.Options{}) {
		cfg.Options = oracle.DefaultOptions()
	} else if cfg.Options.Model == "" {
		cfg.Options.Model = oracle.DefaultOptions().Model
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = prompts.System()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{oracle: o, checker: c, cfg: cfg, logger: logger}
}

// run holds the mutable state of one attempt.
type run struct {
	*Controller
	ctx     context.Context
	attempt *Attempt
	logger  *slog.Logger

	preambleDone bool
	preambleEnv  *checker.Env
}

// Run executes the proof search loop for task. The returned Attempt is never
// nil; when the attempt ends in FAILED, err is the attempt's error.
// Cancelling ctx stops the attempt before the next external call; calls in
// flight run to completion under their own timeouts.
func (c *Controller) Run(ctx context.Context, task Task) (*Attempt, error) {
	return c.RunWithID(ctx, uuid.NewString(), task)
}

// RunWithID is Run with a caller-chosen attempt ID.
func (c *Controller) RunWithID(ctx context.Context, id string, task Task) (*Attempt, error) {
	r := &run{
		Controller: c,
		ctx:        ctx,
		attempt: &Attempt{
			ID:        id,
			Task:      task,
			Source:    task.Code,
			StartedAt: time.Now(),
		},
		logger: c.logger.With("attempt_id", id),
	}
	r.transition(StateInit, string(task.Kind))

	if err := task.Validate(); err != nil {
		return r.fail(ReasonNone, err)
	}

	r.attempt.Transcript = transcript.New(c.cfg.SystemPrompt, task.SeedPrompt())
	r.logger.Info("Proof attempt started", "kind", task.Kind, "max_steps", c.cfg.MaxSteps)

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(ReasonCancelled, fmt.Errorf("%w: %v", ErrCancelled, err))
		}
		if r.attempt.Steps >= c.cfg.MaxSteps {
			return r.fail(ReasonStepLimitExceeded, fmt.Errorf("%w: %d steps", ErrStepLimitExceeded, c.cfg.MaxSteps))
		}
		if done, err := r.step(); done {
			return r.attempt, err
		}
	}
}

// step performs one oracle call and, when it yields code, one checker call.
// It reports whether the attempt reached a terminal state.
func (r *run) step() (bool, error) {
	a := r.attempt
	a.Steps++
	started := time.Now()
	rec := Step{Index: a.Steps}

	r.transition(StateAwaitingOracle, "")
	completion, err := r.complete()
	if err != nil {
		_, ferr := r.fail(ReasonOracleUnavailable, err)
		return true, ferr
	}
	a.Transcript = a.Transcript.Append(transcript.RoleAssistant, completion)

	code, err := ExtractCode(completion)
	if err != nil {
		r.logger.Warn("Completion has no code block, re-prompting", "step", a.Steps)
		a.Transcript = a.Transcript.Append(transcript.RoleUser, prompts.MissingCodeBlock())
		rec.State = StateContinue
		rec.Detail = err.Error()
		r.record(rec, started)
		r.transition(StateContinue, err.Error())
		return false, nil
	}
	rec.Source = code
	a.Source = code

	if err := r.ctx.Err(); err != nil {
		r.record(rec, started)
		_, ferr := r.fail(ReasonCancelled, fmt.Errorf("%w: %v", ErrCancelled, err))
		return true, ferr
	}

	r.transition(StateAwaitingCheck, "")
	fb, err := r.check(code)
	if err != nil {
		r.record(rec, started)
		reason := ReasonCheckerUnavailable
		if errors.Is(err, checker.ErrCheckerTimeout) {
			reason = ReasonCheckerTimeout
		}
		_, ferr := r.fail(reason, err)
		return true, ferr
	}
	a.Feedback = fb
	rec.Feedback = fb

	next, prompt := decide(code, fb)
	rec.State = next
	r.record(rec, started)

	if next == StateComplete {
		r.finish(StateComplete, ReasonNone, nil)
		r.logger.Info("Proof attempt complete", "steps", a.Steps, "duration", time.Since(a.StartedAt))
		return true, nil
	}

	a.Transcript = a.Transcript.Append(transcript.RoleUser, prompt)
	r.transition(next, summarize(fb))
	return false, nil
}

// decide maps checker feedback to the next state and follow-up prompt.
func decide(code string, fb *checker.Feedback) (State, string) {
	switch {
	case fb.HasErrors():
		return StateContinue, prompts.NewGoalState(errorState(fb))
	case ContainsSorry(code):
		return StateStuckSorry, prompts.RemoveSorry()
	case len(fb.Sorries) == 0:
		return StateComplete, ""
	default:
		return StateContinue, prompts.NewGoalState(goalState(fb))
	}
}

func (r *run) complete() (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.cfg.OracleTimeout)
	defer cancel()
	return r.oracle.Complete(ctx, r.attempt.Transcript, r.cfg.Options)
}

// check submits code, chained to the preamble environment when code extends it.
func (r *run) check(code string) (*checker.Feedback, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.cfg.CheckerTimeout)
	defer cancel()

	preamble := r.attempt.Task.Preamble
	if preamble != "" && !r.preambleDone {
		r.preambleDone = true
		fb, err := r.checker.RunCode(ctx, preamble, nil)
		if err != nil {
			return nil, err
		}
		if fb.HasErrors() || !fb.Env.Valid() {
			r.logger.Warn("Preamble does not elaborate cleanly, checking snippets in full", "feedback", fb.Summary())
		} else {
			env := fb.Env
			r.preambleEnv = &env
		}
	}

	if r.preambleEnv != nil && strings.HasPrefix(code, preamble) {
		return r.checker.RunCode(ctx, strings.TrimPrefix(code, preamble), r.preambleEnv)
	}
	return r.checker.RunCode(ctx, code, nil)
}

func (r *run) record(s Step, started time.Time) {
	s.Duration = time.Since(started)
	r.attempt.History = append(r.attempt.History, s)
}

func (r *run) transition(s State, detail string) {
	r.attempt.State = s
	r.logger.Debug("Proof attempt transition", "state", s, "step", r.attempt.Steps)
	r.emit(s, detail)
}

func (r *run) fail(reason Reason, err error) (*Attempt, error) {
	r.finish(StateFailed, reason, err)
	r.logger.Warn("Proof attempt failed", "reason", reason, "steps", r.attempt.Steps, "error", err)
	return r.attempt, err
}

func (r *run) finish(s State, reason Reason, err error) {
	a := r.attempt
	a.Reason = reason
	a.Err = err
	a.FinishedAt = time.Now()
	a.State = s
	detail := string(reason)
	if err != nil {
		detail = err.Error()
	}
	r.emit(s, detail)
}

func (r *run) emit(s State, detail string) {
	if r.cfg.Observer == nil {
		return
	}
	r.cfg.Observer.Observe(Event{
		AttemptID: r.attempt.ID,
		Step:      r.attempt.Steps,
		State:     s,
		Reason:    r.attempt.Reason,
		Detail:    detail,
		At:        time.Now(),
	})
}

func summarize(fb *checker.Feedback) string {
	return fmt.Sprintf("%d error(s), %d goal(s)", len(fb.Errors()), len(fb.Sorries))
}
