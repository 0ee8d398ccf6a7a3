// Package runner executes proof attempts, one checker session per attempt,
// and keeps a registry of attempts started in the background.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/oracle"
	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/store"
	"github.com/ashureev/sagredo/internal/transcript"
)

const (
	defaultConcurrency  = 2
	defaultKeepFinished = 100
	archiveTimeout      = 10 * time.Second
)

// ErrUnknownAttempt is returned for an ID the runner has never seen or has evicted.
var ErrUnknownAttempt = errors.New("unknown attempt")

// TranscriptSink receives the full transcript of every finished attempt.
type TranscriptSink interface {
	LogTranscript(attemptID string, t transcript.Transcript)
}

// Pruner forgets per-attempt state held elsewhere once the runner evicts an attempt.
type Pruner interface {
	Prune(attemptID string)
}

// Config configures a Runner.
type Config struct {
	Starter checker.Starter
	Oracle  oracle.Completer
	Prover  prover.Config
	// Concurrency bounds attempts running at once in RunBatch.
	Concurrency int
	// Repo archives finished attempts when non-nil.
	Repo        store.Repository
	Transcripts TranscriptSink
	// KeepFinished is how many finished background attempts stay queryable.
	KeepFinished int
	OnEvict      Pruner
	Logger       *slog.Logger
}

// Status is a snapshot of a background attempt.
type Status struct {
	ID        string                `json:"id"`
	Name      string                `json:"name,omitempty"`
	State     prover.State          `json:"state"`
	Step      int                   `json:"step"`
	Running   bool                  `json:"running"`
	StartedAt time.Time             `json:"started_at"`
	Record    *domain.AttemptRecord `json:"record,omitempty"`
}

type liveAttempt struct {
	id        string
	name      string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	last   prover.Event
	record *domain.AttemptRecord
}

func (l *liveAttempt) Observe(ev prover.Event) {
	l.mu.Lock()
	l.last = ev
	l.mu.Unlock()
}

func (l *liveAttempt) status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{
		ID:        l.id,
		Name:      l.name,
		State:     l.last.State,
		Step:      l.last.Step,
		Running:   l.record == nil,
		StartedAt: l.startedAt,
		Record:    l.record,
	}
	if st.State == "" {
		st.State = prover.StateInit
	}
	return st
}

// Runner runs attempts. Attempts share no mutable state; each gets its own
// checker session, transcript, and oracle retry schedule.
type Runner struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	live     map[string]*liveAttempt
	finished []string
	wg       sync.WaitGroup
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.KeepFinished <= 0 {
		cfg.KeepFinished = defaultKeepFinished
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger, live: make(map[string]*liveAttempt)}
}

// Run executes one task synchronously.
func (r *Runner) Run(ctx context.Context, task domain.ProofTask) *domain.AttemptRecord {
	return r.run(ctx, uuid.NewString(), task, nil)
}

// RunBatch executes tasks concurrently, at most Concurrency at a time.
// Results are in task order; a failed attempt never stops the others.
func (r *Runner) RunBatch(ctx context.Context, tasks []domain.ProofTask) []*domain.AttemptRecord {
	results := make([]*domain.AttemptRecord, len(tasks))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = r.Run(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Start launches task in the background and returns its ID. The attempt runs
// under ctx; cancel it with Cancel.
func (r *Runner) Start(ctx context.Context, task domain.ProofTask) (string, error) {
	if err := task.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	la := &liveAttempt{
		id:        id,
		name:      task.Name,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.live[id] = la
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		rec := r.run(ctx, id, task, la)
		la.mu.Lock()
		la.record = rec
		la.mu.Unlock()
		r.retire(id)
		close(la.done)
	}()

	r.logger.Info("Attempt started in background", "attempt_id", id, "name", task.Name)
	return id, nil
}

// Cancel requests cancellation of a running attempt. The attempt stops
// before its next external call.
func (r *Runner) Cancel(id string) error {
	la, ok := r.lookup(id)
	if !ok {
		return ErrUnknownAttempt
	}
	la.cancel()
	r.logger.Info("Attempt cancellation requested", "attempt_id", id)
	return nil
}

// Status returns a snapshot of a background attempt.
func (r *Runner) Status(id string) (Status, error) {
	la, ok := r.lookup(id)
	if !ok {
		return Status{}, ErrUnknownAttempt
	}
	return la.status(), nil
}

// Active returns snapshots of every attempt the runner still tracks.
func (r *Runner) Active() []Status {
	r.mu.Lock()
	attempts := make([]*liveAttempt, 0, len(r.live))
	for _, la := range r.live {
		attempts = append(attempts, la)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(attempts))
	for _, la := range attempts {
		out = append(out, la.status())
	}
	return out
}

// Wait blocks until a background attempt finishes.
func (r *Runner) Wait(ctx context.Context, id string) (*domain.AttemptRecord, error) {
	la, ok := r.lookup(id)
	if !ok {
		return nil, ErrUnknownAttempt
	}
	select {
	case <-la.done:
		return la.status().Record, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown cancels every background attempt and waits for them to finish.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, la := range r.live {
		la.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for attempts: %w", ctx.Err())
	}
}

func (r *Runner) lookup(id string) (*liveAttempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	la, ok := r.live[id]
	return la, ok
}

// retire keeps the last KeepFinished finished attempts queryable.
func (r *Runner) retire(id string) {
	r.mu.Lock()
	r.finished = append(r.finished, id)
	var evicted []string
	for len(r.finished) > r.cfg.KeepFinished {
		evicted = append(evicted, r.finished[0])
		delete(r.live, r.finished[0])
		r.finished = r.finished[1:]
	}
	r.mu.Unlock()

	if r.cfg.OnEvict != nil {
		for _, old := range evicted {
			r.cfg.OnEvict.Prune(old)
		}
	}
}

func (r *Runner) run(ctx context.Context, id string, task domain.ProofTask, la *liveAttempt) *domain.AttemptRecord {
	logger := r.logger.With("attempt_id", id, "name", task.Label())

	pcfg := r.cfg.Prover
	observers := prover.Observers{pcfg.Observer}
	if la != nil {
		observers = append(observers, la)
	}
	pcfg.Observer = observers
	pcfg.Logger = logger

	var attempt *prover.Attempt
	err := checker.WithSession(ctx, r.cfg.Starter, func(c checker.Client) error {
		ctrl := prover.New(r.cfg.Oracle, c, pcfg)
		var runErr error
		attempt, runErr = ctrl.RunWithID(ctx, id, task.Task)
		return runErr
	})
	if attempt == nil {
		attempt = startFailure(id, task.Task, err)
		observers.Observe(prover.Event{
			AttemptID: id,
			State:     prover.StateFailed,
			Reason:    attempt.Reason,
			Detail:    attempt.Error(),
			At:        attempt.FinishedAt,
		})
	} else if err != nil && attempt.Err == nil {
		logger.Warn("Checker session did not close cleanly", "error", err)
	}

	rec := domain.NewAttemptRecord(task.Name, attempt)
	r.archive(logger, rec)
	logger.Info("Attempt finished",
		"state", rec.State,
		"reason", rec.Reason,
		"steps", rec.Steps,
		"duration", rec.Duration(),
	)
	return rec
}

// startFailure describes an attempt whose checker session never started.
func startFailure(id string, task prover.Task, err error) *prover.Attempt {
	now := time.Now()
	reason := prover.ReasonCheckerUnavailable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		reason = prover.ReasonCancelled
		err = fmt.Errorf("%w: %v", prover.ErrCancelled, err)
	}
	return &prover.Attempt{
		ID:         id,
		Task:       task,
		State:      prover.StateFailed,
		Reason:     reason,
		Err:        err,
		Source:     task.Code,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (r *Runner) archive(logger *slog.Logger, rec *domain.AttemptRecord) {
	if r.cfg.Transcripts != nil {
		r.cfg.Transcripts.LogTranscript(rec.ID, rec.Transcript)
	}
	if r.cfg.Repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.cfg.Repo.SaveAttempt(ctx, rec); err != nil {
		logger.Error("Failed to archive attempt", "error", err)
	}
}
