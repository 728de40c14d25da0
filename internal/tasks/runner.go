// Package tasks implements the asynchronous ingestion pipeline: a bounded
// worker pool consuming a shared queue of submitted raw inputs, executing
// the paragraph indexing service with retry and exponential backoff, and
// exposing task state for polling.
//
// Semantics:
//   - Submit validates input, registers a Pending task, and returns its
//     identifier immediately; callers never wait for completion.
//   - Workers move a task Pending → Running → Succeeded|Failed. A retry is
//     a Running → Running self-loop; the backoff delay suspends only that
//     task, other workers keep draining the queue.
//   - Storage failures are retried up to Policy.MaxAttempts; validation
//     failures and a missing owner are permanent and fail the task on the
//     first attempt.
//   - No ordering guarantee exists between tasks, even for one user.
//   - There is no cancel API; a Running task always runs to a terminal
//     state. Terminal tasks are pruned after ResultTTL.
//
// Task records live in process memory only; durable state is the
// paragraphs the indexer persists.
package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"github.com/tbourn/go-paragraph-backend/internal/services"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Status is the lifecycle state of an ingestion task.
type Status string

// Task lifecycle states. Pending and Running are transient; Succeeded and
// Failed are terminal and never change again.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

var (
	// ErrNotRunning is returned by Submit before Start (or after Shutdown).
	ErrNotRunning = errors.New("task runner is not running")

	// ErrQueueFull is returned by Submit when the ingestion queue has no
	// free slot; the caller may retry later.
	ErrQueueFull = errors.New("ingestion queue full")
)

// Task is the transient record of one ingestion submission.
//
// RetryCount counts retry attempts after the first execution; a task that
// exhausts its retries ends Failed with RetryCount == Policy.MaxAttempts.
type Task struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RawInput     string    `json:"-"`
	Status       Status    `json:"status"`
	ParagraphIDs []string  `json:"paragraph_ids,omitempty"`
	RetryCount   int       `json:"retry_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Indexer is the slice of ParagraphService the runner needs.
type Indexer interface {
	Index(ctx context.Context, ownerID, raw string) ([]domain.Paragraph, error)
}

// Policy configures the retry behavior of the runner.
type Policy struct {
	// MaxAttempts is the number of retries after the first execution.
	MaxAttempts uint64
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// Multiplier scales the delay after every retry (minimum 1).
	Multiplier float64
}

// backoff returns a fresh exponential backoff sequence for one execution.
// Callers wrap it with retry.WithMaxRetries to bound the attempt count.
func (p Policy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	next := float64(base)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := time.Duration(next)
		next *= mult
		return d, false
	})
}

// Runner executes ingestion tasks on a bounded worker pool.
type Runner struct {
	indexer Indexer
	policy  Policy
	workers int

	// ResultTTL bounds how long terminal task records stay pollable.
	ResultTTL time.Duration

	mu      sync.Mutex
	tasks   map[string]*Task
	started bool

	queue  chan string
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner constructs a Runner with the given worker count, queue
// capacity, and retry policy. Non-positive workers or queueCap fall back
// to small defaults. Call Start before Submit.
func NewRunner(indexer Indexer, workers, queueCap int, policy Policy) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueCap <= 0 {
		queueCap = 256
	}
	return &Runner{
		indexer:   indexer,
		policy:    policy,
		workers:   workers,
		ResultTTL: time.Hour,
		tasks:     make(map[string]*Task),
		queue:     make(chan string, queueCap),
	}
}

// Start launches the worker pool. Workers run until Shutdown closes the
// queue or the parent context is canceled.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)

	r.mu.Lock()
	r.ctx = egCtx
	r.cancel = cancel
	r.eg = eg
	r.started = true
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		eg.Go(func() error {
			for id := range r.queue {
				r.execute(id)
			}
			return nil
		})
	}
}

// Submit validates raw input, registers a Pending task, and enqueues it.
// It returns the task identifier without waiting for execution.
//
// Errors:
//   - services.ErrEmptyInput for blank input (no task is created).
//   - ErrNotRunning before Start or after Shutdown.
//   - ErrQueueFull when the queue has no capacity (no task is left behind).
func (r *Runner) Submit(_ context.Context, userID, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", services.ErrEmptyInput
	}

	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		RawInput:  raw,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return "", ErrNotRunning
	}
	r.pruneLocked(now)
	r.tasks[t.ID] = t
	r.mu.Unlock()

	select {
	case r.queue <- t.ID:
		return t.ID, nil
	default:
		r.mu.Lock()
		delete(r.tasks, t.ID)
		r.mu.Unlock()
		return "", ErrQueueFull
	}
}

// Status returns a snapshot copy of the task, or ok=false when the
// identifier is unknown (never submitted, or pruned after its TTL).
func (r *Runner) Status(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	cp := *t
	cp.ParagraphIDs = append([]string(nil), t.ParagraphIDs...)
	return cp, true
}

// Shutdown stops accepting submissions, drains queued tasks, and waits for
// in-flight work to finish.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	close(r.queue)
	r.mu.Unlock()

	err := r.eg.Wait()
	r.cancel()
	return err
}

// execute runs one task to a terminal state, retrying transient failures
// per the configured policy.
func (r *Runner) execute(id string) {
	t, ok := r.Status(id)
	if !ok {
		return
	}

	tr := otel.Tracer("tasks/Runner")
	ctx, span := tr.Start(r.ctx, "execute",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.String("user.id", t.UserID),
		),
	)
	defer span.End()

	started := time.Now()
	tasksInflight.Inc()
	defer tasksInflight.Dec()

	r.update(id, func(t *Task) { t.Status = StatusRunning })

	attempt := 0
	var paragraphIDs []string
	err := retry.Do(ctx, retry.WithMaxRetries(r.policy.MaxAttempts, r.policy.backoff()), func(ctx context.Context) error {
		if attempt > 0 {
			taskRetries.Inc()
			n := attempt
			r.update(id, func(t *Task) { t.RetryCount = n })
		}
		attempt++

		created, err := r.indexer.Index(ctx, t.UserID, t.RawInput)
		if err != nil {
			msg := err.Error()
			r.update(id, func(t *Task) { t.LastError = msg })
			if permanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}

		ids := make([]string, len(created))
		for i, p := range created {
			ids[i] = p.ID
		}
		paragraphIDs = ids
		return nil
	})

	if err != nil {
		msg := err.Error()
		r.update(id, func(t *Task) {
			t.Status = StatusFailed
			t.LastError = msg
		})
		observeOutcome(StatusFailed, started)
		log.Error().
			Err(err).
			Str("task_id", id).
			Str("user_id", t.UserID).
			Int("retries", attempt-1).
			Msg("ingestion task failed")
		return
	}

	r.update(id, func(t *Task) {
		t.Status = StatusSucceeded
		t.ParagraphIDs = paragraphIDs
	})
	observeOutcome(StatusSucceeded, started)
	log.Info().
		Str("task_id", id).
		Str("user_id", t.UserID).
		Int("paragraphs", len(paragraphIDs)).
		Msg("ingestion task succeeded")
}

// permanent reports whether err can never be resolved by retrying.
func permanent(err error) bool {
	return errors.Is(err, services.ErrUserNotFound) ||
		errors.Is(err, services.ErrEmptyInput) ||
		errors.Is(err, services.ErrInputTooLong)
}

// update mutates a task under the lock and refreshes its UpdatedAt.
func (r *Runner) update(id string, fn func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		fn(t)
		t.UpdatedAt = time.Now().UTC()
	}
}

// pruneLocked drops terminal tasks older than ResultTTL. Caller holds mu.
func (r *Runner) pruneLocked(now time.Time) {
	if r.ResultTTL <= 0 {
		return
	}
	for id, t := range r.tasks {
		if t.Status.Terminal() && now.Sub(t.UpdatedAt) > r.ResultTTL {
			delete(r.tasks, id)
		}
	}
}
