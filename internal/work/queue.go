package work

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/events"
)

// queueDepth bounds how many submitted runs can wait for a worker.
const queueDepth = 64

// Runner executes one kind of run. The context is cancelled when the run
// is cancelled or the queue shuts down; the returned value is JSON-encoded
// into the run record.
type Runner func(ctx context.Context, params json.RawMessage) (any, error)

type queuedRun struct {
	id     string
	kind   RunKind
	params json.RawMessage
}

// Queue executes submitted runs on a fixed worker pool. Every state change
// is journaled through the repository and published on the event bus.
type Queue struct {
	repo    *RunRepository
	bus     *events.Bus
	workers int
	log     zerolog.Logger

	pending chan queuedRun

	mu        sync.Mutex
	runners   map[RunKind]Runner
	active    map[string]context.CancelFunc
	cancelled map[string]bool // pending runs cancelled before a worker picked them up

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

func NewQueue(repo *RunRepository, bus *events.Bus, workers int, log zerolog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		repo:       repo,
		bus:        bus,
		workers:    workers,
		log:        log.With().Str("component", "run_queue").Logger(),
		pending:    make(chan queuedRun, queueDepth),
		runners:    make(map[RunKind]Runner),
		active:     make(map[string]context.CancelFunc),
		cancelled:  make(map[string]bool),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Register binds a runner to a run kind. Submissions for unregistered
// kinds are rejected.
func (q *Queue) Register(kind RunKind, r Runner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runners[kind] = r
}

// Start fails over runs interrupted by a previous process, then launches
// the worker pool.
func (q *Queue) Start() error {
	if _, err := q.repo.FailInterrupted(); err != nil {
		return err
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.log.Info().Int("workers", q.workers).Msg("Run queue started")
	return nil
}

// Stop cancels in-flight runs and waits for the workers to drain.
func (q *Queue) Stop() {
	q.baseCancel()
	q.wg.Wait()
	q.log.Info().Msg("Run queue stopped")
}

// Submit journals a run and hands it to the worker pool. Params must be
// JSON-serializable; they are stored verbatim on the run record.
func (q *Queue) Submit(kind RunKind, symbol, strategy, metric string, params any) (string, error) {
	q.mu.Lock()
	_, registered := q.runners[kind]
	q.mu.Unlock()
	if !registered {
		return "", fmt.Errorf("%w: unknown run kind %q", domain.ErrInvalidInput, kind)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding run params: %w", err)
	}

	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Symbol:    symbol,
		Strategy:  strategy,
		Metric:    metric,
		Status:    StatusPending,
		Params:    raw,
		StartedAt: time.Now().UTC(),
	}
	if err := q.repo.Insert(run); err != nil {
		return "", err
	}

	select {
	case q.pending <- queuedRun{id: run.ID, kind: kind, params: raw}:
	default:
		_ = q.repo.Fail(kind, run.ID, "run queue is full")
		return "", fmt.Errorf("%w: run queue is full", domain.ErrRateLimited)
	}

	q.publish(events.RunQueued, run.ID, kind, nil)
	q.log.Debug().Str("run_id", run.ID).Str("kind", string(kind)).Str("symbol", symbol).Msg("Run queued")
	return run.ID, nil
}

// Get returns the journaled state of a run.
func (q *Queue) Get(id string) (*Run, error) {
	return q.repo.Get(id)
}

// List returns the most recent runs, newest first.
func (q *Queue) List(limit int) ([]Run, error) {
	return q.repo.List(limit)
}

// Cancel stops a pending or running run. Cancelling a finished run is an
// error.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	if cancel, ok := q.active[id]; ok {
		cancel()
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	run, err := q.repo.Get(id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s already finished", domain.ErrInvalidInput, id)
	}

	q.mu.Lock()
	q.cancelled[id] = true
	q.mu.Unlock()

	if err := q.repo.MarkCancelled(run.Kind, id); err != nil {
		return err
	}
	q.publish(events.RunCancelled, id, run.Kind, nil)
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.baseCtx.Done():
			return
		case job := <-q.pending:
			q.execute(job)
		}
	}
}

func (q *Queue) execute(job queuedRun) {
	q.mu.Lock()
	if q.cancelled[job.id] {
		delete(q.cancelled, job.id)
		q.mu.Unlock()
		return
	}
	runner := q.runners[job.kind]
	ctx, cancel := context.WithCancel(q.baseCtx)
	q.active[job.id] = cancel
	q.mu.Unlock()

	ctx = withProgress(ctx, func(stage string, fraction float64) {
		q.publish(events.RunProgress, job.id, job.kind, map[string]any{
			"stage":    stage,
			"fraction": fraction,
		})
	})

	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.active, job.id)
		q.mu.Unlock()
	}()

	if err := q.repo.MarkRunning(job.kind, job.id); err != nil {
		q.log.Error().Err(err).Str("run_id", job.id).Msg("Failed to mark run running")
		return
	}
	q.publish(events.RunStarted, job.id, job.kind, nil)

	started := time.Now()
	result, err := runner(ctx, job.params)
	elapsed := time.Since(started)

	switch {
	case err != nil && (errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled)):
		if err := q.repo.MarkCancelled(job.kind, job.id); err != nil {
			q.log.Error().Err(err).Str("run_id", job.id).Msg("Failed to mark run cancelled")
		}
		q.publish(events.RunCancelled, job.id, job.kind, nil)
		q.log.Info().Str("run_id", job.id).Dur("elapsed", elapsed).Msg("Run cancelled")

	case err != nil:
		if err := q.repo.Fail(job.kind, job.id, err.Error()); err != nil {
			q.log.Error().Err(err).Str("run_id", job.id).Msg("Failed to mark run failed")
		}
		q.publish(events.RunFailed, job.id, job.kind, map[string]any{"error": err.Error()})
		q.log.Warn().Err(err).Str("run_id", job.id).Dur("elapsed", elapsed).Msg("Run failed")

	default:
		raw, merr := json.Marshal(result)
		if merr != nil {
			_ = q.repo.Fail(job.kind, job.id, fmt.Sprintf("encoding result: %v", merr))
			q.publish(events.RunFailed, job.id, job.kind, map[string]any{"error": merr.Error()})
			return
		}
		if err := q.repo.Complete(job.kind, job.id, raw); err != nil {
			q.log.Error().Err(err).Str("run_id", job.id).Msg("Failed to mark run completed")
		}
		q.publish(events.RunCompleted, job.id, job.kind, nil)
		q.log.Info().Str("run_id", job.id).Str("kind", string(job.kind)).Dur("elapsed", elapsed).Msg("Run completed")
	}
}

func (q *Queue) publish(t events.EventType, id string, kind RunKind, extra map[string]any) {
	data := map[string]any{"run_id": id, "kind": string(kind)}
	for k, v := range extra {
		data[k] = v
	}
	q.bus.Publish(t, data)
}
