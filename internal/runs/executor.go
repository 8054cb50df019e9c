package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"visascout/internal/logging"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// StepFunc executes one bounded chunk of a run's search. It returns true
// when the run reached its terminal result and false when another chunk is
// needed. The function is responsible for recording its own progress events
// and the terminal state on the run.
type StepFunc func(ctx context.Context, runID string) (done bool, err error)

// Executor drives background runs through a fixed worker pool, one chunk
// per scheduling slot, so a handful of workers can interleave many runs and
// a cancellation lands between chunks rather than after the whole search.
type Executor struct {
	store   *Store
	step    StepFunc
	log     logging.Logger
	tasks   chan string
	workers int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewExecutor wires an executor over the run store
func NewExecutor(store *Store, step StepFunc, workers int, log logging.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		store:   store,
		step:    step,
		log:     log.WithField("component", "run_executor"),
		tasks:   make(chan string, 4*workers),
		workers: workers,
	}
}

// Start launches the worker pool
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.running = true
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	e.log.Info("Run executor started", map[string]interface{}{"workers": e.workers})
}

// Stop drains the pool. In-flight chunks finish; queued runs stay pending
// in the store and resume on the next start.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("run executor did not stop in time: %w", ctx.Err())
	}
}

// Enqueue schedules a run for its next chunk
func (e *Executor) Enqueue(runID string) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		return errors.New("run executor is not running")
	}
	select {
	case e.tasks <- runID:
		return nil
	default:
		return errors.New("run queue is full")
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	log := e.log.WithField("worker", id)
	for {
		select {
		case <-e.ctx.Done():
			return
		case runID := <-e.tasks:
			e.process(log, runID)
		}
	}
}

func (e *Executor) process(log logging.Logger, runID string) {
	if e.finishIfCancelled(runID) {
		return
	}

	done, err := e.step(e.ctx, runID)
	if err != nil {
		e.fail(log, runID, err)
		return
	}
	if done {
		return
	}
	if e.finishIfCancelled(runID) {
		return
	}

	// Re-enter the queue for the next chunk. A full queue parks the run; a
	// later status poll or maintenance pass re-enqueues pending work.
	select {
	case e.tasks <- runID:
	case <-e.ctx.Done():
	default:
		log.Warn("Run queue full, parking run", map[string]interface{}{"run_id": runID})
		time.AfterFunc(time.Second, func() { _ = e.Enqueue(runID) })
	}
}

// finishIfCancelled settles a run whose cancellation arrived between
// chunks. Returns true when the run is terminal either way.
func (e *Executor) finishIfCancelled(runID string) bool {
	terminal := false
	_, err := e.store.Update(runID, func(run *Run) error {
		if run.Status.IsTerminal() {
			terminal = true
			return nil
		}
		if !run.CancelRequested {
			return nil
		}
		run.Status = models.RunStatusCancelled
		run.CompletedAt = utils.ToISO(utils.UTCNow())
		run.Error = ""
		run.AppendEvent("cancelled", "Search run cancelled.", 100, nil)
		terminal = true
		return nil
	})
	if err != nil {
		// Pruned or unknown runs have nothing left to execute.
		return true
	}
	return terminal
}

func (e *Executor) fail(log logging.Logger, runID string, stepErr error) {
	cancelled := errors.Is(stepErr, utils.ErrRunCancelled)
	_, err := e.store.Update(runID, func(run *Run) error {
		if run.Status.IsTerminal() {
			return nil
		}
		run.CompletedAt = utils.ToISO(utils.UTCNow())
		if cancelled || run.CancelRequested {
			run.Status = models.RunStatusCancelled
			run.Error = ""
			run.AppendEvent("cancelled", "Search run cancelled.", 100, nil)
			return nil
		}
		run.Status = models.RunStatusFailed
		run.Error = stepErr.Error()
		run.AppendEvent("failed", stepErr.Error(), 100, nil)
		return nil
	})
	if err != nil {
		log.Error("Failed to settle run", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
}
