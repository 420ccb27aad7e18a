package jobs

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobHandler executes a specific type of job.
type JobHandler func(ctx context.Context, job *Job, progress func(int)) (interface{}, error)

// Runner manages background job execution.
type Runner struct {
	store    *Store
	logger   *slog.Logger
	handlers map[JobType]JobHandler

	queue       chan *Job
	queueSize   int
	workerCount int

	done     chan struct{}
	stopOnce sync.Once
	cancel   map[string]context.CancelFunc
	queued   map[string]struct{} // ids sitting in queue, guarded by mu

	mu sync.RWMutex
	wg sync.WaitGroup

	processedCount atomic.Int64
	failedCount    atomic.Int64

	recoveryInterval time.Duration
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize        int
	WorkerCount      int
	RecoveryInterval time.Duration // How often to check for queued jobs left in the store
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize: 16,
		// One worker: reindex jobs swap the whole index, running two at once
		// only wastes work.
		WorkerCount:      1,
		RecoveryInterval: 30 * time.Second,
	}
}

// NewRunner creates a new job runner.
func NewRunner(store *Store, logger *slog.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.RecoveryInterval <= 0 {
		config.RecoveryInterval = 30 * time.Second
	}

	return &Runner{
		store:            store,
		logger:           logger,
		handlers:         make(map[JobType]JobHandler),
		queue:            make(chan *Job, config.QueueSize),
		queueSize:        config.QueueSize,
		workerCount:      config.WorkerCount,
		done:             make(chan struct{}),
		cancel:           make(map[string]context.CancelFunc),
		queued:           make(map[string]struct{}),
		recoveryInterval: config.RecoveryInterval,
	}
}

// Store returns the backing store.
func (r *Runner) Store() *Store {
	return r.store
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType JobType, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
	r.logger.Debug("Registered job handler", "type", jobType)
}

// Start begins processing jobs.
func (r *Runner) Start() error {
	if n, err := r.store.FailInterrupted(); err != nil {
		r.logger.Warn("Failed to mark interrupted jobs", "error", err)
	} else if n > 0 {
		r.logger.Info("Marked interrupted jobs as failed", "count", n)
	}

	r.logger.Info("Starting job runner",
		"workers", r.workerCount,
		"queueSize", r.queueSize,
		"recoveryInterval", r.recoveryInterval.String(),
	)

	for i := range r.workerCount {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.recoveryLoop()

	r.recoverPendingJobs()

	return nil
}

func (r *Runner) recoveryLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.recoverPendingJobs()
		case <-r.done:
			return
		}
	}
}

// recoverPendingJobs enqueues queued jobs that did not fit in the queue
// when they were submitted. Jobs already waiting in the queue or running
// are skipped.
func (r *Runner) recoverPendingJobs() {
	pending, err := r.store.GetPendingJobs()
	if err != nil {
		r.logger.Warn("Failed to recover pending jobs", "error", err)
		return
	}

	recovered := 0
	for _, job := range pending {
		if len(r.queue) >= r.queueSize {
			break
		}
		if !r.markQueued(job.ID) {
			continue
		}
		select {
		case r.queue <- job:
			recovered++
		default:
			r.unmarkQueued(job.ID)
		}
	}

	if recovered > 0 {
		r.logger.Info("Recovered pending jobs",
			"recovered", recovered,
			"remaining", len(pending)-recovered,
		)
	}
}

// Stop gracefully shuts down the runner.
func (r *Runner) Stop(timeout time.Duration) error {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	for id, cancel := range r.cancel {
		r.logger.Debug("Cancelling running job", "jobId", id)
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Debug("Job runner stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit persists a job and queues it.
func (r *Runner) Submit(job *Job) error {
	if err := r.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}

	r.markQueued(job.ID)
	select {
	case r.queue <- job:
		r.logger.Debug("Job queued", "jobId", job.ID, "type", job.Type)
		return nil
	case <-time.After(100 * time.Millisecond):
		// Queue is full, job remains in database and will be picked up later
		r.unmarkQueued(job.ID)
		r.logger.Warn("Job queue full, job will be processed later", "jobId", job.ID)
		return nil
	case <-r.done:
		r.unmarkQueued(job.ID)
		return fmt.Errorf("runner is shutting down")
	}
}

// markQueued records id as waiting in the queue. It reports false when the
// job is already queued or running.
func (r *Runner) markQueued(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queued[id]; ok {
		return false
	}
	if _, ok := r.cancel[id]; ok {
		return false
	}
	r.queued[id] = struct{}{}
	return true
}

func (r *Runner) unmarkQueued(id string) {
	r.mu.Lock()
	delete(r.queued, id)
	r.mu.Unlock()
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	job, err := r.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if !job.CanCancel() {
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}

	r.mu.Lock()
	if cancel, ok := r.cancel[jobID]; ok {
		cancel()
	}
	r.mu.Unlock()

	job.MarkCancelled()
	return r.store.UpdateJob(job)
}

// GetJob retrieves a job by ID.
func (r *Runner) GetJob(jobID string) (*Job, error) {
	return r.store.GetJob(jobID)
}

// ListJobs lists jobs with filters.
func (r *Runner) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	return r.store.ListJobs(opts)
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(job)

		case <-r.done:
			r.logger.Debug("Job worker stopping", "workerId", id)
			return
		}
	}
}

func (r *Runner) processJob(job *Job) {
	// A job may have been cancelled while it sat in the queue.
	if current, err := r.store.GetJob(job.ID); err == nil && current != nil && current.IsTerminal() {
		r.unmarkQueued(job.ID)
		return
	}

	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	r.mu.RUnlock()

	if !ok {
		r.unmarkQueued(job.ID)
		r.logger.Error("No handler for job type", "jobId", job.ID, "type", job.Type)
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		_ = r.store.UpdateJob(job)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Queued to running under one lock, so recovery cannot enqueue it again.
	r.mu.Lock()
	delete(r.queued, job.ID)
	r.cancel[job.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	job.MarkStarted()
	if err := r.store.UpdateJob(job); err != nil {
		r.logger.Error("Failed to update job status", "jobId", job.ID, "error", err)
	}

	r.logger.Info("Processing job", "jobId", job.ID, "type", job.Type)

	progress := func(pct int) {
		job.SetProgress(pct)
		if err := r.store.UpdateJob(job); err != nil {
			r.logger.Warn("Failed to update job progress", "jobId", job.ID, "error", err)
		}
	}

	startTime := time.Now()
	result, err := handler(ctx, job, progress)
	duration := time.Since(startTime)

	switch {
	case err != nil && stderrors.Is(ctx.Err(), context.Canceled):
		job.MarkCancelled()
		r.logger.Info("Job cancelled", "jobId", job.ID, "duration", duration.String())
	case err != nil:
		job.MarkFailed(err)
		r.failedCount.Add(1)
		r.logger.Error("Job failed", "jobId", job.ID, "error", err, "duration", duration.String())
	default:
		if err := job.MarkCompleted(result); err != nil {
			r.failedCount.Add(1)
			r.logger.Error("Failed to serialize job result", "jobId", job.ID, "error", err)
		} else {
			r.processedCount.Add(1)
			r.logger.Info("Job completed", "jobId", job.ID, "duration", duration.String())
		}
	}

	if err := r.store.UpdateJob(job); err != nil {
		r.logger.Error("Failed to save job final state", "jobId", job.ID, "error", err)
	}
}

// Stats returns runner statistics.
func (r *Runner) Stats() map[string]interface{} {
	r.mu.RLock()
	runningCount := len(r.cancel)
	r.mu.RUnlock()

	return map[string]interface{}{
		"queueLength":    len(r.queue),
		"queueCapacity":  r.queueSize,
		"runningJobs":    runningCount,
		"processedTotal": r.processedCount.Load(),
		"failedTotal":    r.failedCount.Load(),
		"workerCount":    r.workerCount,
	}
}

// QueueLength returns the current queue length.
func (r *Runner) QueueLength() int {
	return len(r.queue)
}

// IsRunning returns true if the runner is active.
func (r *Runner) IsRunning() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
