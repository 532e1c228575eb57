// Package worker is the per-process runtime that leases Jobs and runs
// Stage Handlers against them (spec.md §5). Grounded on
// _examples/fanjia1024-Aetheris/internal/app/worker/agent_job.go's
// AgentJobRunner: a semaphore-bounded claim loop, a heartbeat goroutine
// per in-flight job, and a stopCh/WaitGroup for graceful shutdown. The
// idle-exit behavior (consecutive empty polls, --continuous) has no
// teacher analogue; it is ported from
// _examples/original_source/workers/*/main.py's worker loops.
package worker

import (
	"context"
	"sync"
	"time"

	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/pkg/log"
	"barcode-pipeline/pkg/metrics"
)

// Handler executes one Job and returns the result fields to store on
// completion.
type Handler func(ctx context.Context, j *model.Job) (map[string]string, error)

// IdleExitThreshold is the number of consecutive empty poll rounds,
// across all job types, before Run returns when continuous is false.
// Grounded on _examples/original_source/workers/*/main.py's
// consecutive_empty >= 2 exit condition.
const IdleExitThreshold = 2

// Runtime polls a fixed set of job types, leases one job per type per
// round, and dispatches each to its Handler under a concurrency-bounded
// semaphore.
type Runtime struct {
	workerID      string
	jobs          metadata.JobRepository
	handlers      map[model.JobType]Handler
	order         []model.JobType
	pollInterval  time.Duration
	leaseDuration time.Duration
	maxRetries    int
	continuous    bool

	limiter chan struct{}
	logger  *log.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config controls the claim loop's pacing and concurrency.
type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	LeaseDuration time.Duration
	BatchSize     int
	MaxRetries    int
	Continuous    bool
}

// New builds a Runtime. handlers maps each job type this process serves
// to the function that executes it. The order in which job types are
// polled within a round is not defined; every type is polled once per
// round with equal priority.
func New(cfg Config, jobs metadata.JobRepository, handlers map[model.JobType]Handler, logger *log.Logger) *Runtime {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	order := make([]model.JobType, 0, len(handlers))
	for jt := range handlers {
		order = append(order, jt)
	}
	return &Runtime{
		workerID:      cfg.WorkerID,
		jobs:          jobs,
		handlers:      handlers,
		order:         order,
		pollInterval:  cfg.PollInterval,
		leaseDuration: cfg.LeaseDuration,
		maxRetries:    cfg.MaxRetries,
		continuous:    cfg.Continuous,
		limiter:       make(chan struct{}, batchSize),
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Run polls until ctx is cancelled, Stop is called, or (when Continuous
// is false) IdleExitThreshold consecutive rounds find no eligible job in
// any job type.
func (rt *Runtime) Run(ctx context.Context) error {
	consecutiveEmpty := 0
	for {
		select {
		case <-rt.stopCh:
			rt.wg.Wait()
			return nil
		case <-ctx.Done():
			rt.wg.Wait()
			return ctx.Err()
		default:
		}

		claimedAny := false
		for _, jt := range rt.order {
			j, err := rt.jobs.ClaimNext(ctx, jt, rt.workerID, time.Now(), rt.leaseDuration)
			if err != nil {
				rt.logger.Error("claim failed", "job_type", jt, "error", err)
				continue
			}
			if j == nil {
				continue
			}
			claimedAny = true
			metrics.JobsLeasedTotal.WithLabelValues(string(jt)).Inc()
			rt.dispatch(ctx, j)
		}

		if claimedAny {
			consecutiveEmpty = 0
			continue
		}

		consecutiveEmpty++
		if !rt.continuous && consecutiveEmpty >= IdleExitThreshold {
			rt.logger.Info("no eligible jobs, exiting", "consecutive_empty", consecutiveEmpty)
			rt.wg.Wait()
			return nil
		}
		select {
		case <-rt.stopCh:
			rt.wg.Wait()
			return nil
		case <-ctx.Done():
			rt.wg.Wait()
			return ctx.Err()
		case <-time.After(rt.pollInterval):
		}
	}
}

// dispatch runs j's handler on a goroutine bounded by the concurrency
// semaphore, blocking the caller until a slot is free.
func (rt *Runtime) dispatch(ctx context.Context, j *model.Job) {
	rt.limiter <- struct{}{}
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		defer func() { <-rt.limiter }()
		rt.execute(ctx, j)
	}()
}

func (rt *Runtime) execute(ctx context.Context, j *model.Job) {
	handler, ok := rt.handlers[j.JobType]
	if !ok {
		rt.logger.Error("no handler registered", "job_type", j.JobType, "job_id", j.JobID)
		return
	}

	metrics.WorkerBusy.WithLabelValues(rt.workerID).Inc()
	defer metrics.WorkerBusy.WithLabelValues(rt.workerID).Dec()
	start := time.Now()
	defer func() {
		metrics.JobDurationSeconds.WithLabelValues(string(j.JobType)).Observe(time.Since(start).Seconds())
	}()

	runCtx, cancel := context.WithDeadline(ctx, j.LockUntil)
	heartbeatDone := make(chan struct{})
	go rt.heartbeat(runCtx, cancel, j, heartbeatDone)

	result, err := handler(runCtx, j)
	cancel()
	<-heartbeatDone

	now := time.Now()
	if err != nil {
		requeued := j.Fail(now, err.Error(), nil, model.Backoff)
		if saveErr := rt.jobs.Save(ctx, j); saveErr != nil {
			rt.logger.Error("save failed job", "job_id", j.JobID, "error", saveErr)
		}
		if requeued {
			rt.logger.Warn("job failed, requeued", "job_id", j.JobID, "attempt", j.Attempt, "error", err)
		} else {
			rt.logger.Error("job failed permanently", "job_id", j.JobID, "error", err)
			metrics.JobsFailedTotal.WithLabelValues(string(j.JobType)).Inc()
		}
		return
	}

	j.Complete(now, result)
	if saveErr := rt.jobs.Save(ctx, j); saveErr != nil {
		rt.logger.Error("save completed job", "job_id", j.JobID, "error", saveErr)
		return
	}
	metrics.JobsCompletedTotal.WithLabelValues(string(j.JobType)).Inc()
}

// heartbeat extends the lease every half-lease interval while the
// handler runs, the way
// _examples/fanjia1024-Aetheris/internal/app/worker/agent_job.go renews
// its event-store lease; the Job model has no teacher Python analogue.
// A failed renewal cancels the handler's context.
func (rt *Runtime) heartbeat(ctx context.Context, cancel context.CancelFunc, j *model.Job, done chan struct{}) {
	defer close(done)
	interval := rt.leaseDuration / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.LockUntil = time.Now().Add(rt.leaseDuration)
			if err := rt.jobs.Save(context.Background(), j); err != nil {
				rt.logger.Warn("heartbeat save failed, abandoning job", "job_id", j.JobID, "error", err)
				cancel()
				return
			}
		}
	}
}

// Stop requests the claim loop exit and waits for in-flight jobs to
// finish.
func (rt *Runtime) Stop() {
	close(rt.stopCh)
	rt.wg.Wait()
}
