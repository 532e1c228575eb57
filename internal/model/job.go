package model

import "time"

// JobType identifies the stage handler a Job dispatches to.
type JobType string

const (
	JobPreprocess      JobType = "preprocess"
	JobDecodePrimary   JobType = "decode_primary"
	JobDecodeFallback  JobType = "decode_fallback"
	JobCleanup         JobType = "cleanup" // no handler in this pipeline yet (spec.md §9)
)

// JobStatus is one of the queue states from spec.md §3.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job is a queue item (spec.md §3). Mutators mirror JobDoc's
// start/complete/fail/cancel in
// _examples/original_source/src/models/job.py, adapted to the leaner
// worker_id/lock_until vocabulary the teacher's pg_store.go uses instead
// of a separate locked_until-only document.
type Job struct {
	JobID   string
	JobType JobType
	ImageID string
	BatchID string

	Status     JobStatus
	Priority   int
	Attempt    int
	MaxRetries int

	WorkerID string

	StartedAt   time.Time
	CompletedAt time.Time
	ScheduledFor time.Time
	LockUntil   time.Time

	Result       map[string]string
	Error        string
	ErrorDetails map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanRetry reports whether another attempt is permitted.
func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxRetries+1
}

// Start marks the job leased by workerID for leaseDuration, mirroring
// JobDoc.start: increments Attempt, sets WorkerID/StartedAt/LockUntil.
func (j *Job) Start(now time.Time, workerID string, leaseDuration time.Duration) {
	j.Status = JobInProgress
	j.WorkerID = workerID
	j.StartedAt = now
	j.Attempt++
	j.LockUntil = now.Add(leaseDuration)
	j.UpdatedAt = now
}

// Complete marks the job done, mirroring JobDoc.complete.
func (j *Job) Complete(now time.Time, result map[string]string) {
	j.Status = JobCompleted
	j.CompletedAt = now
	j.Result = result
	j.LockUntil = time.Time{}
	j.UpdatedAt = now
}

// Fail records an error and either requeues (if CanRetry) or terminates
// the job, mirroring JobDoc.fail. Returns true if the job was requeued.
func (j *Job) Fail(now time.Time, message string, details map[string]string, backoff func(attempt int) time.Duration) (requeued bool) {
	j.Error = message
	j.ErrorDetails = details
	j.LockUntil = time.Time{}
	j.UpdatedAt = now

	if j.CanRetry() {
		j.Status = JobPending
		j.WorkerID = ""
		j.ScheduledFor = now.Add(backoff(j.Attempt))
		return true
	}
	j.Status = JobFailed
	j.CompletedAt = now
	return false
}

// Cancel marks the job cancelled, mirroring JobDoc.cancel.
func (j *Job) Cancel(now time.Time) {
	j.Status = JobCancelled
	j.CompletedAt = now
	j.LockUntil = time.Time{}
	j.UpdatedAt = now
}

// LeaseExpired reports whether the job is in_progress past its deadline.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.Status == JobInProgress && j.LockUntil.Before(now)
}

// Backoff implements exponential backoff base 2^n seconds, capped at
// 120s, per spec.md §4.3 ("e.g., 30, 60, 120").
func Backoff(attempt int) time.Duration {
	capped := 120
	secs := 1 << attempt // 2^attempt
	if secs > capped {
		secs = capped
	}
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
