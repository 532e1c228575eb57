package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/pkg/log"
)

func testLogger(t *testing.T) *log.Logger {
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)
	return logger
}

func TestRuntime_RunExecutesHandlerAndCompletesJob(t *testing.T) {
	ctx := context.Background()
	jobs := metadata.NewMemoryJobRepository()
	require.NoError(t, jobs.Create(ctx, &model.Job{
		JobID:        "j1",
		JobType:      model.JobPreprocess,
		Status:       model.JobPending,
		ScheduledFor: time.Now(),
	}))

	handlerRan := make(chan struct{}, 1)
	handlers := map[model.JobType]Handler{
		model.JobPreprocess: func(ctx context.Context, j *model.Job) (map[string]string, error) {
			handlerRan <- struct{}{}
			return map[string]string{"ok": "true"}, nil
		},
	}

	rt := New(Config{
		WorkerID:      "w1",
		PollInterval:  10 * time.Millisecond,
		LeaseDuration: time.Second,
		BatchSize:     1,
		Continuous:    false,
	}, jobs, handlers, testLogger(t))

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case <-handlerRan:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runtime never exited after idle threshold")
	}

	got, err := jobs.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, "true", got.Result["ok"])
}

func TestRuntime_FailedHandlerRequeuesUnderMaxRetries(t *testing.T) {
	ctx := context.Background()
	jobs := metadata.NewMemoryJobRepository()
	require.NoError(t, jobs.Create(ctx, &model.Job{
		JobID:        "j1",
		JobType:      model.JobPreprocess,
		Status:       model.JobPending,
		MaxRetries:   3,
		ScheduledFor: time.Now(),
	}))

	handlers := map[model.JobType]Handler{
		model.JobPreprocess: func(ctx context.Context, j *model.Job) (map[string]string, error) {
			return nil, errors.New("decode failed")
		},
	}

	rt := New(Config{
		WorkerID:      "w1",
		PollInterval:  10 * time.Millisecond,
		LeaseDuration: time.Second,
		BatchSize:     1,
		Continuous:    false,
	}, jobs, handlers, testLogger(t))

	require.NoError(t, rt.Run(ctx))

	got, err := jobs.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, got.Status)
	assert.Equal(t, 1, got.Attempt)
}

func TestRuntime_StopEndsRunLoop(t *testing.T) {
	ctx := context.Background()
	jobs := metadata.NewMemoryJobRepository()
	handlers := map[model.JobType]Handler{
		model.JobPreprocess: func(ctx context.Context, j *model.Job) (map[string]string, error) {
			return nil, nil
		},
	}
	rt := New(Config{
		WorkerID:      "w1",
		PollInterval:  time.Minute,
		LeaseDuration: time.Second,
		BatchSize:     1,
		Continuous:    true,
	}, jobs, handlers, testLogger(t))

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	rt.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not stop")
	}
}
