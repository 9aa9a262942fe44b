package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recorder) report(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) byResult() map[Result]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Result]int)
	for _, o := range r.outcomes {
		out[o.Result]++
	}
	return out
}

func TestPoolRunsTasksAndReportsOutcomes(t *testing.T) {
	rec := &recorder{}
	p, err := New(Config{Size: 2, QueueSize: 8}, WithReporter(rec.report))
	require.NoError(t, err)

	var ran sync.WaitGroup
	ran.Add(3)
	require.NoError(t, p.Submit(NewTask("ok", func(context.Context) error {
		defer ran.Done()
		return nil
	})))
	require.NoError(t, p.Submit(NewTask("fails", func(context.Context) error {
		defer ran.Done()
		return errors.New("downstream unavailable")
	})))
	require.NoError(t, p.Submit(NewTask("panics", func(context.Context) error {
		defer ran.Done()
		panic("boom")
	})))
	ran.Wait()

	require.NoError(t, p.Shutdown(context.Background()))

	got := rec.byResult()
	assert.Equal(t, 1, got[ResultSucceeded])
	assert.Equal(t, 1, got[ResultFailed])
	assert.Equal(t, 1, got[ResultPanicked])

	for _, o := range rec.outcomes {
		assert.NotEmpty(t, o.ID)
		if o.Result == ResultPanicked {
			assert.Equal(t, "boom", o.Error)
		}
	}
}

func TestSubmitQueueFull(t *testing.T) {
	p, err := New(Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(NewTask("blocker", func(context.Context) error {
		close(started)
		<-release
		return nil
	})))
	<-started

	require.NoError(t, p.Submit(NewTask("queued", func(context.Context) error { return nil })))
	assert.Equal(t, 1, p.Depth())

	err = p.Submit(NewTask("overflow", func(context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSubmitAfterShutdown(t *testing.T) {
	p, err := New(Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	err = p.Submit(NewTask("late", func(context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrStopped)

	// Shutdown is idempotent.
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTaskContextOutlivesSubmitter(t *testing.T) {
	p, err := New(Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	require.NoError(t, p.Submit(NewTask("after-ack", func(ctx context.Context) error {
		<-reqCtx.Done()
		done <- ctx.Err()
		return nil
	})))
	cancel()

	assert.NoError(t, <-done)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdownGraceExpiryCancelsTasks(t *testing.T) {
	p, err := New(Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)

	started := make(chan struct{})
	require.NoError(t, p.Submit(NewTask("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Size: 0, QueueSize: 1})
	assert.Error(t, err)
	_, err = New(Config{Size: 1, QueueSize: 0})
	assert.Error(t, err)

	p, err := New(Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()
	assert.Error(t, p.Submit(Task{Name: "nil"}))
}
