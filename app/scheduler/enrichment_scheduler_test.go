package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	businessflow "github.com/amirphl/sneaker-price-ledger/business_flow"
	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []businessflow.EnrichmentRunRequest
	deadline []bool
	err      error
	ran      chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, req businessflow.EnrichmentRunRequest) (*businessflow.JobSummary, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	_, has := ctx.Deadline()
	r.deadline = append(r.deadline, has)
	r.mu.Unlock()
	if r.ran != nil {
		select {
		case r.ran <- struct{}{}:
		default:
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &businessflow.JobSummary{UUID: uuid.New(), Status: models.EnrichmentJobStatusCompleted}, nil
}

func (r *fakeRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type fakeLock struct {
	busy     bool
	err      error
	acquired int
	released int
}

func (l *fakeLock) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.busy {
		return nil, false, nil
	}
	l.acquired++
	return func() { l.released++ }, true, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestEnrichmentSchedulerRunOnce(t *testing.T) {
	req := businessflow.EnrichmentRunRequest{RateLimitPerMinute: 60, BatchLimit: 100}

	t.Run("RunsUnderLock", func(t *testing.T) {
		runner, lock := &fakeRunner{}, &fakeLock{}
		s := NewEnrichmentScheduler(runner, lock, req, time.Hour, time.Minute, quietLogger())

		assert.True(t, s.runOnce(context.Background()))
		require.Equal(t, 1, runner.calls())
		assert.Equal(t, req, runner.requests[0])
		assert.True(t, runner.deadline[0])
		assert.Equal(t, 1, lock.acquired)
		assert.Equal(t, 1, lock.released)
	})

	t.Run("SkipsWhenLockHeld", func(t *testing.T) {
		runner := &fakeRunner{}
		s := NewEnrichmentScheduler(runner, &fakeLock{busy: true}, req, time.Hour, 0, quietLogger())

		assert.False(t, s.runOnce(context.Background()))
		assert.Equal(t, 0, runner.calls())
	})

	t.Run("SkipsWhenLockErrors", func(t *testing.T) {
		runner := &fakeRunner{}
		s := NewEnrichmentScheduler(runner, &fakeLock{err: errors.New("connection refused")}, req, time.Hour, 0, quietLogger())

		assert.False(t, s.runOnce(context.Background()))
		assert.Equal(t, 0, runner.calls())
	})

	t.Run("NilLockRunsUnguarded", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("rate limit per minute must be positive")}
		s := NewEnrichmentScheduler(runner, nil, req, time.Hour, 0, quietLogger())

		assert.True(t, s.runOnce(context.Background()))
		require.Equal(t, 1, runner.calls())
		assert.False(t, runner.deadline[0])
	})
}

func TestEnrichmentSchedulerStart(t *testing.T) {
	runner := &fakeRunner{ran: make(chan struct{}, 1)}
	s := NewEnrichmentScheduler(runner, nil, businessflow.EnrichmentRunRequest{RateLimitPerMinute: 60}, time.Hour, 0, quietLogger())

	stop := s.Start(context.Background())
	select {
	case <-runner.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not run on start")
	}
	stop()

	assert.Equal(t, 1, runner.calls())
}
