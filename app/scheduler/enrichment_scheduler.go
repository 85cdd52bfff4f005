// Package scheduler runs periodic background jobs
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	businessflow "github.com/amirphl/sneaker-price-ledger/business_flow"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EnrichmentRunner is the part of the enrichment flow the scheduler drives
type EnrichmentRunner interface {
	Run(ctx context.Context, req businessflow.EnrichmentRunRequest) (*businessflow.JobSummary, error)
}

// RunLock keeps a scheduled run exclusive across instances.
// ok is false when another holder owns the lock.
type RunLock interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock is a SET NX PX lock released by compare-and-delete
type RedisRunLock struct {
	rc  *redis.Client
	key string
	ttl time.Duration
}

func NewRedisRunLock(rc *redis.Client, key string, ttl time.Duration) *RedisRunLock {
	return &RedisRunLock{rc: rc, key: key, ttl: ttl}
}

func (l *RedisRunLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rc.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rc, []string{l.key}, token).Err()
	}
	return release, true, nil
}

// EnrichmentScheduler triggers an enrichment run every interval
type EnrichmentScheduler struct {
	runner   EnrichmentRunner
	lock     RunLock
	request  businessflow.EnrichmentRunRequest
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
}

// NewEnrichmentScheduler creates a scheduler; a nil lock runs unguarded
func NewEnrichmentScheduler(
	runner EnrichmentRunner,
	lock RunLock,
	request businessflow.EnrichmentRunRequest,
	interval time.Duration,
	timeout time.Duration,
	logger *log.Logger,
) *EnrichmentScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &EnrichmentScheduler{
		runner:   runner,
		lock:     lock,
		request:  request,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop function.
// The stop function waits for an in-flight run to observe cancellation.
func (s *EnrichmentScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// runOnce reports whether a run was attempted
func (s *EnrichmentScheduler) runOnce(ctx context.Context) bool {
	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx)
		if err != nil {
			s.logger.Printf("scheduler: acquire enrichment lock failed: %v", err)
			return false
		}
		if !ok {
			s.logger.Printf("scheduler: enrichment run skipped, another instance holds the lock")
			return false
		}
		defer release()
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	summary, err := s.runner.Run(runCtx, s.request)
	switch {
	case err != nil && summary != nil:
		s.logger.Printf("scheduler: enrichment job_uuid=%s failed: %v", summary.UUID, err)
	case err != nil && errors.Is(err, context.Canceled):
		s.logger.Printf("scheduler: enrichment run cancelled")
	case err != nil:
		s.logger.Printf("scheduler: enrichment run failed to start: %v", err)
	default:
		s.logger.Printf("scheduler: enrichment job_uuid=%s %s processed=%d matched=%d match_rate=%.2f",
			summary.UUID, summary.Status, summary.Processed, summary.Matched, summary.MatchRatePercentage)
	}
	return true
}
