package heartbeat

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/thedataengineer/mahabharatha/internal/config"
)

// Decision is the outcome of applying the retry policy to a task failure.
type Decision struct {
	// Retry is true if the task should be re-queued once its backoff
	// elapses; false if it should become blocked (with an escalation
	// recorded for non-retryable causes).
	Retry bool
	// Backoff is how long to wait before the task re-enters the ready
	// set, zero if Retry is false.
	Backoff time.Duration
	// Escalate is true when the cause is not automatically retryable
	// and an Escalation record should be created (§4.7, §3).
	Escalate bool
}

// Policy implements the exponential-backoff-with-jitter retry table of
// §4.7.
type Policy struct {
	cfg config.RetryConfig
}

// NewPolicy creates a Policy from the retry section of the orchestrator
// config.
func NewPolicy(cfg config.RetryConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Decide applies the cause-classification table: ambiguous_spec and
// missing_dependency never retry and escalate instead; merge_conflict
// never retries and is handled at the level, not the task, level (no
// escalation record, since it isn't a worker failure); everything else
// retries up to MaxAttempts, backing off exponentially with jitter, then
// becomes blocked without further retries once attempts is exhausted.
func (p *Policy) Decide(cause Cause, attempts int) Decision {
	if cause == CauseMergeConflict {
		return Decision{Retry: false, Escalate: false}
	}
	if !cause.Retryable() {
		return Decision{Retry: false, Escalate: true}
	}
	if attempts >= p.cfg.MaxAttempts {
		return Decision{Retry: false, Escalate: false}
	}
	return Decision{Retry: true, Backoff: p.Backoff(attempts)}
}

// Backoff returns the exponential-with-jitter delay before retry number
// attempt (1-indexed: the delay before the 2nd attempt uses attempt=1).
// Capped at MaxBackoffMS.
func (p *Policy) Backoff(attempt int) time.Duration {
	base := float64(p.cfg.BaseBackoffMS) * math.Pow(2, float64(attempt))
	max := float64(p.cfg.MaxBackoffMS)
	if base > max {
		base = max
	}
	jitterRange := base * p.cfg.JitterFraction
	jittered := base - jitterRange/2 + rand.Float64()*jitterRange
	if jittered < 0 {
		jittered = 0
	}
	if jittered > max {
		jittered = max
	}
	return time.Duration(jittered) * time.Millisecond
}

// RelaunchPacer rate-limits how fast retried tasks re-enter the ready set
// across the whole feature run, independent of each task's own backoff.
// Without it a burst of simultaneously-stalled workers (e.g. a backend
// outage) would all clear backoff within the same tick and hammer the
// launcher with a spawn storm the moment it recovers.
type RelaunchPacer struct {
	limiter *rate.Limiter
}

// NewRelaunchPacer allows at most one relaunch every interval, with burst
// allowed immediately so the first few retries after startup aren't
// needlessly delayed.
func NewRelaunchPacer(interval time.Duration, burst int) *RelaunchPacer {
	if interval <= 0 {
		interval = time.Millisecond
	}
	if burst < 1 {
		burst = 1
	}
	return &RelaunchPacer{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until a relaunch slot is available or ctx is done.
func (p *RelaunchPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
