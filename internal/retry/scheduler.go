package retry

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Scheduler drives the SyncController's provider-auth retry flow (spec
// §4.4): exponential backoff doubling from an initial interval up to a
// clamped max, at most one retry pending at any time, with an optional
// retry ceiling after which the scheduler goes terminal.
type Scheduler struct {
	mu         sync.Mutex
	boff       *backoff.ExponentialBackOff
	timer      *time.Timer
	pending    bool
	attempts   int
	maxRetries int // <=0 means unbounded
	exhausted  bool
}

// NewScheduler builds a Scheduler. maxRetries <= 0 means unbounded retries.
func NewScheduler(initial, max time.Duration, maxRetries int) *Scheduler {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0 // spec's schedule is an exact doubling sequence
	b.MaxElapsedTime = 0      // the Scheduler, not the library, enforces the retry ceiling
	b.Reset()

	return &Scheduler{
		boff:       b,
		maxRetries: maxRetries,
	}
}

// ScheduleRetry arms fn to run after the next backoff interval. It is a
// no-op if a retry is already pending or the ceiling has been reached;
// the bool return says whether a retry was actually armed.
func (s *Scheduler) ScheduleRetry(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending || s.exhausted {
		return false
	}
	if s.maxRetries > 0 && s.attempts >= s.maxRetries {
		s.exhausted = true
		return false
	}

	delay := s.boff.NextBackOff()
	s.attempts++
	s.pending = true
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
		fn()
	})
	return true
}

// Reset clears the attempt counter and backoff interval. Called on every
// successful init or sync.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boff.Reset()
	s.attempts = 0
	s.exhausted = false
}

// Exhausted reports whether the retry ceiling has been reached.
func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// Attempts returns the number of retries scheduled since the last Reset.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Stop cancels any pending retry timer (engine shutdown).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
}
