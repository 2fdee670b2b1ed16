// Copyright 2025 The Pqlink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides exponential backoff with full jitter for
// connect and reconnect loops.
//
// Usage:
//
//	r := retry.New(100*time.Millisecond, 30*time.Second)
//	for {
//	    if err := r.StartAttempt(ctx); err != nil {
//	        return err // context cancelled during the wait
//	    }
//	    if err := dial(); err == nil {
//	        return nil
//	    }
//	}
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Retry paces the attempts of a retry loop. The first StartAttempt
// returns immediately; each later one waits a randomized, exponentially
// growing delay.
type Retry struct {
	baseDelay    time.Duration
	maxDelay     time.Duration
	initialDelay bool
	after        func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	backoff int // 0-indexed exponent for the next wait
	rng     *rand.Rand

	attempt int
}

// Option configures a Retry.
type Option func(*Retry)

// WithInitialDelay makes even the first attempt wait. Use it when the
// caller has already failed once before entering the loop.
func WithInitialDelay() Option {
	return func(r *Retry) { r.initialDelay = true }
}

// New creates a Retry. Delays grow as baseDelay * 2^attempt, capped at
// maxDelay, then randomized over [0, delay) (AWS "Full Jitter") so
// simultaneous clients spread out. Panics on invalid parameters.
func New(baseDelay, maxDelay time.Duration, opts ...Option) *Retry {
	if baseDelay <= 0 {
		panic("retry: baseDelay must be positive")
	}
	if maxDelay < baseDelay {
		panic("retry: maxDelay must be at least baseDelay")
	}
	r := &Retry{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		after:     time.After,
		rng: rand.New(rand.NewPCG(
			uint64(time.Now().UnixNano()),
			uint64(time.Now().UnixNano())>>1,
		)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartAttempt waits for the backoff delay due before the next attempt,
// or returns the context error if cancelled during the wait.
func (r *Retry) StartAttempt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.attempt > 0 || r.initialDelay {
		select {
		case <-r.after(r.nextDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.attempt++
	return nil
}

// Attempt returns how many attempts StartAttempt has admitted. It never
// resets; Reset affects only the delay calculation.
func (r *Retry) Attempt() int {
	return r.attempt
}

// Reset drops the backoff back to the base delay. Call it once the
// system has proven healthy, so a later failure starts from a short
// wait instead of the accumulated maximum.
func (r *Retry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = 0
}

// Attempts returns an iterator form of the loop: it yields
// (attempt, nil) for each admitted attempt, or (attempt, err) once the
// context is done.
func (r *Retry) Attempts(ctx context.Context) func(yield func(int, error) bool) {
	return func(yield func(int, error) bool) {
		for {
			err := r.StartAttempt(ctx)
			if !yield(r.attempt, err) {
				return
			}
		}
	}
}

// nextDelay computes baseDelay * 2^backoff capped at maxDelay, applies
// full jitter, and advances the exponent.
func (r *Retry) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp := min(r.backoff, 62) // 1<<63 would overflow int64
	r.backoff++

	multiplier := int64(1) << exp
	delay := r.maxDelay
	if int64(r.baseDelay) <= math.MaxInt64/multiplier {
		delay = min(r.baseDelay*time.Duration(multiplier), r.maxDelay)
	}
	return time.Duration(float64(delay) * r.rng.Float64())
}
