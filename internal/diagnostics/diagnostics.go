// Package diagnostics rate-limits the stderr line emitted for a repeated
// drop reason so a persistently full buffer or disk does not flood logs.
// It never changes an admission/drop decision — it only gates a log line.
// Adapted from the windowed map-plus-cleanup-ticker shape of a rate
// limiter's memory store, reshaped from a request-count window into a
// last-emitted-timestamp cooldown.
package diagnostics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Emitter surfaces a failure out-of-band: an optional rate-limited stderr
// line, and an unconditional call to the configured on_error callback.
// Panics raised by onError are swallowed.
type Emitter struct {
	mu       sync.Mutex
	lastAt   map[string]time.Time
	cooldown time.Duration
	logger   *zerolog.Logger
	onError  func(error)
}

// New builds an Emitter. logger and onError may both be nil.
func New(cooldown time.Duration, logger *zerolog.Logger, onError func(error)) *Emitter {
	return &Emitter{
		lastAt:   make(map[string]time.Time),
		cooldown: cooldown,
		logger:   logger,
		onError:  onError,
	}
}

// Emit reports err under the given drop/failure reason.
func (e *Emitter) Emit(err error, reason string) {
	if e.logger != nil && e.shouldLog(reason) {
		e.logger.Warn().Str("reason", reason).Err(err).Msg("beacon: event delivery failure")
	}
	e.invokeOnError(err)
}

func (e *Emitter) invokeOnError(err error) {
	if e.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Warn().Interface("panic", r).Msg("beacon: on_error callback panicked, swallowed")
		}
	}()
	e.onError(err)
}

func (e *Emitter) shouldLog(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, seen := e.lastAt[reason]
	if !seen || time.Since(last) >= e.cooldown {
		e.lastAt[reason] = time.Now()
		return true
	}
	return false
}
