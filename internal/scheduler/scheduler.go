// Package scheduler runs the single background worker: it drains the
// buffer on a timer or a fill/backoff wake, hands batches to the transport
// sender, and drives the retry/backoff state machine and periodic disk
// recovery.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/beaconhq/beacon-go/internal/buffer"
	"github.com/beaconhq/beacon-go/internal/clienterr"
	"github.com/beaconhq/beacon-go/internal/diagnostics"
	"github.com/beaconhq/beacon-go/internal/diskstore"
	"github.com/beaconhq/beacon-go/internal/metrics"
	"github.com/beaconhq/beacon-go/internal/transport"
)

const (
	maxConsecutiveFailures = 5
	baseBackoff            = time.Second
	diskRecoveryInterval   = 60 * time.Second
	sendTimeout            = 5 * time.Second
)

type wakeToken int

const (
	tokenFlush wakeToken = iota
	tokenStop
)

// Scheduler owns the single worker goroutine coordinating the buffer,
// disk store, and HTTP sender.
type Scheduler struct {
	buf     *buffer.Buffer
	store   *diskstore.Store
	sender  *transport.Sender
	diag    *diagnostics.Emitter
	metrics *metrics.Collector
	logger  *zerolog.Logger

	flushInterval time.Duration
	batchSize     int

	wake chan wakeToken
	done chan struct{}
	wg   sync.WaitGroup

	mu                  sync.Mutex
	inFlight            bool
	consecutiveFailures int
	backoffUntil        time.Time

	// recoveringPending, recoveringAhead, and recoveringCount together
	// track a disk-recovered block of events appended to the tail of the
	// buffer: recoveringAhead is how many events were already queued ahead
	// of it (and so must clear the buffer first) and recoveringCount is
	// how many of the recovered events themselves remain unconfirmed. The
	// .recovering file is only discarded once both reach zero, so the
	// recovered events are never dropped before they have actually left
	// the live buffer.
	recoveringPending bool
	recoveringAhead   int
	recoveringCount   int

	stopOnce sync.Once

	nowFunc func() time.Time // overridable in tests
}

// Options configure a Scheduler.
type Options struct {
	Buffer        *buffer.Buffer
	Store         *diskstore.Store
	Sender        *transport.Sender
	Diagnostics   *diagnostics.Emitter
	Metrics       *metrics.Collector
	Logger        *zerolog.Logger
	FlushInterval time.Duration
	BatchSize     int
}

// New builds a Scheduler wired to its collaborators. It does not start the
// worker; call Start for that.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		buf:           opts.Buffer,
		store:         opts.Store,
		sender:        opts.Sender,
		diag:          opts.Diagnostics,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		flushInterval: opts.FlushInterval,
		batchSize:     opts.BatchSize,
		wake:          make(chan wakeToken, 1),
		done:          make(chan struct{}),
		nowFunc:       time.Now,
	}
	s.buf.Notify = s.Wake
	return s
}

// Wake posts a non-blocking flush token, coalescing with any token already
// pending — the worker only ever needs to know "something changed".
func (s *Scheduler) Wake() {
	select {
	case s.wake <- tokenFlush:
	default:
	}
}

// Start launches the worker goroutine. It performs an initial disk
// recovery pass synchronously before returning, so a freshly constructed
// client observes previously persisted events in its buffer immediately.
func (s *Scheduler) Start() {
	s.recoverDisk()
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	lastRecovery := s.nowFunc()

	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()

	for {
		select {
		case tok := <-s.wake:
			if tok == tokenStop {
				s.drainTimer(timer)
				return
			}
		case <-timer.C:
		case <-s.done:
			s.drainTimer(timer)
			return
		}

		s.attemptFlush(context.Background())

		if s.nowFunc().Sub(lastRecovery) >= diskRecoveryInterval {
			s.recoverDisk()
			lastRecovery = s.nowFunc()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.flushInterval)
	}
}

func (s *Scheduler) drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// Flush performs one synchronous drain-and-send attempt, used for the
// caller-facing explicit flush and the final flush during shutdown. It
// returns once the attempt (if any) has completed.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.attemptFlush(ctx)
}

// attemptFlush drains one batch off the buffer and sends it, enforcing
// the single-in-flight invariant.
func (s *Scheduler) attemptFlush(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight || s.nowFunc().Before(s.backoffUntil) {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	batch := s.buf.Drain(s.batchSize)
	if len(batch) == 0 {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
		return nil
	}

	s.observeBufferDepth()
	s.doFlush(ctx, batch)
	return nil
}

// doFlush sends one batch and drives the retry state machine.
func (s *Scheduler) doFlush(ctx context.Context, batch []buffer.Event) {
	batchID := ulid.Make().String()
	attemptID := uuid.New().String()
	s.debugf("flush attempt batch=%s attempt=%s events=%d", batchID, attemptID, len(batch))

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	res := s.sender.Send(sendCtx, batch)

	switch res.Outcome {
	case transport.Success:
		s.onSuccess(batchID, len(batch))
	case transport.NonRetryable:
		s.onNonRetryable(batch, batchID, res)
	case transport.Retryable:
		s.onRetryable(batch, batchID, res)
	}
}

func (s *Scheduler) onSuccess(batchID string, n int) {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.backoffUntil = time.Time{}
	s.inFlight = false
	discard := s.advanceRecoveryLocked(n)
	s.mu.Unlock()

	if discard {
		if err := s.store.DiscardRecovering(); err != nil {
			s.debugf("discard recovering file failed: %v", err)
		}
	}

	s.metrics.ObserveConsecutiveFailures(0)
	s.metrics.ObserveBackoffSeconds(0)
	s.metrics.IncFlush("success")
	s.debugf("flush succeeded batch=%s", batchID)
}

func (s *Scheduler) onNonRetryable(batch []buffer.Event, batchID string, res transport.Result) {
	s.mu.Lock()
	s.inFlight = false
	discard := s.advanceRecoveryLocked(len(batch))
	s.mu.Unlock()

	s.persistBatch(batch, batchID)
	if discard {
		if err := s.store.DiscardRecovering(); err != nil {
			s.debugf("discard recovering file failed: %v", err)
		}
	}

	err := clienterr.New("flush", clienterr.NonRetryableServer,
		fmt.Errorf("status %d: %s", res.StatusCode, res.Excerpt))
	s.diag.Emit(err, "non_retryable_server")
	s.metrics.IncFlush("non_retryable")
	s.debugf("flush non-retryable batch=%s status=%d", batchID, res.StatusCode)
}

func (s *Scheduler) onRetryable(batch []buffer.Event, batchID string, res transport.Result) {
	s.mu.Lock()
	s.consecutiveFailures++
	failures := s.consecutiveFailures
	exhausted := failures >= maxConsecutiveFailures
	if exhausted {
		s.consecutiveFailures = 0
	}
	s.inFlight = false
	var discard bool
	if exhausted {
		discard = s.advanceRecoveryLocked(len(batch))
	}
	s.mu.Unlock()

	kind := clienterr.RetryableServer
	if res.Err != nil {
		kind = clienterr.RetryableTransport
	}
	cause := res.Err
	if cause == nil {
		cause = fmt.Errorf("status %d: %s", res.StatusCode, res.Excerpt)
	}
	err := clienterr.New("flush", kind, cause)

	if exhausted {
		s.persistBatch(batch, batchID)
		if discard {
			if derr := s.store.DiscardRecovering(); derr != nil {
				s.debugf("discard recovering file failed: %v", derr)
			}
		}
		s.debugf("flush retry budget exhausted, persisted batch=%s", batchID)
	} else {
		backoff := jitteredBackoff(failures)
		s.mu.Lock()
		s.backoffUntil = s.nowFunc().Add(backoff)
		s.mu.Unlock()
		s.buf.PushFront(batch)
		s.metrics.ObserveBackoffSeconds(backoff.Seconds())
		s.debugf("flush retryable, re-queued batch=%s backoff=%s failures=%d", batchID, backoff, failures)
	}

	s.metrics.ObserveConsecutiveFailures(failures % maxConsecutiveFailures)
	s.metrics.IncFlush("retryable")
	s.diag.Emit(err, kind.String())
}

// advanceRecoveryLocked records that n events have cleared the head of the
// live buffer — sent successfully, or pulled off to be re-persisted — and
// reports whether the recovered block (and everything that was queued
// ahead of it) has now fully cleared, meaning the .recovering file is safe
// to discard. A non-exhausted retryable failure re-queues its batch at the
// head via PushFront rather than calling this, since those events never
// actually left the buffer. Must be called with s.mu held.
func (s *Scheduler) advanceRecoveryLocked(n int) bool {
	if !s.recoveringPending {
		return false
	}
	if s.recoveringAhead > 0 {
		skip := n
		if skip > s.recoveringAhead {
			skip = s.recoveringAhead
		}
		s.recoveringAhead -= skip
		n -= skip
	}
	if n > 0 {
		if n > s.recoveringCount {
			n = s.recoveringCount
		}
		s.recoveringCount -= n
	}
	if s.recoveringAhead == 0 && s.recoveringCount == 0 {
		s.recoveringPending = false
		return true
	}
	return false
}

func (s *Scheduler) persistBatch(batch []buffer.Event, batchID string) {
	if err := s.store.Persist(batch); err != nil {
		wrapped := clienterr.New("flush", clienterr.StorageFull, err)
		s.diag.Emit(wrapped, "storage_full")
		s.debugf("persist failed batch=%s: %v", batchID, err)
		return
	}
	s.metrics.ObserveDiskBytes(s.store.Size())
}

// recoverDisk runs the two-path recovery probe and appends recovered
// events to the tail of the buffer, so they are delivered after any event
// admitted since the batch was persisted. It skips the probe entirely
// while a previous recovery is still pending confirmation, since the
// .recovering file has not moved and re-reading it would re-queue the same
// events a second time.
func (s *Scheduler) recoverDisk() {
	s.mu.Lock()
	alreadyPending := s.recoveringPending
	s.mu.Unlock()
	if alreadyPending {
		return
	}

	space := s.buf.Remaining()
	if space <= 0 {
		return
	}
	events, pending, err := s.store.Recover(space)
	if err != nil {
		s.debugf("disk recovery error: %v", err)
	}
	if len(events) == 0 {
		return
	}

	ahead, kept := s.buf.Append(events)
	s.debugf("recovered %d/%d events from disk", kept, len(events))

	if pending && kept > 0 {
		s.mu.Lock()
		s.recoveringPending = true
		s.recoveringAhead = ahead
		s.recoveringCount = kept
		s.mu.Unlock()
	}
	s.observeBufferDepth()
}

func (s *Scheduler) observeBufferDepth() {
	s.metrics.ObserveBufferSize(s.buf.Len())
}

// Stop posts the stop token and joins the worker, capped at the given
// deadline. It is idempotent; subsequent calls are no-ops.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.stopOnce.Do(func() {
		close(s.done)
		select {
		case s.wake <- tokenStop:
		default:
		}

		joined := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(joined)
		}()

		select {
		case <-joined:
		case <-time.After(timeout):
			s.debugf("worker join timed out after %s", timeout)
		}
	})
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug().Msgf(format, args...)
}

func jitteredBackoff(failures int) time.Duration {
	exp := float64(int64(1) << uint(failures-1))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(baseBackoff) * exp * jitter)
}
