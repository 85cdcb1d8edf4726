// Package beacon is a lightweight analytics SDK: an in-process,
// asynchronous, bounded-buffer client that ships per-request HTTP
// telemetry to a remote ingestion endpoint, with disk-backed overflow,
// retry/backoff, and SSRF-safe endpoint validation.
package beacon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/beaconhq/beacon-go/internal/buffer"
	"github.com/beaconhq/beacon-go/internal/consumer"
	"github.com/beaconhq/beacon-go/internal/diagnostics"
	"github.com/beaconhq/beacon-go/internal/diskstore"
	"github.com/beaconhq/beacon-go/internal/endpoint"
	"github.com/beaconhq/beacon-go/internal/logger"
	"github.com/beaconhq/beacon-go/internal/sanitize"
	"github.com/beaconhq/beacon-go/internal/scheduler"
	"github.com/beaconhq/beacon-go/internal/transport"
	"github.com/rs/zerolog"
)

const diagnosticCooldown = time.Minute

// shutdownJoinTimeout caps how long Shutdown waits for the worker to stop
// before giving up and persisting whatever is left.
const shutdownJoinTimeout = 5 * time.Second

// Client is the ingest client. Construct one with NewClient; it is safe
// for concurrent use from any number of goroutines.
type Client struct {
	cfg Config

	log       *zerolog.Logger
	sanitizer *sanitize.Sanitizer
	buf       *buffer.Buffer
	store     *diskstore.Store
	diag      *diagnostics.Emitter
	sched     *scheduler.Scheduler
	identify  IdentifyFunc

	terminated atomic.Bool
	sigCh      chan os.Signal
}

// NewClient validates cfg and returns a fully operational Client: the
// background worker is already running and an initial disk recovery pass
// has already loaded any previously persisted events.
func NewClient(cfg Config) (*Client, error) {
	if err := validateAPIKey(cfg.APIKey); err != nil {
		return nil, newError("NewClient", ErrInvalidArgument, err)
	}

	normalized, err := endpoint.Validate(cfg.Endpoint)
	if err != nil {
		return nil, newError("NewClient", ErrInvalidArgument, err)
	}
	cfg.Endpoint = normalized
	cfg = cfg.withDefaults()

	log := logger.New(cfg.Debug)
	diag := diagnostics.New(diagnosticCooldown, log, cfg.OnError)
	buf := buffer.New(cfg.MaxBufferSize, cfg.BatchSize)
	store := diskstore.New(cfg.StoragePath, cfg.MaxStorageBytes, log)
	sender := transport.New(cfg.Endpoint, cfg.APIKey, sdkHeaderName, sdkHeaderValue())

	sched := scheduler.New(scheduler.Options{
		Buffer:        buf,
		Store:         store,
		Sender:        sender,
		Diagnostics:   diag,
		Metrics:       cfg.MetricsCollector,
		Logger:        log,
		FlushInterval: cfg.FlushInterval,
		BatchSize:     cfg.BatchSize,
	})

	c := &Client{
		cfg:       cfg,
		log:       log,
		sanitizer: sanitize.New(cfg.MaxEventBytes),
		buf:       buf,
		store:     store,
		diag:      diag,
		sched:     sched,
		identify:  cfg.IdentifyConsumer,
	}

	sched.Start()
	c.installSignalHandlers()
	return c, nil
}

// Track submits event for eventual delivery. It never blocks on I/O and
// never panics on malformed input; rejected or dropped events are
// reported out-of-band via diagnostics/on_error, never to the caller.
func (c *Client) Track(event map[string]any) {
	if c.terminated.Load() {
		return
	}

	sanitized, ok := c.sanitizer.Sanitize(event)
	if !ok {
		c.diag.Emit(newError("Track", ErrOversized, nil), "oversized")
		return
	}

	if !c.buf.Push(sanitized) {
		c.diag.Emit(newError("Track", ErrBufferFull, nil), "buffer_full")
	}
}

// Identify derives a consumer id from headers, applying the configured
// IdentifyConsumer override when present. Intended for use by a
// middleware adapter that calls Track with the resulting consumer_id.
func (c *Client) Identify(headers map[string]string) (string, bool) {
	if c.identify != nil {
		return c.identify(headers)
	}
	return consumer.Identify(headers)
}

// CollectQueryString reports whether the middleware should append a
// sorted query string suffix to `path`.
func (c *Client) CollectQueryString() bool {
	return c.cfg.CollectQueryString
}

// Flush performs one synchronous drain-and-send attempt, bounded by ctx.
// It is a best-effort operation: errors are swallowed and reported the
// same way as background flush failures.
func (c *Client) Flush(ctx context.Context) error {
	return c.sched.Flush(ctx)
}

// Shutdown is the graceful termination path: it unwires signal handlers,
// stops the worker (joined, capped at 5s), issues one final synchronous
// flush, and persists any residual buffered events to disk. Idempotent;
// a second call is a no-op, matching ShutdownSync's.
func (c *Client) Shutdown() error {
	if !c.beginShutdown() {
		return nil
	}

	c.sched.Stop(shutdownJoinTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownJoinTimeout)
	defer cancel()
	_ = c.sched.Flush(ctx)

	c.persistResidual()
	return nil
}

// ShutdownSync is the fast-path variant for process-exit hooks: it skips
// joining the worker and only persists the residual buffer.
func (c *Client) ShutdownSync() {
	if !c.beginShutdown() {
		return
	}
	c.persistResidual()
}

func (c *Client) beginShutdown() bool {
	if !c.terminated.CompareAndSwap(false, true) {
		return false
	}
	c.uninstallSignalHandlers()
	return true
}

func (c *Client) persistResidual() {
	remaining := c.buf.DrainAll()
	if len(remaining) == 0 {
		return
	}
	if err := c.store.Persist(remaining); err != nil {
		c.diag.Emit(newError("Shutdown", ErrStorageFull, err), "storage_full")
	}
}

// installSignalHandlers wires TERM/INT to ShutdownSync. Registering with
// signal.Notify suppresses the default terminate-on-signal disposition for
// as long as the registration stands, so once ShutdownSync has run this
// resets the disposition and re-sends the signal to the process: a host
// that installed no handler of its own still terminates on Ctrl-C exactly
// as it would have without this client installed.
func (c *Client) installSignalHandlers() {
	c.sigCh = make(chan os.Signal, 1)
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go c.watchSignals()
}

func (c *Client) watchSignals() {
	sig, ok := <-c.sigCh
	if !ok {
		return
	}
	c.ShutdownSync()

	// ShutdownSync already unregistered c.sigCh via uninstallSignalHandlers;
	// Reset restores the default disposition for sig process-wide, and the
	// re-raise lets that default (normally terminate) actually fire, since
	// the original signal delivery was consumed by our own channel.
	signal.Reset(sig)
	if s, ok := sig.(syscall.Signal); ok {
		_ = syscall.Kill(syscall.Getpid(), s)
	}
}

func (c *Client) uninstallSignalHandlers() {
	if c.sigCh == nil {
		return
	}
	signal.Stop(c.sigCh)
	close(c.sigCh)
}

func validateAPIKey(key string) error {
	if key == "" {
		return errors.New("api key is required")
	}
	for i := 0; i < len(key); i++ {
		b := key[i]
		if b <= 0x1F || b == 0x7F {
			return fmt.Errorf("api key contains control byte 0x%02x at index %d", b, i)
		}
	}
	return nil
}
