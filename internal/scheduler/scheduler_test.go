package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beaconhq/beacon-go/internal/buffer"
	"github.com/beaconhq/beacon-go/internal/diagnostics"
	"github.com/beaconhq/beacon-go/internal/diskstore"
	"github.com/beaconhq/beacon-go/internal/transport"
)

func newTestScheduler(t *testing.T, endpoint string) (*Scheduler, *buffer.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	buf := buffer.New(100, 2)
	store := diskstore.New(path, 1<<20, nil)
	sender := transport.New(endpoint, "key1", "x-beacon-sdk", "go/0.1.0")
	diag := diagnostics.New(time.Minute, nil, nil)

	s := New(Options{
		Buffer:        buf,
		Store:         store,
		Sender:        sender,
		Diagnostics:   diag,
		FlushInterval: time.Hour,
		BatchSize:     2,
	})
	return s, buf, path
}

func TestAttemptFlush_SuccessResetsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, buf, _ := newTestScheduler(t, srv.URL)
	buf.Push(buffer.Event{"method": "GET"})

	if err := s.attemptFlush(context.Background()); err != nil {
		t.Fatalf("attemptFlush error: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		t.Error("inFlight should be cleared after success")
	}
	if s.consecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", s.consecutiveFailures)
	}
}

func TestAttemptFlush_NonRetryablePersistsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	var onErrorCalls int32
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	buf := buffer.New(100, 2)
	store := diskstore.New(path, 1<<20, nil)
	sender := transport.New(srv.URL, "key1", "x-beacon-sdk", "go/0.1.0")
	diag := diagnostics.New(time.Minute, nil, func(error) { atomic.AddInt32(&onErrorCalls, 1) })

	s := New(Options{
		Buffer:        buf,
		Store:         store,
		Sender:        sender,
		Diagnostics:   diag,
		FlushInterval: time.Hour,
		BatchSize:     2,
	})

	buf.Push(buffer.Event{"method": "GET"})
	if err := s.attemptFlush(context.Background()); err != nil {
		t.Fatalf("attemptFlush error: %v", err)
	}

	if atomic.LoadInt32(&onErrorCalls) != 1 {
		t.Errorf("onError calls = %d, want 1", onErrorCalls)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected overflow file to exist: %v", err)
	}
}

func TestAttemptFlush_RetryableExhaustsIntoDisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, buf, path := newTestScheduler(t, srv.URL)
	buf.Push(buffer.Event{"method": "GET"})

	// Each retryable attempt re-prepends the batch and sets a backoff
	// window; clear it directly between attempts so the test does not
	// need to sleep through real backoff durations.
	for i := 0; i < maxConsecutiveFailures; i++ {
		if err := s.attemptFlush(context.Background()); err != nil {
			t.Fatalf("attemptFlush[%d] error: %v", i, err)
		}
		s.mu.Lock()
		s.backoffUntil = time.Time{}
		s.mu.Unlock()
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected overflow file after exhausting retries: %v", err)
	}
	s.mu.Lock()
	failures := s.consecutiveFailures
	s.mu.Unlock()
	if failures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0 after exhausting budget", failures)
	}
}

func TestAttemptFlush_BackoffWindowBlocksDrain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, buf, _ := newTestScheduler(t, srv.URL)
	buf.Push(buffer.Event{"method": "GET"})

	if err := s.attemptFlush(context.Background()); err != nil {
		t.Fatalf("attemptFlush error: %v", err)
	}

	s.mu.Lock()
	inBackoff := s.nowFunc().Before(s.backoffUntil)
	s.mu.Unlock()
	if !inBackoff {
		t.Fatal("expected a backoff window after first retryable failure")
	}

	if buf.Len() == 0 {
		t.Fatal("expected batch to be re-queued at buffer head")
	}

	if err := s.attemptFlush(context.Background()); err != nil {
		t.Fatalf("attemptFlush error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("drain should have been skipped during backoff window, buffer should still hold the event")
	}
}

func TestRecoverDisk_LoadsIntoBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	store := diskstore.New(path, 1<<20, nil)
	if err := store.Persist([]buffer.Event{{"method": "GET"}}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	buf := buffer.New(100, 2)
	sender := transport.New("https://example.invalid", "key1", "x-beacon-sdk", "go/0.1.0")
	diag := diagnostics.New(time.Minute, nil, nil)

	s := New(Options{
		Buffer:        buf,
		Store:         store,
		Sender:        sender,
		Diagnostics:   diag,
		FlushInterval: time.Hour,
		BatchSize:     2,
	})
	s.recoverDisk()

	if buf.Len() != 1 {
		t.Fatalf("buf.Len() = %d, want 1 after recovery", buf.Len())
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(t, "https://example.invalid")
	s.Start()
	s.Stop(time.Second)
	s.Stop(time.Second)
}

func TestRecoverDisk_RecoveredEventsDeliveredAfterLive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	store := diskstore.New(path, 1<<20, nil)
	if err := store.Persist([]buffer.Event{{"i": "recovered"}}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	buf := buffer.New(100, 10)
	sender := transport.New("https://example.invalid", "key1", "x-beacon-sdk", "go/0.1.0")
	diag := diagnostics.New(time.Minute, nil, nil)

	s := New(Options{
		Buffer:        buf,
		Store:         store,
		Sender:        sender,
		Diagnostics:   diag,
		FlushInterval: time.Hour,
		BatchSize:     10,
	})

	buf.Push(buffer.Event{"i": "live"})
	s.recoverDisk()

	batch := buf.Drain(2)
	if len(batch) != 2 || batch[0]["i"] != "live" || batch[1]["i"] != "recovered" {
		t.Fatalf("drain order = %v, want [live recovered]", batch)
	}
}

func TestRecoverDisk_DiscardWaitsForLiveAheadAndRecoveredToClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	store := diskstore.New(path, 1<<20, nil)
	if err := store.Persist([]buffer.Event{{"i": "recovered"}}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	buf := buffer.New(100, 1)
	sender := transport.New(srv.URL, "key1", "x-beacon-sdk", "go/0.1.0")
	diag := diagnostics.New(time.Minute, nil, nil)

	s := New(Options{
		Buffer:        buf,
		Store:         store,
		Sender:        sender,
		Diagnostics:   diag,
		FlushInterval: time.Hour,
		BatchSize:     1,
	})

	buf.Push(buffer.Event{"i": "live"})
	s.recoverDisk()

	s.mu.Lock()
	pending := s.recoveringPending
	s.mu.Unlock()
	if !pending {
		t.Fatal("expected recoveringPending after a recovery with a live event still ahead")
	}

	if err := s.attemptFlush(context.Background()); err != nil {
		t.Fatalf("attemptFlush[0] error: %v", err)
	}
	if _, err := os.Stat(path + ".recovering"); err != nil {
		t.Fatalf("expected .recovering file to survive the live event's flush: %v", err)
	}

	if err := s.attemptFlush(context.Background()); err != nil {
		t.Fatalf("attemptFlush[1] error: %v", err)
	}
	if _, err := os.Stat(path + ".recovering"); !os.IsNotExist(err) {
		t.Fatalf("expected .recovering file to be discarded once the recovered event cleared, err=%v", err)
	}
}
