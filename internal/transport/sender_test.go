package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beaconhq/beacon-go/internal/buffer"
)

func TestSend_SuccessOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key1" {
			t.Errorf("x-api-key = %q, want key1", r.Header.Get("x-api-key"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "key1", "x-beacon-sdk", "go/0.1.0")
	res := s.Send(context.Background(), []buffer.Event{{"method": "GET"}})
	if res.Outcome != Success {
		t.Fatalf("Outcome = %v, want Success", res.Outcome)
	}
}

func TestSend_RetryableOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	s := New(srv.URL, "key1", "x-beacon-sdk", "go/0.1.0")
	res := s.Send(context.Background(), []buffer.Event{{"method": "GET"}})
	if res.Outcome != Retryable {
		t.Fatalf("Outcome = %v, want Retryable", res.Outcome)
	}
	if res.Excerpt != "boom" {
		t.Errorf("Excerpt = %q, want boom", res.Excerpt)
	}
}

func TestSend_RetryableOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New(srv.URL, "key1", "x-beacon-sdk", "go/0.1.0")
	res := s.Send(context.Background(), []buffer.Event{{"method": "GET"}})
	if res.Outcome != Retryable {
		t.Fatalf("Outcome = %v, want Retryable", res.Outcome)
	}
}

func TestSend_NonRetryableOn400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(srv.URL, "key1", "x-beacon-sdk", "go/0.1.0")
	res := s.Send(context.Background(), []buffer.Event{{"method": "GET"}})
	if res.Outcome != NonRetryable {
		t.Fatalf("Outcome = %v, want NonRetryable", res.Outcome)
	}
}

func TestSend_RetryableOnConnectionError(t *testing.T) {
	s := New("http://127.0.0.1:1", "key1", "x-beacon-sdk", "go/0.1.0")
	res := s.Send(context.Background(), []buffer.Event{{"method": "GET"}})
	if res.Outcome != Retryable {
		t.Fatalf("Outcome = %v, want Retryable on connection failure", res.Outcome)
	}
}
