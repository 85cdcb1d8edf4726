// Package transport performs the single synchronous batch POST, classifying
// the outcome into success, retryable, or non-retryable.
package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/beaconhq/beacon-go/internal/buffer"
)

// Outcome classifies how a Send attempt resolved.
type Outcome int

const (
	Success Outcome = iota
	Retryable
	NonRetryable
)

const excerptLimit = 1024

var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Result is the outcome of one Send attempt.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Excerpt    string
	Err        error
}

// Sender POSTs a single batch to the configured endpoint.
type Sender struct {
	endpoint     string
	apiKey       string
	sdkHeader    string
	sdkHeaderVal string
	client       *http.Client
}

// New builds a Sender. sdkHeaderName/sdkHeaderVal are the SDK-identifying
// header ("x-<product>-sdk") and its value ("<lang>/<version>"), owned by
// the caller so this package stays independent of any one product name.
func New(endpoint, apiKey, sdkHeaderName, sdkHeaderVal string) *Sender {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &Sender{
		endpoint:     endpoint,
		apiKey:       apiKey,
		sdkHeader:    sdkHeaderName,
		sdkHeaderVal: sdkHeaderVal,
		client: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second, // open (5s) + read (5s) worst case
		},
	}
}

// Send POSTs batch as a JSON array and classifies the result.
func (s *Sender) Send(ctx context.Context, batch []buffer.Event) Result {
	body, err := json.Marshal(batch)
	if err != nil {
		return Result{Outcome: NonRetryable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: NonRetryable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set(s.sdkHeader, s.sdkHeaderVal)

	resp, err := s.client.Do(req)
	if err != nil {
		// connection refused, host unreachable, open/read timeout, DNS
		// failure — all surface here as a client.Do error.
		return Result{Outcome: Retryable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Outcome: Success, StatusCode: resp.StatusCode}
	}

	excerpt := readExcerpt(resp.Body)
	if retryableStatus[resp.StatusCode] {
		return Result{Outcome: Retryable, StatusCode: resp.StatusCode, Excerpt: excerpt}
	}
	return Result{Outcome: NonRetryable, StatusCode: resp.StatusCode, Excerpt: excerpt}
}

func readExcerpt(r io.Reader) string {
	limited := io.LimitReader(r, excerptLimit)
	data, _ := io.ReadAll(limited)
	return string(data)
}
