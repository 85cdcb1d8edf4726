// Package sanitize coerces and truncates a submitted event to the wire
// schema and enforces the per-event byte ceiling. It never raises:
// malformed input is silently dropped and the caller gets an ok=false
// rather than an error.
package sanitize

import (
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	maxMethodBytes     = 16
	maxPathBytes       = 2048
	maxConsumerIDBytes = 256
)

// Sanitizer enforces the wire schema and the per-event byte ceiling.
type Sanitizer struct {
	maxEventBytes int
}

// New builds a Sanitizer with the given per-event byte ceiling.
func New(maxEventBytes int) *Sanitizer {
	return &Sanitizer{maxEventBytes: maxEventBytes}
}

// Sanitize returns a cleaned copy of raw ready for buffering, or ok=false
// if raw could not be made to fit the wire schema and byte ceiling.
func (s *Sanitizer) Sanitize(raw map[string]any) (map[string]any, bool) {
	if raw == nil {
		return nil, false
	}

	event := make(map[string]any, len(raw))
	for k, v := range raw {
		event[k] = v
	}

	if method, ok := event["method"].(string); ok {
		event["method"] = truncateBytes(strings.ToUpper(method), maxMethodBytes)
	}

	if path, ok := event["path"].(string); ok {
		event["path"] = truncateBytes(path, maxPathBytes)
	}

	if consumerID, ok := event["consumer_id"].(string); ok {
		event["consumer_id"] = truncateBytes(consumerID, maxConsumerIDBytes)
	}

	if ms, ok := event["response_time_ms"].(float64); ok {
		event["response_time_ms"] = roundTo2dp(ms)
	}

	if _, present := event["timestamp"]; !present {
		event["timestamp"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, false
	}
	if len(data) <= s.maxEventBytes {
		return event, true
	}

	if _, hadMetadata := event["metadata"]; hadMetadata {
		delete(event, "metadata")
		data, err = json.Marshal(event)
		if err == nil && len(data) <= s.maxEventBytes {
			return event, true
		}
	}

	return nil, false
}

// truncateBytes cuts s to at most n bytes.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// roundTo2dp enforces the wire schema's two-decimal precision on
// response_time_ms regardless of how finely the producer measured it.
func roundTo2dp(v float64) float64 {
	return math.Round(v*100) / 100
}
