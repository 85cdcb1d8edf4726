package beacon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beaconhq/beacon-go/internal/metrics"
)

const (
	defaultFlushInterval   = 15 * time.Second
	defaultBatchSize       = 250
	defaultMaxBufferSize   = 10_000
	defaultMaxStorageBytes = 5 * 1024 * 1024
	defaultMaxEventBytes   = 64 * 1024

	sdkHeaderName = "x-beacon-sdk"
	sdkLanguage   = "go"

	// Version is the SDK version advertised in the x-beacon-sdk header.
	Version = "0.1.0"
)

// IdentifyFunc derives a consumer id from request headers, overriding the
// default x-api-key/authorization policy in internal/consumer.
type IdentifyFunc func(headers map[string]string) (string, bool)

// Config configures a Client. APIKey and Endpoint are required; every
// other field has a default applied by NewClient.
type Config struct {
	// APIKey is forwarded as the x-api-key header on every send. It must
	// not contain bytes 0x00-0x1F or 0x7F.
	APIKey string

	// Endpoint is the ingest URL. Validated and normalized (cosmetically
	// unchanged) at construction; immutable afterward.
	Endpoint string

	// FlushInterval bounds how long the worker waits between flushes.
	// Default 15s.
	FlushInterval time.Duration

	// BatchSize caps events per POST and is the fill-trigger threshold.
	// Default 250.
	BatchSize int

	// MaxBufferSize hard-caps in-memory events. Default 10000.
	MaxBufferSize int

	// MaxStorageBytes hard-caps the on-disk overflow file. Default 5MiB.
	MaxStorageBytes int64

	// MaxEventBytes is the per-event serialized ceiling. Default 64KiB.
	MaxEventBytes int

	// StoragePath is the overflow file location. Default: os.TempDir() +
	// a hash of Endpoint.
	StoragePath string

	// IdentifyConsumer overrides the default consumer-id derivation.
	IdentifyConsumer IdentifyFunc

	// CollectQueryString includes a sorted query string suffix in `path`
	// when true. Default false; applied by the middleware adapter, not
	// the core, since only the middleware sees the raw query.
	CollectQueryString bool

	// OnError is invoked with every surfaced post-construction failure.
	// Panics raised by it are swallowed.
	OnError func(error)

	// Debug emits diagnostic lines to stderr when true.
	Debug bool

	// MetricsCollector, if set, receives buffer/disk/flush instrumentation.
	// Pass metrics.New("beacon") for Prometheus collection, or leave nil.
	MetricsCollector *metrics.Collector
}

func (c Config) withDefaults() Config {
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = defaultMaxBufferSize
	}
	if c.MaxStorageBytes <= 0 {
		c.MaxStorageBytes = defaultMaxStorageBytes
	}
	if c.MaxEventBytes <= 0 {
		c.MaxEventBytes = defaultMaxEventBytes
	}
	if c.StoragePath == "" {
		c.StoragePath = defaultStoragePath(c.Endpoint)
	}
	return c
}

func defaultStoragePath(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	hash := hex.EncodeToString(sum[:])[:12]
	name := fmt.Sprintf("beacon-events-%s.jsonl", hash)
	return filepath.Join(os.TempDir(), name)
}

func sdkHeaderValue() string {
	return sdkLanguage + "/" + Version
}
