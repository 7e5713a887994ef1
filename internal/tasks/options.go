package tasks

import (
	"time"

	"github.com/desertthunder/crate/internal/matcher"
	"github.com/desertthunder/crate/internal/shared"
)

const (
	MinConcurrency = 4
	MaxConcurrency = 8
	MinBatchSize   = 3
	MaxBatchSize   = 20

	DefaultMaxAttempts    = 3
	DefaultBackoff        = 500 * time.Millisecond
	DefaultRequestTimeout = 15 * time.Second
	DefaultAbortRatio     = 0.5
	DefaultMaxTransport   = 10

	maxBackoff = 30 * time.Second
	// a job is never aborted for rate limiting before this many items gave up
	minRateLimitedForAbort = 3
)

// Options tunes an [Engine].
//
// Zero values take defaults when the engine is built. RateLimitedAbortRatio and
// MaxConsecutiveTransportFailures disable their abort rule when <= 0.
type Options struct {
	Concurrency                     int
	BatchSize                       int
	MaxAttempts                     int
	Backoff                         time.Duration
	RequestTimeout                  time.Duration
	RequestsPerSecond               float64 // <= 0 means unlimited
	RateLimitedAbortRatio           float64
	MaxConsecutiveTransportFailures int
	SkipDuplicates                  bool
	SearchLimit                     int
	SearchAllArtists                bool
}

func DefaultOptions() Options {
	return Options{
		Concurrency:                     MinConcurrency,
		BatchSize:                       MaxBatchSize,
		MaxAttempts:                     DefaultMaxAttempts,
		Backoff:                         DefaultBackoff,
		RequestTimeout:                  DefaultRequestTimeout,
		RateLimitedAbortRatio:           DefaultAbortRatio,
		MaxConsecutiveTransportFailures: DefaultMaxTransport,
		SearchLimit:                     matcher.DefaultSearchLimit,
		SearchAllArtists:                true,
	}
}

// OptionsFromConfig converts the [transfer] config section, clamping concurrency to
// [MinConcurrency, MaxConcurrency] and batch size to [MinBatchSize, MaxBatchSize].
func OptionsFromConfig(c shared.TransferConfig) Options {
	return Options{
		Concurrency:                     clamp(c.Concurrency, MinConcurrency, MaxConcurrency),
		BatchSize:                       clamp(c.BatchSize, MinBatchSize, MaxBatchSize),
		MaxAttempts:                     max(c.MaxAttempts, 1),
		Backoff:                         time.Duration(c.BackoffMS) * time.Millisecond,
		RequestTimeout:                  time.Duration(c.RequestTimeoutSeconds) * time.Second,
		RequestsPerSecond:               c.RequestsPerSecond,
		RateLimitedAbortRatio:           c.RateLimitedAbortRatio,
		MaxConsecutiveTransportFailures: c.MaxConsecutiveTransportFailures,
		SkipDuplicates:                  c.SkipDuplicates,
		SearchLimit:                     matcher.ClampLimit(c.SearchLimit),
		SearchAllArtists:                c.SearchAllArtists,
	}
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = MinConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = MaxBatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	o.SearchLimit = matcher.ClampLimit(o.SearchLimit)
	return o
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
