package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/circuitbreaker"
)

// Operation results used as the result label.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultInvalid  = "invalid_argument"
	ResultRejected = "breaker_open"
)

// Result classifies an operation error.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case bridge.IsInvalidArgument(err):
		return ResultInvalid
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ResultRejected
	default:
		return ResultError
	}
}

// Observer records bridge activity into a Stats instance and, when
// initialized, the Prometheus collectors.
type Observer struct {
	stats *Stats
}

var _ bridge.Observer = (*Observer)(nil)

// NewObserver records into s, or the global stats when s is nil.
func NewObserver(s *Stats) *Observer {
	if s == nil {
		s = global
	}
	return &Observer{stats: s}
}

func (o *Observer) Start(ctx context.Context, cache, op string) (context.Context, func(error)) {
	start := time.Now()
	return ctx, func(err error) {
		o.stats.RecordOperation(cache, op, Result(err), time.Since(start))
	}
}

func (o *Observer) Lookup(_ context.Context, cache string, hits, misses int) {
	o.stats.RecordLookup(cache, hits, misses)
}

func (o *Observer) Override(_ context.Context, cache string, _ int) {
	o.stats.RecordOverride(cache)
}
