package metrics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Stats collects in-process counters for every cache configuration. It
// backs the JSON stats endpoint and works without Prometheus.
type Stats struct {
	// Totals across caches
	Operations atomic.Int64
	Failures   atomic.Int64
	Hits       atomic.Int64
	Misses     atomic.Int64
	Overrides  atomic.Int64

	caches sync.Map // cache name -> *CacheStats

	startTime time.Time
}

// CacheStats tracks counters for a single cache configuration.
type CacheStats struct {
	Operations atomic.Int64
	Failures   atomic.Int64
	Invalid    atomic.Int64
	Hits       atomic.Int64
	Misses     atomic.Int64
	Overrides  atomic.Int64
	TotalUs    atomic.Int64
	MaxUs      atomic.Int64
}

// Global stats instance
var global = &Stats{startTime: time.Now()}

// Global returns the global stats instance
func Global() *Stats {
	return global
}

// StartTime returns the time when the metrics system was initialized
func StartTime() time.Time {
	return global.startTime
}

// RecordOperation records the outcome of one bridge operation.
func (s *Stats) RecordOperation(cache, op, result string, d time.Duration) {
	s.Operations.Add(1)
	cs := s.cache(cache)
	cs.Operations.Add(1)
	switch result {
	case ResultOK:
	case ResultInvalid:
		cs.Invalid.Add(1)
	default:
		s.Failures.Add(1)
		cs.Failures.Add(1)
	}
	us := d.Microseconds()
	cs.TotalUs.Add(us)
	updateMax(&cs.MaxUs, us)

	RecordPrometheusOperation(cache, op, result, d)
}

// RecordLookup records read hits and misses.
func (s *Stats) RecordLookup(cache string, hits, misses int) {
	s.Hits.Add(int64(hits))
	s.Misses.Add(int64(misses))
	cs := s.cache(cache)
	cs.Hits.Add(int64(hits))
	cs.Misses.Add(int64(misses))

	RecordPrometheusLookup(cache, hits, misses)
}

// RecordOverride records a per-call TTL applied through the duration setting.
func (s *Stats) RecordOverride(cache string) {
	s.Overrides.Add(1)
	s.cache(cache).Overrides.Add(1)

	RecordPrometheusOverride(cache)
}

func (s *Stats) cache(name string) *CacheStats {
	if v, ok := s.caches.Load(name); ok {
		return v.(*CacheStats)
	}
	actual, _ := s.caches.LoadOrStore(name, &CacheStats{})
	return actual.(*CacheStats)
}

// CacheSnapshot is the JSON view of one cache's counters.
type CacheSnapshot struct {
	Name       string  `json:"name"`
	Operations int64   `json:"operations"`
	Failures   int64   `json:"failures"`
	Invalid    int64   `json:"invalid_arguments"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRatio   float64 `json:"hit_ratio"`
	Overrides  int64   `json:"ttl_overrides"`
	AvgMs      float64 `json:"avg_ms"`
	MaxMs      float64 `json:"max_ms"`
}

// Snapshot is the JSON view of all counters.
type Snapshot struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	Operations    int64           `json:"operations"`
	Failures      int64           `json:"failures"`
	Hits          int64           `json:"hits"`
	Misses        int64           `json:"misses"`
	HitRatio      float64         `json:"hit_ratio"`
	Overrides     int64           `json:"ttl_overrides"`
	Caches        []CacheSnapshot `json:"caches"`
}

// Snapshot returns a point-in-time copy of all counters, caches sorted by
// name.
func (s *Stats) Snapshot() Snapshot {
	out := Snapshot{
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Operations:    s.Operations.Load(),
		Failures:      s.Failures.Load(),
		Hits:          s.Hits.Load(),
		Misses:        s.Misses.Load(),
		Overrides:     s.Overrides.Load(),
		Caches:        []CacheSnapshot{},
	}
	out.HitRatio = ratio(out.Hits, out.Misses)

	s.caches.Range(func(key, value any) bool {
		cs := value.(*CacheStats)
		ops := cs.Operations.Load()
		avg := float64(0)
		if ops > 0 {
			avg = float64(cs.TotalUs.Load()) / float64(ops) / 1000
		}
		hits, misses := cs.Hits.Load(), cs.Misses.Load()
		out.Caches = append(out.Caches, CacheSnapshot{
			Name:       key.(string),
			Operations: ops,
			Failures:   cs.Failures.Load(),
			Invalid:    cs.Invalid.Load(),
			Hits:       hits,
			Misses:     misses,
			HitRatio:   ratio(hits, misses),
			Overrides:  cs.Overrides.Load(),
			AvgMs:      avg,
			MaxMs:      float64(cs.MaxUs.Load()) / 1000,
		})
		return true
	})
	sort.Slice(out.Caches, func(i, j int) bool { return out.Caches[i].Name < out.Caches[j].Name })
	return out
}

// Handler serves the snapshot as JSON.
func (s *Stats) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	}
}

// Helper functions

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func ratio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
