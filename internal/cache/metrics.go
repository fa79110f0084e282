package cache

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	// Read-through outcomes; a corrupt or unreadable entry counts as a miss.
	cacheHitsTotal   uint64
	cacheMissesTotal uint64
)

func observeCacheHit()  { atomic.AddUint64(&cacheHitsTotal, 1) }
func observeCacheMiss() { atomic.AddUint64(&cacheMissesTotal, 1) }

// AppendMetrics writes the cache's metrics in Prometheus text format.
func AppendMetrics(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP cache_requests_total Query cache lookups by outcome.\n")
	fmt.Fprintf(sb, "# TYPE cache_requests_total counter\n")
	fmt.Fprintf(sb, "cache_requests_total{outcome=\"hit\"} %d\n", atomic.LoadUint64(&cacheHitsTotal))
	fmt.Fprintf(sb, "cache_requests_total{outcome=\"miss\"} %d\n", atomic.LoadUint64(&cacheMissesTotal))
}
