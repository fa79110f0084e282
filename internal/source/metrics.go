package source

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// Histogram buckets for source fetch latency (seconds). Buckets define
	// upper bounds; the +Inf bucket is implicit.
	fetchLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	// Counts per bucket; last slot holds the +Inf bucket.
	fetchLatencyCounts = make([]uint64, len(fetchLatencyBuckets)+1)
	fetchLatencySumNs  uint64
	fetchLatencyCount  uint64

	// HTTP 429 responses from sources; one increment per rate-limited fetch.
	rateLimitHitsTotal uint64
)

func observeFetchLatency(duration time.Duration) {
	if duration <= 0 {
		return
	}
	seconds := duration.Seconds()
	bucketIndex := len(fetchLatencyBuckets)
	for i, bound := range fetchLatencyBuckets {
		if seconds <= bound {
			bucketIndex = i
			break
		}
	}
	atomic.AddUint64(&fetchLatencyCounts[bucketIndex], 1)
	atomic.AddUint64(&fetchLatencySumNs, uint64(duration.Nanoseconds()))
	atomic.AddUint64(&fetchLatencyCount, 1)
}

func observeRateLimitHit() {
	atomic.AddUint64(&rateLimitHitsTotal, 1)
}

// AppendMetrics writes source fetch metrics in Prometheus text format.
func AppendMetrics(sb *strings.Builder) {
	sb.WriteString("# HELP crawler_source_rate_limit_hits_total HTTP 429 responses from sources.\n")
	sb.WriteString("# TYPE crawler_source_rate_limit_hits_total counter\n")
	fmt.Fprintf(sb, "crawler_source_rate_limit_hits_total %d\n", atomic.LoadUint64(&rateLimitHitsTotal))

	sb.WriteString("# HELP crawler_source_fetch_latency_seconds Source fetch latency.\n")
	sb.WriteString("# TYPE crawler_source_fetch_latency_seconds histogram\n")
	var cumulative uint64
	for i, bound := range fetchLatencyBuckets {
		cumulative += atomic.LoadUint64(&fetchLatencyCounts[i])
		fmt.Fprintf(sb, "crawler_source_fetch_latency_seconds_bucket{le=\"%.2f\"} %d\n", bound, cumulative)
	}
	cumulative += atomic.LoadUint64(&fetchLatencyCounts[len(fetchLatencyBuckets)])
	fmt.Fprintf(sb, "crawler_source_fetch_latency_seconds_bucket{le=\"+Inf\"} %d\n", cumulative)
	sumSeconds := float64(atomic.LoadUint64(&fetchLatencySumNs)) / float64(time.Second)
	fmt.Fprintf(sb, "crawler_source_fetch_latency_seconds_sum %.6f\n", sumSeconds)
	fmt.Fprintf(sb, "crawler_source_fetch_latency_seconds_count %d\n", atomic.LoadUint64(&fetchLatencyCount))
}
