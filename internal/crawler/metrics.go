package crawler

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	// Counters for crawl activity exposed on /metrics.
	// started: jobs accepted; completed/failed/cancelled: terminal outcome.
	jobsStarted   uint64
	jobsCompleted uint64
	jobsFailed    uint64
	jobsCancelled uint64

	nodesUpserted       uint64
	edgesUpserted       uint64
	branchFailuresTotal uint64 // skipped crawl branches (fetch or persist errors)
)

func observeJobStarted()    { atomic.AddUint64(&jobsStarted, 1) }
func observeJobCompleted()  { atomic.AddUint64(&jobsCompleted, 1) }
func observeJobFailed()     { atomic.AddUint64(&jobsFailed, 1) }
func observeJobCancelled()  { atomic.AddUint64(&jobsCancelled, 1) }
func observeNodeUpserted()  { atomic.AddUint64(&nodesUpserted, 1) }
func observeEdgeUpserted()  { atomic.AddUint64(&edgesUpserted, 1) }
func observeBranchFailure() { atomic.AddUint64(&branchFailuresTotal, 1) }

// AppendMetrics writes the crawler's metrics in Prometheus text format.
func AppendMetrics(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP crawler_jobs_total Crawl jobs by outcome.\n")
	fmt.Fprintf(sb, "# TYPE crawler_jobs_total counter\n")
	fmt.Fprintf(sb, "crawler_jobs_total{state=\"started\"} %d\n", atomic.LoadUint64(&jobsStarted))
	fmt.Fprintf(sb, "crawler_jobs_total{state=\"completed\"} %d\n", atomic.LoadUint64(&jobsCompleted))
	fmt.Fprintf(sb, "crawler_jobs_total{state=\"failed\"} %d\n", atomic.LoadUint64(&jobsFailed))
	fmt.Fprintf(sb, "crawler_jobs_total{state=\"cancelled\"} %d\n", atomic.LoadUint64(&jobsCancelled))

	fmt.Fprintf(sb, "# HELP crawler_nodes_upserted_total Nodes written to the graph store.\n")
	fmt.Fprintf(sb, "# TYPE crawler_nodes_upserted_total counter\n")
	fmt.Fprintf(sb, "crawler_nodes_upserted_total %d\n", atomic.LoadUint64(&nodesUpserted))

	fmt.Fprintf(sb, "# HELP crawler_edges_upserted_total Edges written to the graph store.\n")
	fmt.Fprintf(sb, "# TYPE crawler_edges_upserted_total counter\n")
	fmt.Fprintf(sb, "crawler_edges_upserted_total %d\n", atomic.LoadUint64(&edgesUpserted))

	fmt.Fprintf(sb, "# HELP crawler_branch_failures_total Crawl branches skipped after an error.\n")
	fmt.Fprintf(sb, "# TYPE crawler_branch_failures_total counter\n")
	fmt.Fprintf(sb, "crawler_branch_failures_total %d\n", atomic.LoadUint64(&branchFailuresTotal))
}
