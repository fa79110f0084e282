package models

import "time"

// CrawlStatus is the lifecycle state of a crawl job.
type CrawlStatus string

const (
	CrawlStatusPending   CrawlStatus = "pending"
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
	CrawlStatusCancelled CrawlStatus = "cancelled"
)

// IsTerminal reports whether no further transition can occur.
func (s CrawlStatus) IsTerminal() bool {
	return s == CrawlStatusCompleted || s == CrawlStatusFailed || s == CrawlStatusCancelled
}

// CrawlJob tracks one breadth-first discovery run. EntityCount and EdgeCount
// are non-decreasing while the job runs; once the status is terminal the
// record never changes again.
type CrawlJob struct {
	ID           string      `json:"id"`
	Source       Source      `json:"source"`
	StartEntity  string      `json:"start_entity"`
	Depth        int         `json:"depth"`
	MaxEntities  int         `json:"max_entities"`
	Status       CrawlStatus `json:"status"`
	EntityCount  int         `json:"entity_count"`
	EdgeCount    int         `json:"edge_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
