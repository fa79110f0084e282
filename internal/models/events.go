package models

import "time"

// NodeEvent is published after a node upsert for downstream consumers.
type NodeEvent struct {
	JobID   string `json:"job_id"`
	Node    Node   `json:"node"`
	Created bool   `json:"created"`
}

// EdgeEvent is published after an edge upsert for downstream consumers.
type EdgeEvent struct {
	JobID   string `json:"job_id"`
	Edge    Edge   `json:"edge"`
	Created bool   `json:"created"`
}

// CrawlFailure captures a skipped crawl branch for the DLQ.
type CrawlFailure struct {
	JobID    string    `json:"job_id"`
	Source   Source    `json:"source"`
	Entity   string    `json:"entity"`
	Depth    int       `json:"depth"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
