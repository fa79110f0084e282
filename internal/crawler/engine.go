package crawler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"social-graph-crawler/internal/graph"
	"social-graph-crawler/internal/kafka"
	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/source"
)

var (
	ErrJobNotFound    = errors.New("crawl job not found")
	ErrJobFinished    = errors.New("crawl job already finished")
	ErrUnknownSource  = errors.New("no adapter registered for source")
	ErrInvalidRequest = errors.New("invalid crawl request")
)

// Config bounds what a single crawl job may do.
type Config struct {
	MaxCrawlDepth  int // ceiling on requested depth
	MaxNodesPerJob int // ceiling on requested max_entities
	BatchSize      int // frontier entries expanded concurrently per batch
}

// CrawlRequest describes a crawl to start.
type CrawlRequest struct {
	Source      models.Source
	StartEntity string
	Depth       int
	MaxEntities int
}

// Engine runs breadth-first crawl jobs against registered source
// adapters, persisting discovered nodes and edges.
type Engine struct {
	store    graph.Store
	adapters map[models.Source]source.Adapter
	events   kafka.EventSink // nil disables event publishing
	cfg      Config

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*jobState
}

type jobState struct {
	mu        sync.Mutex
	job       models.CrawlJob
	cancelled atomic.Bool
}

// NewEngine builds a crawl engine. A nil events sink disables publishing.
func NewEngine(store graph.Store, adapters []source.Adapter, events kafka.EventSink, cfg Config) *Engine {
	if cfg.MaxCrawlDepth <= 0 {
		cfg.MaxCrawlDepth = 3
	}
	if cfg.MaxNodesPerJob <= 0 {
		cfg.MaxNodesPerJob = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}

	bySource := make(map[models.Source]source.Adapter, len(adapters))
	for _, a := range adapters {
		bySource[a.Source()] = a
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:      store,
		adapters:   bySource,
		events:     events,
		cfg:        cfg,
		rootCtx:    ctx,
		rootCancel: cancel,
		jobs:       make(map[string]*jobState),
	}
}

// StartCrawl validates the request, registers a pending job, and runs it
// in the background. The returned snapshot has status pending.
func (e *Engine) StartCrawl(req CrawlRequest) (models.CrawlJob, error) {
	adapter, ok := e.adapters[req.Source]
	if !ok {
		return models.CrawlJob{}, fmt.Errorf("%w: %s", ErrUnknownSource, req.Source)
	}
	if req.StartEntity == "" {
		return models.CrawlJob{}, fmt.Errorf("%w: start_entity is required", ErrInvalidRequest)
	}
	if req.Depth < 1 {
		return models.CrawlJob{}, fmt.Errorf("%w: depth must be at least 1", ErrInvalidRequest)
	}
	if req.MaxEntities < 1 {
		return models.CrawlJob{}, fmt.Errorf("%w: max_entities must be at least 1", ErrInvalidRequest)
	}
	if req.Depth > e.cfg.MaxCrawlDepth {
		req.Depth = e.cfg.MaxCrawlDepth
	}
	if req.MaxEntities > e.cfg.MaxNodesPerJob {
		req.MaxEntities = e.cfg.MaxNodesPerJob
	}

	state := &jobState{
		job: models.CrawlJob{
			ID:          uuid.NewString(),
			Source:      req.Source,
			StartEntity: req.StartEntity,
			Depth:       req.Depth,
			MaxEntities: req.MaxEntities,
			Status:      models.CrawlStatusPending,
			CreatedAt:   time.Now().UTC(),
		},
	}

	e.mu.Lock()
	e.jobs[state.job.ID] = state
	e.mu.Unlock()

	observeJobStarted()
	log.Printf("crawl job accepted job_id=%s source=%s start=%s depth=%d max_entities=%d",
		state.job.ID, req.Source, req.StartEntity, req.Depth, req.MaxEntities)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runJob(state, adapter)
	}()

	return state.snapshot(), nil
}

// GetJob returns a snapshot of one job.
func (e *Engine) GetJob(jobID string) (models.CrawlJob, error) {
	e.mu.RLock()
	state, ok := e.jobs[jobID]
	e.mu.RUnlock()
	if !ok {
		return models.CrawlJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return state.snapshot(), nil
}

// JobFilter narrows ListJobs results. Zero values match everything.
type JobFilter struct {
	Source models.Source
	Status models.CrawlStatus
	Limit  int
	Offset int
}

// ListJobs returns job snapshots newest first.
func (e *Engine) ListJobs(filter JobFilter) []models.CrawlJob {
	e.mu.RLock()
	all := make([]models.CrawlJob, 0, len(e.jobs))
	for _, state := range e.jobs {
		all = append(all, state.snapshot())
	}
	e.mu.RUnlock()

	filtered := all[:0]
	for _, job := range all {
		if filter.Source != "" && job.Source != filter.Source {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		filtered = append(filtered, job)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(filtered) {
			return []models.CrawlJob{}
		}
		filtered = filtered[filter.Offset:]
	}
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered
}

// CancelCrawl requests cooperative cancellation. The job stops at its
// next batch boundary; results already in flight are still committed.
func (e *Engine) CancelCrawl(jobID string) (models.CrawlJob, error) {
	e.mu.RLock()
	state, ok := e.jobs[jobID]
	e.mu.RUnlock()
	if !ok {
		return models.CrawlJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	state.mu.Lock()
	if state.job.Status.IsTerminal() {
		job := state.job
		state.mu.Unlock()
		return job, fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}
	state.mu.Unlock()

	state.cancelled.Store(true)
	log.Printf("crawl job cancellation requested job_id=%s", jobID)
	return state.snapshot(), nil
}

// Close stops accepting work and waits for running jobs to reach a
// batch boundary and finish, or for ctx to expire.
func (e *Engine) Close(ctx context.Context) error {
	e.rootCancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *jobState) snapshot() models.CrawlJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

type frontierEntry struct {
	node  models.Node
	depth int
}

type batchResult struct {
	entry       frontierEntry
	discoveries []models.Discovery
	err         error
}

func (e *Engine) runJob(state *jobState, adapter source.Adapter) {
	ctx := e.rootCtx
	jobID := state.job.ID

	now := time.Now().UTC()
	state.mu.Lock()
	state.job.Status = models.CrawlStatusRunning
	state.job.StartedAt = &now
	maxDepth := state.job.Depth
	maxEntities := state.job.MaxEntities
	startEntity := state.job.StartEntity
	src := state.job.Source
	state.mu.Unlock()

	seed, err := adapter.ResolveEntity(ctx, startEntity)
	if err != nil {
		log.Printf("seed resolution failed job_id=%s entity=%s: %v", jobID, startEntity, err)
		e.publishFailure(ctx, jobID, src, startEntity, 0, err)
		e.finishJob(state, models.CrawlStatusFailed, fmt.Sprintf("resolving %s: %v", startEntity, err))
		return
	}

	storedSeed, created, err := e.store.UpsertNode(ctx, seed)
	if err != nil {
		e.finishJob(state, models.CrawlStatusFailed, fmt.Sprintf("persisting seed: %v", err))
		return
	}
	observeNodeUpserted()
	e.publishNode(ctx, jobID, storedSeed, created)

	// Distinct identity keys touched by this job; counters stay monotonic.
	seenNodes := map[string]string{storedSeed.IdentityKey(): storedSeed.ID}
	seenEdges := make(map[string]struct{})
	state.setCounts(len(seenNodes), len(seenEdges))

	frontier := []frontierEntry{{node: storedSeed, depth: 0}}

	for len(frontier) > 0 {
		if ctx.Err() != nil || state.cancelled.Load() {
			e.finishJob(state, models.CrawlStatusCancelled, "")
			return
		}
		if len(seenNodes) >= maxEntities {
			break
		}

		batch := e.takeBatch(&frontier, maxDepth)
		if len(batch) == 0 {
			break
		}

		results := e.fetchBatch(ctx, adapter, batch)

		for _, res := range results {
			if res.err != nil {
				log.Printf("branch fetch failed job_id=%s entity=%s depth=%d: %v",
					jobID, res.entry.node.DisplayName, res.entry.depth, res.err)
				e.publishFailure(ctx, jobID, src, res.entry.node.EntityID, res.entry.depth, res.err)
				continue
			}
			failed := e.commitDiscoveries(ctx, state, res, seenNodes, seenEdges, maxDepth, &frontier)
			if failed {
				return
			}
		}

		state.setCounts(len(seenNodes), len(seenEdges))
	}

	if state.cancelled.Load() {
		e.finishJob(state, models.CrawlStatusCancelled, "")
		return
	}
	e.finishJob(state, models.CrawlStatusCompleted, "")
}

// takeBatch pops up to BatchSize expandable entries off the frontier.
// Entries already at the depth bound were persisted when discovered and
// are not expanded further.
func (e *Engine) takeBatch(frontier *[]frontierEntry, maxDepth int) []frontierEntry {
	var batch []frontierEntry
	for len(*frontier) > 0 && len(batch) < e.cfg.BatchSize {
		entry := (*frontier)[0]
		*frontier = (*frontier)[1:]
		if entry.depth >= maxDepth {
			continue
		}
		batch = append(batch, entry)
	}
	return batch
}

// fetchBatch expands a batch concurrently. Each entry keeps its own
// result slot so commit order matches dequeue order.
func (e *Engine) fetchBatch(ctx context.Context, adapter source.Adapter, batch []frontierEntry) []batchResult {
	results := make([]batchResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range batch {
		i, entry := i, entry
		results[i].entry = entry
		g.Go(func() error {
			results[i].discoveries, results[i].err = adapter.FetchRelationships(gctx, entry.node)
			return nil
		})
	}
	_ = g.Wait() // branch errors travel through their result slots
	return results
}

// commitDiscoveries persists one branch's results in order. Returns true
// when the job was transitioned to failed and must stop.
func (e *Engine) commitDiscoveries(
	ctx context.Context,
	state *jobState,
	res batchResult,
	seenNodes map[string]string,
	seenEdges map[string]struct{},
	maxDepth int,
	frontier *[]frontierEntry,
) bool {
	jobID := state.job.ID
	src := state.job.Source

	for _, disc := range res.discoveries {
		stored, created, err := e.store.UpsertNode(ctx, disc.Neighbor)
		if err != nil {
			log.Printf("node upsert failed job_id=%s entity=%s: %v", jobID, disc.Neighbor.EntityID, err)
			e.publishFailure(ctx, jobID, src, disc.Neighbor.EntityID, res.entry.depth+1, err)
			continue
		}
		observeNodeUpserted()

		key := stored.IdentityKey()
		if _, known := seenNodes[key]; !known {
			seenNodes[key] = stored.ID
			e.publishNode(ctx, jobID, stored, created)
			if res.entry.depth+1 <= maxDepth {
				*frontier = append(*frontier, frontierEntry{node: stored, depth: res.entry.depth + 1})
			}
		}

		edge := models.Edge{
			SourceNodeID:     res.entry.node.ID,
			TargetNodeID:     stored.ID,
			RelationshipType: disc.RelationshipType,
			Weight:           disc.Weight,
			Metadata:         disc.Metadata,
		}
		if disc.NeighborIsSource {
			edge.SourceNodeID, edge.TargetNodeID = stored.ID, res.entry.node.ID
		}

		storedEdge, edgeCreated, err := e.store.UpsertEdge(ctx, edge)
		if err != nil {
			if errors.Is(err, graph.ErrConflict) {
				e.finishJob(state, models.CrawlStatusFailed, fmt.Sprintf("edge conflict: %v", err))
				return true
			}
			log.Printf("edge upsert failed job_id=%s edge=%s: %v", jobID, edge.IdentityKey(), err)
			continue
		}
		observeEdgeUpserted()
		seenEdges[storedEdge.IdentityKey()] = struct{}{}
		e.publishEdge(ctx, jobID, storedEdge, edgeCreated)
	}
	return false
}

func (e *Engine) finishJob(state *jobState, status models.CrawlStatus, errMsg string) {
	now := time.Now().UTC()
	state.mu.Lock()
	state.job.Status = status
	state.job.ErrorMessage = errMsg
	state.job.CompletedAt = &now
	job := state.job
	state.mu.Unlock()

	switch status {
	case models.CrawlStatusCompleted:
		observeJobCompleted()
	case models.CrawlStatusFailed:
		observeJobFailed()
	case models.CrawlStatusCancelled:
		observeJobCancelled()
	}

	log.Printf("crawl job finished job_id=%s status=%s entities=%d edges=%d",
		job.ID, status, job.EntityCount, job.EdgeCount)
}

func (s *jobState) setCounts(entities, edges int) {
	s.mu.Lock()
	if entities > s.job.EntityCount {
		s.job.EntityCount = entities
	}
	if edges > s.job.EdgeCount {
		s.job.EdgeCount = edges
	}
	s.mu.Unlock()
}

func (e *Engine) publishNode(ctx context.Context, jobID string, node models.Node, created bool) {
	if e.events == nil {
		return
	}
	if err := e.events.WriteNodeEvent(ctx, models.NodeEvent{JobID: jobID, Node: node, Created: created}); err != nil {
		log.Printf("node event publish failed job_id=%s: %v", jobID, err)
	}
}

func (e *Engine) publishEdge(ctx context.Context, jobID string, edge models.Edge, created bool) {
	if e.events == nil {
		return
	}
	if err := e.events.WriteEdgeEvent(ctx, models.EdgeEvent{JobID: jobID, Edge: edge, Created: created}); err != nil {
		log.Printf("edge event publish failed job_id=%s: %v", jobID, err)
	}
}

func (e *Engine) publishFailure(ctx context.Context, jobID string, src models.Source, entity string, depth int, cause error) {
	observeBranchFailure()
	if e.events == nil {
		return
	}
	failure := models.CrawlFailure{
		JobID:    jobID,
		Source:   src,
		Entity:   entity,
		Depth:    depth,
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	}
	if err := e.events.WriteFailure(ctx, failure); err != nil {
		log.Printf("failure event publish failed job_id=%s: %v", jobID, err)
	}
}
