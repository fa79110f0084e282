package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"social-graph-crawler/internal/crawler"
	"social-graph-crawler/internal/graph"
	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/query"
	"social-graph-crawler/internal/source"
)

// chainAdapter links every entity to one successor: a -> ax -> axx...
type chainAdapter struct{}

func (chainAdapter) Source() models.Source { return models.SourceGitHub }

func (chainAdapter) ResolveEntity(_ context.Context, reference string) (models.Node, error) {
	if reference == "ghost" {
		return models.Node{}, fmt.Errorf("%w: %s", source.ErrEntityNotFound, reference)
	}
	return models.Node{
		EntityType:  models.EntityTypeUser,
		EntityID:    reference,
		Source:      models.SourceGitHub,
		DisplayName: reference,
	}, nil
}

func (chainAdapter) FetchRelationships(_ context.Context, node models.Node) ([]models.Discovery, error) {
	return []models.Discovery{{
		Neighbor: models.Node{
			EntityType:  models.EntityTypeUser,
			EntityID:    node.EntityID + "x",
			Source:      models.SourceGitHub,
			DisplayName: node.EntityID + "x",
		},
		RelationshipType: "follows",
		Weight:           0.5,
	}}, nil
}

func newTestServer(t *testing.T) (*server, *graph.MemoryStore) {
	t.Helper()

	store := graph.NewMemoryStore()
	engine := crawler.NewEngine(store, []source.Adapter{chainAdapter{}}, nil, crawler.Config{MaxCrawlDepth: 5})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := engine.Close(ctx); err != nil {
			t.Errorf("engine close: %v", err)
		}
	})

	return newServer(engine, query.NewService(store)), store
}

func startJob(t *testing.T, srv *server, body string) models.CrawlJob {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleStartCrawl(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	var job models.CrawlJob
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return job
}

func waitForJob(t *testing.T, srv *server, jobID string) models.CrawlJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/crawl/jobs/"+jobID, nil)
		rec := httptest.NewRecorder()
		srv.handleJob(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var job models.CrawlJob
		if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return models.CrawlJob{}
}

func TestHandleStartCrawl(t *testing.T) {
	srv, _ := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"alice","depth":2,"max_entities":10}`)
	if job.ID == "" || job.Status != models.CrawlStatusPending {
		t.Fatalf("unexpected job: %+v", job)
	}

	job = waitForJob(t, srv, job.ID)
	if job.Status != models.CrawlStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.EntityCount != 3 {
		t.Fatalf("entity count = %d, want 3", job.EntityCount)
	}
}

func TestHandleStartCrawlRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []string{
		`not json`,
		`{"source":"myspace","start_entity":"alice","depth":1,"max_entities":10}`,
		`{"source":"github","start_entity":"","depth":1,"max_entities":10}`,
		`{"source":"github","start_entity":"alice","depth":0,"max_entities":10}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.handleStartCrawl(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/crawl", nil)
	rec := httptest.NewRecorder()
	srv.handleStartCrawl(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/crawl/jobs/unknown", nil)
	rec := httptest.NewRecorder()
	srv.handleJob(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCancelFinishedJobConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"alice","depth":1,"max_entities":5}`)
	waitForJob(t, srv, job.ID)

	req := httptest.NewRequest(http.MethodDelete, "/crawl/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()
	srv.handleJob(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for finished job, got %d", rec.Code)
	}
}

func TestHandleListJobs(t *testing.T) {
	srv, _ := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"alice","depth":1,"max_entities":5}`)
	waitForJob(t, srv, job.ID)

	req := httptest.NewRequest(http.MethodGet, "/crawl/jobs?source=github", nil)
	rec := httptest.NewRecorder()
	srv.handleListJobs(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Jobs  []models.CrawlJob `json:"jobs"`
		Count int               `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Count != 1 || payload.Jobs[0].ID != job.ID {
		t.Fatalf("unexpected listing: %+v", payload)
	}
}

func TestHandleNeighbors(t *testing.T) {
	srv, store := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"alice","depth":1,"max_entities":5}`)
	waitForJob(t, srv, job.ID)

	seed, err := store.GetNodeByIdentity(context.Background(), models.SourceGitHub, models.EntityTypeUser, "alice")
	if err != nil {
		t.Fatalf("seed lookup: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/graph/neighbors?node_id="+seed.ID+"&direction=out", nil)
	rec := httptest.NewRecorder()
	srv.handleNeighbors(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Neighbors []query.Neighbor `json:"neighbors"`
		Count     int              `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Count != 1 || payload.Neighbors[0].Node.EntityID != "alicex" {
		t.Fatalf("unexpected neighbors: %+v", payload)
	}
}

func TestHandleNeighborsBadDirection(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/graph/neighbors?node_id=x&direction=sideways", nil)
	rec := httptest.NewRecorder()
	srv.handleNeighbors(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSubgraphAndPath(t *testing.T) {
	srv, store := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"alice","depth":2,"max_entities":10}`)
	waitForJob(t, srv, job.ID)

	ctx := context.Background()
	seed, err := store.GetNodeByIdentity(ctx, models.SourceGitHub, models.EntityTypeUser, "alice")
	if err != nil {
		t.Fatalf("seed lookup: %v", err)
	}
	tail, err := store.GetNodeByIdentity(ctx, models.SourceGitHub, models.EntityTypeUser, "alicexx")
	if err != nil {
		t.Fatalf("tail lookup: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/graph/query?start_id="+seed.ID+"&depth=2&direction=out", nil)
	rec := httptest.NewRecorder()
	srv.handleSubgraph(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("subgraph: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sub models.Subgraph
	if err := json.NewDecoder(rec.Body).Decode(&sub); err != nil {
		t.Fatalf("failed to decode subgraph: %v", err)
	}
	if len(sub.Nodes) != 3 || len(sub.Edges) != 2 {
		t.Fatalf("subgraph = %d nodes %d edges, want 3 and 2", len(sub.Nodes), len(sub.Edges))
	}

	req = httptest.NewRequest(http.MethodGet, "/graph/path?from="+seed.ID+"&to="+tail.ID, nil)
	rec = httptest.NewRecorder()
	srv.handleShortestPath(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("path: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var path models.Path
	if err := json.NewDecoder(rec.Body).Decode(&path); err != nil {
		t.Fatalf("failed to decode path: %v", err)
	}
	if path.Length != 2 {
		t.Fatalf("path length = %d, want 2", path.Length)
	}

	// Unknown endpoint yields 404.
	req = httptest.NewRequest(http.MethodGet, "/graph/path?from="+seed.ID+"&to=missing", nil)
	rec = httptest.NewRecorder()
	srv.handleShortestPath(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown node, got %d", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	srv, _ := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"alice","depth":1,"max_entities":5}`)
	waitForJob(t, srv, job.ID)

	req := httptest.NewRequest(http.MethodGet, "/graph/stats", nil)
	rec := httptest.NewRecorder()
	srv.handleStats(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats models.GraphStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalNodes != 2 || stats.TotalEdges != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"socialgraph_api_up 1", "crawler_jobs_total", "cache_requests_total"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestHandleFailedSeedSurfacesError(t *testing.T) {
	srv, _ := newTestServer(t)

	job := startJob(t, srv, `{"source":"github","start_entity":"ghost","depth":1,"max_entities":5}`)
	job = waitForJob(t, srv, job.ID)
	if job.Status != models.CrawlStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Fatal("expected error message on failed job")
	}
}
