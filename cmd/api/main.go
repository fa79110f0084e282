package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"social-graph-crawler/common"
	"social-graph-crawler/internal/cache"
	"social-graph-crawler/internal/crawler"
	"social-graph-crawler/internal/graph"
	"social-graph-crawler/internal/kafka"
	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/query"
	"social-graph-crawler/internal/ratelimit"
	"social-graph-crawler/internal/source"
)

type server struct {
	engine  *crawler.Engine
	querier cache.GraphQuerier
}

func newServer(engine *crawler.Engine, querier cache.GraphQuerier) *server {
	return &server{
		engine:  engine,
		querier: querier,
	}
}

func main() {
	addr := common.GetEnv("HTTP_ADDR", ":8080")
	backend := common.GetEnv("GRAPH_BACKEND", "neo4j")
	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "password")
	redisAddr := common.GetEnv("REDIS_ADDR", "")
	cacheTTL := common.ParseDuration(common.GetEnv("CACHE_TTL", ""), 5*time.Minute)
	broker := common.GetEnv("KAFKA_BROKER", "")
	nodeTopic := common.GetEnv("KAFKA_NODE_TOPIC", "socialgraph.graph.nodes")
	edgeTopic := common.GetEnv("KAFKA_EDGE_TOPIC", "socialgraph.graph.edges")
	failureTopic := common.GetEnv("KAFKA_FAILURE_TOPIC", "socialgraph.crawl.failures")
	rps := common.ParseFloat(common.GetEnv("RATE_LIMIT_RPS", ""), 1)
	burst := common.ParseInt(common.GetEnv("RATE_LIMIT_BURST", ""), 5)
	maxWait := common.ParseDuration(common.GetEnv("RATE_LIMIT_MAX_WAIT", ""), 30*time.Second)
	maxDepth := common.ParseInt(common.GetEnv("MAX_CRAWL_DEPTH", ""), 3)
	maxNodes := common.ParseInt(common.GetEnv("MAX_NODES_PER_JOB", ""), 1000)
	batchSize := common.ParseInt(common.GetEnv("CRAWL_BATCH_SIZE", ""), 5)
	githubToken := common.GetEnv("GITHUB_TOKEN", "")
	userAgent := common.GetEnv("USER_AGENT", source.DefaultUserAgent)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store graph.Store
	if backend == "memory" {
		store = graph.NewMemoryStore()
		log.Printf("using in-memory graph store")
	} else {
		neoStore, err := graph.NewNeo4jStore(neo4jURI, neo4jUser, neo4jPassword)
		if err != nil {
			log.Fatalf("neo4j store: %v", err)
		}
		defer func() {
			if err := neoStore.Close(context.Background()); err != nil {
				log.Printf("failed to close neo4j store: %v", err)
			}
		}()
		store = neoStore
	}

	var events kafka.EventSink
	if broker != "" {
		prod := kafka.NewProducer(broker, nodeTopic, edgeTopic, failureTopic)
		defer func() {
			if err := prod.Close(); err != nil {
				log.Printf("failed to close producer: %v", err)
			}
		}()
		events = prod
		log.Printf("publishing graph events broker=%s nodes=%s edges=%s failures=%s",
			broker, nodeTopic, edgeTopic, failureTopic)
	}

	limiter := ratelimit.New(ratelimit.Config{TokensPerSecond: rps, Burst: burst, MaxWait: maxWait})
	client := source.NewClient(source.ClientConfig{Limiter: limiter, UserAgent: userAgent})
	adapters := []source.Adapter{
		source.NewRedditAdapter(client),
		source.NewGitHubAdapter(client, githubToken),
		source.NewWikipediaAdapter(client),
	}

	engine := crawler.NewEngine(store, adapters, events, crawler.Config{
		MaxCrawlDepth:  maxDepth,
		MaxNodesPerJob: maxNodes,
		BatchSize:      batchSize,
	})

	var querier cache.GraphQuerier = query.NewService(store)
	if redisAddr != "" {
		redisStore := cache.NewRedisStore(redisAddr, "graphquery:")
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Printf("failed to close cache store: %v", err)
			}
		}()
		querier = cache.NewCachedService(querier, redisStore, cacheTTL)
		log.Printf("query cache enabled redis=%s ttl=%s", redisAddr, cacheTTL)
	}

	srv := newServer(engine, querier)

	mux := http.NewServeMux()
	mux.HandleFunc("/crawl", srv.handleStartCrawl)
	mux.HandleFunc("/crawl/jobs", srv.handleListJobs)
	mux.HandleFunc("/crawl/jobs/", srv.handleJob)
	mux.HandleFunc("/graph/neighbors", srv.handleNeighbors)
	mux.HandleFunc("/graph/query", srv.handleSubgraph)
	mux.HandleFunc("/graph/path", srv.handleShortestPath)
	mux.HandleFunc("/graph/stats", srv.handleStats)
	mux.HandleFunc("/metrics", srv.handleMetrics)

	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.Close(shutdownCtx); err != nil {
			log.Printf("engine shutdown error: %v", err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
	}()

	log.Printf("api listening on %s backend=%s max_depth=%d max_nodes=%d", addr, backend, maxDepth, maxNodes)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

type crawlRequest struct {
	Source      string `json:"source"`
	StartEntity string `json:"start_entity"`
	Depth       int    `json:"depth"`
	MaxEntities int    `json:"max_entities"`
}

// handleStartCrawl accepts POST requests to start a crawl job.
//
// Method: POST
// Path:   /crawl
// Example:
//
//	curl -X POST http://localhost:8080/crawl \
//	  -d '{"source":"github","start_entity":"torvalds","depth":2,"max_entities":100}'
func (s *server) handleStartCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := s.engine.StartCrawl(crawler.CrawlRequest{
		Source:      models.Source(req.Source),
		StartEntity: req.StartEntity,
		Depth:       req.Depth,
		MaxEntities: req.MaxEntities,
	})
	if err != nil {
		switch {
		case errors.Is(err, crawler.ErrUnknownSource), errors.Is(err, crawler.ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, "failed to start crawl", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, job, http.StatusAccepted)
}

// handleListJobs lists crawl jobs, newest first.
//
// Method: GET
// Path:   /crawl/jobs?source=github&status=completed&limit=20&offset=0
// Example:
//
//	curl "http://localhost:8080/crawl/jobs?status=running"
func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	jobs := s.engine.ListJobs(crawler.JobFilter{
		Source: models.Source(q.Get("source")),
		Status: models.CrawlStatus(q.Get("status")),
		Limit:  common.ParseInt(q.Get("limit"), 50),
		Offset: common.ParseInt(q.Get("offset"), 0),
	})

	writeJSON(w, map[string]any{"jobs": jobs, "count": len(jobs)}, http.StatusOK)
}

// handleJob returns or cancels one crawl job.
//
// Methods: GET, DELETE
// Path:    /crawl/jobs/{jobID}
// Example:
//
//	curl "http://localhost:8080/crawl/jobs/6d4b0a1e-..."
//	curl -X DELETE "http://localhost:8080/crawl/jobs/6d4b0a1e-..."
func (s *server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/crawl/jobs/"), "/")
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.engine.GetJob(jobID)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, job, http.StatusOK)
	case http.MethodDelete:
		job, err := s.engine.CancelCrawl(jobID)
		switch {
		case err == nil:
			writeJSON(w, job, http.StatusAccepted)
		case errors.Is(err, crawler.ErrJobNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, crawler.ErrJobFinished):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "failed to cancel job", http.StatusInternalServerError)
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleNeighbors returns the nodes adjacent to one node.
//
// Method: GET
// Path:   /graph/neighbors?node_id=...&direction=both&limit=50
// Example:
//
//	curl "http://localhost:8080/graph/neighbors?node_id=6d4b0a1e-...&direction=out"
func (s *server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	nodeID := q.Get("node_id")
	if nodeID == "" {
		http.Error(w, "missing node_id", http.StatusBadRequest)
		return
	}
	direction, err := models.ParseDirection(q.Get("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	neighbors, err := s.querier.Neighbors(r.Context(), nodeID, direction, common.ParseInt(q.Get("limit"), 0))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, map[string]any{"neighbors": neighbors, "count": len(neighbors)}, http.StatusOK)
}

// handleSubgraph expands a bounded subgraph around one node.
//
// Method: GET
// Path:   /graph/query?start_id=...&depth=2&max_nodes=100&direction=both
// Example:
//
//	curl "http://localhost:8080/graph/query?start_id=6d4b0a1e-...&depth=2"
func (s *server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	startID := q.Get("start_id")
	if startID == "" {
		http.Error(w, "missing start_id", http.StatusBadRequest)
		return
	}
	direction, err := models.ParseDirection(q.Get("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	depth := common.ParseInt(q.Get("depth"), 1)
	maxNodes := common.ParseInt(q.Get("max_nodes"), 0)

	subgraph, err := s.querier.Subgraph(r.Context(), startID, depth, maxNodes, direction)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, subgraph, http.StatusOK)
}

// handleShortestPath returns the minimum-weight directed path between
// two nodes.
//
// Method: GET
// Path:   /graph/path?from=...&to=...
// Example:
//
//	curl "http://localhost:8080/graph/path?from=6d4b0a1e-...&to=9f2c77b3-..."
func (s *server) handleShortestPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		http.Error(w, "missing from or to", http.StatusBadRequest)
		return
	}

	path, err := s.querier.ShortestPath(r.Context(), from, to)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, path, http.StatusOK)
}

// handleStats returns aggregate graph statistics.
//
// Method: GET
// Path:   /graph/stats
// Example:
//
//	curl "http://localhost:8080/graph/stats"
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.querier.Stats(r.Context())
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, stats, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
//
// Method: GET
// Path:   /metrics
// Example:
//
//	curl "http://localhost:8080/metrics"
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sb strings.Builder
	sb.WriteString("socialgraph_api_up 1\n")
	crawler.AppendMetrics(&sb)
	source.AppendMetrics(&sb)
	cache.AppendMetrics(&sb)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, query.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "query failed", http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
