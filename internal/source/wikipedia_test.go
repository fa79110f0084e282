package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"social-graph-crawler/internal/models"
)

func wikipediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("prop") == "links" && q.Get("titles") == "Graph theory":
			w.Write([]byte(`{"query":{"pages":{"12345":{"links":[
				{"title":"Leonhard Euler"},
				{"title":"Adjacency matrix"}
			]}}}}`))
		case q.Get("titles") == "Graph theory":
			w.Write([]byte(`{"query":{"pages":{"12345":{"pageid":12345,"title":"Graph theory","length":90210,"touched":"2026-08-01T00:00:00Z","extract":"The study of graphs."}}}}`))
		default:
			w.Write([]byte(`{"query":{"pages":{"-1":{"title":"Missing","missing":""}}}}`))
		}
	}))
}

func TestWikipediaResolveArticle(t *testing.T) {
	srv := wikipediaServer(t)
	defer srv.Close()
	adapter := NewWikipediaAdapterWithBaseURL(testClient(), srv.URL)

	node, err := adapter.ResolveEntity(context.Background(), "Graph theory")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if node.EntityType != models.EntityTypeArticle {
		t.Fatalf("entity type = %q", node.EntityType)
	}
	if node.EntityID != "graph_theory" {
		t.Fatalf("entity id should be the normalized title, got %q", node.EntityID)
	}
	if node.Metadata["page_id"] != int64(12345) {
		t.Fatalf("page_id metadata = %v", node.Metadata["page_id"])
	}
}

func TestWikipediaResolveMissingArticle(t *testing.T) {
	srv := wikipediaServer(t)
	defer srv.Close()
	adapter := NewWikipediaAdapterWithBaseURL(testClient(), srv.URL)

	if _, err := adapter.ResolveEntity(context.Background(), "No Such Page"); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestWikipediaArticleLinks(t *testing.T) {
	srv := wikipediaServer(t)
	defer srv.Close()
	adapter := NewWikipediaAdapterWithBaseURL(testClient(), srv.URL)

	discoveries, err := adapter.FetchRelationships(context.Background(), models.Node{
		EntityType:  models.EntityTypeArticle,
		EntityID:    "graph_theory",
		Source:      models.SourceWikipedia,
		DisplayName: "Graph theory",
	})
	if err != nil {
		t.Fatalf("fetch relationships: %v", err)
	}
	if len(discoveries) != 2 {
		t.Fatalf("expected 2 links, got %d", len(discoveries))
	}
	if discoveries[0].RelationshipType != "links_to" || discoveries[0].NeighborIsSource {
		t.Fatalf("unexpected discovery %+v", discoveries[0])
	}
	if discoveries[0].Neighbor.EntityID != "leonhard_euler" {
		t.Fatalf("link identity should be the normalized title, got %q", discoveries[0].Neighbor.EntityID)
	}
}
