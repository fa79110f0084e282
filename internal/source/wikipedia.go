package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"social-graph-crawler/internal/models"
)

// WikipediaAdapter discovers articles and the articles they link to via
// the MediaWiki action API. Articles are keyed by normalized title so the
// same page resolved directly or discovered through a link shares one
// identity.
type WikipediaAdapter struct {
	client  *Client
	baseURL string
}

// NewWikipediaAdapter builds a Wikipedia adapter over the shared fetcher.
func NewWikipediaAdapter(client *Client) *WikipediaAdapter {
	return &WikipediaAdapter{client: client, baseURL: "https://en.wikipedia.org/w/api.php"}
}

// NewWikipediaAdapterWithBaseURL overrides the API endpoint (tests).
func NewWikipediaAdapterWithBaseURL(client *Client, baseURL string) *WikipediaAdapter {
	return &WikipediaAdapter{client: client, baseURL: baseURL}
}

func (a *WikipediaAdapter) Source() models.Source {
	return models.SourceWikipedia
}

// normalizeTitle lowercases a page title and collapses spaces to
// underscores, matching how links reference the same page.
func normalizeTitle(title string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

// ResolveEntity resolves an article by title.
func (a *WikipediaAdapter) ResolveEntity(ctx context.Context, reference string) (models.Node, error) {
	title := strings.TrimSpace(reference)
	if title == "" {
		return models.Node{}, fmt.Errorf("%w: empty article reference", ErrEntityNotFound)
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("titles", title)
	params.Set("prop", "info|extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("exchars", "300")
	params.Set("redirects", "1")

	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.Node{}, err
	}

	var payload struct {
		Query struct {
			Pages map[string]struct {
				PageID  int64  `json:"pageid"`
				Title   string `json:"title"`
				Length  int64  `json:"length"`
				Touched string `json:"touched"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Node{}, fmt.Errorf("%w: article %s: %v", ErrEntityNotFound, title, err)
	}

	for _, page := range payload.Query.Pages {
		if page.PageID == 0 {
			continue // "missing" pages come back keyed "-1" with no pageid
		}
		return models.Node{
			EntityType:  models.EntityTypeArticle,
			EntityID:    normalizeTitle(page.Title),
			Source:      models.SourceWikipedia,
			DisplayName: page.Title,
			Metadata: models.Metadata{
				"page_id":      page.PageID,
				"length":       page.Length,
				"last_touched": page.Touched,
				"summary":      page.Extract,
			},
		}, nil
	}
	return models.Node{}, fmt.Errorf("%w: article %s", ErrEntityNotFound, title)
}

// FetchRelationships expands an article into the articles it links to.
func (a *WikipediaAdapter) FetchRelationships(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	if node.EntityType != models.EntityTypeArticle {
		return nil, nil
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("titles", node.DisplayName)
	params.Set("prop", "links")
	params.Set("plnamespace", "0")
	params.Set("pllimit", "50")
	params.Set("redirects", "1")

	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Query struct {
			Pages map[string]struct {
				Links []struct {
					Title string `json:"title"`
				} `json:"links"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: links for %s: %v", ErrEntityNotFound, node.DisplayName, err)
	}

	var discoveries []models.Discovery
	for _, page := range payload.Query.Pages {
		for _, link := range page.Links {
			if link.Title == "" {
				continue
			}
			discoveries = append(discoveries, models.Discovery{
				Neighbor: models.Node{
					EntityType:  models.EntityTypeArticle,
					EntityID:    normalizeTitle(link.Title),
					Source:      models.SourceWikipedia,
					DisplayName: link.Title,
				},
				RelationshipType: "links_to",
				Weight:           0.5,
			})
		}
	}
	return discoveries, nil
}
