package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"social-graph-crawler/internal/models"
)

// RedditAdapter discovers subreddits, their top posters, and the
// subreddits those users post into, via Reddit's public JSON API.
type RedditAdapter struct {
	client  *Client
	baseURL string
}

// NewRedditAdapter builds a Reddit adapter over the shared fetcher.
func NewRedditAdapter(client *Client) *RedditAdapter {
	return &RedditAdapter{client: client, baseURL: "https://www.reddit.com"}
}

// NewRedditAdapterWithBaseURL overrides the API host (tests).
func NewRedditAdapterWithBaseURL(client *Client, baseURL string) *RedditAdapter {
	return &RedditAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *RedditAdapter) Source() models.Source {
	return models.SourceReddit
}

// ResolveEntity resolves a subreddit name ("python" or "r/python").
func (a *RedditAdapter) ResolveEntity(ctx context.Context, reference string) (models.Node, error) {
	name := strings.TrimPrefix(strings.TrimSpace(reference), "r/")
	if name == "" {
		return models.Node{}, fmt.Errorf("%w: empty subreddit reference", ErrEntityNotFound)
	}

	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"/r/"+url.PathEscape(name)+"/about.json", nil)
	if err != nil {
		return models.Node{}, err
	}

	var payload struct {
		Data struct {
			DisplayName       string  `json:"display_name"`
			Subscribers       int64   `json:"subscribers"`
			PublicDescription string  `json:"public_description"`
			CreatedUTC        float64 `json:"created_utc"`
			Over18            bool    `json:"over18"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Node{}, fmt.Errorf("%w: subreddit %s: %v", ErrEntityNotFound, name, err)
	}
	if payload.Data.DisplayName == "" {
		return models.Node{}, fmt.Errorf("%w: subreddit %s", ErrEntityNotFound, name)
	}

	return models.Node{
		EntityType:  models.EntityTypeSubreddit,
		EntityID:    strings.ToLower(payload.Data.DisplayName),
		Source:      models.SourceReddit,
		DisplayName: "r/" + payload.Data.DisplayName,
		Metadata: models.Metadata{
			"subscribers": payload.Data.Subscribers,
			"description": payload.Data.PublicDescription,
			"created_utc": payload.Data.CreatedUTC,
			"over18":      payload.Data.Over18,
		},
	}, nil
}

// FetchRelationships expands a subreddit into its top posters, or a user
// into the subreddits they post into.
func (a *RedditAdapter) FetchRelationships(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	switch node.EntityType {
	case models.EntityTypeSubreddit:
		return a.subredditPosters(ctx, node)
	case models.EntityTypeUser:
		return a.userSubreddits(ctx, node)
	default:
		return nil, nil
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				Author     string  `json:"author"`
				Subreddit  string  `json:"subreddit"`
				Score      float64 `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// subredditPosters returns the authors of the subreddit's top posts this
// week, each as a user node with a posts_in edge back to the subreddit.
func (a *RedditAdapter) subredditPosters(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	fetchURL := fmt.Sprintf("%s/r/%s/top.json?limit=25&t=week", a.baseURL, url.PathEscape(node.EntityID))
	body, err := a.client.FetchJSON(ctx, a.Source(), fetchURL, nil)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("%w: posts for %s: %v", ErrEntityNotFound, node.DisplayName, err)
	}

	var discoveries []models.Discovery
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Author == "" || post.Author == "[deleted]" {
			continue
		}
		discoveries = append(discoveries, models.Discovery{
			Neighbor: models.Node{
				EntityType:  models.EntityTypeUser,
				EntityID:    strings.ToLower(post.Author),
				Source:      models.SourceReddit,
				DisplayName: "u/" + post.Author,
			},
			RelationshipType: "posts_in",
			Weight:           post.Score / 100.0,
			Metadata: models.Metadata{
				"post_id":     post.ID,
				"post_title":  post.Title,
				"created_utc": post.CreatedUTC,
			},
			NeighborIsSource: true, // user -> subreddit
		})
	}
	return discoveries, nil
}

// userSubreddits returns the subreddits a user posts into most, weighted by
// post count.
func (a *RedditAdapter) userSubreddits(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	fetchURL := fmt.Sprintf("%s/user/%s/submitted.json?limit=50", a.baseURL, url.PathEscape(node.EntityID))
	body, err := a.client.FetchJSON(ctx, a.Source(), fetchURL, nil)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("%w: posts for %s: %v", ErrEntityNotFound, node.DisplayName, err)
	}

	counts := make(map[string]int)
	for _, child := range listing.Data.Children {
		if child.Data.Subreddit != "" {
			counts[child.Data.Subreddit]++
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 5 {
		names = names[:5]
	}

	var discoveries []models.Discovery
	for _, name := range names {
		weight := float64(counts[name]) / 10.0
		if weight > 1.0 {
			weight = 1.0
		}
		discoveries = append(discoveries, models.Discovery{
			Neighbor: models.Node{
				EntityType:  models.EntityTypeSubreddit,
				EntityID:    strings.ToLower(name),
				Source:      models.SourceReddit,
				DisplayName: "r/" + name,
			},
			RelationshipType: "posts_in",
			Weight:           weight,
			Metadata:         models.Metadata{"post_count": counts[name]},
		})
	}
	return discoveries, nil
}
