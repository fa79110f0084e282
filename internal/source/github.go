package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"social-graph-crawler/internal/models"
)

// GitHubAdapter discovers users and repositories via the GitHub REST API.
// References of the form "owner/repo" resolve to repositories, anything
// else to users.
type GitHubAdapter struct {
	client  *Client
	baseURL string
	token   string
}

// NewGitHubAdapter builds a GitHub adapter. An empty token means
// unauthenticated requests at the lower anonymous rate limit.
func NewGitHubAdapter(client *Client, token string) *GitHubAdapter {
	return &GitHubAdapter{client: client, baseURL: "https://api.github.com", token: token}
}

// NewGitHubAdapterWithBaseURL overrides the API host (tests).
func NewGitHubAdapterWithBaseURL(client *Client, baseURL, token string) *GitHubAdapter {
	return &GitHubAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

func (a *GitHubAdapter) Source() models.Source {
	return models.SourceGitHub
}

func (a *GitHubAdapter) headers() map[string]string {
	h := map[string]string{"Accept": "application/vnd.github+json"}
	if a.token != "" {
		h["Authorization"] = "Bearer " + a.token
	}
	return h
}

// ResolveEntity resolves a username or an "owner/repo" repository reference.
func (a *GitHubAdapter) ResolveEntity(ctx context.Context, reference string) (models.Node, error) {
	ref := strings.Trim(strings.TrimSpace(reference), "/")
	if ref == "" {
		return models.Node{}, fmt.Errorf("%w: empty github reference", ErrEntityNotFound)
	}
	if strings.Contains(ref, "/") {
		return a.resolveRepository(ctx, ref)
	}
	return a.resolveUser(ctx, ref)
}

func (a *GitHubAdapter) resolveUser(ctx context.Context, login string) (models.Node, error) {
	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"/users/"+url.PathEscape(login), a.headers())
	if err != nil {
		return models.Node{}, err
	}

	var payload struct {
		Login       string `json:"login"`
		Name        string `json:"name"`
		Followers   int64  `json:"followers"`
		Following   int64  `json:"following"`
		PublicRepos int64  `json:"public_repos"`
		Bio         string `json:"bio"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Login == "" {
		return models.Node{}, fmt.Errorf("%w: github user %s", ErrEntityNotFound, login)
	}

	display := payload.Name
	if display == "" {
		display = payload.Login
	}
	return models.Node{
		EntityType:  models.EntityTypeUser,
		EntityID:    strings.ToLower(payload.Login),
		Source:      models.SourceGitHub,
		DisplayName: display,
		Metadata: models.Metadata{
			"followers":    payload.Followers,
			"following":    payload.Following,
			"public_repos": payload.PublicRepos,
			"bio":          payload.Bio,
		},
	}, nil
}

func (a *GitHubAdapter) resolveRepository(ctx context.Context, fullName string) (models.Node, error) {
	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"/repos/"+fullName, a.headers())
	if err != nil {
		return models.Node{}, err
	}
	node, err := decodeRepository(body)
	if err != nil {
		return models.Node{}, fmt.Errorf("%w: github repo %s", ErrEntityNotFound, fullName)
	}
	return node, nil
}

type githubRepo struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Stargazers  int64  `json:"stargazers_count"`
	Forks       int64  `json:"forks_count"`
	Language    string `json:"language"`
}

func decodeRepository(body []byte) (models.Node, error) {
	var payload githubRepo
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Node{}, err
	}
	if payload.FullName == "" {
		return models.Node{}, fmt.Errorf("missing full_name")
	}
	return repoNode(payload), nil
}

func repoNode(payload githubRepo) models.Node {
	return models.Node{
		EntityType:  models.EntityTypeRepository,
		EntityID:    strings.ToLower(payload.FullName),
		Source:      models.SourceGitHub,
		DisplayName: payload.FullName,
		Metadata: models.Metadata{
			"stars":       payload.Stargazers,
			"forks":       payload.Forks,
			"language":    payload.Language,
			"description": payload.Description,
		},
	}
}

// FetchRelationships expands a user into owned repositories and followers,
// or a repository into its contributors.
func (a *GitHubAdapter) FetchRelationships(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	switch node.EntityType {
	case models.EntityTypeUser:
		return a.userNeighbors(ctx, node)
	case models.EntityTypeRepository:
		return a.repoContributors(ctx, node)
	default:
		return nil, nil
	}
}

func (a *GitHubAdapter) userNeighbors(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"/users/"+url.PathEscape(node.EntityID)+"/repos?per_page=20&sort=updated", a.headers())
	if err != nil {
		return nil, err
	}
	var repos []githubRepo
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("%w: repos for %s: %v", ErrEntityNotFound, node.DisplayName, err)
	}

	var discoveries []models.Discovery
	for _, repo := range repos {
		if repo.FullName == "" {
			continue
		}
		weight := float64(repo.Stargazers) / 1000.0
		if weight > 1.0 {
			weight = 1.0
		}
		discoveries = append(discoveries, models.Discovery{
			Neighbor:         repoNode(repo),
			RelationshipType: "owns",
			Weight:           weight,
			Metadata:         models.Metadata{"stars": repo.Stargazers},
		})
	}

	body, err = a.client.FetchJSON(ctx, a.Source(), a.baseURL+"/users/"+url.PathEscape(node.EntityID)+"/followers?per_page=20", a.headers())
	if err != nil {
		// Owned repos already collected; follower lookups are best effort.
		return discoveries, nil
	}
	var followers []struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &followers); err != nil {
		return discoveries, nil
	}
	for _, follower := range followers {
		if follower.Login == "" {
			continue
		}
		discoveries = append(discoveries, models.Discovery{
			Neighbor: models.Node{
				EntityType:  models.EntityTypeUser,
				EntityID:    strings.ToLower(follower.Login),
				Source:      models.SourceGitHub,
				DisplayName: follower.Login,
			},
			RelationshipType: "follows",
			Weight:           0.5,
			NeighborIsSource: true, // follower -> user
		})
	}
	return discoveries, nil
}

func (a *GitHubAdapter) repoContributors(ctx context.Context, node models.Node) ([]models.Discovery, error) {
	body, err := a.client.FetchJSON(ctx, a.Source(), a.baseURL+"/repos/"+node.EntityID+"/contributors?per_page=20", a.headers())
	if err != nil {
		return nil, err
	}
	var contributors []struct {
		Login         string  `json:"login"`
		Contributions float64 `json:"contributions"`
	}
	if err := json.Unmarshal(body, &contributors); err != nil {
		return nil, fmt.Errorf("%w: contributors for %s: %v", ErrEntityNotFound, node.DisplayName, err)
	}

	var discoveries []models.Discovery
	for _, c := range contributors {
		if c.Login == "" {
			continue
		}
		weight := c.Contributions / 100.0
		if weight > 1.0 {
			weight = 1.0
		}
		discoveries = append(discoveries, models.Discovery{
			Neighbor: models.Node{
				EntityType:  models.EntityTypeUser,
				EntityID:    strings.ToLower(c.Login),
				Source:      models.SourceGitHub,
				DisplayName: c.Login,
			},
			RelationshipType: "contributes",
			Weight:           weight,
			Metadata:         models.Metadata{"contributions": c.Contributions},
			NeighborIsSource: true, // contributor -> repository
		})
	}
	return discoveries, nil
}
