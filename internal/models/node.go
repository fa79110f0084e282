package models

import "time"

// Source identifies the external platform a node was discovered on.
type Source string

const (
	SourceReddit    Source = "reddit"
	SourceGitHub    Source = "github"
	SourceWikipedia Source = "wikipedia"
)

// Entity types produced by the built-in adapters. The field is an open
// string so new adapters can introduce their own types.
const (
	EntityTypeUser       = "user"
	EntityTypeRepository = "repository"
	EntityTypeSubreddit  = "subreddit"
	EntityTypeArticle    = "article"
)

// Node represents an entity (user, repo, subreddit, article) in the graph.
// (Source, EntityType, EntityID) is the identity key: repeated discovery of
// the same entity merges into one stored node.
type Node struct {
	ID          string    `json:"id"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Source      Source    `json:"source"`
	DisplayName string    `json:"display_name"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IdentityKey returns the unique identity tuple as a single string.
func (n Node) IdentityKey() string {
	return string(n.Source) + ":" + n.EntityType + ":" + n.EntityID
}
