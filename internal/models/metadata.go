package models

// Metadata is opaque source-specific data attached to nodes and edges
// (subscriber counts, stars, post titles). Values are anything JSON can
// carry; no fixed schema.
type Metadata map[string]any

// MergeMetadata applies update over existing with shallow overwrite: keys
// present in update win, keys absent from update are preserved. Neither
// input map is mutated.
func MergeMetadata(existing, update Metadata) Metadata {
	if len(existing) == 0 && len(update) == 0 {
		return nil
	}
	merged := make(Metadata, len(existing)+len(update))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}
