package models

import "testing"

func TestMergeMetadataOverwritesShallow(t *testing.T) {
	existing := Metadata{"karma": 10, "flair": "old", "nested": map[string]any{"a": 1}}
	update := Metadata{"karma": 25, "nested": map[string]any{"b": 2}}

	merged := MergeMetadata(existing, update)
	if merged["karma"] != 25 {
		t.Fatalf("updated key should win, got %v", merged["karma"])
	}
	if merged["flair"] != "old" {
		t.Fatalf("untouched key should survive, got %v", merged["flair"])
	}
	nested, ok := merged["nested"].(map[string]any)
	if !ok || nested["b"] != 2 || len(nested) != 1 {
		t.Fatalf("nested values replace wholesale, got %v", merged["nested"])
	}
}

func TestMergeMetadataDoesNotMutateInputs(t *testing.T) {
	existing := Metadata{"karma": 10}
	update := Metadata{"karma": 25}

	MergeMetadata(existing, update)
	if existing["karma"] != 10 {
		t.Fatalf("existing map was mutated: %v", existing)
	}
}

func TestMergeMetadataNilSafety(t *testing.T) {
	if got := MergeMetadata(nil, Metadata{"a": 1}); got["a"] != 1 {
		t.Fatalf("nil existing: %v", got)
	}
	if got := MergeMetadata(Metadata{"a": 1}, nil); got["a"] != 1 {
		t.Fatalf("nil update: %v", got)
	}
}

func TestIdentityKeys(t *testing.T) {
	node := Node{Source: SourceReddit, EntityType: EntityTypeUser, EntityID: "alice"}
	if got := node.IdentityKey(); got != "reddit:user:alice" {
		t.Fatalf("node identity key = %q", got)
	}

	edge := Edge{SourceNodeID: "n1", TargetNodeID: "n2", RelationshipType: "follows"}
	if got := edge.IdentityKey(); got != "n1>n2:follows" {
		t.Fatalf("edge identity key = %q", got)
	}
}

func TestCrawlStatusIsTerminal(t *testing.T) {
	for _, status := range []CrawlStatus{CrawlStatusCompleted, CrawlStatusFailed, CrawlStatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []CrawlStatus{CrawlStatusPending, CrawlStatusRunning} {
		if status.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if got, err := ParseDirection(""); err != nil || got != DirectionBoth {
		t.Fatalf("empty direction should default to both, got %q (%v)", got, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatal("expected error for invalid direction")
	}
}
