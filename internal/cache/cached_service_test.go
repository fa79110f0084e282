package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"social-graph-crawler/internal/cache"
	"social-graph-crawler/internal/models"
	"social-graph-crawler/internal/query"
	"social-graph-crawler/mocks"
)

// countingQuerier records how often the live service is consulted.
type countingQuerier struct {
	statsCalls int
	pathCalls  int
	statsErr   error
}

func (q *countingQuerier) Neighbors(context.Context, string, models.Direction, int) ([]query.Neighbor, error) {
	return nil, nil
}

func (q *countingQuerier) Subgraph(context.Context, string, int, int, models.Direction) (models.Subgraph, error) {
	return models.Subgraph{}, nil
}

func (q *countingQuerier) ShortestPath(context.Context, string, string) (models.Path, error) {
	q.pathCalls++
	return models.Path{Length: 2, TotalWeight: 0.5}, nil
}

func (q *countingQuerier) Stats(context.Context) (models.GraphStats, error) {
	q.statsCalls++
	if q.statsErr != nil {
		return models.GraphStats{}, q.statsErr
	}
	return models.GraphStats{TotalNodes: 7, TotalEdges: 3}, nil
}

func TestCachedServiceMissFillsCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := mocks.NewMockCacheStore(ctrl)
	next := &countingQuerier{}
	svc := cache.NewCachedService(next, store, time.Minute)

	store.EXPECT().Get(gomock.Any(), "graph:stats").Return(nil, false, nil)
	store.EXPECT().
		Set(gomock.Any(), "graph:stats", gomock.Any(), time.Minute).
		DoAndReturn(func(_ context.Context, _ string, value []byte, _ time.Duration) error {
			var stats models.GraphStats
			if err := json.Unmarshal(value, &stats); err != nil {
				t.Fatalf("cached payload not decodable: %v", err)
			}
			if stats.TotalNodes != 7 {
				t.Fatalf("cached stats = %+v", stats)
			}
			return nil
		})

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalNodes != 7 || next.statsCalls != 1 {
		t.Fatalf("expected live result, got %+v after %d calls", stats, next.statsCalls)
	}
}

func TestCachedServiceHitSkipsLiveService(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := mocks.NewMockCacheStore(ctrl)
	next := &countingQuerier{}
	svc := cache.NewCachedService(next, store, time.Minute)

	cached, _ := json.Marshal(models.GraphStats{TotalNodes: 42})
	store.EXPECT().Get(gomock.Any(), "graph:stats").Return(cached, true, nil)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalNodes != 42 {
		t.Fatalf("expected cached value, got %+v", stats)
	}
	if next.statsCalls != 0 {
		t.Fatal("cache hit should not reach the live service")
	}
}

func TestCachedServiceFailsOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := mocks.NewMockCacheStore(ctrl)
	next := &countingQuerier{}
	svc := cache.NewCachedService(next, store, time.Minute)

	store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, errors.New("redis down"))
	store.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	path, err := svc.ShortestPath(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("cache outage must not fail the query: %v", err)
	}
	if path.Length != 2 || next.pathCalls != 1 {
		t.Fatalf("expected live result, got %+v after %d calls", path, next.pathCalls)
	}
}

func TestCachedServiceDoesNotCacheErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := mocks.NewMockCacheStore(ctrl)
	next := &countingQuerier{statsErr: errors.New("store unavailable")}
	svc := cache.NewCachedService(next, store, time.Minute)

	// Get on every attempt, never a Set.
	store.EXPECT().Get(gomock.Any(), "graph:stats").Return(nil, false, nil).Times(2)

	for i := 0; i < 2; i++ {
		if _, err := svc.Stats(context.Background()); err == nil {
			t.Fatal("expected error from live service")
		}
	}
	if next.statsCalls != 2 {
		t.Fatalf("expected 2 live calls, got %d", next.statsCalls)
	}
}

func TestCachedServiceCorruptEntryRecomputes(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	store := mocks.NewMockCacheStore(ctrl)
	next := &countingQuerier{}
	svc := cache.NewCachedService(next, store, time.Minute)

	store.EXPECT().Get(gomock.Any(), "graph:stats").Return([]byte("{not json"), true, nil)
	store.EXPECT().Set(gomock.Any(), "graph:stats", gomock.Any(), gomock.Any()).Return(nil)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalNodes != 7 || next.statsCalls != 1 {
		t.Fatalf("corrupt entry should fall through to the live service, got %+v", stats)
	}
}
