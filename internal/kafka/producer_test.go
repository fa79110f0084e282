package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	kgo "github.com/segmentio/kafka-go"

	skafka "social-graph-crawler/internal/kafka"
	"social-graph-crawler/internal/models"
	"social-graph-crawler/mocks"
)

func TestProducerWriteNodeEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	nodes := mocks.NewMockMessageWriter(ctrl)
	edges := mocks.NewMockMessageWriter(ctrl)
	failures := mocks.NewMockMessageWriter(ctrl)
	prod := skafka.NewProducerWithWriters(nodes, edges, failures)

	event := models.NodeEvent{
		JobID: "job-123",
		Node: models.Node{
			EntityType: models.EntityTypeUser,
			EntityID:   "alice",
			Source:     models.SourceGitHub,
		},
		Created: true,
	}

	nodes.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if string(msgs[0].Key) != event.JobID {
				t.Fatalf("unexpected message key: %s", string(msgs[0].Key))
			}

			var got models.NodeEvent
			if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if got.JobID != event.JobID || got.Node.EntityID != event.Node.EntityID || !got.Created {
				t.Fatalf("unexpected event payload: %+v", got)
			}
			return nil
		})

	if err := prod.WriteNodeEvent(context.Background(), event); err != nil {
		t.Fatalf("WriteNodeEvent returned error: %v", err)
	}
}

func TestProducerWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	nodes := mocks.NewMockMessageWriter(ctrl)
	edges := mocks.NewMockMessageWriter(ctrl)
	failures := mocks.NewMockMessageWriter(ctrl)
	prod := skafka.NewProducerWithWriters(nodes, edges, failures)

	failure := models.CrawlFailure{
		JobID:  "job-err",
		Source: models.SourceReddit,
		Entity: "u/ghost",
		Depth:  2,
		Error:  "entity not found",
	}

	failures.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			var got models.CrawlFailure
			if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if got.Entity != failure.Entity || got.Error != failure.Error {
				t.Fatalf("unexpected failure payload: %+v", got)
			}
			return nil
		})

	if err := prod.WriteFailure(context.Background(), failure); err != nil {
		t.Fatalf("WriteFailure returned error: %v", err)
	}
}

func TestProducerWriteEdgeEventError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	nodes := mocks.NewMockMessageWriter(ctrl)
	edges := mocks.NewMockMessageWriter(ctrl)
	failures := mocks.NewMockMessageWriter(ctrl)
	prod := skafka.NewProducerWithWriters(nodes, edges, failures)

	edges.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("write failed"))
	if err := prod.WriteEdgeEvent(context.Background(), models.EdgeEvent{JobID: "job-err"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProducerCloseReturnsFirstError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	nodes := mocks.NewMockMessageWriter(ctrl)
	edges := mocks.NewMockMessageWriter(ctrl)
	failures := mocks.NewMockMessageWriter(ctrl)
	prod := skafka.NewProducerWithWriters(nodes, edges, failures)

	nodes.EXPECT().Close().Return(errors.New("broker gone"))
	edges.EXPECT().Close().Return(nil)
	failures.EXPECT().Close().Return(nil)

	if err := prod.Close(); err == nil || err.Error() != "broker gone" {
		t.Fatalf("expected first close error, got %v", err)
	}
}
