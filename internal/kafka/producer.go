package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"social-graph-crawler/internal/models"
)

// EventSink publishes graph mutations and crawl failures.
type EventSink interface {
	WriteNodeEvent(ctx context.Context, event models.NodeEvent) error
	WriteEdgeEvent(ctx context.Context, event models.EdgeEvent) error
	WriteFailure(ctx context.Context, failure models.CrawlFailure) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes node and edge upserts to their topics and crawl
// branch failures to a dead-letter topic.
type Producer struct {
	nodes    messageWriter
	edges    messageWriter
	failures messageWriter
}

// NewProducer creates a producer for the given broker and topics.
func NewProducer(broker, nodeTopic, edgeTopic, failureTopic string) *Producer {
	return &Producer{
		nodes:    newWriter(broker, nodeTopic),
		edges:    newWriter(broker, edgeTopic),
		failures: newWriter(broker, failureTopic),
	}
}

// NewProducerWithWriters builds a producer using custom writers (tests).
func NewProducerWithWriters(nodes, edges, failures messageWriter) *Producer {
	return &Producer{nodes: nodes, edges: edges, failures: failures}
}

func newWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
}

// Close shuts down all underlying writers, returning the first error.
func (p *Producer) Close() error {
	var firstErr error
	for _, w := range []messageWriter{p.nodes, p.edges, p.failures} {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteNodeEvent publishes a node upsert keyed by its crawl job.
func (p *Producer) WriteNodeEvent(ctx context.Context, event models.NodeEvent) error {
	return write(ctx, p.nodes, event.JobID, event)
}

// WriteEdgeEvent publishes an edge upsert keyed by its crawl job.
func (p *Producer) WriteEdgeEvent(ctx context.Context, event models.EdgeEvent) error {
	return write(ctx, p.edges, event.JobID, event)
}

// WriteFailure publishes a skipped crawl branch to the dead-letter topic.
func (p *Producer) WriteFailure(ctx context.Context, failure models.CrawlFailure) error {
	return write(ctx, p.failures, failure.JobID, failure)
}

func write(ctx context.Context, w messageWriter, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}

	return w.WriteMessages(ctx, msg)
}
