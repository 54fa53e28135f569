package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher delivers status change events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChanged) error
}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes events as JSON keyed by user ID so every change for
// one user lands on the same partition in order.
type KafkaPublisher struct {
	client producer
	topic  string
}

func NewKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event StatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.UserID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

// LogPublisher logs events instead of publishing them. Used when Kafka is
// not configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishStatusChanged(ctx context.Context, event StatusChanged) error {
	p.logger.InfoContext(ctx, "verification status changed",
		"user_id", event.UserID.String(),
		"from", string(event.From),
		"to", string(event.To),
		"actor_id", event.ActorID,
		"event_id", event.EventID,
	)
	return nil
}
