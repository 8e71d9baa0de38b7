// Package events publishes committed movements to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const TypeMovementCommitted = "movement.committed"

// MovementCommitted is emitted once per committed movement, after the
// transaction that persisted it.
type MovementCommitted struct {
	Type          string    `json:"type"`
	MovementID    string    `json:"movement_id"`
	Kind          string    `json:"kind"`
	AmountMinor   int64     `json:"amount_minor"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description"`
	SourceAccount string    `json:"source_account,omitempty"`
	TargetAccount string    `json:"target_account,omitempty"`
	SourceBalance string    `json:"source_balance,omitempty"`
	TargetBalance string    `json:"target_balance,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PartitionKey keeps every movement of one account on one partition.
func (e MovementCommitted) PartitionKey() string {
	if e.SourceAccount != "" {
		return e.SourceAccount
	}
	return e.TargetAccount
}

type Publisher interface {
	Publish(ctx context.Context, event MovementCommitted) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
	}
	return newKafkaPublisher(writer, topic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger.With("publisher", "kafka")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event MovementCommitted) error {
	event.Type = TypeMovementCommitted
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PartitionKey()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeMovementCommitted)},
		},
		Time: event.CreatedAt,
	})
	if err != nil {
		p.logger.Error("publish failed", "topic", p.topic, "movement_id", event.MovementID, "error", err)
		return err
	}
	p.logger.Debug("movement published", "topic", p.topic, "movement_id", event.MovementID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the structured log when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event MovementCommitted) error {
	p.logger.Info(TypeMovementCommitted,
		"movement_id", event.MovementID,
		"kind", event.Kind,
		"amount", event.Amount,
		"source_account", event.SourceAccount,
		"target_account", event.TargetAccount,
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
