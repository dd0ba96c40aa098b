package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types carried in the envelope of every published message.
const (
	EventExecution   = "execution"
	EventOrderUpdate = "order_update"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements Journal by publishing JSON events to a topic.
// Messages are keyed by symbol so one symbol's events stay ordered.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// Envelope is the JSON body of a published message.
type Envelope struct {
	Event string      `json:"event"`
	Time  time.Time   `json:"time"`
	Data  interface{} `json:"data"`
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: cfg.Topic}, nil
}

func (p *KafkaPublisher) publish(ctx context.Context, key, event string, ts time.Time, data interface{}) error {
	value, err := json.Marshal(Envelope{Event: event, Time: ts, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ts,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, p.topic, err)
	}
	return nil
}

// RecordExecution publishes an execution event.
func (p *KafkaPublisher) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	return p.publish(ctx, rec.Symbol, EventExecution, rec.Timestamp, rec)
}

// RecordOrderUpdate publishes an order update event.
func (p *KafkaPublisher) RecordOrderUpdate(ctx context.Context, rec OrderUpdateRecord) error {
	return p.publish(ctx, rec.Symbol, EventOrderUpdate, rec.Timestamp, rec)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
