// Package events announces archive runs to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/go-trades-archiver/internal/models"
	"github.com/segmentio/kafka-go"
)

// Event types
const (
	TypeArchiveCompleted = "archive.completed"
	TypeArchiveFailed    = "archive.failed"
)

// ArchiveEvent describes the outcome of one archive run.
type ArchiveEvent struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	RunID       string          `json:"run_id"`
	Symbol      string          `json:"symbol"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Rows        int             `json:"rows"`
	Columns     []string        `json:"columns,omitempty"`
	FilePath    string          `json:"file_path,omitempty"`
	Bucket      string          `json:"bucket,omitempty"`
	ObjectKey   string          `json:"object_key,omitempty"`
	FailureKind string          `json:"failure_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
	Summary     *models.Summary `json:"summary,omitempty"`
}

// Publisher delivers archive events.
type Publisher interface {
	Publish(ctx context.Context, event ArchiveEvent) error
	Close() error
}

// NoopPublisher drops every event. It is used when events are disabled.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) Publish(_ context.Context, _ ArchiveEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by market symbol, so every event
// of one market lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher constructs a publisher backed by a kafka-go Writer. No connection is
// made until the first Publish.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           200 * time.Millisecond,
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return newKafkaPublisher(w, cfg.Topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish implements Publisher. Missing EventID and OccurredAt are filled in.
func (p *KafkaPublisher) Publish(ctx context.Context, event ArchiveEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", event.Type, p.topic, err)
	}

	p.logger.Debug("archive event published",
		"topic", p.topic,
		"type", event.Type,
		"event_id", event.EventID,
		"run_id", event.RunID)

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NoopPublisher{}
)
