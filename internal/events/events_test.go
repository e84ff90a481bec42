package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/go-trades-archiver/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter captures messages instead of talking to a broker
type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKafkaPublisher_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := newKafkaPublisher(fw, "archive.events", createTestLogger())

	event := ArchiveEvent{
		Type:      TypeArchiveCompleted,
		RunID:     "run-1",
		Symbol:    "BTC-BRL",
		Rows:      2,
		Columns:   []string{"price", "qty"},
		Bucket:    "mercadobitcoin-api",
		ObjectKey: "trades/api_trades_2024-03-09.csv",
		Summary:   &models.Summary{Trades: 2, Volume: "3", Notional: "302"},
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, fw.messages, 1)
	msg := fw.messages[0]
	assert.Equal(t, "BTC-BRL", string(msg.Key))
	assert.False(t, msg.Time.IsZero())

	var decoded ArchiveEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, TypeArchiveCompleted, decoded.Type)
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, "trades/api_trades_2024-03-09.csv", decoded.ObjectKey)
	require.NotNil(t, decoded.Summary)
	assert.Equal(t, "302", decoded.Summary.Notional)

	_, err := uuid.Parse(decoded.EventID)
	assert.NoError(t, err, "event id is generated")

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, TypeArchiveCompleted, headers["event_type"])
	assert.Equal(t, decoded.EventID, headers["event_id"])

	require.NoError(t, p.Close())
	assert.True(t, fw.closed)
}

func TestKafkaPublisher_KeepsProvidedIdentity(t *testing.T) {
	fw := &fakeWriter{}
	p := newKafkaPublisher(fw, "archive.events", createTestLogger())
	at := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), ArchiveEvent{EventID: "fixed", OccurredAt: at, Type: TypeArchiveFailed}))
	require.Len(t, fw.messages, 1)
	assert.True(t, at.Equal(fw.messages[0].Time))
	assert.Contains(t, string(fw.messages[0].Value), `"event_id":"fixed"`)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker unavailable")}
	p := newKafkaPublisher(fw, "archive.events", createTestLogger())

	err := p.Publish(context.Background(), ArchiveEvent{Type: TypeArchiveCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Contains(t, err.Error(), "archive.events")
}

func TestNewKafkaPublisher(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "archive.events"}, nil)
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "archive.events", w.Topic)
	assert.Equal(t, 10*time.Second, w.WriteTimeout)
	assert.NoError(t, p.Close())
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()
	assert.NoError(t, p.Publish(context.Background(), ArchiveEvent{}))
	assert.NoError(t, p.Close())
}
