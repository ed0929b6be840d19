// Package kafka publishes memory events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/recall/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "recall.memory"

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Defaults to 5s.
	WriteTimeout time.Duration
}

// Publisher writes one message per event, keyed by memory id so all events
// for a memory land on the same partition in order.
type Publisher struct {
	writer  *kafkago.Writer
	timeout time.Duration
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher. No connection is made until the first
// publish.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(c.Brokers...),
			Topic:                  c.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		timeout: c.WriteTimeout,
	}, nil
}

// Publish writes event synchronously.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.MemoryEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s: %w", event.EventType, err)
	}
	return nil
}

// Close flushes pending writes and closes connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func message(event *eventstream.MemoryEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(event.Memory.ID, 10)),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}, nil
}
