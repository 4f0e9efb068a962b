// Package kafka publishes ledger events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"landregistry/internal/registry/models"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
	ledgerKey       = "ledger"
)

// Config selects the brokers and topic.
type Config struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// Producer is an outbox sink. Records are keyed by token id so every event
// of one property lands on the same partition in sequence order.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewProducer connects to the brokers and makes sure the topic exists.
func NewProducer(ctx context.Context, cfg Config, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka: ping brokers: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), cfg); err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("kafka producer ready", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return &Producer{client: client, topic: cfg.Topic, logger: logger}, nil
}

func ensureTopic(ctx context.Context, admin *kadm.Client, cfg Config) error {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	resp, err := admin.CreateTopic(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", cfg.Topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", cfg.Topic, resp.Err)
	}
	return nil
}

func (p *Producer) Name() string { return "kafka" }

// Publish produces the batch synchronously and fails if any record failed.
func (p *Producer) Publish(ctx context.Context, events []models.Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		r, err := toRecord(p.topic, e)
		if err != nil {
			return err
		}
		records = append(records, r)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce %d events: %w", len(records), err)
	}
	return nil
}

func toRecord(topic string, e models.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode event %s: %w", e.ID, err)
	}
	key := ledgerKey
	if e.TokenID != nil {
		key = e.TokenID.String()
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(e.Type)},
			{Key: headerEventID, Value: []byte(e.ID.String())},
		},
	}, nil
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
