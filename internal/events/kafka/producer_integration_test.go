//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"landregistry/internal/events/kafka"
	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *ProducerSuite) TestPublishedEventsAreConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "land-registry-" + uuid.NewString()

	producer, err := kafka.NewProducer(ctx, kafka.Config{
		Brokers:  s.redpanda.Brokers,
		Topic:    topic,
		ClientID: "producer-test",
	}, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	defer func() { s.NoError(producer.Close(context.Background())) }()

	tokenID := id.TokenID(1)
	events := []models.Event{
		models.NewEvent(models.EventTrustRecorded, &tokenID, "0xseller", time.Now(), nil),
		models.NewEvent(models.EventFundsDeposited, &tokenID, "0xbuyer", time.Now(), map[string]string{"amount": "1000"}),
	}
	events[0].Sequence, events[1].Sequence = 1, 2
	s.Require().NoError(producer.Publish(ctx, events))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []models.Event
	for len(got) < len(events) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			var e models.Event
			s.Require().NoError(json.Unmarshal(r.Value, &e))
			s.Equal("1", string(r.Key))
			got = append(got, e)
		})
	}
	s.Equal(events[0].ID, got[0].ID)
	s.Equal(models.EventFundsDeposited, got[1].Type)
}

func (s *ProducerSuite) TestTopicCreationIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cfg := kafka.Config{Brokers: s.redpanda.Brokers, Topic: "land-registry-" + uuid.NewString()}

	for range 2 {
		p, err := kafka.NewProducer(ctx, cfg, slog.New(slog.DiscardHandler))
		s.Require().NoError(err)
		s.NoError(p.Close(ctx))
	}
}
