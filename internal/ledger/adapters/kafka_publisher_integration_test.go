//go:build integration

package adapters_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"lexaudit/internal/ledger"
	"lexaudit/internal/ledger/adapters"
	"lexaudit/internal/ledger/models"
	"lexaudit/internal/platform/config"
	"lexaudit/internal/platform/kafka"
	"lexaudit/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kgo.Client
	cfg      config.KafkaConfig
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	ctx := context.Background()
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	s.cfg = config.KafkaConfig{
		Brokers:           []string{s.redpanda.Broker},
		Topic:             "ledger-" + uuid.NewString(),
		Partitions:        1,
		ReplicationFactor: 1,
	}

	producer, err := kafka.New(ctx, s.cfg)
	s.Require().NoError(err)
	s.producer = producer

	s.Require().NoError(kafka.EnsureTopic(ctx, producer, s.cfg))
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, s.cfg), "second call must tolerate an existing topic")
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *KafkaPublisherSuite) TestAppendHookPublishesRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	publisher := adapters.NewKafkaPublisher(s.producer, s.cfg.Topic)
	l := ledger.New(ledger.WithAppendHook(publisher.Publish))

	subject := uuid.New()
	var ids []uuid.UUID
	for _, statute := range []string{"housing", "tax"} {
		id, err := l.Append(ctx, models.AuditRecord{
			EventType: models.EventAutomaticDecision,
			Actor:     models.SystemActor("engine"),
			StatuteID: statute,
			SubjectID: subject,
			Result:    models.Deterministic("grant", nil),
		})
		s.Require().NoError(err)
		ids = append(ids, id)
	}

	consumer := s.redpanda.Consumer(s.T(), s.cfg.Topic)
	defer consumer.Close()

	var got []models.AuditRecord
	for len(got) < len(ids) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for published records")
		fetches.EachRecord(func(r *kgo.Record) {
			s.Equal(subject.String(), string(r.Key))
			var rec models.AuditRecord
			s.Require().NoError(json.Unmarshal(r.Value, &rec))
			got = append(got, rec)
		})
	}

	s.ElementsMatch(ids, []uuid.UUID{got[0].ID, got[1].ID})
	for _, rec := range got {
		stored, err := l.Get(ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(stored.RecordHash, rec.RecordHash)
	}
}
