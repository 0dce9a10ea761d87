// Package adapters connects the ledger to outbound transports.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"lexaudit/internal/ledger/models"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher forwards committed ledger records to a topic for timeline
// and dashboard consumers. Records are keyed by subject so one subject's
// history lands on one partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish is a ledger.AppendHook.
func (p *KafkaPublisher) Publish(ctx context.Context, record models.AuditRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode ledger record %s: %w", record.ID, err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(record.SubjectID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "record_id", Value: []byte(record.ID.String())},
			{Key: "event_type", Value: []byte(record.EventType)},
			{Key: "record_hash", Value: []byte(record.RecordHash)},
		},
	}
	if err := p.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce ledger record %s: %w", record.ID, err)
	}
	return nil
}
