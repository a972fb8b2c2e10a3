package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic for downstream SIEM and
// compliance consumers. It is an optional sink; deployments without Kafka
// simply do not wire it.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer for the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

type kafkaPayload struct {
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
}

// Send produces one event, keyed by actor so per-actor ordering holds.
func (s *KafkaSink) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaPayload{
		Category:  string(event.Category),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:     event.Actor,
		Action:    event.Action,
		Decision:  event.Decision,
		Code:      event.Code,
		Reason:    event.Reason,
		ReceiptID: event.ReceiptID,
		CallID:    event.CallID,
	})
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Actor),
		Value: payload,
	}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes and releases the producer.
func (s *KafkaSink) Close() {
	s.client.Close()
}
