package publishers

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"lendus/internal/events"
	"lendus/internal/platform/config"
)

// Kafka publishes events to a single topic keyed by aggregate id, so every
// event of one application lands on the same partition in order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

func NewKafka(cfg config.KafkaConfig, opts ...kgo.Opt) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		base = append(base, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Kafka{client: client, topic: cfg.Topic}, nil
}

func (k *Kafka) Publish(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(batch))
	for _, event := range batch {
		records = append(records, Record(event))
	}
	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce to %s: %w", k.topic, err)
	}
	return nil
}

// EnsureTopic creates the produce topic when it does not exist yet. An
// existing topic is left untouched, whatever its partition count.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	resp, err := kadm.NewClient(k.client).CreateTopic(ctx, partitions, replication, nil, k.topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", k.topic, err)
	}
	return nil
}

// Ping reports whether any seed broker is reachable.
func (k *Kafka) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}

// Record converts an outbox event into a Kafka record.
func Record(event events.Event) *kgo.Record {
	return &kgo.Record{
		Key:       []byte(event.AggregateID),
		Value:     event.Payload,
		Timestamp: event.CreatedAt,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "aggregate_type", Value: []byte(event.AggregateType)},
		},
	}
}
