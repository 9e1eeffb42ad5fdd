package queue

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher publishes jobs to a Kafka topic, keyed by request id so the
// jobs of one request stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects to brokers and publishes to topic.
func NewKafkaPublisher(brokers []string, topic string, opts ...kgo.Opt) (*KafkaPublisher, error) {
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish produces the job synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(job.RequestID),
		Value:   data,
		Headers: []kgo.RecordHeader{{Key: "job_type", Value: []byte(job.Type)}},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("producing %s job: %w", job.Type, err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
