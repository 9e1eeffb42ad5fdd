package queue

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
)

// PubSubPublisher publishes jobs to a Google Cloud Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewPubSubPublisher creates a publisher for topic in projectID.
func NewPubSubPublisher(ctx context.Context, projectID, topic string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubPublisher{client: client, publisher: client.Publisher(topic)}, nil
}

// Publish sends the job and waits for the server to acknowledge it.
func (p *PubSubPublisher) Publish(ctx context.Context, job Job) error {
	data, err := job.Encode()
	if err != nil {
		return err
	}
	res := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_type": job.Type},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publishing %s job: %w", job.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

var _ Publisher = (*PubSubPublisher)(nil)
