package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig holds configuration for the Kafka consumer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
	Handler *JobHandler
	Logger  zerolog.Logger
	// MaxRetries bounds the in-process retries of a failing record.
	MaxRetries uint64
}

// KafkaConsumer feeds records of a consumer group to a JobHandler. Offsets
// are committed only after the handler succeeds.
type KafkaConsumer struct {
	client     *kgo.Client
	topic      string
	handler    *JobHandler
	logger     zerolog.Logger
	maxRetries uint64
}

// NewKafkaConsumer joins the consumer group.
func NewKafkaConsumer(cfg KafkaConfig, opts ...kgo.Opt) (*KafkaConsumer, error) {
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &KafkaConsumer{
		client:     client,
		topic:      cfg.Topic,
		handler:    cfg.Handler,
		logger:     cfg.Logger,
		maxRetries: maxRetries,
	}, nil
}

// Start polls until ctx is cancelled. A record that still fails after the
// retries stops the consumer without committing it, so it is redelivered
// after a restart.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.topic).Msg("starting kafka consumer")

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error().Err(err).
				Str("topic", topic).
				Int32("partition", partition).
				Msg("fetch failed")
		})

		var (
			done      []*kgo.Record
			handleErr error
		)
		fetches.EachRecord(func(r *kgo.Record) {
			if handleErr != nil {
				return
			}
			if handleErr = c.handle(ctx, r); handleErr == nil {
				done = append(done, r)
			}
		})

		if len(done) > 0 {
			if err := c.client.CommitRecords(ctx, done...); err != nil {
				c.logger.Error().Err(err).Int("records", len(done)).Msg("commit failed")
			}
		}
		if handleErr != nil {
			return handleErr
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, r *kgo.Record) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second

	err := backoff.Retry(func() error {
		return c.handler.Handle(ctx, r.Value)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		return fmt.Errorf("record %s/%d@%d: %w", r.Topic, r.Partition, r.Offset, err)
	}
	return nil
}

// Close leaves the group and closes the client.
func (c *KafkaConsumer) Close() error {
	c.client.Close()
	return nil
}
