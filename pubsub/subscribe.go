package pubsub

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/kafkapubsub"
	_ "gocloud.dev/pubsub/mempubsub"
	"gocloud.dev/pubsub/natspubsub"

	"github.com/flanksource/hse/context"
)

// OpenTopic opens the topic events are forwarded to.
func OpenTopic(ctx context.Context, c StreamConfig) (*pubsub.Topic, error) {
	if c.Kafka != nil {
		return kafkapubsub.OpenTopic(c.Kafka.Brokers, kafkapubsub.MinimalConfig(), c.Kafka.Topic, nil)
	}

	if c.NATS != nil {
		conn, err := nats.Connect(c.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("error connecting to %s: %w", c.NATS.URL, err)
		}
		return natspubsub.OpenTopicV2(conn, c.NATS.Subject, nil)
	}

	if c.Memory != nil {
		return pubsub.OpenTopic(ctx, c.Memory.String())
	}

	return nil, fmt.Errorf("no event stream configuration provided")
}

// Subscribe opens a subscription on the stream, used by downstream readers and tests.
func Subscribe(ctx context.Context, c StreamConfig) (*pubsub.Subscription, error) {
	if c.Kafka != nil {
		group := c.Kafka.Group
		if group == "" {
			group = "hse"
		}
		return kafkapubsub.OpenSubscription(c.Kafka.Brokers, kafkapubsub.MinimalConfig(), group, []string{c.Kafka.Topic}, nil)
	}

	if c.NATS != nil {
		conn, err := nats.Connect(c.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("error connecting to %s: %w", c.NATS.URL, err)
		}
		return natspubsub.OpenSubscriptionV2(conn, c.NATS.Subject, &natspubsub.SubscriptionOptions{
			Queue: c.NATS.Queue,
		})
	}

	if c.Memory != nil {
		return pubsub.OpenSubscription(ctx, c.Memory.String())
	}

	return nil, fmt.Errorf("no event stream configuration provided")
}
