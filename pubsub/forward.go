package pubsub

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
	"gocloud.dev/pubsub"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Forwarder publishes domain events onto an event stream. Topics are opened
// lazily and shared across calls.
type Forwarder struct {
	config StreamConfig

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewForwarder(url string) (*Forwarder, error) {
	config, err := ParseStreamURL(url)
	if err != nil {
		return nil, err
	}
	return &Forwarder{config: config}, nil
}

func (f *Forwarder) open(ctx context.Context) (*pubsub.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.topic != nil {
		return f.topic, nil
	}

	topic, err := OpenTopic(ctx, f.config)
	if err != nil {
		return nil, err
	}
	ctx.Infof("forwarding events to %s", f.config)
	f.topic = topic
	return topic, nil
}

// Forward sends the event as a JSON message; the event type and reference
// are also set as metadata for filtering.
func (f *Forwarder) Forward(ctx context.Context, event models.DomainEvent) error {
	topic, err := f.open(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return ctx.Oops().Wrap(err)
	}

	metadata := map[string]string{"type": string(event.Type)}
	if event.Reference != "" {
		metadata["reference"] = event.Reference
	}

	return topic.Send(ctx, &pubsub.Message{Body: body, Metadata: metadata})
}

func (f *Forwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.topic == nil {
		return nil
	}
	err := f.topic.Shutdown(ctx)
	f.topic = nil
	return err
}
