package pubsub

import (
	"fmt"
	"net/url"
	"strings"
)

// StreamConfig describes where domain events are forwarded. Exactly one of
// the backends is set.
type StreamConfig struct {
	Memory *MemoryConfig `json:"memory,omitempty"`
	Kafka  *KafkaConfig  `json:"kafka,omitempty"`
	NATS   *NATSConfig   `json:"nats,omitempty"`
}

// ParseStreamURL parses mem://<topic>, nats://<host:port>/<subject> and
// kafka://<broker>[,<broker>]/<topic>.
func ParseStreamURL(raw string) (StreamConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StreamConfig{}, fmt.Errorf("invalid event stream url %q: %w", raw, err)
	}

	path := strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "mem":
		name := u.Host + u.Path
		if name == "" {
			return StreamConfig{}, fmt.Errorf("mem:// stream requires a topic name")
		}
		return StreamConfig{Memory: &MemoryConfig{Topic: name}}, nil

	case "nats":
		if path == "" {
			return StreamConfig{}, fmt.Errorf("nats:// stream requires a subject: nats://host:port/<subject>")
		}
		return StreamConfig{NATS: &NATSConfig{URL: "nats://" + u.Host, Subject: path}}, nil

	case "kafka":
		if u.Host == "" || path == "" {
			return StreamConfig{}, fmt.Errorf("kafka:// stream requires brokers and a topic: kafka://broker/<topic>")
		}
		return StreamConfig{Kafka: &KafkaConfig{Brokers: strings.Split(u.Host, ","), Topic: path}}, nil
	}

	return StreamConfig{}, fmt.Errorf("unsupported event stream scheme %q", u.Scheme)
}

func (c StreamConfig) GetStream() fmt.Stringer {
	if c.Memory != nil {
		return *c.Memory
	}
	if c.Kafka != nil {
		return *c.Kafka
	}
	if c.NATS != nil {
		return *c.NATS
	}
	return nil
}

func (c StreamConfig) String() string {
	if s := c.GetStream(); s != nil {
		return s.String()
	}
	return "<none>"
}

type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	Group   string   `json:"group,omitempty"`
}

func (k KafkaConfig) String() string {
	return fmt.Sprintf("kafka://%s", k.Topic)
}

type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
}

func (n NATSConfig) String() string {
	return fmt.Sprintf("nats://%s", n.Subject)
}

type MemoryConfig struct {
	Topic string `json:"topic"`
}

func (m MemoryConfig) String() string {
	return fmt.Sprintf("mem://%s", m.Topic)
}
