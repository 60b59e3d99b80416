package publish

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds configuration for the Kafka mirror.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
	Key     string   `yaml:"key" json:"key"` // Message key, e.g. the ride name
}

// KafkaPublisher writes positions to a topic in small async batches.
type KafkaPublisher struct {
	writer *kafka.Writer
	key    []byte
}

// NewKafka creates a publisher. Connections are opened lazily on first write.
func NewKafka(cfg KafkaConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	var key []byte
	if cfg.Key != "" {
		key = []byte(cfg.Key)
	}
	return &KafkaPublisher{writer: w, key: key}
}

func (p *KafkaPublisher) Publish(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   p.key,
		Value: payload,
	})
}

// Close flushes pending messages and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
