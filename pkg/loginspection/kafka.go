package loginspection

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces to a Kafka compatible broker.
type KafkaPublisher struct {
	client *kgo.Client
	mu     sync.RWMutex
	closed bool
}

// NewKafkaPublisher connects to brokers, e.g. ["localhost:19092"].
func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker address is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Kafka client")
	}
	return &KafkaPublisher{client: client}, nil
}

func (k *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return errors.New("publisher is closed")
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return errors.Wrap(err, "failed to produce message")
	}
	return nil
}

func (k *KafkaPublisher) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return
	}
	k.closed = true
	k.client.Close()
}
