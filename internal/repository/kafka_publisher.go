package repository

import (
	"context"
	"fmt"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	pkgkafka "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka. A nil producer degrades
// to a no-op so the service runs without a broker in development.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
}

// NewKafkaPublisher creates a Kafka-backed event publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer) repository.Publisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	if p.producer == nil {
		return nil
	}
	if topic == "" {
		return fmt.Errorf("publish: empty topic")
	}
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
