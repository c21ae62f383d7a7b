package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer wraps a kafka-go writer with JSON payload encoding and
// publish metrics.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

// Message pairs a partitioning key with an arbitrary payload.
type Message struct {
	Key   []byte
	Value interface{}
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}

	producerMetrics.init()
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     balancer,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compressionCodec(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
		compression: cfg.Compression,
	}, nil
}

// Publish encodes value and writes it to topic. Byte and string
// payloads pass through unencoded; everything else is marshaled as
// JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch writes messages to topic in one writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()

	msgs := make([]kafka.Message, len(messages))
	var payloadBytes int64
	for i, m := range messages {
		v, err := encodePayload(m.Value)
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: time.Now()}
		payloadBytes += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	producerMetrics.observe(topic, p.compression, payloadBytes, len(msgs), time.Since(start), err)
	return err
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodePayload(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var producerMetrics = &producerMetricSet{}

type producerMetricSet struct {
	once     sync.Once
	messages *prometheus.CounterVec
	errors   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func (m *producerMetricSet) init() {
	m.once.Do(func() {
		m.messages = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vprop",
			Subsystem: "kafka",
			Name:      "producer_messages_total",
			Help:      "Messages published, by outcome",
		}, []string{"topic", "compression", "result"})
		m.errors = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vprop",
			Subsystem: "kafka",
			Name:      "producer_errors_total",
			Help:      "Failed publish calls",
		}, []string{"topic"})
		m.bytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vprop",
			Subsystem: "kafka",
			Name:      "producer_bytes_total",
			Help:      "Payload bytes published",
		}, []string{"topic", "compression"})
		m.latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vprop",
			Subsystem: "kafka",
			Name:      "producer_publish_seconds",
			Help:      "WriteMessages latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (m *producerMetricSet) observe(topic, compression string, bytes int64, count int, elapsed time.Duration, err error) {
	if m.messages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.errors.WithLabelValues(topic).Inc()
	}
	m.messages.WithLabelValues(topic, compression, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, compression).Add(float64(bytes))
	m.latency.WithLabelValues(topic).Observe(elapsed.Seconds())
}
