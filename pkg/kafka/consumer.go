package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const (
	readPollTimeout = 3 * time.Second
	dlqWriteTimeout = 10 * time.Second
	commitTimeout   = 2 * time.Second
	commitAttempts  = 3
)

// MessageHandler consumes payloads from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer runs one reader goroutine per registered topic and a shared
// worker pool. Handling is serialized per (topic, partition) so bar
// order within a symbol survives retries.
type Consumer struct {
	cfg *ConsumerConfig
	log *applogger.Logger

	mu       sync.Mutex
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	locks    map[partitionKey]*sync.Mutex

	inbox    chan inboundMessage
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	dlq  *kafka.Writer
	hook ConsumerHook
}

type partitionKey struct {
	topic     string
	partition int
}

type inboundMessage struct {
	topic string
	raw   kafka.Message
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		locks:    make(map[partitionKey]*sync.Mutex),
		inbox:    make(chan inboundMessage, cfg.BufferSize),
		stop:     make(chan struct{}),
		hook:     NoopHook{},
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	consumerMetrics.init()
	return c, nil
}

// RegisterHandler binds a handler to its topic. Call before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.handlers[h.Topic()]; dup {
		c.logWarn("handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook installs h around every handled message.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	start := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		start = kafka.LastOffset
	}

	c.mu.Lock()
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
	}
	c.mu.Unlock()

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.readLoop(topic, reader)
	}

	c.logInfo("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop signals all goroutines, waits for them within ctx and closes the
// readers. Buffered messages are drained before the workers exit.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stop)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("consumer stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.logError("reader close failed", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.logError("dlq writer close failed", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.logInfo("kafka consumer stopped")
		}
	})
	return stopErr
}

// readLoop polls in short slices so stop signals are honoured even
// while the broker is idle.
func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), readPollTimeout)
		msg, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.logError("kafka read failed", applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}
		if !c.enqueue(inboundMessage{topic: topic, raw: msg}) {
			return
		}
	}
}

// enqueue blocks until the inbox has room, backing off harder as the
// pool saturates. Returns false once the consumer is stopping.
func (c *Consumer) enqueue(m inboundMessage) bool {
	for {
		select {
		case c.inbox <- m:
			consumerMetrics.queued(m.topic, len(c.inbox), cap(c.inbox))
			return true
		case <-c.stop:
			return false
		default:
		}
		if float64(len(c.inbox))/float64(cap(c.inbox)) > 0.8 {
			time.Sleep(10 * time.Millisecond)
		} else {
			runtime.Gosched()
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			for {
				select {
				case m := <-c.inbox:
					c.handle(m)
				default:
					return
				}
			}
		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

func (c *Consumer) handle(m inboundMessage) {
	c.mu.Lock()
	handler := c.handlers[m.topic]
	reader := c.readers[m.topic]
	c.mu.Unlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("panic in message handler",
				applogger.String("topic", m.topic),
				applogger.Any("panic", r))
		}
	}()

	lock := c.partitionLock(m.topic, m.raw.Partition)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := c.runWithRetry(handler, m)
	consumerMetrics.handled(m.topic, time.Since(start))

	delivered := err == nil
	if err != nil {
		c.hook.OnError(context.Background(), m.topic, m.raw, m.raw.Value, err)
		c.logError("message handling failed",
			applogger.String("topic", m.topic),
			applogger.Error(err))
		delivered = c.writeDLQ(m)
	}

	// Commit on success or after a DLQ hand-off. Anything else stays
	// uncommitted so the group redelivers it.
	if delivered && reader != nil {
		c.commit(reader, m.raw)
	}
}

func (c *Consumer) runWithRetry(handler MessageHandler, m inboundMessage) error {
	for attempt := 1; ; attempt++ {
		hctx, hmsg, payload, err := c.hook.BeforeHandle(context.Background(), m.topic, m.raw, m.raw.Value)
		if err != nil {
			return err
		}

		err = handler.Handle(hctx, payload)
		c.hook.AfterHandle(hctx, m.topic, hmsg, payload, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}

		c.hook.OnError(hctx, m.topic, hmsg, payload, err)
		select {
		case <-time.After(retryBackoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return err
		}
	}
}

func (c *Consumer) writeDLQ(m inboundMessage) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), dlqWriteTimeout)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     m.raw.Key,
		Value:   m.raw.Value,
		Time:    time.Now(),
		Headers: append(m.raw.Headers, kafka.Header{Key: "source_topic", Value: []byte(m.topic)}),
	})
	if err != nil {
		c.logError("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(reader *kafka.Reader, msg kafka.Message) {
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
		err = reader.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(retryBackoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.logError("offset commit failed", applogger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	k := partitionKey{topic: topic, partition: partition}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

// retryBackoff doubles from lo per attempt, caps at hi and subtracts up
// to half as jitter.
func retryBackoff(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

func (c *Consumer) logInfo(msg string, fields ...applogger.Field) {
	if c.log != nil {
		c.log.Info(msg, fields...)
	}
}

func (c *Consumer) logWarn(msg string, fields ...applogger.Field) {
	if c.log != nil {
		c.log.Warn(msg, fields...)
	}
}

func (c *Consumer) logError(msg string, fields ...applogger.Field) {
	if c.log != nil {
		c.log.Error(msg, fields...)
	}
}

var consumerMetrics = &consumerMetricSet{}

type consumerMetricSet struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	depth      *prometheus.GaugeVec
	fullness   *prometheus.GaugeVec
	latency    *prometheus.HistogramVec
}

// SetConsumerMetricsRegisterer overrides the registry consumer metrics
// land in; tests use it to keep the default registry clean. Call it
// before the first NewConsumer.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) {
	consumerMetrics.mu.Lock()
	defer consumerMetrics.mu.Unlock()
	consumerMetrics.registerer = reg
}

func (m *consumerMetricSet) init() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth != nil {
		return
	}

	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vprop",
		Subsystem: "kafka",
		Name:      "consumer_queue_depth",
		Help:      "Messages waiting in the consumer inbox",
	}, []string{"topic"})
	fullness := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vprop",
		Subsystem: "kafka",
		Name:      "consumer_queue_fullness",
		Help:      "Inbox utilization, len over cap",
	}, []string{"topic"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vprop",
		Subsystem: "kafka",
		Name:      "consumer_handle_seconds",
		Help:      "Per message handling time, retries included",
	}, []string{"topic"})

	reg := m.registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(depth, fullness, latency)
	m.depth, m.fullness, m.latency = depth, fullness, latency
}

func (m *consumerMetricSet) queued(topic string, length, capacity int) {
	if m.depth == nil {
		return
	}
	m.depth.WithLabelValues(topic).Set(float64(length))
	if capacity > 0 {
		m.fullness.WithLabelValues(topic).Set(float64(length) / float64(capacity))
	}
}

func (m *consumerMetricSet) handled(topic string, elapsed time.Duration) {
	if m.latency == nil {
		return
	}
	m.latency.WithLabelValues(topic).Observe(elapsed.Seconds())
}
