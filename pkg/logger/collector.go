package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

const collectorPublishTimeout = 30 * time.Second

// Publisher ships aggregated log batches to the bus. The Kafka event
// publisher satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls aggregation and delivery.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush cadence
	CountThreshold int           // distinct lines that force an early flush
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one deduplicated log line with its repeat count
// inside the flush window.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates warn/error lines between flushes so a
// flapping dependency produces one entry with a count instead of a
// message flood.
type LogCollector struct {
	cfg *CollectionConfig

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	ctx, cancel := context.WithCancel(context.Background())
	lc := &LogCollector{
		cfg:     cfg,
		entries: make(map[uint64]*AggregatedLogEntry),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go lc.run(ctx)
	return lc
}

// Add records one log line under its dedup key.
func (lc *LogCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := dedupKey(level, message, fields, caller)

	lc.mu.Lock()
	if e, ok := lc.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		lc.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedLogEntry
	if len(lc.entries) >= lc.cfg.CountThreshold {
		batch = lc.takeLocked()
	}
	lc.mu.Unlock()

	if len(batch) > 0 {
		go lc.publish(batch)
	}
}

// Close flushes pending entries synchronously and stops the collector.
func (lc *LogCollector) Close() {
	lc.cancel()
	<-lc.done
}

func (lc *LogCollector) run(ctx context.Context) {
	defer close(lc.done)

	ticker := time.NewTicker(lc.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lc.mu.Lock()
			batch := lc.takeLocked()
			lc.mu.Unlock()
			if len(batch) > 0 {
				go lc.publish(batch)
			}
		case <-ctx.Done():
			lc.mu.Lock()
			batch := lc.takeLocked()
			lc.mu.Unlock()
			if len(batch) > 0 {
				lc.publish(batch)
			}
			return
		}
	}
}

// takeLocked snapshots and resets the entry map. Callers hold mu.
func (lc *LogCollector) takeLocked() []AggregatedLogEntry {
	if len(lc.entries) == 0 {
		return nil
	}
	batch := make([]AggregatedLogEntry, 0, len(lc.entries))
	for _, e := range lc.entries {
		batch = append(batch, *e)
	}
	lc.entries = make(map[uint64]*AggregatedLogEntry)
	return batch
}

func (lc *LogCollector) publish(batch []AggregatedLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), collectorPublishTimeout)
	defer cancel()
	if err := lc.cfg.Publisher.PublishMessage(ctx, lc.cfg.Topic, batch); err != nil {
		fmt.Printf("log collector publish failed: %v\n", err)
	}
}

// dedupKey hashes level, message, caller and the JSON form of fields.
// encoding/json sorts map keys, so equal field sets hash equally.
func dedupKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(level))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write([]byte(caller))
	if len(fields) > 0 {
		if b, err := json.Marshal(fields); err == nil {
			h.Write([]byte{0})
			h.Write(b)
		}
	}
	return h.Sum64()
}
