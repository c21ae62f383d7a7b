package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
)

// BarSink is the minimal downstream interface the pipeline needs.
type BarSink interface {
	InsertBars(ctx context.Context, bars []*models.Bar) error
}

// BarPipeline sits between the market stream and the bar store. It
// validates and throttles raw ticks, aggregates them into M1 bars, and
// buffers completed bars when the store is unavailable.
type BarPipeline struct {
	sink     BarSink
	metrics  domrepo.Metrics
	maxTPS   int
	bufSize  int
	sweepInt time.Duration
	bufCh    chan *models.Bar
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
	builders map[string]*barBuilder
}

// barBuilder accumulates ticks into the open M1 bar for one symbol.
type barBuilder struct {
	minute time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

type PipelineOption func(*BarPipeline)

// WithMaxTPS sets the max accepted ticks per second per symbol.
func WithMaxTPS(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.maxTPS = n
		}
	}
}

// WithBufferSize sets the completed-bar buffer size used when the store
// is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithSweepInterval sets how often idle open bars are force-closed.
func WithSweepInterval(d time.Duration) PipelineOption {
	return func(p *BarPipeline) {
		if d > 0 {
			p.sweepInt = d
		}
	}
}

// NewBarPipeline creates a new tick-to-bar pipeline.
func NewBarPipeline(sink BarSink, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		sink:     sink,
		metrics:  metrics,
		maxTPS:   20,   // default throttle per symbol
		bufSize:  1000, // default buffer
		sweepInt: 5 * time.Second,
		bufCh:    make(chan *models.Bar, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		builders: make(map[string]*barBuilder),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Bar, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered bars and the idle-bar
// sweeper.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case b := <-p.bufCh:
				if b == nil {
					continue
				}
				p.metrics.RecordPipelineDepth(len(p.bufCh))
				if err := p.sink.InsertBars(ctx, []*models.Bar{b}); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- b:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					p.metrics.RecordBarStored(b.Symbol, b.Timeframe.String(), b.IsSynthetic)
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()

	go func() {
		tick := time.NewTicker(p.sweepInt)
		defer tick.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-tick.C:
				p.sweep(ctx, time.Now().UTC())
			}
		}
	}()
}

// Stop stops the background goroutines.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and throttles a tick, folds it into the open M1 bar
// for its symbol, and emits the previous bar when the minute rolls.
func (p *BarPipeline) Process(ctx context.Context, t *models.Tick) error {
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	p.mu.Lock()
	if !p.allowLocked(t.Symbol, time.Now()) {
		p.mu.Unlock()
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	done := p.applyLocked(t)
	p.mu.Unlock()

	p.metrics.RecordTick(t.Symbol)
	if done != nil {
		p.emit(ctx, done)
	}
	return nil
}

// Flush force-closes all open bars, emitting them downstream. Call on
// shutdown so the last partial minute is not lost.
func (p *BarPipeline) Flush(ctx context.Context) {
	p.mu.Lock()
	var out []*models.Bar
	for sym, b := range p.builders {
		out = append(out, b.bar(sym))
		delete(p.builders, sym)
	}
	p.mu.Unlock()
	for _, b := range out {
		p.emit(ctx, b)
	}
}

// applyLocked folds the tick into its symbol's builder and returns the
// completed bar when the tick opens a new minute. Caller holds p.mu.
func (p *BarPipeline) applyLocked(t *models.Tick) *models.Bar {
	minute := models.TFM1.Truncate(t.Timestamp)
	b, ok := p.builders[t.Symbol]
	if !ok {
		p.builders[t.Symbol] = newBuilder(minute, t)
		return nil
	}
	if minute.Equal(b.minute) {
		b.fold(t)
		return nil
	}
	if minute.Before(b.minute) {
		// late tick from a closed minute; drop it
		p.metrics.RecordError("pipeline_late_tick")
		return nil
	}
	done := b.bar(t.Symbol)
	p.builders[t.Symbol] = newBuilder(minute, t)
	return done
}

// sweep closes open bars whose minute has fully elapsed so sparse
// symbols still produce bars without waiting for the next tick.
func (p *BarPipeline) sweep(ctx context.Context, now time.Time) {
	cutoff := models.TFM1.Truncate(now)
	p.mu.Lock()
	var out []*models.Bar
	for sym, b := range p.builders {
		if b.minute.Before(cutoff) {
			out = append(out, b.bar(sym))
			delete(p.builders, sym)
		}
	}
	p.mu.Unlock()
	for _, b := range out {
		p.emit(ctx, b)
	}
}

// emit writes a completed bar to the store, buffering on failure.
func (p *BarPipeline) emit(ctx context.Context, b *models.Bar) {
	if err := p.sink.InsertBars(ctx, []*models.Bar{b}); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- b:
			p.metrics.RecordPipelineDepth(len(p.bufCh))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return
	}
	p.metrics.RecordBarStored(b.Symbol, b.Timeframe.String(), b.IsSynthetic)
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Volume < 0 {
		return fmt.Errorf("invalid price/volume")
	}
	return nil
}

// allowLocked enforces at most maxTPS accepted ticks per second per
// symbol. Caller holds p.mu.
func (p *BarPipeline) allowLocked(symbol string, now time.Time) bool {
	if p.maxTPS <= 0 {
		return true
	}
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxTPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

func newBuilder(minute time.Time, t *models.Tick) *barBuilder {
	return &barBuilder{
		minute: minute,
		open:   t.Price,
		high:   t.Price,
		low:    t.Price,
		close:  t.Price,
		volume: t.Volume,
	}
}

func (b *barBuilder) fold(t *models.Tick) {
	if t.Price > b.high {
		b.high = t.Price
	}
	if t.Price < b.low {
		b.low = t.Price
	}
	b.close = t.Price
	b.volume += t.Volume
}

func (b *barBuilder) bar(symbol string) *models.Bar {
	return &models.Bar{
		Symbol:    symbol,
		Timeframe: models.TFM1,
		Timestamp: b.minute,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
	}
}
