package usecase

import (
	"context"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	drepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	mid "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/middleware"
)

// TickCollector connects the market stream to the bar pipeline.
type TickCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.BarPipeline
	metrics drepo.Metrics
}

func NewTickCollector(stream drepo.MarketStream, pipe *mid.BarPipeline, metrics drepo.Metrics) *TickCollector {
	return &TickCollector{stream: stream, pipe: pipe, metrics: metrics}
}

// IsConnected reports whether the market stream is up.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					continue
				}
				if serr := c.stream.Subscribe(ctx); serr != nil {
					c.metrics.RecordError("stream_subscribe")
					continue
				}
				tickCh, errCh = c.stream.Read(ctx)
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			_ = c.pipe.Process(ctx, t)
		}
	}
}

// Shutdown flushes open bars, stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	c.pipe.Flush(ctx)
	c.pipe.Stop()
	return c.stream.Close()
}
