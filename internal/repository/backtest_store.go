package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/cache"
)

const backtestTTL = 48 * time.Hour

// CacheBacktestStore keeps asynchronous run state keyed by run ID.
type CacheBacktestStore struct {
	c cache.BytesCache
}

func NewCacheBacktestStore(c cache.BytesCache) *CacheBacktestStore {
	return &CacheBacktestStore{c: c}
}

func backtestKey(id string) string { return "vprop:backtest:" + id }

func (s *CacheBacktestStore) Put(ctx context.Context, run *models.BacktestRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("backtest store: run without id")
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("backtest marshal: %w", err)
	}
	if err := s.c.SetBytes(backtestKey(run.ID), raw, backtestTTL); err != nil {
		return fmt.Errorf("backtest save: %w", err)
	}
	return nil
}

func (s *CacheBacktestStore) Get(ctx context.Context, id string) (*models.BacktestRun, error) {
	raw, ok, err := s.c.GetBytes(backtestKey(id))
	if err != nil {
		return nil, fmt.Errorf("backtest load: %w", err)
	}
	if !ok {
		return nil, models.ErrNotFound
	}
	var run models.BacktestRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("backtest unmarshal: %w", err)
	}
	return &run, nil
}
