package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/cache"
)

const featureTTL = 30 * time.Minute

// CacheFeatureStore keeps the latest feature snapshot per (symbol, timeframe)
// so analytics and sizing reuse scanner work.
type CacheFeatureStore struct {
	c cache.BytesCache
}

func NewCacheFeatureStore(c cache.BytesCache) *CacheFeatureStore {
	return &CacheFeatureStore{c: c}
}

func featureKey(symbol string, tf models.Timeframe) string {
	return fmt.Sprintf("vprop:features:%s:%s", symbol, tf)
}

func (s *CacheFeatureStore) PutFeatures(ctx context.Context, fv *models.FeatureVector) error {
	if fv == nil {
		return nil
	}
	raw, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("features marshal: %w", err)
	}
	if err := s.c.SetBytes(featureKey(fv.Symbol, fv.Timeframe), raw, featureTTL); err != nil {
		return fmt.Errorf("features save: %w", err)
	}
	return nil
}

func (s *CacheFeatureStore) GetFeatures(ctx context.Context, symbol string, tf models.Timeframe) (*models.FeatureVector, error) {
	raw, ok, err := s.c.GetBytes(featureKey(symbol, tf))
	if err != nil {
		return nil, fmt.Errorf("features load: %w", err)
	}
	if !ok {
		return nil, models.ErrNotFound
	}
	var fv models.FeatureVector
	if err := json.Unmarshal(raw, &fv); err != nil {
		return nil, fmt.Errorf("features unmarshal: %w", err)
	}
	return &fv, nil
}
