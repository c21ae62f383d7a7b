package repository

import (
	"context"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

// FeatureStore caches computed feature snapshots so the analytics risk
// view and the sizing path reuse scanner work instead of recomputing.
type FeatureStore interface {
	PutFeatures(ctx context.Context, fv *models.FeatureVector) error
	GetFeatures(ctx context.Context, symbol string, tf models.Timeframe) (*models.FeatureVector, error)
}
