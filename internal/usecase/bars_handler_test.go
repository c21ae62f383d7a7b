package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barEvent(t *testing.T, overrides map[string]interface{}) []byte {
	t.Helper()
	m := map[string]interface{}{
		"symbol": "eurusd",
		"tf":     "M5",
		"t":      time.Date(2025, 6, 2, 9, 3, 27, 0, time.UTC).Unix(),
		"o":      1.10,
		"h":      1.12,
		"l":      1.09,
		"c":      1.11,
		"v":      42.0,
	}
	for k, v := range overrides {
		m[k] = v
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return data
}

func TestBarsHandlerStoresNormalizedBar(t *testing.T) {
	store := &memBarStore{}
	h := NewKafkaBarsHandler("vprop.bars", store, nopMetrics{})

	require.NoError(t, h.Handle(context.Background(), barEvent(t, nil)))

	inserted := store.insertedBars()
	require.Len(t, inserted, 1)
	bar := inserted[0]
	assert.Equal(t, "EURUSD", bar.Symbol)
	// timestamps snap to the timeframe boundary
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), bar.Timestamp)
	assert.Equal(t, 1.11, bar.Close)
	assert.Equal(t, 42.0, bar.Volume)
	assert.False(t, bar.IsSynthetic)
}

func TestBarsHandlerMillisecondTimestamps(t *testing.T) {
	store := &memBarStore{}
	h := NewKafkaBarsHandler("vprop.bars", store, nopMetrics{})
	ts := time.Date(2025, 6, 2, 9, 3, 27, 0, time.UTC)

	ev := barEvent(t, map[string]interface{}{"t": ts.UnixMilli(), "synthetic": true})
	require.NoError(t, h.Handle(context.Background(), ev))

	inserted := store.insertedBars()
	require.Len(t, inserted, 1)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), inserted[0].Timestamp)
	assert.True(t, inserted[0].IsSynthetic)
}

func TestBarsHandlerRejectsBadEvents(t *testing.T) {
	cases := []struct {
		name string
		ev   func(t *testing.T) []byte
	}{
		{"broken json", func(t *testing.T) []byte { return []byte("{nope") }},
		{"unknown timeframe", func(t *testing.T) []byte {
			return barEvent(t, map[string]interface{}{"tf": "M7"})
		}},
		{"empty symbol", func(t *testing.T) []byte {
			return barEvent(t, map[string]interface{}{"symbol": ""})
		}},
		{"zero timestamp", func(t *testing.T) []byte {
			return barEvent(t, map[string]interface{}{"t": 0})
		}},
		{"non-positive close", func(t *testing.T) []byte {
			return barEvent(t, map[string]interface{}{"c": 0.0})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memBarStore{}
			h := NewKafkaBarsHandler("vprop.bars", store, nopMetrics{})

			assert.Error(t, h.Handle(context.Background(), tc.ev(t)))
			assert.Empty(t, store.insertedBars())
		})
	}
}

func TestBarsHandlerStoreErrorPropagates(t *testing.T) {
	store := &memBarStore{insertErr: errors.New("clickhouse down")}
	h := NewKafkaBarsHandler("vprop.bars", store, nopMetrics{})

	assert.Error(t, h.Handle(context.Background(), barEvent(t, nil)))
}
