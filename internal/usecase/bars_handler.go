package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	pkgkafka "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/kafka"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/util"
)

// KafkaBarsHandler consumes bar events off the bus and writes them to
// the store. Feeds that push bars through Kafka (an MT5 bridge, another
// sidecar) land here instead of the websocket path.
type KafkaBarsHandler struct {
	topic   string
	store   domrepo.BarStore
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, store domrepo.BarStore, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, tf, t, o, h, l, c, v, synthetic}
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol    string  `json:"symbol"`
		TF        string  `json:"tf"`
		T         int64   `json:"t"`
		O         float64 `json:"o"`
		H         float64 `json:"h"`
		L         float64 `json:"l"`
		C         float64 `json:"c"`
		V         float64 `json:"v"`
		Synthetic bool    `json:"synthetic"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	tf, err := models.ParseTimeframe(m.TF)
	if err != nil {
		h.metrics.RecordError("consumer_timeframe")
		return err
	}
	if m.Symbol == "" || m.T <= 0 || m.C <= 0 {
		h.metrics.RecordError("consumer_validate")
		return fmt.Errorf("invalid bar event: symbol=%q t=%d close=%v", m.Symbol, m.T, m.C)
	}

	bar := &models.Bar{
		Symbol:      util.NormalizeSymbol(m.Symbol),
		Timeframe:   tf,
		Timestamp:   tf.Truncate(time.Unix(m.T, 0).UTC()),
		Open:        m.O,
		High:        m.H,
		Low:         m.L,
		Close:       m.C,
		Volume:      m.V,
		IsSynthetic: m.Synthetic,
	}
	if err := h.store.InsertBars(ctx, []*models.Bar{bar}); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordBarStored(bar.Symbol, tf.String(), bar.IsSynthetic)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
