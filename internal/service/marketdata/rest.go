package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/ratelimit"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const restRateKey = "marketdata:rest"

// RESTClient fetches historical candles from the provider REST API for
// backfill. Calls are paced by a token bucket so backfill bursts stay
// inside the provider quota.
type RESTClient struct {
	apiKey  string
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	rate    float64
	logger  *logger.Logger
}

func NewRESTClient(apiKey, baseURL string, ratePerSec float64) *RESTClient {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	return &RESTClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(20 * time.Second)),
		limiter: ratelimit.New(),
		rate:    ratePerSec,
	}
}

func (c *RESTClient) SetLogger(l *logger.Logger) { c.logger = l }

// candleResponse is the provider's columnar candle payload.
type candleResponse struct {
	Status string    `json:"s"`
	T      []int64   `json:"t"`
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// Candles fetches bars for (symbol, timeframe) in [from, to], ascending.
func (c *RESTClient) Candles(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]*models.Bar, error) {
	if err := c.limiter.Wait(ctx, restRateKey, c.rate, c.rate); err != nil {
		return nil, err
	}

	var resp candleResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/candle",
		QueryParams: map[string][]string{
			"symbol":     {symbol},
			"resolution": {providerResolution(tf)},
			"from":       {strconv.FormatInt(from.Unix(), 10)},
			"to":         {strconv.FormatInt(to.Unix(), 10)},
			"token":      {c.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s/%s: %w", symbol, tf, err)
	}
	if resp.Status == "no_data" {
		return nil, nil
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("fetch candles %s/%s: provider status %q", symbol, tf, resp.Status)
	}

	n := len(resp.T)
	if len(resp.O) != n || len(resp.H) != n || len(resp.L) != n || len(resp.C) != n {
		return nil, fmt.Errorf("fetch candles %s/%s: ragged columns", symbol, tf)
	}
	bars := make([]*models.Bar, 0, n)
	for i := 0; i < n; i++ {
		vol := 0.0
		if i < len(resp.V) {
			vol = resp.V[i]
		}
		bars = append(bars, &models.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			Timestamp: time.Unix(resp.T[i], 0).UTC(),
			Open:      resp.O[i],
			High:      resp.H[i],
			Low:       resp.L[i],
			Close:     resp.C[i],
			Volume:    vol,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	if c.logger != nil {
		c.logger.Debug("candles fetched",
			logger.String("symbol", symbol),
			logger.String("timeframe", string(tf)),
			logger.Int("bars", len(bars)),
		)
	}
	return bars, nil
}

// providerResolution maps internal timeframes to the provider's
// resolution parameter.
func providerResolution(tf models.Timeframe) string {
	switch tf {
	case models.TFM1:
		return "1"
	case models.TFM5:
		return "5"
	case models.TFM15:
		return "15"
	case models.TFM30:
		return "30"
	case models.TFH1:
		return "60"
	case models.TFH4:
		return "240"
	case models.TFD1:
		return "D"
	default:
		return "5"
	}
}
