package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	xlogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

const (
	healthCheckTimeout = 3 * time.Second
	defaultStaleAfter  = 5 * time.Minute
)

// Pinger reports connectivity of an infrastructure dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentHealth is the probe result for a single dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates component probes for orchestrator checks.
type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// HealthHandler serves the liveness and dependency probe.
type HealthHandler struct {
	logger     *xlogger.Logger
	bars       domrepo.BarStore
	redis      Pinger
	scanner    *usecase.AlphaScanner
	collector  *usecase.TickCollector
	staleAfter time.Duration
}

// NewHealthHandler wires the probe. The collector is optional; when the
// market stream is disabled the stream component is omitted from the
// report. staleAfter bounds how old the last scan may be before the
// scanner is reported degraded.
func NewHealthHandler(
	logger *xlogger.Logger,
	bars domrepo.BarStore,
	redis Pinger,
	scanner *usecase.AlphaScanner,
	collector *usecase.TickCollector,
	staleAfter time.Duration,
) *HealthHandler {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &HealthHandler{
		logger:     logger,
		bars:       bars,
		redis:      redis,
		scanner:    scanner,
		collector:  collector,
		staleAfter: staleAfter,
	}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

// Health pings ClickHouse and Redis, checks the scanner heartbeat and
// the market stream, and reports ok or degraded. The HTTP status is
// always 200; the envelope status carries 503 when degraded so probes
// reading the body can distinguish.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	now := time.Now().UTC()
	report := HealthReport{
		Status:     "ok",
		Components: make(map[string]ComponentHealth),
		CheckedAt:  now,
	}
	degraded := func(name string, comp ComponentHealth) {
		report.Status = "degraded"
		report.Components[name] = comp
		h.logger.Warn("health check failed",
			xlogger.String("component", name),
			xlogger.String("error", comp.Error),
		)
	}

	if err := h.bars.Health(ctx); err != nil {
		degraded("clickhouse", ComponentHealth{Status: "down", Error: err.Error()})
	} else {
		report.Components["clickhouse"] = ComponentHealth{Status: "ok"}
	}

	if err := h.redis.Ping(ctx); err != nil {
		degraded("redis", ComponentHealth{Status: "down", Error: err.Error()})
	} else {
		report.Components["redis"] = ComponentHealth{Status: "ok"}
	}

	if h.scanner != nil {
		last := h.scanner.LastScan()
		switch {
		case last.IsZero():
			// First sweep has not completed yet; not a failure.
			report.Components["scanner"] = ComponentHealth{Status: "starting"}
		case now.Sub(last) > h.staleAfter:
			degraded("scanner", ComponentHealth{
				Status: "stale",
				Error:  "no sweep since " + last.Format(time.RFC3339),
			})
		default:
			report.Components["scanner"] = ComponentHealth{
				Status: "ok",
				Detail: "last sweep " + last.Format(time.RFC3339),
			}
		}
	}

	if h.collector != nil {
		if h.collector.IsConnected() {
			report.Components["stream"] = ComponentHealth{Status: "ok"}
		} else {
			// The collector reconnects on its own; report without
			// flipping the overall status so probes do not restart
			// the process during a broker hiccup.
			report.Components["stream"] = ComponentHealth{Status: "reconnecting"}
		}
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, report)
}
