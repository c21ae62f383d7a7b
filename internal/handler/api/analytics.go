package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/metrics"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	xlogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// AnalyticsHandler exposes the four reporting views.
type AnalyticsHandler struct {
	logger    *xlogger.Logger
	analytics *usecase.AnalyticsUseCase
}

func NewAnalyticsHandler(logger *xlogger.Logger, analytics *usecase.AnalyticsUseCase) *AnalyticsHandler {
	metrics.Register()
	return &AnalyticsHandler{logger: logger, analytics: analytics}
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/analytics")
	g.GET("/overview", h.Overview)
	g.GET("/compliance", h.Compliance)
	g.GET("/alphas", h.Alphas)
	g.GET("/risk", h.Risk)
	g.GET("", h.Bundle)
}

func (h *AnalyticsHandler) Overview(c echo.Context) error {
	return h.serve(c, "overview", func(ctx echo.Context) (interface{}, error) {
		return h.analytics.Overview(ctx.Request().Context())
	})
}

func (h *AnalyticsHandler) Compliance(c echo.Context) error {
	return h.serve(c, "compliance", func(ctx echo.Context) (interface{}, error) {
		return h.analytics.Compliance(ctx.Request().Context())
	})
}

func (h *AnalyticsHandler) Alphas(c echo.Context) error {
	return h.serve(c, "alphas", func(ctx echo.Context) (interface{}, error) {
		return h.analytics.Alphas(ctx.Request().Context())
	})
}

func (h *AnalyticsHandler) Risk(c echo.Context) error {
	return h.serve(c, "risk", func(ctx echo.Context) (interface{}, error) {
		return h.analytics.Risk(ctx.Request().Context())
	})
}

// Bundle returns all four views in one response, sections degrading
// independently.
func (h *AnalyticsHandler) Bundle(c echo.Context) error {
	return h.serve(c, "bundle", func(ctx echo.Context) (interface{}, error) {
		return h.analytics.Bundle(ctx.Request().Context())
	})
}

func (h *AnalyticsHandler) serve(c echo.Context, view string, fetch func(echo.Context) (interface{}, error)) error {
	start := time.Now()
	defer func() {
		metrics.AnalyticsLatency.WithLabelValues(view).Observe(time.Since(start).Seconds())
	}()

	res, err := fetch(c)
	if err != nil {
		h.logger.Error("analytics view error",
			xlogger.String("view", view),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("analytics %s failed", view).WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}
