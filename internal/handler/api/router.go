package api

import (
	"github.com/labstack/echo/v4"
)

// Router aggregates the API handlers into a single route registrar for
// the HTTP server.
type Router struct {
	signals    *SignalsHandler
	executions *ExecutionsHandler
	analytics  *AnalyticsHandler
	backtests  *BacktestsHandler
	health     *HealthHandler
}

func NewRouter(
	signals *SignalsHandler,
	executions *ExecutionsHandler,
	analytics *AnalyticsHandler,
	backtests *BacktestsHandler,
	health *HealthHandler,
) *Router {
	return &Router{
		signals:    signals,
		executions: executions,
		analytics:  analytics,
		backtests:  backtests,
		health:     health,
	}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	r.health.RegisterRoutes(e)
	r.signals.RegisterRoutes(e)
	r.executions.RegisterRoutes(e)
	r.analytics.RegisterRoutes(e)
	r.backtests.RegisterRoutes(e)
}
