package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	models "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	xlogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// BacktestsHandler submits and inspects walk-forward runs.
type BacktestsHandler struct {
	logger    *xlogger.Logger
	backtests *usecase.BacktestsUseCase
}

func NewBacktestsHandler(logger *xlogger.Logger, backtests *usecase.BacktestsUseCase) *BacktestsHandler {
	return &BacktestsHandler{logger: logger, backtests: backtests}
}

func (h *BacktestsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/backtests")
	g.POST("", h.Submit)
	g.GET("/:id", h.Get)
}

func (h *BacktestsHandler) Submit(c echo.Context) error {
	req := &models.BacktestSubmitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.backtests.Submit(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrQueueUnavailable) {
			h.logger.Error("backtest intake unavailable", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("backtest intake unavailable"))
		}
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.AcceptedResponse(c, run)
}

func (h *BacktestsHandler) Get(c echo.Context) error {
	run, err := h.backtests.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("backtest run %s not found", c.Param("id")))
		}
		h.logger.Error("backtest lookup error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("backtest lookup failed"))
	}
	return xhttp.SuccessResponse(c, run)
}
