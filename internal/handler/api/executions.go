package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	models "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	xlogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// ExecutionsHandler accepts execution reports from the execution layer.
type ExecutionsHandler struct {
	logger *xlogger.Logger
	execs  *usecase.ExecutionsUseCase
}

func NewExecutionsHandler(logger *xlogger.Logger, execs *usecase.ExecutionsUseCase) *ExecutionsHandler {
	return &ExecutionsHandler{logger: logger, execs: execs}
}

func (h *ExecutionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/executions", h.Submit)
}

// Submit acknowledges with 202 semantics; processing happens on the
// queue worker.
func (h *ExecutionsHandler) Submit(c echo.Context) error {
	req := &models.ExecutionSubmitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rep, err := h.execs.Submit(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrQueueUnavailable) {
			h.logger.Error("execution intake unavailable", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("execution intake unavailable"))
		}
		h.logger.Warn("execution submit rejected",
			xlogger.String("ticket", req.Ticket),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"ticket":   rep.Ticket,
		"accepted": true,
	})
}
