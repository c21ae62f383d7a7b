package api

import (
	"github.com/labstack/echo/v4"

	models "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/ratelimit"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/usecase"
	xhttp "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/http"
	xlogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/util"
)

// SignalsHandler serves sized signals to the execution layer.
type SignalsHandler struct {
	logger  *xlogger.Logger
	signals *usecase.SignalsUseCase
	rl      *ratelimit.Limiter
}

func NewSignalsHandler(logger *xlogger.Logger, signals *usecase.SignalsUseCase) *SignalsHandler {
	return &SignalsHandler{logger: logger, signals: signals, rl: ratelimit.New()}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.GetSignals)
}

func (h *SignalsHandler) GetSignals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":signals", 10, 5) {
		h.logger.Warn("signals rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many signal polls"))
	}

	res, err := h.signals.GetSignals(c.Request().Context(), usecase.GetSignalsParams{
		Equity: req.Equity,
		Symbol: util.NormalizeSymbol(req.Symbol),
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Error("signals usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("signal serving failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}
