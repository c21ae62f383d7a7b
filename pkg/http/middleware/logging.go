package middleware

import (
	"log"
	"time"

	applogger "github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits one line per request at debug level, falling
// back to the stdlib logger when l is nil.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			req := c.Request()
			res := c.Response()
			if l == nil {
				log.Printf("[%s] %s %s - %d (%s)",
					req.Method, req.RequestURI, req.RemoteAddr, res.Status, elapsed)
				return err
			}
			l.Debug("http request",
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", req.RemoteAddr),
				applogger.Int("status", res.Status),
				applogger.Duration("elapsed_ms", elapsed),
			)
			return err
		}
	}
}
