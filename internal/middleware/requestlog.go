package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
)

// RequestLog assigns a request id (propagating X-Request-ID when the client
// sends one), stores a request-scoped logger in the context and logs one
// line per completed request. Route latency and status go to m.
func RequestLog(m *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := strings.TrimSpace(req.Header.Get(echo.HeaderXRequestID))
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			l := logger.L().With(
				logger.RequestID(rid),
				logger.Method(req.Method),
				logger.Route(c.Path()),
			)
			c.SetRequest(req.WithContext(logger.ToContext(req.Context(), l)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			dur := time.Since(start)
			m.HTTPRequest(req.Method, c.Path(), status, dur)
			// JWTAuth may have added the user id to the context logger.
			l = logger.From(c.Request().Context())
			switch {
			case status >= 500:
				l.Error("request completed", logger.Status(status), logger.Duration(dur), logger.ClientIP(c.RealIP()))
			default:
				l.Info("request completed", logger.Status(status), logger.Duration(dur), logger.ClientIP(c.RealIP()))
			}
			return nil
		}
	}
}
