package middleware

import (
	"time"

	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func Logger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			logging.WithContext(req.Context(), logger).Info("Request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.String("route", c.Path()),
				zap.String("remote_ip", c.RealIP()),
				zap.String("user_agent", req.UserAgent()),
				zap.Duration("response_time", stop.Sub(start)),
				zap.String("request_size", req.Header.Get(echo.HeaderContentLength)),
				zap.Int64("response_size", res.Size),
			)

			return nil
		}
	}
}
