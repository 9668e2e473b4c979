package middleware

import (
	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// HeaderUserID names the operator recorded on audit entries.
	HeaderUserID = "X-User-ID"
	// CaseIDParam is the route parameter carrying the case id.
	CaseIDParam = "caseId"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, c.Path())
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			ctx = appctx.SetOperator(ctx, req.Header.Get(HeaderUserID))
			if caseID := c.Param(CaseIDParam); caseID != "" {
				ctx = appctx.SetCaseID(ctx, caseID)
			}

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
