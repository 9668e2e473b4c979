package globalpersons

import (
	"net/http"

	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Register registers the cross-case global person routes
func Register(g *echo.Group, svc *registry.Service) {
	g.GET("/:globalEntityId", func(c echo.Context) error {
		ctx, span := tracing.StartSpan(c.Request().Context(), "globalpersons_handler.Get")
		defer span.End()

		result, err := svc.GetGlobalPerson(ctx, c.Param("globalEntityId"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	})
}
