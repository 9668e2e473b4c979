package timeline

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/thistle/pkg/timeline"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Register registers GET /cases/:caseId/timeline. Time bounds are RFC 3339.
func Register(g *echo.Group, svc *timeline.Service) {
	g.GET("", func(c echo.Context) error {
		ctx, span := tracing.StartSpan(c.Request().Context(), "timeline_handler.Search")
		defer span.End()

		q := timeline.Query{CaseID: c.Param("caseId")}
		var (
			direction string
			from, to  time.Time
		)
		if err := echo.QueryParamsBinder(c).
			String("q", &q.QueryText).
			String("target_id", &q.TargetID).
			String("global_entity_id", &q.GlobalEntityID).
			String("direction", &direction).
			Time("from", &from, time.RFC3339).
			Time("to", &to, time.RFC3339).
			Int("take", &q.Take).
			Int("skip", &q.Skip).
			BindError(); err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}
		q.Direction = timeline.Direction(direction)
		if !from.IsZero() {
			from = from.UTC()
			q.FromUTC = &from
		}
		if !to.IsZero() {
			to = to.UTC()
			q.ToUTC = &to
		}

		result, err := svc.Search(ctx, q)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	})
}
