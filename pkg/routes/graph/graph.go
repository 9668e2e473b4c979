package graph

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/thistle/pkg/graph"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Register registers GET /cases/:caseId/graph
func Register(g *echo.Group, builder *graph.Builder) {
	g.GET("", func(c echo.Context) error {
		ctx, span := tracing.StartSpan(c.Request().Context(), "graph_handler.Build")
		defer span.End()

		opts := graph.Options{MinEdgeWeight: graph.DefaultMinEdgeWeight}
		if err := echo.QueryParamsBinder(c).
			Bool("include_identifiers", &opts.IncludeIdentifiers).
			Bool("group_by_global_person", &opts.GroupByGlobalPerson).
			Int("min_edge_weight", &opts.MinEdgeWeight).
			BindError(); err != nil {
			return httperror.WrapError(http.StatusBadRequest, err)
		}

		result, err := builder.Build(ctx, c.Param("caseId"), opts)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	})
}
