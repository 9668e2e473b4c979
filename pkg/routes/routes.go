// Package routes mounts the HTTP adapter used by the review UI and ingest jobs.
package routes

import (
	"github.com/Ramsey-B/thistle/pkg/evidence"
	"github.com/Ramsey-B/thistle/pkg/graph"
	"github.com/Ramsey-B/thistle/pkg/middleware"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/routes/cases"
	"github.com/Ramsey-B/thistle/pkg/routes/globalpersons"
	graphroutes "github.com/Ramsey-B/thistle/pkg/routes/graph"
	"github.com/Ramsey-B/thistle/pkg/routes/health"
	"github.com/Ramsey-B/thistle/pkg/routes/participants"
	presenceroutes "github.com/Ramsey-B/thistle/pkg/routes/presence"
	"github.com/Ramsey-B/thistle/pkg/routes/targets"
	timelineroutes "github.com/Ramsey-B/thistle/pkg/routes/timeline"
	"github.com/Ramsey-B/thistle/pkg/timeline"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services is everything the routes call into.
type Services struct {
	Evidence *evidence.Service
	Registry *registry.Service
	Indexer  *presence.Indexer
	Graph    *graph.Builder
	Timeline *timeline.Service
}

// NewServices wires the services over one workspace.
func NewServices(ws *workspace.Workspace) Services {
	indexer := presence.NewIndexer(ws)
	reg := registry.NewService(ws, indexer)
	return Services{
		Evidence: evidence.NewService(ws, reg, indexer),
		Registry: reg,
		Indexer:  indexer,
		Graph:    graph.NewBuilder(ws),
		Timeline: timeline.NewService(ws),
	}
}

// Register installs the middleware chain and every route on e.
func Register(e *echo.Echo, logger *zap.Logger, s Services, checker *health.Checker) {
	e.HTTPErrorHandler = middleware.Error(logger)

	api := e.Group("/api/v1", middleware.Context(), middleware.Logger(logger))
	cases.Register(api, s.Evidence)
	targets.Register(api.Group("/cases/:caseId/targets"), s.Registry)
	participants.Register(api.Group("/cases/:caseId/messages/:messageId/participants"), s.Registry)
	presenceroutes.Register(api.Group("/cases/:caseId/presence"), s.Indexer)
	graphroutes.Register(api.Group("/cases/:caseId/graph"), s.Graph)
	timelineroutes.Register(api.Group("/cases/:caseId/timeline"), s.Timeline)
	globalpersons.Register(api.Group("/global-persons"), s.Registry)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if checker != nil {
		checker.RegisterRoutes(e)
	}
}
