package targets

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/utils"
	"github.com/labstack/echo/v4"
)

type handler struct {
	svc *registry.Service
}

// ListResponse is one page of targets.
type ListResponse struct {
	Items      []models.Target `json:"items"`
	TotalCount int             `json:"total_count"`
	Take       int             `json:"take"`
	Skip       int             `json:"skip"`
}

// Register registers target, identifier, alias and global person link routes
// under /cases/:caseId/targets.
func Register(g *echo.Group, svc *registry.Service) {
	h := &handler{svc: svc}

	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:targetId", h.Get)
	g.PATCH("/:targetId", h.Update)
	g.DELETE("/:targetId", h.Delete)

	g.POST("/:targetId/identifiers", h.AddIdentifier)
	g.PUT("/:targetId/identifiers/:identifierId", h.UpdateIdentifier)
	g.DELETE("/:targetId/identifiers/:identifierId", h.RemoveIdentifier)

	g.POST("/:targetId/aliases", h.AddAlias)
	g.DELETE("/:targetId/aliases", h.RemoveAlias)

	g.PUT("/:targetId/global-person", h.LinkGlobalPerson)
	g.POST("/:targetId/global-person", h.CreateGlobalPerson)
	g.DELETE("/:targetId/global-person", h.UnlinkGlobalPerson)
}

func (h *handler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.Create")
	defer span.End()

	req, err := utils.BindRequest[models.CreateTargetRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")

	result, err := h.svc.CreateTarget(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.List")
	defer span.End()

	req := models.ListTargetsRequest{CaseID: c.Param("caseId")}
	if err := echo.QueryParamsBinder(c).
		String("search", &req.Search).
		Int("take", &req.Take).
		Int("skip", &req.Skip).
		BindError(); err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	items, total, err := h.svc.ListTargets(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ListResponse{Items: items, TotalCount: total, Take: req.Take, Skip: req.Skip})
}

func (h *handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.Get")
	defer span.End()

	result, err := h.svc.GetTarget(ctx, c.Param("caseId"), c.Param("targetId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.Update")
	defer span.End()

	req, err := utils.BindRequest[models.UpdateTargetRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.TargetID = c.Param("targetId")

	result, err := h.svc.UpdateTarget(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.Delete")
	defer span.End()

	if err := h.svc.DeleteTarget(ctx, c.Param("caseId"), c.Param("targetId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) AddIdentifier(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.AddIdentifier")
	defer span.End()

	req, err := utils.BindRequest[models.AddIdentifierRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.TargetID = c.Param("targetId")

	result, err := h.svc.AddIdentifier(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) UpdateIdentifier(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.UpdateIdentifier")
	defer span.End()

	req, err := utils.BindRequest[models.UpdateIdentifierRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.TargetID = c.Param("targetId")
	req.IdentifierID = c.Param("identifierId")

	result, err := h.svc.UpdateIdentifier(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) RemoveIdentifier(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.RemoveIdentifier")
	defer span.End()

	err := h.svc.RemoveIdentifier(ctx, models.RemoveIdentifierRequest{
		CaseID:       c.Param("caseId"),
		TargetID:     c.Param("targetId"),
		IdentifierID: c.Param("identifierId"),
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) AddAlias(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.AddAlias")
	defer span.End()

	req, err := utils.BindRequest[models.AliasRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.TargetID = c.Param("targetId")

	result, err := h.svc.AddAlias(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// RemoveAlias takes the alias from the query string: DELETE /aliases?alias=...
func (h *handler) RemoveAlias(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.RemoveAlias")
	defer span.End()

	req, err := utils.Validate(models.AliasRequest{
		CaseID:   c.Param("caseId"),
		TargetID: c.Param("targetId"),
		Alias:    c.QueryParam("alias"),
	})
	if err != nil {
		return err
	}

	if err := h.svc.RemoveAlias(ctx, req); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) LinkGlobalPerson(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.LinkGlobalPerson")
	defer span.End()

	req, err := utils.BindRequest[models.LinkTargetToGlobalPersonRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.TargetID = c.Param("targetId")

	result, err := h.svc.LinkTargetToGlobalPerson(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) CreateGlobalPerson(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.CreateGlobalPerson")
	defer span.End()

	req, err := utils.BindRequest[models.CreateGlobalPersonForTargetRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.TargetID = c.Param("targetId")

	result, err := h.svc.CreateGlobalPersonForTarget(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *handler) UnlinkGlobalPerson(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "targets_handler.UnlinkGlobalPerson")
	defer span.End()

	result, err := h.svc.UnlinkTargetFromGlobalPerson(ctx, c.Param("caseId"), c.Param("targetId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
