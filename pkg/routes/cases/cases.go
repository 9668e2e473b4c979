package cases

import (
	"net/http"

	"github.com/Ramsey-B/thistle/pkg/evidence"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/utils"
	"github.com/labstack/echo/v4"
)

type handler struct {
	svc *evidence.Service
}

// Register registers case, evidence item and message routes
func Register(g *echo.Group, svc *evidence.Service) {
	h := &handler{svc: svc}

	g.POST("/cases", h.CreateCase)
	g.GET("/cases", h.ListCases)
	g.GET("/cases/:caseId", h.GetCase)

	g.POST("/cases/:caseId/evidence", h.CreateEvidenceItem)
	g.GET("/cases/:caseId/evidence", h.ListEvidenceItems)
	g.GET("/cases/:caseId/evidence/:evidenceId", h.GetEvidenceItem)
	g.POST("/cases/:caseId/evidence/:evidenceId/messages", h.RecordMessage)
	g.DELETE("/cases/:caseId/evidence/:evidenceId/messages", h.DeleteMessages)

	g.GET("/cases/:caseId/messages/:messageId", h.GetMessage)
	g.GET("/cases/:caseId/messages/:messageId/participants", h.ListParticipants)
}

func (h *handler) CreateCase(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.CreateCase")
	defer span.End()

	req, err := utils.BindRequest[models.CreateCaseRequest](c)
	if err != nil {
		return err
	}

	result, err := h.svc.CreateCase(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *handler) ListCases(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.ListCases")
	defer span.End()

	result, err := h.svc.ListCases(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) GetCase(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.GetCase")
	defer span.End()

	result, err := h.svc.GetCase(ctx, c.Param("caseId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) CreateEvidenceItem(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.CreateEvidenceItem")
	defer span.End()

	req, err := utils.BindRequest[models.CreateEvidenceItemRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")

	result, err := h.svc.CreateEvidenceItem(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *handler) ListEvidenceItems(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.ListEvidenceItems")
	defer span.End()

	result, err := h.svc.ListEvidenceItems(ctx, c.Param("caseId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) GetEvidenceItem(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.GetEvidenceItem")
	defer span.End()

	result, err := h.svc.GetEvidenceItem(ctx, c.Param("caseId"), c.Param("evidenceId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) RecordMessage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.RecordMessage")
	defer span.End()

	req, err := utils.BindRequest[models.RecordMessageEventRequest](c)
	if err != nil {
		return err
	}
	req.CaseID = c.Param("caseId")
	req.EvidenceItemID = c.Param("evidenceId")

	result, err := h.svc.RecordMessageEvent(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// DeleteMessages clears an evidence item's messages ahead of a re-ingest.
func (h *handler) DeleteMessages(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.DeleteMessages")
	defer span.End()

	deleted, err := h.svc.DeleteEvidenceMessages(ctx, c.Param("caseId"), c.Param("evidenceId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *handler) GetMessage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.GetMessage")
	defer span.End()

	result, err := h.svc.GetMessageEvent(ctx, c.Param("caseId"), c.Param("messageId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) ListParticipants(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cases_handler.ListParticipants")
	defer span.End()

	result, err := h.svc.ListMessageParticipants(ctx, c.Param("caseId"), c.Param("messageId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
