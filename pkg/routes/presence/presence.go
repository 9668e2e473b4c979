package presence

import (
	"errors"
	"net/http"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/presence"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// VerifyResponse reports whether the stored presence rows match a fresh derivation.
type VerifyResponse struct {
	Consistent bool                      `json:"consistent"`
	Mismatches []apperrors.IndexMismatch `json:"mismatches"`
}

type handler struct {
	indexer *presence.Indexer
}

// Register registers presence index routes under /cases/:caseId/presence
func Register(g *echo.Group, indexer *presence.Indexer) {
	h := &handler{indexer: indexer}

	g.GET("", h.List)
	g.POST("/rebuild", h.Rebuild)
	g.GET("/verify", h.Verify)
	g.GET("/messages/:messageId", h.ListForMessage)
}

func (h *handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "presence_handler.List")
	defer span.End()

	result, err := h.indexer.ListByCase(ctx, c.Param("caseId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) Rebuild(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "presence_handler.Rebuild")
	defer span.End()

	result, err := h.indexer.RebuildCase(ctx, c.Param("caseId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *handler) Verify(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "presence_handler.Verify")
	defer span.End()

	err := h.indexer.Verify(ctx, c.Param("caseId"))
	var inconsistent *apperrors.IndexInconsistencyError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, VerifyResponse{Consistent: true, Mismatches: []apperrors.IndexMismatch{}})
	case errors.As(err, &inconsistent):
		return c.JSON(http.StatusOK, VerifyResponse{Consistent: false, Mismatches: inconsistent.Mismatches})
	default:
		return err
	}
}

func (h *handler) ListForMessage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "presence_handler.ListForMessage")
	defer span.End()

	result, err := h.indexer.ListForMessage(ctx, c.Param("caseId"), c.Param("messageId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
