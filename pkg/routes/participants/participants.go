package participants

import (
	"net/http"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/registry"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/utils"
	"github.com/labstack/echo/v4"
)

// Register registers POST /cases/:caseId/messages/:messageId/participants
func Register(g *echo.Group, svc *registry.Service) {
	g.POST("", func(c echo.Context) error {
		ctx, span := tracing.StartSpan(c.Request().Context(), "participants_handler.Link")
		defer span.End()

		req, err := utils.BindRequest[models.LinkMessageParticipantRequest](c)
		if err != nil {
			return err
		}
		req.CaseID = c.Param("caseId")
		req.MessageEventID = c.Param("messageId")

		result, err := svc.LinkMessageParticipant(ctx, req)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, result)
	})
}
