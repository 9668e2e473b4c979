package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

func Error(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if mapped := ToHTTPError(err); mapped != nil {
			err = mapped
		}
		if httperror.IsHTTPError(err) {
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		log := logging.WithContext(ctx, logger).With(zap.Int("status", code), zap.Error(err))
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Info("api is returning an error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: appctx.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

// ToHTTPError maps the domain error taxonomy onto status codes, carrying the
// structured conflict context in meta. It returns nil for errors it does not know.
func ToHTTPError(err error) *httperror.HTTPError {
	var (
		validationErr   *apperrors.ValidationError
		notFoundErr     *apperrors.NotFoundError
		conflictErr     *apperrors.IdentifierConflictError
		globalErr       *apperrors.GlobalPersonIdentifierConflictError
		inconsistentErr *apperrors.IndexInconsistencyError
	)

	switch {
	case errors.As(err, &validationErr):
		return httperror.NewHTTPError(http.StatusBadRequest, validationErr.Error()).
			AddMetaValue("field", validationErr.Field)
	case errors.As(err, &notFoundErr):
		return httperror.NewHTTPError(http.StatusNotFound, notFoundErr.Error()).
			AddMetaValue("entity", notFoundErr.Entity).
			AddMetaValue("id", notFoundErr.ID).
			AddMetaValue("case_id", notFoundErr.CaseID)
	case errors.As(err, &conflictErr):
		return withMeta(http.StatusConflict, conflictErr.Error(), map[string]any{
			"kind":                         "identifier_conflict",
			"case_id":                      conflictErr.CaseID,
			"identifier_id":                conflictErr.IdentifierID,
			"identifier_type":              conflictErr.IdentifierType,
			"value":                        conflictErr.Value,
			"requested_target_id":          conflictErr.RequestedTargetID,
			"existing_target_id":           conflictErr.ExistingTargetID,
			"existing_target_display_name": conflictErr.ExistingTargetDisplayName,
		})
	case errors.As(err, &globalErr):
		return withMeta(http.StatusConflict, globalErr.Error(), map[string]any{
			"kind":                         "global_person_identifier_conflict",
			"target_id":                    globalErr.TargetID,
			"requested_global_entity_id":   globalErr.RequestedGlobalEntityID,
			"existing_global_entity_id":    globalErr.ExistingGlobalEntityID,
			"existing_display_name":        globalErr.ExistingDisplayName,
			"identifier_type":              globalErr.IdentifierType,
			"value":                        globalErr.Value,
			"additional_global_entity_ids": globalErr.AdditionalGlobalEntityIDs,
		})
	case errors.As(err, &inconsistentErr):
		return withMeta(http.StatusInternalServerError, inconsistentErr.Error(), map[string]any{
			"case_id":    inconsistentErr.CaseID,
			"mismatches": inconsistentErr.Mismatches,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return httperror.NewHTTPError(http.StatusRequestTimeout, "request cancelled")
	}
	return nil
}

func withMeta(code int, message string, meta map[string]any) *httperror.HTTPError {
	httperr := httperror.NewHTTPError(code, message)
	httperr.Meta = meta
	return httperr
}
