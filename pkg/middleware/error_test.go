package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", apperrors.Validation("value", "empty"), http.StatusBadRequest},
		{"not found", apperrors.NotFound("target", "t1", "c1"), http.StatusNotFound},
		{"wrapped conflict", fmt.Errorf("add: %w", &apperrors.IdentifierConflictError{CaseID: "c1"}), http.StatusConflict},
		{"global conflict", &apperrors.GlobalPersonIdentifierConflictError{TargetID: "t1"}, http.StatusConflict},
		{"inconsistent", &apperrors.IndexInconsistencyError{CaseID: "c1"}, http.StatusInternalServerError},
		{"cancelled", context.Canceled, http.StatusRequestTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := ToHTTPError(tt.err)
			require.NotNil(t, mapped)
			assert.Equal(t, tt.code, httperror.GetStatusCode(mapped))
		})
	}

	assert.Nil(t, ToHTTPError(fmt.Errorf("plain")))
}

func TestErrorHandler_WritesConflictMeta(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = Error(zap.NewNop())
	e.Use(Context())
	e.GET("/boom", func(c echo.Context) error {
		return &apperrors.IdentifierConflictError{
			CaseID:           "c1",
			IdentifierType:   "Phone",
			Value:            "+15551230001",
			ExistingTargetID: "t-alice",
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "t-alice", resp.Meta["existing_target_id"])
	assert.Equal(t, "identifier_conflict", resp.Meta["kind"])
}

func TestErrorHandler_UnknownErrorIs500(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = Error(zap.NewNop())
	e.GET("/boom", func(c echo.Context) error { return fmt.Errorf("disk on fire") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}
