package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Ramsey-B/thistle/pkg/middleware"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/routes/health"
	"github.com/Ramsey-B/thistle/pkg/testhelpers"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	ws := workspace.New(testhelpers.OpenDB(t), zap.NewNop())
	e := echo.New()
	checker := health.NewChecker(ws.DB(), "test")
	checker.SetReady(true)
	Register(e, zap.NewNop(), NewServices(ws), checker)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(middleware.HeaderUserID, "analyst-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestIdentifierConflictReturns409(t *testing.T) {
	e := newServer(t)

	rec := do(t, e, http.MethodPost, "/api/v1/cases", `{"name":"Heron"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[models.Case](t, rec)

	rec = do(t, e, http.MethodPost, "/api/v1/cases/"+c.ID+"/targets", `{"display_name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	alice := decode[models.Target](t, rec)

	rec = do(t, e, http.MethodPost, "/api/v1/cases/"+c.ID+"/targets", `{"display_name":"Bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bob := decode[models.Target](t, rec)

	rec = do(t, e, http.MethodPost, "/api/v1/cases/"+c.ID+"/targets/"+alice.ID+"/identifiers",
		`{"type":"Phone","value":"555-123-0001"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodPost, "/api/v1/cases/"+c.ID+"/targets/"+bob.ID+"/identifiers",
		`{"type":"Phone","value":"+1 (555) 123-0001"}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	resp := decode[middleware.ErrorResponse](t, rec)
	assert.Equal(t, "identifier_conflict", resp.Meta["kind"])
	assert.Equal(t, alice.ID, resp.Meta["existing_target_id"])
	assert.Equal(t, bob.ID, resp.Meta["requested_target_id"])
	assert.NotEmpty(t, resp.RequestID)

	rec = do(t, e, http.MethodPost, "/api/v1/cases/"+c.ID+"/targets/"+bob.ID+"/identifiers",
		`{"type":"Phone","value":"+1 (555) 123-0001","conflict_policy":"UseExistingTarget"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.IdentifierResult](t, rec)
	assert.Equal(t, alice.ID, result.EffectiveTargetID)
}

func TestNotFoundAndValidation(t *testing.T) {
	e := newServer(t)

	rec := do(t, e, http.MethodGet, "/api/v1/cases/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/cases", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/cases", `{"name":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[models.Case](t, rec)

	rec = do(t, e, http.MethodGet, "/api/v1/cases/"+c.ID+"/timeline?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/v1/cases/"+c.ID+"/timeline?direction=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAndQuery(t *testing.T) {
	e := newServer(t)

	rec := do(t, e, http.MethodPost, "/api/v1/cases", `{"name":"Heron"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[models.Case](t, rec)
	base := "/api/v1/cases/" + c.ID

	rec = do(t, e, http.MethodPost, base+"/evidence", `{"display_name":"handset"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[models.EvidenceItem](t, rec)

	rec = do(t, e, http.MethodPost, base+"/targets", `{"display_name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	alice := decode[models.Target](t, rec)
	rec = do(t, e, http.MethodPost, base+"/targets", `{"display_name":"Bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	bob := decode[models.Target](t, rec)

	require.Equal(t, http.StatusOK, do(t, e, http.MethodPost, base+"/targets/"+alice.ID+"/identifiers",
		`{"type":"Phone","value":"5551230001"}`).Code)
	require.Equal(t, http.StatusOK, do(t, e, http.MethodPost, base+"/targets/"+bob.ID+"/identifiers",
		`{"type":"Email","value":"bob@example.com"}`).Code)

	for _, ts := range []string{"2024-05-01T10:00:00Z", "2024-05-02T10:00:00Z"} {
		rec = do(t, e, http.MethodPost, base+"/evidence/"+item.ID+"/messages", `{
			"timestamp":"`+ts+`",
			"sender_raw":"5551230001",
			"recipients_raw":"bob@example.com",
			"body":"meet at the pier",
			"source_locator":"sms.db",
			"participants":[{"role":"sender","raw":"5551230001"},{"role":"recipient","raw":"bob@example.com"}]
		}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, base+"/presence/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":true`)

	rec = do(t, e, http.MethodGet, base+"/graph", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	g := decode[struct {
		Edges []struct {
			Weight int `json:"weight"`
		} `json:"edges"`
	}](t, rec)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, 2, g.Edges[0].Weight)

	rec = do(t, e, http.MethodGet, base+"/timeline?q=pier&from=2024-05-02T10:00:00Z&target_id="+bob.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tl := decode[struct {
		TotalCount int `json:"total_count"`
		Rows       []struct {
			SenderDisplay string `json:"sender_display"`
		} `json:"rows"`
	}](t, rec)
	assert.Equal(t, 1, tl.TotalCount)
	require.Len(t, tl.Rows, 1)
	assert.Equal(t, "Alice", tl.Rows[0].SenderDisplay)

	rec = do(t, e, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "thistle_timeline_searches_total")
	assert.Contains(t, rec.Body.String(), "thistle_workspace_writes_total")
}
