package orders

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fabricflow/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *mockRepository) {
	t.Helper()
	svc, repo, _ := newTestService()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), shared.ActorFromRequest(r))))
		})
	})
	r.Route("/api", func(r chi.Router) { h.MountRoutes(r) })
	return r, repo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.HeaderUserID, "7")
	req.Header.Set(shared.HeaderUserName, "Rina")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndShow(t *testing.T) {
	h, repo := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/orders", `{
		"order_number": "FF-100",
		"customer_name": "Acme",
		"currency": "EUR",
		"etd": "2025-01-20",
		"lines": [{"style_number": "ST-1", "color_name": "Red", "quantity": "100", "prova_price": "5.00", "mill_price": null}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/orders/1", rec.Header().Get("Location"))
	assert.Equal(t, int64(7), repo.orders[1].CreatedBy)

	rec = do(t, h, http.MethodGet, "/api/orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Design", body["current_stage"])
	assert.Equal(t, false, body["stage_drift"])
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]any)
	assert.Equal(t, "ST-1 / Red", line["line_label"])
	derived := line["derived"].(map[string]any)
	assert.Equal(t, "500", derived["total_value"])
	assert.Nil(t, derived["total_cost"])
	assert.Nil(t, derived["profit"])
	approvals := line["approval_status"].(map[string]any)
	assert.EqualValues(t, 2, approvals["schemaVersion"])
}

func TestHandlerProblems(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/orders/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodGet, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/orders", `{"customer_name": "Acme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "required", problem["fields"].(map[string]any)["order_number"])

	rec = do(t, h, http.MethodPost, "/api/orders", `{"order_number": "X", "customer_name": "Acme", "currency": "ZZZ"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/orders", `{"order_number": "X", "customer_name": "Acme", "colour": "red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerApprovalFlow(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/orders", `{"order_number": "FF-1", "customer_name": "Acme", "lines": [{"style_number": "S", "quantity": "1"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/orders/1/lines/1/approvals", `{"approval_type": "fitSample", "state": "approved"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/orders/1/lines/1/approvals", `{"approval_type": "labDip", "state": "approved"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Strike-Off", view["current_stage"])

	rec = do(t, h, http.MethodGet, "/api/orders/1/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var timeline struct {
		Events []struct {
			ApprovalType string `json:"approval_type"`
			ActorName    string `json:"actor_name"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &timeline))
	require.Len(t, timeline.Events, 1)
	assert.Equal(t, "labDip", timeline.Events[0].ApprovalType)
	assert.Equal(t, "Rina", timeline.Events[0].ActorName)

	rec = do(t, h, http.MethodPost, "/api/orders/1/status", `{"status": "archived"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerStages(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/orders/stages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Strike-Off"`)
}
