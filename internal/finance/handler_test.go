package finance

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
)

func newTestRouter() http.Handler {
	svc, _ := newTestService()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api/orders/{id}", h.MountOrderRoutes)
	return r
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerFinanceFlow(t *testing.T) {
	h := newTestRouter()

	rec := send(h, http.MethodPost, "/api/orders/1/finance/lcs", `{"lc_number":"LC-1","amount":"750.00","currency":"USD","expiry_date":"2025-01-12","status":"issued"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = send(h, http.MethodPost, "/api/orders/1/finance/pis", `{"pi_number":"PI-1","amount":"1000","currency":"USD"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(h, http.MethodGet, "/api/orders/1/finance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p struct {
		LettersOfCredit []struct {
			ExpiryRisk *struct {
				Label string `json:"label"`
			} `json:"expiry_risk"`
		} `json:"letters_of_credit"`
		Totals []struct {
			Currency  string `json:"currency"`
			Uncovered string `json:"uncovered"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Len(t, p.LettersOfCredit, 1)
	require.NotNil(t, p.LettersOfCredit[0].ExpiryRisk)
	assert.Equal(t, "0-5 days", p.LettersOfCredit[0].ExpiryRisk.Label)
	require.Len(t, p.Totals, 1)
	assert.Equal(t, "250", p.Totals[0].Uncovered)
}

func TestHandlerFinanceProblems(t *testing.T) {
	h := newTestRouter()
	cases := []struct {
		name, method, path, body string
		status                   int
	}{
		{"unknown order", http.MethodGet, "/api/orders/9/finance", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/orders/x/finance", "", http.StatusBadRequest},
		{"bad currency", http.MethodPost, "/api/orders/1/finance/lcs", `{"lc_number":"LC-1","amount":"1","currency":"XYZ"}`, http.StatusBadRequest},
		{"bad status", http.MethodPost, "/api/orders/1/finance/pis", `{"pi_number":"PI-1","amount":"1","currency":"USD","status":"paid"}`, http.StatusBadRequest},
		{"negative", http.MethodPost, "/api/orders/1/finance/pis", `{"pi_number":"PI-1","amount":"-1","currency":"USD"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}
