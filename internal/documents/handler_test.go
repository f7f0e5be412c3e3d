package documents

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fabricflow/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *mockRepository) {
	t.Helper()
	svc, repo, _ := newTestService(1)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), shared.ActorFromRequest(r))))
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Route("/orders/{id}", h.MountOrderRoutes)
		h.MountRoutes(r)
	})
	return r, repo
}

func multipartBody(t *testing.T, fields map[string]string, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandlerUploadAndDownload(t *testing.T) {
	h, repo := newTestRouter(t)
	body, contentType := multipartBody(t, map[string]string{"category": "sample", "subcategory": "strikeOff"}, "so.pdf", pdfHead)
	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(shared.HeaderUserID, "3")
	req.Header.Set(shared.HeaderUserName, "Hasan")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "application/pdf", doc["file_type"])
	assert.Equal(t, "strikeOff", doc["subcategory"])
	assert.NotContains(t, doc, "StorageKey")
	assert.Equal(t, int64(3), repo.docs[1].UploadedBy)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/1/content", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, pdfHead, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/1/documents?category=sample", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"so.pdf"`)
}

func TestHandlerUploadProblems(t *testing.T) {
	h, _ := newTestRouter(t)
	cases := []struct {
		name   string
		path   string
		fields map[string]string
		file   string
		data   []byte
		status int
	}{
		{"missing file", "/api/orders/1/documents", nil, "", nil, http.StatusBadRequest},
		{"unknown order", "/api/orders/9/documents", nil, "a.pdf", pdfHead, http.StatusNotFound},
		{"html", "/api/orders/1/documents", nil, "a.html", []byte("<html><body>x</body></html>"), http.StatusUnsupportedMediaType},
		{"subcategory on lc", "/api/orders/1/documents", map[string]string{"category": "lc", "subcategory": "labDip"}, "a.pdf", pdfHead, http.StatusBadRequest},
		{"bad category", "/api/orders/1/documents", map[string]string{"category": "invoice"}, "a.pdf", pdfHead, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tc.fields, tc.file, tc.data)
			req := httptest.NewRequest(http.MethodPost, tc.path, body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandlerTypes(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents/types", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Categories  []string `json:"categories"`
		MaxFileSize int      `json:"max_file_size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Categories, "test_report")
	assert.Equal(t, MaxFileSize, body.MaxFileSize)
}
