package documents

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

// multipart framing allowance on top of the file ceiling
const formOverhead = 1 << 20

// Handler exposes documents over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountOrderRoutes registers routes on the /orders/{id} sub-router.
func (h *Handler) MountOrderRoutes(r chi.Router) {
	r.Get("/documents", h.List)
	r.Post("/documents", h.Upload)
}

// MountRoutes registers routes on the /api router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/types", h.Types)
		r.Get("/{docID}", h.Show)
		r.Get("/{docID}/content", h.Content)
		r.Delete("/{docID}", h.Delete)
	})
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(MaxFileSize + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, ErrTooLarge)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "expected multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "file field is required")
		return
	}
	defer file.Close()

	doc, err := h.service.Upload(r.Context(), Upload{
		OrderID:      orderID,
		FileName:     header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
		Category:     r.FormValue("category"),
		Subcategory:  r.FormValue("subcategory"),
		Description:  r.FormValue("description"),
		Body:         file,
	}, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "upload document failed", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/documents/%d", doc.ID))
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	docs, err := h.service.List(r.Context(), orderID, r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, r, "list documents failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get document failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	doc, body, err := h.service.Open(r.Context(), id)
	if err != nil {
		h.fail(w, r, "open document failed", err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", doc.FileType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream document", slog.Int64("document_id", id), slog.Any("error", err))
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "docID")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete document failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Types(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"categories":           Categories(),
		"sample_subcategories": approval.SampleSubtypes(),
		"allowed_types":        AllowedTypes(),
		"max_file_size":        MaxFileSize,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
