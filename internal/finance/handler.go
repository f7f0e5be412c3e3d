package finance

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

// Handler exposes order finance over JSON.
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
	r.Route("/finance", func(r chi.Router) {
		r.Get("/", h.Pipeline)
		r.Post("/lcs", h.CreateLC)
		r.Post("/pis", h.CreatePI)
	})
}

func (h *Handler) Pipeline(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Pipeline(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, "load finance pipeline failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) CreateLC(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	var req LCRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lc, err := h.service.AddLetterOfCredit(r.Context(), orderID, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "record letter of credit failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lc)
}

func (h *Handler) CreatePI(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	var req PIRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pi, err := h.service.AddProformaInvoice(r.Context(), orderID, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "record proforma invoice failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pi)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	httpx.RespondError(w, err)
}

func pathOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
