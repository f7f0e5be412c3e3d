package orders

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
	"github.com/odyssey-erp/fabricflow/internal/shared"
)

// Handler exposes orders over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type listResponse struct {
	Orders     []OrderView       `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var status *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := ParseStatus(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		status = &s
	}
	page, perPage := shared.PageFromRequest(r)
	views, pagination, err := h.service.List(r.Context(), status, r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		h.fail(w, r, "list orders failed", err)
		return
	}
	if views == nil {
		views = []OrderView{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Orders: views, Pagination: pagination})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "create order failed", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/orders/%d", view.ID))
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req OrderRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "update order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.ChangeStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		h.fail(w, r, "change order status failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete order failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ApprovalRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.SetOrderApproval(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "set order approval failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.service.Timeline(r.Context(), id)
	if err != nil {
		h.fail(w, r, "load timeline failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string][]approval.Event{"events": events})
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req LineRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.AddLine(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "add order line failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req LineRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.UpdateLine(r.Context(), id, lineID, req)
	if err != nil {
		h.fail(w, r, "update order line failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	view, err := h.service.DeleteLine(r.Context(), id, lineID)
	if err != nil {
		h.fail(w, r, "delete order line failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) SetLineApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req ApprovalRequest
	if err := httpx.DecodeAndValidate(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.SetLineApproval(r.Context(), id, lineID, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "set line approval failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) ETDAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.ETDAlerts(r.Context())
	if err != nil {
		h.fail(w, r, "load etd alerts failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) Stages(w http.ResponseWriter, r *http.Request) {
	vocab := approval.Current()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"schema_version": vocab.Version,
		"approval_types": vocab.Types,
		"stages":         Stages(vocab),
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
