package warehouseshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

// Service is the warehouse API the handler drives.
type Service interface {
	List(ctx context.Context, filter warehouses.ListFilter) ([]warehouses.Warehouse, error)
	Create(ctx context.Context, actor shared.Actor, req warehouses.CreateRequest) (warehouses.Warehouse, error)
}

// Handler exposes warehouse endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs the warehouse handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses", h.handleList)
	r.Post("/warehouses", h.handleCreate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, err := httpx.RequireActor(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	activeOnly, _ := strconv.ParseBool(q.Get("active"))
	list, err := h.service.List(r.Context(), warehouses.ListFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req warehouses.CreateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
			h.logger.Error("create warehouse", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": created})
}
