package dispatchhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/dispatch"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/shared"
)

// Service is the dispatch API the handler drives.
type Service interface {
	CreateDispatch(ctx context.Context, actor shared.Actor, req dispatch.CreateRequest) (dispatch.View, error)
	UpdateDispatch(ctx context.Context, actor shared.Actor, id uuid.UUID, req dispatch.UpdateRequest) (dispatch.View, error)
	Get(ctx context.Context, id uuid.UUID) (dispatch.View, error)
	List(ctx context.Context, filter dispatch.ListFilter) ([]dispatch.View, error)
}

// Handler exposes dispatch endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs the dispatch handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/dispatches", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req dispatch.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.CreateDispatch(r.Context(), actor, req)
	if err != nil {
		h.respond(w, r, "create dispatch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": view})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req dispatch.UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.UpdateDispatch(r.Context(), actor, id, req)
	if err != nil {
		h.respond(w, r, "update dispatch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := httpx.RequireActor(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respond(w, r, "get dispatch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": view})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if _, err := httpx.RequireActor(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respond(w, r, "list dispatches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, message string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.String("request_id", httpx.RequestID(r)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseListFilter(r *http.Request) (dispatch.ListFilter, error) {
	q := r.URL.Query()
	var filter dispatch.ListFilter
	for _, key := range []string{"warehouse_id", "inventory_id"} {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return dispatch.ListFilter{}, fmt.Errorf("%w: invalid %s", httpx.ErrBadRequest, key)
		}
		if key == "warehouse_id" {
			filter.WarehouseID = &id
		} else {
			filter.InventoryID = &id
		}
	}
	if v := strings.TrimSpace(q.Get("dispatcher_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return dispatch.ListFilter{}, fmt.Errorf("%w: invalid dispatcher_id", httpx.ErrBadRequest)
		}
		filter.DispatcherID = &id
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status := dispatch.Status(v)
		filter.Status = &status
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	page, perPage = shared.NormalizePage(page, perPage)
	if perPage > 100 {
		perPage = 100
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage
	return filter, nil
}
