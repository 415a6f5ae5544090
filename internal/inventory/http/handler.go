package inventoryhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/importer"
	"github.com/bosunhq/stockroom/internal/inventory"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/shared"
)

// DefaultMaxUploadBytes caps import uploads when no limit is configured.
const DefaultMaxUploadBytes = 5 << 20

// Service is the inventory API the handler drives.
type Service interface {
	List(ctx context.Context, filter inventory.ListFilter) ([]inventory.Item, error)
	Get(ctx context.Context, id uuid.UUID) (inventory.Item, error)
	CreateItem(ctx context.Context, actor shared.Actor, req inventory.CreateItemRequest) (inventory.Item, error)
	UpdateItem(ctx context.Context, actor shared.Actor, id uuid.UUID, req inventory.UpdateItemRequest) (inventory.Item, error)
	DeleteItem(ctx context.Context, actor shared.Actor, id uuid.UUID) error
	AddStock(ctx context.Context, actor shared.Actor, id uuid.UUID, amount int) (inventory.Movement, error)
	RemoveStock(ctx context.Context, actor shared.Actor, id uuid.UUID, amount int) (inventory.Movement, error)
	PriceHistory(ctx context.Context, id uuid.UUID) ([]inventory.PriceChange, error)
}

// Importer runs parsed rows through the bulk import engine.
type Importer interface {
	ImportRows(ctx context.Context, actor shared.Actor, rows []importer.Row) (importer.Result, error)
}

// Enqueuer hands an upload to the background worker.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, actor shared.Actor, filename string, content []byte) (string, error)
}

// Config groups the collaborators of Handler. Enqueuer is optional; without it
// async imports are rejected.
type Config struct {
	Logger         *slog.Logger
	Service        Service
	Importer       Importer
	Enqueuer       Enqueuer
	MaxUploadBytes int64
}

// Handler wires HTTP endpoints for inventory items.
type Handler struct {
	logger   *slog.Logger
	service  Service
	importer Importer
	enqueuer Enqueuer
	maxBytes int64
}

// NewHandler constructs the inventory handler.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		logger:   cfg.Logger,
		service:  cfg.Service,
		importer: cfg.Importer,
		enqueuer: cfg.Enqueuer,
		maxBytes: cfg.MaxUploadBytes,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxBytes <= 0 {
		h.maxBytes = DefaultMaxUploadBytes
	}
	return h
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/import", h.handleImport)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Post("/add-stock", h.handleAddStock)
			r.Post("/remove-stock", h.handleRemoveStock)
			r.Get("/price-history", h.handlePriceHistory)
		})
	})
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
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respond(w, r, "list inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
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
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respond(w, r, "get inventory item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": item})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req inventory.CreateItemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), actor, req)
	if err != nil {
		h.respond(w, r, "create inventory item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": item})
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
	var req inventory.UpdateItemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.UpdateItem(r.Context(), actor, id, req)
	if err != nil {
		h.respond(w, r, "update inventory item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": item})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteItem(r.Context(), actor, id); err != nil {
		h.respond(w, r, "delete inventory item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	h.handleStock(w, r, h.service.AddStock, "add stock")
}

func (h *Handler) handleRemoveStock(w http.ResponseWriter, r *http.Request) {
	h.handleStock(w, r, h.service.RemoveStock, "remove stock")
}

type stockFunc func(ctx context.Context, actor shared.Actor, id uuid.UUID, amount int) (inventory.Movement, error)

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request, apply stockFunc, op string) {
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
	var req inventory.StockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := apply(r.Context(), actor, id, req.Amount)
	if err != nil {
		h.respond(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": mv})
}

func (h *Handler) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := httpx.RequireActor(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	changes, err := h.service.PriceHistory(r.Context(), id)
	if err != nil {
		h.respond(w, r, "price history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": changes})
}

type importResponse struct {
	Message      string                `json:"message"`
	CreatedCount int                   `json:"created_count"`
	SkippedCount int                   `json:"skipped_count"`
	ErrorCount   int                   `json:"error_count"`
	Skipped      []importer.SkippedRow `json:"skipped"`
	Errors       []string              `json:"errors"`
	Data         []inventory.Item      `json:"data"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filename, content, err := h.readUpload(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if h.enqueuer == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background imports are not configured")
			return
		}
		taskID, err := h.enqueuer.EnqueueImport(r.Context(), actor, filename, content)
		if err != nil {
			h.respond(w, r, "enqueue import", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "message": "Import queued"})
		return
	}

	rows, err := importer.ParseFile(filename, bytes.NewReader(content))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err))
		return
	}
	result, err := h.importer.ImportRows(r.Context(), actor, rows)
	if err != nil {
		h.respond(w, r, "import inventory", err)
		return
	}
	resp := importResponse{
		Message:      result.Summary(),
		CreatedCount: len(result.Created),
		SkippedCount: len(result.Skipped),
		ErrorCount:   len(result.Errors),
		Skipped:      result.Skipped,
		Errors:       make([]string, 0, len(result.Errors)),
		Data:         result.Created,
	}
	if resp.Skipped == nil {
		resp.Skipped = []importer.SkippedRow{}
	}
	if resp.Data == nil {
		resp.Data = []inventory.Item{}
	}
	for _, rowErr := range result.Errors {
		resp.Errors = append(resp.Errors, rowErr.Error())
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// readUpload returns the multipart "file" part. Only .csv, .txt and .xlsx
// uploads are accepted.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1024)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("%w: file exceeds %d bytes", httpx.ErrBadRequest, h.maxBytes)
		}
		return "", nil, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: file is required", httpx.ErrBadRequest)
	}
	defer file.Close()

	if !importer.SupportedFile(header.Filename) {
		return "", nil, fmt.Errorf("%w: only .csv, .txt and .xlsx files are supported", httpx.ErrBadRequest)
	}
	content, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", httpx.ErrBadRequest, err)
	}
	if int64(len(content)) > h.maxBytes {
		return "", nil, fmt.Errorf("%w: file exceeds %d bytes", httpx.ErrBadRequest, h.maxBytes)
	}
	return header.Filename, content, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, message string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.String("request_id", httpx.RequestID(r)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseListFilter(r *http.Request) (inventory.ListFilter, error) {
	q := r.URL.Query()
	filter := inventory.ListFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if v := strings.TrimSpace(q.Get("warehouse_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return inventory.ListFilter{}, fmt.Errorf("%w: invalid warehouse_id", httpx.ErrBadRequest)
		}
		filter.WarehouseID = &id
	}
	if v := strings.TrimSpace(q.Get("max_quantity")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return inventory.ListFilter{}, fmt.Errorf("%w: invalid max_quantity", httpx.ErrBadRequest)
		}
		filter.MaxQuantity = &n
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
