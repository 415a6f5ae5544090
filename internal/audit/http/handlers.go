package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/shared"
)

const (
	dateLayout  = "2006-01-02"
	exportLimit = 10000
)

// LogService mendefinisikan kontrak query activity log.
type LogService interface {
	List(ctx context.Context, actor shared.Actor, filter audit.ListFilter) (audit.Page, error)
	Get(ctx context.Context, actor shared.Actor, id int64) (audit.Entry, error)
	Export(ctx context.Context, actor shared.Actor, filter audit.ListFilter, limit int) ([]audit.Entry, error)
}

// Handler menangani permintaan activity log.
type Handler struct {
	logger  *slog.Logger
	service LogService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service LogService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.respond(w, "list activity logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	entry, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.respond(w, "get activity log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), actor, filter, exportLimit)
	if err != nil {
		h.respond(w, "export activity logs", err)
		return
	}
	csvBytes, err := audit.WriteCSV(entries)
	if err != nil {
		h.respond(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"activity-logs.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) respond(w http.ResponseWriter, message string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// parseFilters membaca query string. Parameter to bersifat inklusif per hari.
func parseFilters(r *http.Request) (audit.ListFilter, error) {
	q := r.URL.Query()
	filter := audit.ListFilter{
		Action:    audit.Action(strings.TrimSpace(q.Get("action"))),
		ModelType: strings.TrimSpace(q.Get("model_type")),
	}
	if filter.Action != "" && !filter.Action.IsValid() {
		return audit.ListFilter{}, invalid("action")
	}
	if v := strings.TrimSpace(q.Get("model_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return audit.ListFilter{}, invalid("model_id")
		}
		filter.ModelID = &id
	}
	if v := strings.TrimSpace(q.Get("user_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return audit.ListFilter{}, invalid("user_id")
		}
		filter.ActorID = &id
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.ListFilter{}, invalid("from")
		}
		filter.From = &from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.ListFilter{}, invalid("to")
		}
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}
	var err error
	if filter.Page, err = positiveInt(q.Get("page")); err != nil {
		return audit.ListFilter{}, invalid("page")
	}
	if filter.PerPage, err = positiveInt(q.Get("per_page")); err != nil {
		return audit.ListFilter{}, invalid("per_page")
	}
	return filter, nil
}

func positiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return v, nil
}

func invalid(field string) error {
	return fmt.Errorf("%w: invalid %s", httpx.ErrBadRequest, field)
}
