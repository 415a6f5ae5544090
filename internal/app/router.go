package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/bosunhq/stockroom/internal/audit/http"
	"github.com/bosunhq/stockroom/internal/dashboard"
	dispatchhttp "github.com/bosunhq/stockroom/internal/dispatch/http"
	inventoryhttp "github.com/bosunhq/stockroom/internal/inventory/http"
	"github.com/bosunhq/stockroom/internal/observability"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	warehouseshttp "github.com/bosunhq/stockroom/internal/warehouses/http"
	"github.com/bosunhq/stockroom/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	HealthCheck      func(ctx context.Context) error
	InventoryHandler *inventoryhttp.Handler
	DispatchHandler  *dispatchhttp.Handler
	WarehouseHandler *warehouseshttp.Handler
	AuditHandler     *audithttp.Handler
	DashboardHandler *dashboard.Handler
	DashboardService *dashboard.Service
	JobHandler       *jobs.Handler
}

// RouterParams builds the HTTP handlers over the container's services.
func (c *Container) RouterParams() RouterParams {
	inventoryCfg := inventoryhttp.Config{
		Logger:         c.Logger,
		Service:        c.Inventory,
		Importer:       c.Importer,
		MaxUploadBytes: c.Config.ImportMaxBytes,
	}
	if c.Jobs != nil {
		inventoryCfg.Enqueuer = c.Jobs
	}
	params := RouterParams{
		Logger:           c.Logger,
		Config:           c.Config,
		Metrics:          c.Metrics,
		HealthCheck:      c.Ping,
		InventoryHandler: inventoryhttp.NewHandler(inventoryCfg),
		DispatchHandler:  dispatchhttp.NewHandler(c.Logger, c.Dispatch),
		WarehouseHandler: warehouseshttp.NewHandler(c.Logger, c.Warehouses),
		AuditHandler:     audithttp.NewHandler(c.Logger, c.Audit),
		DashboardHandler: dashboard.NewHandler(c.Logger, c.Dashboard),
		DashboardService: c.Dashboard,
	}
	if c.Inspector != nil {
		params.JobHandler = jobs.NewHandler(c.Inspector, c.Jobs, c.Logger)
	}
	return params
}

// NewRouter constructs the chi.Router with the stockroom defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.HealthCheck(ctx); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.DashboardService != nil {
			r.Use(params.DashboardService.InvalidateOnWrite)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.DispatchHandler != nil {
			params.DispatchHandler.MountRoutes(r)
		}
		if params.WarehouseHandler != nil {
			params.WarehouseHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
