package warehouseshttp

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/shared"
	"github.com/bosunhq/stockroom/internal/warehouses"
)

func newRouter() http.Handler {
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := warehouses.NewService(store, store.Warehouses(), audit.NewTrail(store.Audit(), shared.SystemClock{}), nil, logger)
	r := chi.NewRouter()
	r.Use(httpx.Actor)
	NewHandler(logger, svc).MountRoutes(r)
	return r
}

func do(h http.Handler, method, target, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(httpx.HeaderActorID, "1")
		req.Header.Set(httpx.HeaderActorRole, role)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateWarehouse(t *testing.T) {
	h := newRouter()

	if rr := do(h, http.MethodPost, "/warehouses", "user", `{"name":"North Depot"}`); rr.Code != http.StatusForbidden {
		t.Fatalf("user: expected 403, got %d", rr.Code)
	}
	if rr := do(h, http.MethodPost, "/warehouses", "admin", `{"name":"North Depot","city":"Leeds"}`); rr.Code != http.StatusCreated {
		t.Fatalf("admin: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := do(h, http.MethodPost, "/warehouses", "admin", `{"name":"north depot"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", rr.Code)
	}
	if rr := do(h, http.MethodPost, "/warehouses", "admin", `{"name":""}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty name: expected 400, got %d", rr.Code)
	}

	rr := do(h, http.MethodGet, "/warehouses?search=north", "user", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"name":"North Depot"`) {
		t.Fatalf("unexpected list body %s", rr.Body.String())
	}
}
