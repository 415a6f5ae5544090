package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bosunhq/stockroom/internal/audit"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/platform/memstore"
	"github.com/bosunhq/stockroom/internal/shared"
)

type stubLogService struct {
	page        audit.Page
	entries     []audit.Entry
	lastFilters audit.ListFilter
}

func (s *stubLogService) List(ctx context.Context, actor shared.Actor, filter audit.ListFilter) (audit.Page, error) {
	s.lastFilters = filter
	if !actor.IsPrivileged() {
		return audit.Page{}, shared.ErrUnauthorized
	}
	return s.page, nil
}

func (s *stubLogService) Get(ctx context.Context, actor shared.Actor, id int64) (audit.Entry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return audit.Entry{}, shared.ErrNotFound
}

func (s *stubLogService) Export(ctx context.Context, actor shared.Actor, filter audit.ListFilter, limit int) ([]audit.Entry, error) {
	s.lastFilters = filter
	return s.entries, nil
}

func newRouter(service LogService) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.Actor)
	NewHandler(nil, service).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, target, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if role != "" {
		req.Header.Set(httpx.HeaderActorID, "7")
		req.Header.Set(httpx.HeaderActorRole, role)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListRequiresActor(t *testing.T) {
	rr := do(t, newRouter(&stubLogService{}), "/activity-logs", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListForbiddenForUser(t *testing.T) {
	rr := do(t, newRouter(&stubLogService{}), "/activity-logs", "user")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestListParsesFilters(t *testing.T) {
	service := &stubLogService{}
	rr := do(t, newRouter(service), "/activity-logs?action=dispatched&model_type=Dispatch&from=2026-03-01&to=2026-03-15&page=2", "admin")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	f := service.lastFilters
	if f.Action != audit.ActionDispatched || f.ModelType != "Dispatch" || f.Page != 2 {
		t.Fatalf("unexpected filters: %+v", f)
	}
	if f.To == nil || !f.To.Equal(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected exclusive end of day, got %v", f.To)
	}
}

func TestListRejectsUnknownAction(t *testing.T) {
	rr := do(t, newRouter(&stubLogService{}), "/activity-logs?action=exploded", "admin")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetNotFound(t *testing.T) {
	rr := do(t, newRouter(&stubLogService{}), "/activity-logs/99", "admin")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubLogService{entries: []audit.Entry{{ID: 1, ActorID: 7, Action: audit.ActionStockAdded, ModelType: audit.ModelInventory, Description: "Added stock"}}}
	rr := do(t, newRouter(service), "/activity-logs/export.csv", "admin")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/csv") {
		t.Fatalf("unexpected content-type: %s", ctype)
	}
	if !strings.Contains(rr.Body.String(), "stock_added") {
		t.Fatalf("expected action in csv: %s", rr.Body.String())
	}
}

func TestListAgainstStore(t *testing.T) {
	store := memstore.New()
	clock := shared.ClockFunc(func() time.Time { return time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC) })
	trail := audit.NewTrail(store.Audit(), clock)
	for i := 0; i < 3; i++ {
		if _, err := trail.Append(context.Background(), shared.Actor{ID: 1, Role: shared.RoleAdmin}, audit.Record{
			Action:      audit.ActionStockAdded,
			ModelType:   audit.ModelInventory,
			Description: "Added stock",
			Old:         audit.QuantityValues(i),
			New:         audit.QuantityValues(i + 1),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	rr := do(t, newRouter(audit.NewService(store.Audit(), nil)), "/activity-logs?per_page=2", "admin")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"total":3`) || !strings.Contains(rr.Body.String(), `"total_pages":2`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}
