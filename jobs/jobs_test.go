package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosunhq/stockroom/internal/importer"
	"github.com/bosunhq/stockroom/internal/inventory"
	jobmetrics "github.com/bosunhq/stockroom/internal/jobs"
	"github.com/bosunhq/stockroom/internal/platform/httpx"
	"github.com/bosunhq/stockroom/internal/shared"
)

type stubImporter struct {
	actor  shared.Actor
	rows   []importer.Row
	result importer.Result
	err    error
}

func (s *stubImporter) ImportRows(_ context.Context, actor shared.Actor, rows []importer.Row) (importer.Result, error) {
	s.actor = actor
	s.rows = rows
	return s.result, s.err
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestInventoryImportJobParsesAndImports(t *testing.T) {
	stub := &stubImporter{result: importer.Result{Created: []inventory.Item{{ItemCode: "ITM-20240101-0001"}}}}
	job := NewInventoryImportJob(stub, nil, testMetrics())

	actor := shared.Actor{ID: 7, Role: shared.RoleUser, IPAddress: "10.0.0.1"}
	csv := "product_name,warehouse,category,quantity,price\nBolt,Main,Hardware,5,1.50\n"
	task, err := NewImportTask(actor, "stock.csv", []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, TaskInventoryImport, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, actor, stub.actor)
	require.Len(t, stub.rows, 1)
	assert.Equal(t, "Bolt", stub.rows[0].ProductName)
	assert.Equal(t, 2, stub.rows[0].Number)
}

func TestInventoryImportJobSkipsRetryOnBadInput(t *testing.T) {
	job := NewInventoryImportJob(&stubImporter{}, nil, testMetrics())

	err := job.Handle(context.Background(), asynq.NewTask(TaskInventoryImport, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewImportTask(shared.Actor{ID: 1}, "bad.csv", []byte("name,qty\nBolt,1\n"))
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err = NewImportTask(shared.Actor{ID: 1}, "stock.xlsx", []byte("product_name,warehouse\nBolt,Main\n"))
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInventoryImportJobRetriesImporterFailure(t *testing.T) {
	boom := errors.New("database unavailable")
	job := NewInventoryImportJob(&stubImporter{err: boom}, nil, testMetrics())

	task, err := NewImportTask(shared.Actor{ID: 1}, "stock.csv", []byte("product_name,warehouse\nBolt,Main\n"))
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubLowStock struct {
	threshold int
	items     []inventory.Item
	err       error
}

func (s *stubLowStock) LowStock(_ context.Context, threshold int) ([]inventory.Item, error) {
	s.threshold = threshold
	return s.items, s.err
}

func TestLowStockScanThresholds(t *testing.T) {
	lister := &stubLowStock{items: []inventory.Item{{ItemCode: "A", Quantity: 3}, {ItemCode: "B", Quantity: 20}}}
	job := NewLowStockScanJob(lister, 0, nil, testMetrics())

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, nil)))
	assert.Equal(t, DefaultLowStockThreshold, lister.threshold)

	task, err := NewLowStockScanTask(5)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 5, lister.threshold)

	job.Threshold = 12
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, []byte(`{}`))))
	assert.Equal(t, 12, lister.threshold)
}

func TestLowStockScanPropagatesError(t *testing.T) {
	boom := errors.New("query failed")
	job := NewLowStockScanJob(&stubLowStock{err: boom}, 10, nil, testMetrics())
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockScan, nil)), boom)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 4, body.Pending)
	assert.Equal(t, 1, body.Failed)

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, nil, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubScanner struct {
	threshold int
	calls     int
}

func (s *stubScanner) EnqueueLowStockScan(_ context.Context, threshold int) (string, error) {
	s.calls++
	s.threshold = threshold
	return "task-42", nil
}

func TestTriggerLowStockScan(t *testing.T) {
	scanner := &stubScanner{}
	r := chi.NewRouter()
	r.Use(httpx.Actor)
	NewHandler(stubInspector{}, scanner, nil).MountRoutes(r)

	post := func(role, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/low-stock-scan", strings.NewReader(body))
		req.Header.Set(httpx.HeaderActorID, "7")
		req.Header.Set(httpx.HeaderActorRole, role)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post("user", `{"threshold":5}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, scanner.calls)

	rec = post("admin", `{"threshold":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "task-42")
	assert.Equal(t, 5, scanner.threshold)

	rec = post("admin", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, scanner.threshold)
	assert.Equal(t, 2, scanner.calls)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/low-stock-scan", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}
