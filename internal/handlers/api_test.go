package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"sales-insights/internal/config"
	"sales-insights/internal/services"
	"sales-insights/internal/store"
)

const sampleCSV = `date,week,month,quarter,region,country,channel,category,subcategory,sku,promo_flag,units_sold,net_sales,discount_rate,marketing_spend,inventory_level,forecast_demand,supply_lead_time_days,fulfillment_rate,backorder_rate,campaign_name,marketing_roi
2024-01-01,1,1,Q1,APAC,India,Retail,Footwear,Sneakers,FOO-SNE-0002,BOGO,5,405.00,0.10,300,80,90,9,0.92,0.04,Run Faster,0.35
2024-01-02,1,1,Q1,Europe,Germany,Online,Apparel,Hoodies,APP-HOO-0001,None,10,350.00,0.05,500,120,100,7,0.95,0.02,Spring Refresh,0.4
`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestHandlers(t *testing.T) *APIHandlers {
	t.Helper()

	cfg := config.DataConfig{
		Dir:           t.TempDir(),
		SeedFile:      "sales_seed.csv",
		MaxUploadSize: 32 << 20,
	}
	if err := os.WriteFile(cfg.SeedPath(), []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(cfg, logger)
	ds, err := st.Bootstrap()
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	engine := services.NewInsights(ds, logger)
	return NewAPIHandlers(st, engine, logger, cfg.MaxUploadSize)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a JSON envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return rec, env
}

func TestHandleKPIs(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleKPIs, http.MethodPost, "/api/kpis", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected success, got status %d body %s", rec.Code, rec.Body.String())
	}

	var kpi struct {
		TotalSales float64 `json:"total_sales"`
		TotalUnits int64   `json:"total_units"`
	}
	if err := json.Unmarshal(env.Data, &kpi); err != nil {
		t.Fatalf("cannot decode kpi payload: %v", err)
	}
	if kpi.TotalSales != 755 || kpi.TotalUnits != 15 {
		t.Errorf("unexpected totals: %+v", kpi)
	}
}

func TestHandleKPIs_FilterBody(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleKPIs, http.MethodPost, "/api/kpis", `{"region":["Europe"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var kpi struct {
		TotalSales float64 `json:"total_sales"`
	}
	if err := json.Unmarshal(env.Data, &kpi); err != nil {
		t.Fatalf("cannot decode kpi payload: %v", err)
	}
	if kpi.TotalSales != 350 {
		t.Errorf("expected Europe-only sales of 350, got %v", kpi.TotalSales)
	}
}

func TestHandleKPIs_RejectsBadDate(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleKPIs, http.MethodPost, "/api/kpis", `{"start":"January 1st"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "BAD_REQUEST" {
		t.Errorf("unexpected error payload: %s", rec.Body.String())
	}
}

func TestHandleSeries_Defaults(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleSeries, http.MethodPost, "/api/series", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var points []struct {
		Period string  `json:"period"`
		Value  float64 `json:"value"`
	}
	if err := json.Unmarshal(env.Data, &points); err != nil {
		t.Fatalf("cannot decode series payload: %v", err)
	}
	if len(points) != 1 || points[0].Period != "2024-01-01" || points[0].Value != 755 {
		t.Errorf("expected one monthly net_sales bucket, got %+v", points)
	}
}

func TestHandleSeries_UnsupportedFrequency(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleSeries, http.MethodPost, "/api/series?freq=hourly", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "UNSUPPORTED_FREQUENCY" {
		t.Errorf("unexpected error payload: %s", rec.Body.String())
	}
}

func TestHandleBreakdown(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleBreakdown, http.MethodPost, "/api/breakdown?by=region", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var rows []struct {
		DimensionValue string  `json:"dimension_value"`
		Share          float64 `json:"share"`
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatalf("cannot decode breakdown payload: %v", err)
	}
	if len(rows) != 2 || rows[0].DimensionValue != "APAC" {
		t.Errorf("expected APAC ranked first by net_sales, got %+v", rows)
	}
}

func TestHandleBreakdown_UnsupportedDimension(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleBreakdown, http.MethodPost, "/api/breakdown?by=mood", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "UNSUPPORTED_DIMENSION" {
		t.Errorf("unexpected error payload: %s", rec.Body.String())
	}
}

func TestHandleAnomalies_RejectsBadWindow(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleAnomalies, http.MethodPost, "/api/anomalies?window=soon", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "BAD_REQUEST" {
		t.Errorf("unexpected error payload: %s", rec.Body.String())
	}
}

func TestHandleChat(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleChat, http.MethodPost, "/api/chat", `{"question":"how is our inventory?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Type      string `json:"type"`
		Narrative string `json:"narrative"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("cannot decode chat payload: %v", err)
	}
	if result.Type != "inventory" || result.Narrative == "" {
		t.Errorf("unexpected chat result: %+v", result)
	}
}

func TestHandleChat_RequiresQuestion(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleChat, http.MethodPost, "/api/chat", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("unexpected error payload: %s", rec.Body.String())
	}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("cannot create form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("cannot write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleUpload(t *testing.T) {
	h := newTestHandlers(t)

	body, contentType := multipartUpload(t, "extra.csv",
		"date,region,units_sold,net_sales\n2024-01-03,LATAM,3,45.00\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a JSON envelope: %v", err)
	}
	var result struct {
		RowsIngested int `json:"rows_ingested"`
		TotalRows    int `json:"total_rows"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("cannot decode upload payload: %v", err)
	}
	if result.RowsIngested != 1 || result.TotalRows != 3 {
		t.Errorf("unexpected ingest counts: %+v", result)
	}

	// The engine snapshot must be republished with the merged dataset.
	_, kpiEnv := doJSON(t, h.HandleKPIs, http.MethodPost, "/api/kpis", "")
	var kpi struct {
		TotalSales float64 `json:"total_sales"`
	}
	if err := json.Unmarshal(kpiEnv.Data, &kpi); err != nil {
		t.Fatalf("cannot decode kpi payload: %v", err)
	}
	if kpi.TotalSales != 800 {
		t.Errorf("expected total_sales=800 after upload, got %v", kpi.TotalSales)
	}
}

func TestHandleUpload_RejectsNonMultipart(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain text"))
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-multipart body, got %d", rec.Code)
	}
}

func TestHandleUpload_SchemaViolation(t *testing.T) {
	h := newTestHandlers(t)

	body, contentType := multipartUpload(t, "bad.csv",
		"date,units_sold,net_sales\n2024-01-03,several,45.00\n")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not a JSON envelope: %v", err)
	}
	if env.Error == nil || env.Error.Code != "SCHEMA_VIOLATION" {
		t.Errorf("unexpected error payload: %s", rec.Body.String())
	}
}

func TestHandleFilters(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleFilters, http.MethodGet, "/api/filters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var opts struct {
		Regions   []string `json:"regions"`
		DateRange []string `json:"date_range"`
	}
	if err := json.Unmarshal(env.Data, &opts); err != nil {
		t.Fatalf("cannot decode filter options: %v", err)
	}
	if len(opts.Regions) != 2 {
		t.Errorf("expected 2 distinct regions, got %v", opts.Regions)
	}
	if len(opts.DateRange) != 2 || opts.DateRange[0] != "2024-01-01" {
		t.Errorf("unexpected date range: %v", opts.DateRange)
	}
}

func TestHandleRefresh(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleRefresh, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	var result struct {
		TotalRows int `json:"total_rows"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("cannot decode refresh payload: %v", err)
	}
	if result.TotalRows != 2 {
		t.Errorf("expected 2 rows after refresh, got %d", result.TotalRows)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleHealth, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected healthy response, got %d", rec.Code)
	}

	var health map[string]string
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("cannot decode health payload: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("unexpected health status: %v", health)
	}
}

func TestHandleStats(t *testing.T) {
	h := newTestHandlers(t)

	rec, env := doJSON(t, h.HandleStats, http.MethodGet, "/admin/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats struct {
		Rows      int    `json:"rows"`
		FirstDate string `json:"first_date"`
		LastDate  string `json:"last_date"`
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("cannot decode stats payload: %v", err)
	}
	if stats.Rows != 2 || stats.FirstDate != "2024-01-01" || stats.LastDate != "2024-01-02" {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
