package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"ad-capture-pipeline/analysis"
	"ad-capture-pipeline/capture"
	"ad-capture-pipeline/config"
	"ad-capture-pipeline/geopolicy"
	"ad-capture-pipeline/location"
	"ad-capture-pipeline/models"
	"ad-capture-pipeline/scanner"
	"ad-capture-pipeline/storage"
)

type stubArtifactStore struct {
	url string
	id  string
}

func (s *stubArtifactStore) Upload(ctx context.Context, frame *models.CapturedFrame) (string, error) {
	return s.url, nil
}

func (s *stubArtifactStore) Insert(ctx context.Context, report *models.Report) (string, error) {
	return s.id, nil
}

type stubAnalyzer struct {
	resp *analysis.Response
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req *analysis.Request) (*analysis.Response, error) {
	return s.resp, nil
}

type fixture struct {
	router *gin.Engine
	mock   sqlmock.Sqlmock
	db     *sql.DB
	codes  *scanner.Scanner
	cell   *location.Cell
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(nil, storage.NewRecords(db))
	codes := scanner.New(3 * time.Second)
	cell := location.NewCell(time.Minute)

	msgs := config.Messages{
		Stored:          "Report stored, awaiting analysis",
		UploadFailed:    "Upload failed",
		AnalysisOK:      "No violation detected",
		AnalysisFlagged: "Advertisement flagged for review",
		OutOfZone:       "Outside the permitted zone",
		OutsideWindow:   "Outside the permitted time window",
		CameraNotReady:  "Camera is not ready",
		UnknownLocation: "Unknown location",
	}

	orch := capture.New(capture.Options{
		Policy:         geopolicy.New(42.4304, 19.2594, 1500),
		Locator:        location.NewProvider(cell),
		Store:          &stubArtifactStore{url: "http://cdn/reports/a.jpg", id: "rep-1"},
		Analyzer:       &stubAnalyzer{resp: &analysis.Response{Status: "success", Message: "Looks fine"}},
		Codes:          codes,
		Messages:       msgs,
		EnableCodeScan: true,
	})

	h := New(orch, store, codes, cell, 12)

	router := gin.New()
	api := router.Group("/api/v3")
	api.POST("/submit", h.Submit)
	api.POST("/abort", h.Abort)
	api.POST("/scan", h.Scan)
	api.POST("/location", h.Location)
	api.GET("/reports", h.ListReports)
	api.GET("/reports/:id", h.GetReport)
	api.GET("/health", h.HealthCheck)

	return &fixture{router: router, mock: mock, db: db, codes: codes, cell: cell}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestScanEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/v3/scan", bytes.NewBufferString(`{"value":"https://ads.example/1"}`))
	w := f.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]bool
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp["accepted"] {
		t.Error("first scan should be accepted")
	}

	// Second detection inside the debounce window is dropped.
	req = httptest.NewRequest("POST", "/api/v3/scan", bytes.NewBufferString(`{"value":"https://ads.example/2"}`))
	w = f.do(req)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["accepted"] {
		t.Error("scan inside the debounce window should be dropped")
	}
}

func TestScanEndpointRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest("POST", "/api/v3/scan", bytes.NewBufferString(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestLocationEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/v3/location", bytes.NewBufferString(`{"latitude":42.43,"longitude":19.25}`))
	if w := f.do(req); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	fix, ok := f.cell.LastKnown()
	if !ok || fix.Latitude != 42.43 || fix.Longitude != 19.25 {
		t.Errorf("cell fix = %v, %v", fix, ok)
	}
}

func submitRequest(t *testing.T, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if image != nil {
		part, err := writer.CreateFormFile("image", "capture.jpg")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(image)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest("POST", "/api/v3/submit", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSubmitEndpoint(t *testing.T) {
	f := newFixture(t)

	req := submitRequest(t, []byte{0xff, 0xd8}, map[string]string{
		"lat": "42.4304",
		"lon": "19.2594",
	})
	w := f.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var verdict models.Verdict
	if err := json.Unmarshal(w.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("bad verdict JSON: %v", err)
	}
	if verdict.Status != models.StatusSuccess || verdict.ReportID != "rep-1" {
		t.Errorf("verdict = %+v", verdict)
	}

	// The form coordinates fed the location cell.
	fix, ok := f.cell.LastKnown()
	if !ok || fix.Latitude != 42.4304 {
		t.Errorf("cell fix = %v, %v", fix, ok)
	}
}

func TestSubmitEndpointWithoutImage(t *testing.T) {
	f := newFixture(t)

	w := f.do(submitRequest(t, nil, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var verdict models.Verdict
	json.Unmarshal(w.Body.Bytes(), &verdict)
	if verdict.Status != models.StatusError {
		t.Errorf("a request without an image should resolve to an error verdict, got %+v", verdict)
	}
}

func TestListReportsEndpoint(t *testing.T) {
	f := newFixture(t)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.mock.ExpectQuery("(?s)SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at\\s+FROM reports\\s+ORDER BY created_at DESC\\s+LIMIT \\? OFFSET \\?").
		WithArgs(12, 12).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "image_url", "latitude", "longitude", "address", "status", "message", "created_at",
		}).AddRow("id-1", "", "http://cdn/a.jpg", 42.43, 19.25, "Main St", "success", "Stored", created))

	w := f.do(httptest.NewRequest("GET", "/api/v3/reports?page=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Page     int             `json:"page"`
		PageSize int             `json:"page_size"`
		Reports  []models.Report `json:"reports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Page != 2 || resp.PageSize != 12 || len(resp.Reports) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetReportEndpoint(t *testing.T) {
	f := newFixture(t)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.mock.ExpectQuery("(?s)SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at\\s+FROM reports\\s+WHERE id = \\?").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "image_url", "latitude", "longitude", "address", "status", "message", "created_at",
		}).AddRow("id-1", "", "http://cdn/a.jpg", 42.43, 19.25, "Main St", "violation", "Outside the permitted zone", created))

	w := f.do(httptest.NewRequest("GET", "/api/v3/reports/id-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var report models.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.ID != "id-1" || report.Status != models.StatusViolation {
		t.Errorf("report = %+v", report)
	}
}

func TestGetReportEndpointNotFound(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery("(?s)SELECT id, user_id, image_url, latitude, longitude, address, status, message, created_at\\s+FROM reports\\s+WHERE id = \\?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	w := f.do(httptest.NewRequest("GET", "/api/v3/reports/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest("GET", "/api/v3/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
