package analysis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ad-capture-pipeline/models"
)

func analyzeHandler(t *testing.T, got *map[string]string, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}

		fields := make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		if _, _, err := r.FormFile("image"); err == nil {
			fields["image"] = "present"
		}
		*got = fields

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}
}

func TestAnalyzeURLMode(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(analyzeHandler(t, &got, `{"status":"violation","message":"Missing QR"}`))
	defer srv.Close()

	client := NewClient(srv.URL, UploadModeURL, 5*time.Second)
	resp, err := client.Analyze(context.Background(), &Request{
		ImageURL: "http://cdn/reports/x.jpg",
		Image:    []byte("raw-bytes-should-not-be-sent"),
		Coords:   models.Coordinates{Latitude: 42.4304, Longitude: 19.2594},
		QRValue:  "https://ads.example/campaign/7",
		ReportID: "rep-1",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if resp.Status != "violation" || resp.Message != "Missing QR" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got["image_url"] != "http://cdn/reports/x.jpg" {
		t.Errorf("image_url = %q", got["image_url"])
	}
	if _, ok := got["image"]; ok {
		t.Error("url mode must not send raw image bytes")
	}
	if got["lat"] != "42.4304" || got["lon"] != "19.2594" {
		t.Errorf("lat/lon = %q/%q", got["lat"], got["lon"])
	}
	if got["qr_value"] != "https://ads.example/campaign/7" {
		t.Errorf("qr_value = %q", got["qr_value"])
	}
	if got["report_id"] != "rep-1" {
		t.Errorf("report_id = %q", got["report_id"])
	}
}

func TestAnalyzeBytesMode(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(analyzeHandler(t, &got, `{"status":"success"}`))
	defer srv.Close()

	client := NewClient(srv.URL, UploadModeBytes, 5*time.Second)
	resp, err := client.Analyze(context.Background(), &Request{
		ImageURL: "http://cdn/reports/x.jpg",
		Image:    []byte{0xff, 0xd8, 0xff},
		Coords:   models.Coordinates{Latitude: 1, Longitude: 2},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}

	if got["image"] != "present" {
		t.Error("bytes mode must send the image part")
	}
	if _, ok := got["image_url"]; ok {
		t.Error("bytes mode must not send image_url")
	}
	if _, ok := got["qr_value"]; ok {
		t.Error("empty qr_value must be omitted")
	}
}

func TestAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, UploadModeURL, 5*time.Second)
	if _, err := client.Analyze(context.Background(), &Request{ImageURL: "x"}); err == nil {
		t.Error("expected an error on a 500 response")
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(srv.URL, UploadModeURL, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.Analyze(ctx, &Request{ImageURL: "x"})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected a context.Canceled error chain, got %v", err)
	}
}

func TestReportStatusCoercion(t *testing.T) {
	testCases := []struct {
		raw  string
		want models.ReportStatus
	}{
		{"success", models.StatusSuccess},
		{"violation", models.StatusViolation},
		{"pending", models.StatusPending},
		{"warning", models.StatusWarning},
		{"error", models.StatusError},
		{"banana", models.StatusWarning},
		{"", models.StatusWarning},
	}
	for _, tc := range testCases {
		resp := &Response{Status: tc.raw}
		if got := resp.ReportStatus(); got != tc.want {
			t.Errorf("ReportStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
