package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"ad-capture-pipeline/models"
)

// UploadMode selects how the image reaches the analysis service. One client
// uses one mode for its whole lifetime; the two form fields are mutually
// exclusive on the wire.
type UploadMode string

const (
	// UploadModeURL sends the artifact's storage URL (image_url field).
	// The artifact is uploaded for persistence anyway, so this avoids
	// shipping the bytes twice.
	UploadModeURL UploadMode = "url"
	// UploadModeBytes sends the raw frame bytes (image field).
	UploadModeBytes UploadMode = "bytes"
)

// Request carries everything the /analyze endpoint accepts. ImageURL or
// Image is consulted depending on the client's upload mode.
type Request struct {
	ImageURL string
	Image    []byte
	Coords   models.Coordinates
	QRValue  string
	ReportID string
}

// Response is the analysis verdict as returned by the service.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	// Reason is the structured verdict reason; absent on older service
	// versions (see reason.go).
	Reason string `json:"reason,omitempty"`
}

// ReportStatus coerces the remote status into the report status enum.
// Anything unrecognized becomes a warning rather than being trusted
// verbatim.
func (r *Response) ReportStatus() models.ReportStatus {
	s := models.ReportStatus(r.Status)
	if !s.Valid() {
		log.Printf("Unrecognized analysis status %q, downgrading to warning", r.Status)
		return models.StatusWarning
	}
	return s
}

// Client calls the remote analysis endpoint. The call is cancellable
// through its context; the orchestrator scopes user-triggered aborts to
// exactly this call.
type Client struct {
	baseURL    string
	mode       UploadMode
	httpClient *http.Client
}

// NewClient creates an analysis client against the given base URL.
func NewClient(baseURL string, mode UploadMode, timeout time.Duration) *Client {
	if mode != UploadModeBytes {
		mode = UploadModeURL
	}
	return &Client{
		baseURL: baseURL,
		mode:    mode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze submits the artifact reference, coordinates and any decoded code
// value, and returns the service's verdict.
func (c *Client) Analyze(ctx context.Context, req *Request) (*Response, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if c.mode == UploadModeBytes {
		part, err := writer.CreateFormFile("image", "capture.jpg")
		if err != nil {
			return nil, fmt.Errorf("failed to create image part: %w", err)
		}
		if _, err := part.Write(req.Image); err != nil {
			return nil, fmt.Errorf("failed to write image part: %w", err)
		}
	} else {
		if err := writer.WriteField("image_url", req.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to write image_url field: %w", err)
		}
	}

	if err := writer.WriteField("lat", strconv.FormatFloat(req.Coords.Latitude, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("failed to write lat field: %w", err)
	}
	if err := writer.WriteField("lon", strconv.FormatFloat(req.Coords.Longitude, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("failed to write lon field: %w", err)
	}
	if req.QRValue != "" {
		if err := writer.WriteField("qr_value", req.QRValue); err != nil {
			return nil, fmt.Errorf("failed to write qr_value field: %w", err)
		}
	}
	if req.ReportID != "" {
		if err := writer.WriteField("report_id", req.ReportID); err != nil {
			return nil, fmt.Errorf("failed to write report_id field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/analyze", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send analysis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("analysis API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	return &result, nil
}
