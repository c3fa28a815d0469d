package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ad-capture-pipeline/capture"
	"ad-capture-pipeline/location"
	"ad-capture-pipeline/models"
	"ad-capture-pipeline/scanner"
	"ad-capture-pipeline/storage"
)

// Handlers is the HTTP surface of the capture pipeline: the device feeds
// (scan, location), the submission trigger, and the history/status reads.
type Handlers struct {
	orch         *capture.Orchestrator
	store        *storage.Store
	codes        *scanner.Scanner
	locationCell *location.Cell
	pageSize     int
}

// New creates the handler set.
func New(orch *capture.Orchestrator, store *storage.Store, codes *scanner.Scanner, locationCell *location.Cell, pageSize int) *Handlers {
	if pageSize <= 0 {
		pageSize = storage.DefaultPageSize
	}
	return &Handlers{
		orch:         orch,
		store:        store,
		codes:        codes,
		locationCell: locationCell,
		pageSize:     pageSize,
	}
}

// bytesCamera adapts an already-received image into a one-shot Camera for
// the orchestrator. A request without an image plays the part of an
// unready camera.
type bytesCamera struct {
	data     []byte
	mimeType string
}

func (b *bytesCamera) Capture(ctx context.Context) (*models.CapturedFrame, error) {
	if len(b.data) == 0 {
		return nil, errors.New("no image in request")
	}
	return &models.CapturedFrame{Data: b.data, MimeType: b.mimeType}, nil
}

// Submit handles POST /submit: one multipart image plus optional lat/lon
// form fields that update the device location cell before the traversal
// starts.
func (h *Handlers) Submit(c *gin.Context) {
	cam := &bytesCamera{mimeType: "image/jpeg"}

	file, header, err := c.Request.FormFile("image")
	if err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
			return
		}
		cam.data = data
		if ct := header.Header.Get("Content-Type"); ct != "" {
			cam.mimeType = ct
		}
	}

	if lat, lon, ok := formCoordinates(c); ok {
		h.locationCell.SetFix(models.Coordinates{Latitude: lat, Longitude: lon})
	}

	verdict, err := h.orch.Submit(c.Request.Context(), cam)
	switch {
	case errors.Is(err, capture.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "A submission is already in flight"})
	case errors.Is(err, capture.ErrAborted):
		c.Status(http.StatusNoContent)
	case err != nil:
		log.Printf("Submission failed unexpectedly: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Submission failed"})
	default:
		c.JSON(http.StatusOK, verdict)
	}
}

// Abort handles POST /abort: cancels the analysis call of the in-flight
// submission, if any.
func (h *Handlers) Abort(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.orch.Abort()})
}

type scanArgs struct {
	Value string `json:"value" binding:"required"`
}

// Scan handles POST /scan: the QR decode subsystem pushes one detected
// value. Values inside the debounce window are dropped.
func (h *Handlers) Scan(c *gin.Context) {
	var args scanArgs
	if err := c.BindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read JSON input"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": h.codes.Offer(args.Value)})
}

type locationArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location handles POST /location: the GPS subsystem pushes a fix.
func (h *Handlers) Location(c *gin.Context) {
	var args locationArgs
	if err := c.BindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read JSON input"})
		return
	}
	h.locationCell.SetFix(models.Coordinates{Latitude: args.Latitude, Longitude: args.Longitude})
	c.Status(http.StatusOK)
}

// ListReports handles GET /reports: the history pages, newest first.
func (h *Handlers) ListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(h.pageSize)))
	if pageSize < 1 || pageSize > 100 {
		pageSize = h.pageSize
	}

	reports, err := h.store.List(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		log.Printf("Failed to list reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":      page,
		"page_size": pageSize,
		"reports":   reports,
	})
}

// GetReport handles GET /reports/:id.
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		log.Printf("Failed to get report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ad-capture-pipeline",
	})
}

// Status handles GET /status: traversal state plus record counts.
func (h *Handlers) Status(c *gin.Context) {
	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		log.Printf("Failed to count reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     h.orch.State().String(),
		"in_flight": h.orch.InFlight(),
		"reports":   counts,
	})
}

func formCoordinates(c *gin.Context) (lat, lon float64, ok bool) {
	latStr := c.PostForm("lat")
	lonStr := c.PostForm("lon")
	if latStr == "" || lonStr == "" {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
