package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ad-capture-pipeline/analysis"
	"ad-capture-pipeline/capture"
	"ad-capture-pipeline/config"
	"ad-capture-pipeline/geopolicy"
	"ad-capture-pipeline/handlers"
	"ad-capture-pipeline/location"
	"ad-capture-pipeline/metrics"
	"ad-capture-pipeline/rabbitmq"
	"ad-capture-pipeline/scanner"
	"ad-capture-pipeline/storage"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	// Geofence policy, loaded once and immutable afterwards.
	var policyOpts []geopolicy.Option
	if cfg.EnableTimeWindow {
		policyOpts = append(policyOpts, geopolicy.WithTimeWindow(cfg.WindowStart, cfg.WindowEnd))
	}
	if cfg.GeofenceZonesFile != "" {
		zones, err := geopolicy.LoadZones(cfg.GeofenceZonesFile)
		if err != nil {
			log.Fatalf("Failed to load geofence zones: %v", err)
		}
		policyOpts = append(policyOpts, geopolicy.WithZones(zones))
		log.Printf("Loaded %d allowed zones from %s", len(zones), cfg.GeofenceZonesFile)
	}
	policy := geopolicy.New(cfg.GeofenceCenterLat, cfg.GeofenceCenterLon, cfg.GeofenceRadiusM, policyOpts...)

	// Durable stores
	db, err := storage.OpenDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	records := storage.NewRecords(db)
	if err := records.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure reports schema: %v", err)
	}

	objects, err := storage.NewObjectStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey,
		cfg.S3UseTLS, cfg.S3Bucket, cfg.S3PublicBaseURL)
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}
	if err := objects.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("Failed to ensure artifact bucket: %v", err)
	}
	store := storage.NewStore(objects, records)

	// Device-facing state
	codes := scanner.New(cfg.ScanDebounce)
	locationCell := location.NewCell(5 * time.Minute)
	locator := location.NewProvider(locationCell)
	geocoder := location.NewGeocoder(cfg.NominatimBaseURL, cfg.GeocodeTimeout)

	// Remote analysis
	analyzer := analysis.NewClient(cfg.AnalysisBaseURL, analysis.UploadMode(cfg.AnalysisUploadMode), cfg.AnalysisTimeout)

	// Optional verdict publisher
	var publisher capture.VerdictPublisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.VerdictExchange, cfg.VerdictRoutingKey)
		if err != nil {
			// Verdicts still resolve without a broker.
			log.Printf("Failed to initialize verdict publisher, continuing without: %v", err)
		} else {
			publisher = p
			defer p.Close()
		}
	}

	orch := capture.New(capture.Options{
		Policy:         policy,
		Locator:        locator,
		Geocoder:       geocoder,
		Store:          store,
		Analyzer:       analyzer,
		Codes:          codes,
		Publisher:      publisher,
		Messages:       cfg.Messages,
		EnableCodeScan: cfg.EnableCodeScan,
	})

	h := handlers.New(orch, store, codes, locationCell, cfg.ReportsPageSize)
	router := setupRouter(h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func setupRouter(h *handlers.Handlers) *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v3")
	{
		api.POST("/submit", h.Submit)
		api.POST("/abort", h.Abort)
		api.POST("/scan", h.Scan)
		api.POST("/location", h.Location)
		api.GET("/reports", h.ListReports)
		api.GET("/reports/:id", h.GetReport)
		api.GET("/health", h.HealthCheck)
		api.GET("/status", h.Status)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
