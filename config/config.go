package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the capture pipeline service. Loaded
// once at startup; treated as immutable afterwards.
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Object storage configuration
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UseTLS        bool
	S3Bucket        string
	S3PublicBaseURL string

	// Analysis service configuration
	AnalysisBaseURL    string
	AnalysisUploadMode string // "url" or "bytes"
	AnalysisTimeout    time.Duration

	// Geofence policy
	GeofenceCenterLat float64
	GeofenceCenterLon float64
	GeofenceRadiusM   float64
	GeofenceZonesFile string

	// Optional allowed-time window (inclusive both ends)
	EnableTimeWindow bool
	WindowStart      time.Time
	WindowEnd        time.Time

	// QR scan feed
	EnableCodeScan bool
	ScanDebounce   time.Duration

	// Reverse geocoding
	NominatimBaseURL string
	GeocodeTimeout   time.Duration

	// RabbitMQ verdict publishing (optional; empty URL disables)
	AMQPURL            string
	VerdictExchange    string
	VerdictRoutingKey  string

	// History listing
	ReportsPageSize int

	// Messages holds the canned verdict messages; one table instead of the
	// per-variant copies the original app carried.
	Messages Messages

	// Logging
	LogLevel string
}

// Messages is the canned-message table used by reconciliation when the
// remote analysis supplies no message of its own.
type Messages struct {
	Stored          string
	UploadFailed    string
	AnalysisOK      string
	AnalysisFlagged string
	OutOfZone       string
	OutsideWindow   string
	CameraNotReady  string
	UnknownLocation string
}

// Load loads configuration from environment variables, reading a local .env
// file first if one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env: %v", err)
	}

	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "adwatch"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Object storage defaults
		S3Endpoint:      getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3UseTLS:        getBoolEnv("S3_USE_TLS", false),
		S3Bucket:        getEnv("S3_BUCKET", "adwatch-reports"),
		S3PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),

		// Analysis service defaults
		AnalysisBaseURL:    getEnv("ANALYSIS_BASE_URL", "http://localhost:8090"),
		AnalysisUploadMode: getEnv("ANALYSIS_UPLOAD_MODE", "url"),
		AnalysisTimeout:    getDurationEnv("ANALYSIS_TIMEOUT", 30*time.Second),

		// Geofence defaults (disabled radius means no zone check)
		GeofenceCenterLat: getFloatEnv("GEOFENCE_CENTER_LAT", 0),
		GeofenceCenterLon: getFloatEnv("GEOFENCE_CENTER_LON", 0),
		GeofenceRadiusM:   getFloatEnv("GEOFENCE_RADIUS_M", 1500),
		GeofenceZonesFile: getEnv("GEOFENCE_ZONES_FILE", ""),

		// Time window defaults
		EnableTimeWindow: getBoolEnv("ENABLE_TIME_WINDOW", false),
		WindowStart:      getTimeEnv("WINDOW_START", time.Time{}),
		WindowEnd:        getTimeEnv("WINDOW_END", time.Time{}),

		// QR scan defaults
		EnableCodeScan: getBoolEnv("ENABLE_CODE_SCAN", true),
		ScanDebounce:   getDurationEnv("SCAN_DEBOUNCE", 3*time.Second),

		// Reverse geocoding defaults
		NominatimBaseURL: getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocodeTimeout:   getDurationEnv("GEOCODE_TIMEOUT", 10*time.Second),

		// RabbitMQ defaults (empty URL disables publishing)
		AMQPURL:           getEnv("AMQP_URL", ""),
		VerdictExchange:   getEnv("VERDICT_EXCHANGE", "adwatch-verdicts"),
		VerdictRoutingKey: getEnv("VERDICT_ROUTING_KEY", "verdict.resolved"),

		// History defaults
		ReportsPageSize: getIntEnv("REPORTS_PAGE_SIZE", 12),

		Messages: Messages{
			Stored:          getEnv("MSG_STORED", "Report stored, awaiting analysis"),
			UploadFailed:    getEnv("MSG_UPLOAD_FAILED", "Upload failed"),
			AnalysisOK:      getEnv("MSG_ANALYSIS_OK", "No violation detected"),
			AnalysisFlagged: getEnv("MSG_ANALYSIS_FLAGGED", "Advertisement flagged for review"),
			OutOfZone:       getEnv("MSG_OUT_OF_ZONE", "Outside the permitted zone"),
			OutsideWindow:   getEnv("MSG_OUTSIDE_WINDOW", "Outside the permitted time window"),
			CameraNotReady:  getEnv("MSG_CAMERA_NOT_READY", "Camera is not ready"),
			UnknownLocation: getEnv("MSG_UNKNOWN_LOCATION", "Unknown location"),
		},

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getTimeEnv gets an RFC3339 timestamp environment variable or returns a
// default value
func getTimeEnv(key string, defaultValue time.Time) time.Time {
	if value := os.Getenv(key); value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
		log.Printf("Invalid %s, expected RFC3339: %q", key, value)
	}
	return defaultValue
}
