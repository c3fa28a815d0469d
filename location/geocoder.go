package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ad-capture-pipeline/models"
)

const (
	// UserAgent is required by Nominatim usage policy
	UserAgent = "AdWatch/1.0 (capture pipeline)"
	// Rate limit: 1 request per second for Nominatim
	minRequestInterval = time.Second
)

// UnknownLocation is the address used whenever reverse geocoding cannot
// produce anything better. Geocoding is best-effort and never fails the
// caller.
const UnknownLocation = "Unknown location"

// Geocoder resolves coordinates to a human-readable address via a
// Nominatim-compatible endpoint, with the rate limiting the public API
// requires.
type Geocoder struct {
	baseURL       string
	httpClient    *http.Client
	lastRequest   time.Time
	rateLimitLock sync.Mutex
}

// NewGeocoder creates a geocoder against the given Nominatim base URL.
func NewGeocoder(baseURL string, timeout time.Duration) *Geocoder {
	return &Geocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// nominatimResponse is the subset of the Nominatim reverse geocoding
// response we consume.
type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Country     string `json:"country"`
}

// enforceRateLimit ensures we don't exceed Nominatim's rate limit
func (g *Geocoder) enforceRateLimit() {
	g.rateLimitLock.Lock()
	defer g.rateLimitLock.Unlock()

	elapsed := time.Since(g.lastRequest)
	if elapsed < minRequestInterval {
		time.Sleep(minRequestInterval - elapsed)
	}
	g.lastRequest = time.Now()
}

// ReverseGeocode returns a "street, city, region, country" string for the
// coordinates, or UnknownLocation on any failure, including the unknown
// coordinate sentinel. Never returns an error.
func (g *Geocoder) ReverseGeocode(ctx context.Context, coords models.Coordinates) string {
	if coords.IsZero() {
		return UnknownLocation
	}

	addr, err := g.reverse(ctx, coords)
	if err != nil {
		log.Printf("Reverse geocoding failed for (%.6f, %.6f): %v", coords.Latitude, coords.Longitude, err)
		return UnknownLocation
	}
	return addr
}

func (g *Geocoder) reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	g.enforceRateLimit()

	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", coords.Latitude))
	params.Set("lon", fmt.Sprintf("%f", coords.Longitude))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")

	reqURL := fmt.Sprintf("%s/reverse?%s", g.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var nomResp nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&nomResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	addr := formatAddress(&nomResp.Address)
	if addr == "" {
		if nomResp.DisplayName == "" {
			return "", fmt.Errorf("empty geocoding result")
		}
		return nomResp.DisplayName, nil
	}
	return addr, nil
}

// formatAddress builds "street, city, region, country" from whatever parts
// Nominatim returned, skipping the missing ones.
func formatAddress(a *nominatimAddress) string {
	street := a.Road
	if a.HouseNumber != "" && street != "" {
		street = street + " " + a.HouseNumber
	}

	city := a.City
	if city == "" {
		city = a.Town
	}
	if city == "" {
		city = a.Village
	}
	if city == "" {
		city = a.Suburb
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{street, city, a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
