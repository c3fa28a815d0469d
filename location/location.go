package location

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ad-capture-pipeline/models"
)

// Source is the device-side location access the provider wraps. Implemented
// by the GPS subsystem (out of scope here); the HTTP feed endpoint and tests
// provide their own.
type Source interface {
	// LastKnown returns the cached fix, if any. Must not block.
	LastKnown() (models.Coordinates, bool)
	// Current requests a fresh low-accuracy fix.
	Current(ctx context.Context) (models.Coordinates, error)
}

// Provider acquires coordinates with a cached-first, fresh-fallback
// strategy. It never fails: any error degrades to the (0,0) unknown
// sentinel so the capture pipeline can proceed without a fix.
type Provider struct {
	source Source
}

func NewProvider(source Source) *Provider {
	return &Provider{source: source}
}

// Acquire returns the best coordinates available right now. Cached fix
// first (zero latency), then one fresh request; on any failure the unknown
// sentinel.
func (p *Provider) Acquire(ctx context.Context) models.Coordinates {
	if p.source == nil {
		return models.Coordinates{}
	}
	if coords, ok := p.source.LastKnown(); ok {
		return coords
	}
	coords, err := p.source.Current(ctx)
	if err != nil {
		log.Printf("Location acquisition failed, proceeding without a fix: %v", err)
		return models.Coordinates{}
	}
	return coords
}

// Cell is a Source fed externally, e.g. by the device pushing GPS fixes
// over HTTP. A fix goes stale after the configured TTL so the cached-first
// path does not serve ancient positions forever.
type Cell struct {
	mu  sync.Mutex
	fix models.Coordinates
	at  time.Time
	ttl time.Duration
}

// ErrNoFix is returned by Cell.Current when no fix has ever been fed.
var ErrNoFix = errors.New("no location fix available")

// NewCell creates an empty location cell. A non-positive ttl keeps fixes
// fresh indefinitely.
func NewCell(ttl time.Duration) *Cell {
	return &Cell{ttl: ttl}
}

// SetFix stores a device-reported fix. The unknown sentinel is ignored.
func (c *Cell) SetFix(coords models.Coordinates) {
	if coords.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fix = coords
	c.at = time.Now()
}

// LastKnown returns the stored fix unless it is absent or stale.
func (c *Cell) LastKnown() (models.Coordinates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fix.IsZero() {
		return models.Coordinates{}, false
	}
	if c.ttl > 0 && time.Since(c.at) > c.ttl {
		return models.Coordinates{}, false
	}
	return c.fix, true
}

// Current has no fresher source than the cell itself; it returns the stored
// fix even when stale, or the unknown sentinel with an error when the cell
// has never been fed.
func (c *Cell) Current(ctx context.Context) (models.Coordinates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fix.IsZero() {
		return models.Coordinates{}, ErrNoFix
	}
	return c.fix, nil
}
