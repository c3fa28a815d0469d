package geopolicy

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"

	"ad-capture-pipeline/models"
)

// earthRadiusM is the mean Earth radius used for great-circle distances.
const earthRadiusM = 6371000.0

// Policy is the immutable geofence configuration: a circle around a center
// point, optional allowed polygons, and an optional allowed-time window.
// Built once at startup.
type Policy struct {
	center  s2.LatLng
	radiusM float64
	zones   []*s2.Loop

	checkWindow bool
	windowStart time.Time
	windowEnd   time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithTimeWindow enables the allowed-time window check. Both bounds are
// inclusive.
func WithTimeWindow(start, end time.Time) Option {
	return func(p *Policy) {
		p.checkWindow = true
		p.windowStart = start
		p.windowEnd = end
	}
}

// WithZones adds allowed polygons. A point inside any of them passes the
// zone check even when outside the circle.
func WithZones(zones []*s2.Loop) Option {
	return func(p *Policy) {
		p.zones = zones
	}
}

// New builds a Policy around the given center and radius in meters.
func New(centerLat, centerLon, radiusM float64, opts ...Option) *Policy {
	p := &Policy{
		center:  s2.LatLngFromDegrees(centerLat, centerLon),
		radiusM: radiusM,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate checks coords against the geofence and, when configured, now
// against the allowed-time window. First failure wins, ordered: zone, then
// time. Pure: no I/O, no side effects.
func (p *Policy) Evaluate(coords models.Coordinates, now time.Time) models.PolicyVerdict {
	if !p.inZone(coords) {
		return models.PolicyVerdict{OK: false, Reason: models.ReasonOutOfZone}
	}
	if p.checkWindow && (now.Before(p.windowStart) || now.After(p.windowEnd)) {
		return models.PolicyVerdict{OK: false, Reason: models.ReasonOutsideWindow}
	}
	return models.PolicyVerdict{OK: true}
}

// Distance returns the great-circle distance in meters from coords to the
// configured center.
func (p *Policy) Distance(coords models.Coordinates) float64 {
	ll := s2.LatLngFromDegrees(coords.Latitude, coords.Longitude)
	return ll.Distance(p.center).Radians() * earthRadiusM
}

// inZone is inclusive at exactly the radius boundary.
func (p *Policy) inZone(coords models.Coordinates) bool {
	if p.Distance(coords) <= p.radiusM {
		return true
	}
	pt := s2.PointFromLatLng(s2.LatLngFromDegrees(coords.Latitude, coords.Longitude))
	for _, zone := range p.zones {
		if zone.ContainsPoint(pt) {
			return true
		}
	}
	return false
}

// LoadZones reads a GeoJSON file of allowed polygons and returns s2 loops
// built from their outer rings. MultiPolygon features contribute one loop
// per polygon.
func LoadZones(path string) ([]*s2.Loop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse zones GeoJSON: %w", err)
	}

	var zones []*s2.Loop
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		switch {
		case f.Geometry.IsPolygon():
			if loop := loopFromRing(f.Geometry.Polygon); loop != nil {
				zones = append(zones, loop)
			}
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				if loop := loopFromRing(poly); loop != nil {
					zones = append(zones, loop)
				}
			}
		}
	}
	return zones, nil
}

// loopFromRing builds a loop from a polygon's outer ring. GeoJSON positions
// are [lon, lat] and the ring repeats its first vertex at the end.
func loopFromRing(rings [][][]float64) *s2.Loop {
	if len(rings) == 0 || len(rings[0]) < 4 {
		return nil
	}
	ring := rings[0]
	pts := make([]s2.Point, 0, len(ring)-1)
	for _, pos := range ring[:len(ring)-1] {
		if len(pos) < 2 {
			return nil
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(pos[1], pos[0])))
	}
	loop := s2.LoopFromPoints(pts)
	// GeoJSON does not guarantee winding order; keep the small region inside.
	if loop.Area() > 2*math.Pi {
		loop.Invert()
	}
	return loop
}
