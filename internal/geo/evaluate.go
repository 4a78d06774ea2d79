// Package geo classifies map clicks against country shapes.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/geodesic"

	constants "github.com/CodeAndHammer/landludo/internal/constants"
)

type MatchKind string

const (
	MatchHit      MatchKind = "hit"
	MatchNearMiss MatchKind = "near_miss"
	MatchMiss     MatchKind = "miss"
)

// Shape is a country's outline and its centroid, both in lon/lat order.
type Shape struct {
	Name     string
	Code     string
	Geometry orb.Geometry
	Centroid orb.Point
}

// Match is the outcome of Evaluate. HasDistance is false when the target
// has no resolvable centroid.
type Match struct {
	Kind        MatchKind
	DistanceKm  float64
	HasDistance bool
}

// WholeKm truncates the distance for display.
func (m Match) WholeKm() int {
	return int(m.DistanceKm)
}

// Scoring reports whether the match ends the round with points.
func (m Match) Scoring() bool {
	return m.Kind == MatchHit || m.Kind == MatchNearMiss
}

// Evaluate classifies a guessed point. A nil shape is always a miss.
func Evaluate(guess orb.Point, target *Shape) Match {
	if target == nil {
		return Match{Kind: MatchMiss}
	}

	dist := DistanceKm(guess, target.Centroid)
	if Contains(target.Geometry, guess) {
		return Match{Kind: MatchHit, DistanceKm: dist, HasDistance: true}
	}
	if dist <= constants.NearMissRadiusKm {
		return Match{Kind: MatchNearMiss, DistanceKm: dist, HasDistance: true}
	}
	return Match{Kind: MatchMiss, DistanceKm: dist, HasDistance: true}
}

// Contains reports whether point lies inside a Polygon or MultiPolygon.
// Other geometry types never contain anything.
func Contains(g orb.Geometry, point orb.Point) bool {
	switch shape := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(shape, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(shape, point)
	default:
		return false
	}
}

// DistanceKm is the WGS84 ellipsoidal geodesic distance between two lon/lat points.
func DistanceKm(a, b orb.Point) float64 {
	var meters float64
	geodesic.WGS84.Inverse(a.Lat(), a.Lon(), b.Lat(), b.Lon(), &meters, nil, nil)
	return meters / 1000
}

// ValidCoordinates bounds-checks a click.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
