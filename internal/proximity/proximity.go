// Package proximity filters and orders venues by great-circle distance.
package proximity

import (
	"cmp"
	"math"
	"slices"

	"github.com/pauljones0/happymapper/internal/models"
)

const (
	earthRadiusKm = 6371.0
	milesPerKm    = 0.621371
)

// Order is the distance sort direction.
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// GeocodeCache holds coordinates resolved out-of-band for venues that have
// none of their own. Lookups never block on a geocoding call.
type GeocodeCache interface {
	Lookup(venueID string) (models.Coordinates, bool)
}

// Result is one venue within range. It is computed per query and never stored.
type Result struct {
	Venue      models.FrontendVenue `json:"venue"`
	Coords     models.Coordinates   `json:"coords"`
	DistanceMi float64              `json:"distanceMi"`
}

// HaversineMiles returns the great-circle distance between a and b in miles
// on a spherical Earth of radius 6371 km.
func HaversineMiles(a, b models.Coordinates) float64 {
	if a == b {
		return 0
	}
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)

	// cos(lat1)*cos(lat2) is multiplied first so d(a,b) == d(b,a) bit for bit.
	cosProduct := math.Cos(lat1) * math.Cos(lat2)
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + sLon*sLon*cosProduct
	km := 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
	return km * milesPerKm
}

// Engine resolves venue coordinates against an injected cache. A nil cache
// means only venues with their own coordinates are considered.
type Engine struct {
	cache GeocodeCache
}

func NewEngine(cache GeocodeCache) *Engine {
	return &Engine{cache: cache}
}

// Resolve returns the venue's own coordinates when both are present,
// otherwise a cached geocode result.
func (e *Engine) Resolve(v models.FrontendVenue) (models.Coordinates, bool) {
	if c, ok := v.Coordinates(); ok {
		return c, true
	}
	if e == nil || e.cache == nil {
		return models.Coordinates{}, false
	}
	return e.cache.Lookup(v.VenueID)
}

// Nearby returns the venues within radiusMiles of origin sorted by distance,
// ascending for Ascending and descending for anything else. Ties keep input
// order. Venues whose coordinates cannot be resolved are left out.
func (e *Engine) Nearby(origin models.Coordinates, venues []models.FrontendVenue, radiusMiles float64, order Order) []Result {
	results := make([]Result, 0, len(venues))
	for _, v := range venues {
		coords, ok := e.Resolve(v)
		if !ok {
			continue
		}
		d := HaversineMiles(origin, coords)
		if d > radiusMiles {
			continue
		}
		results = append(results, Result{Venue: v, Coords: coords, DistanceMi: d})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		if order == Ascending {
			return cmp.Compare(a.DistanceMi, b.DistanceMi)
		}
		return cmp.Compare(b.DistanceMi, a.DistanceMi)
	})
	return results
}

// ParseOrder maps a query value to an Order, defaulting to Ascending.
func ParseOrder(s string) Order {
	if Order(s) == Descending {
		return Descending
	}
	return Ascending
}

// Missing returns the venues that have neither their own coordinates nor a
// cached geocode, i.e. the ones a geocoder should resolve.
func (e *Engine) Missing(venues []models.FrontendVenue) []models.FrontendVenue {
	var out []models.FrontendVenue
	for _, v := range venues {
		if _, ok := e.Resolve(v); !ok {
			out = append(out, v)
		}
	}
	return out
}
