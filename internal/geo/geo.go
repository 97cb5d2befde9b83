// Package geo annotates job details with their distance from a configured
// origin.
package geo

import (
	"context"
	"math"
	"strings"
)

const earthRadiusKm = 6371.0

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `mapstructure:"lat" json:"lat"`
	Lng float64 `mapstructure:"lng" json:"lng"`
}

// Geocoder resolves an address to coordinates. ok is false when the address
// is unknown.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, bool, error)
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Coordinates) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// StaticGeocoder looks addresses up in a fixed table. Keys match
// case-insensitively, either exactly or as a substring of the address, so
// "Quận 1, Hồ Chí Minh" resolves through a "hồ chí minh" entry. Longer keys
// win. Addresses outside the table are misses; resolving arbitrary addresses
// needs a Geocoder backed by a maps service.
type StaticGeocoder struct {
	keys   []string
	places map[string]Coordinates
}

// NewStaticGeocoder builds a geocoder from an address table.
func NewStaticGeocoder(places map[string]Coordinates) *StaticGeocoder {
	g := &StaticGeocoder{places: make(map[string]Coordinates, len(places))}
	for k, v := range places {
		key := normalize(k)
		if key == "" {
			continue
		}
		if _, dup := g.places[key]; !dup {
			g.keys = append(g.keys, key)
		}
		g.places[key] = v
	}
	sortByLengthDesc(g.keys)
	return g
}

// Geocode implements Geocoder.
func (g *StaticGeocoder) Geocode(_ context.Context, address string) (Coordinates, bool, error) {
	addr := normalize(address)
	if addr == "" {
		return Coordinates{}, false, nil
	}
	if c, ok := g.places[addr]; ok {
		return c, true, nil
	}
	for _, k := range g.keys {
		if strings.Contains(addr, k) {
			return g.places[k], true, nil
		}
	}
	return Coordinates{}, false, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sortByLengthDesc(keys []string) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func less(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}
