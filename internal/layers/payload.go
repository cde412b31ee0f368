package layers

import (
	"sort"
	"time"

	"github.com/i474232898/weathermap/internal/geo"
)

// Point is a single point-layer item, e.g. a station observation or a storm
// report.
type Point struct {
	ID         string         `json:"id"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Time       time.Time      `json:"time"`
	Title      string         `json:"title,omitempty"`
	Value      *float64       `json:"value,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Polygon is a single polygon-layer item, e.g. an advisory area. Rings are
// closed loops; the first ring is the outer boundary.
type Polygon struct {
	ID         string             `json:"id"`
	Name       string             `json:"name,omitempty"`
	Code       string             `json:"code,omitempty"`
	Rings      [][]geo.Coordinate `json:"rings"`
	Issued     time.Time          `json:"issued,omitempty"`
	Expires    time.Time          `json:"expires,omitempty"`
	Properties map[string]any     `json:"properties,omitempty"`
}

// ActiveAt reports whether the polygon is in effect at t. A polygon with no
// issue time is in effect until it expires; one with no expiry never does.
func (p Polygon) ActiveAt(t time.Time) bool {
	if !p.Issued.IsZero() && t.Before(p.Issued) {
		return false
	}
	return p.Expires.IsZero() || t.Before(p.Expires)
}

// Payload is the data currently drawn by one layer. Exactly one of TileURL,
// Points or Polygons is populated, depending on the layer's category.
type Payload struct {
	Type      Type      `json:"type"`
	Time      time.Time `json:"time"`
	TileURL   string    `json:"tileUrl,omitempty"`
	Points    []Point   `json:"points,omitempty"`
	Polygons  []Polygon `json:"polygons,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Empty reports whether the payload carries nothing drawable.
func (p Payload) Empty() bool {
	return p.TileURL == "" && len(p.Points) == 0 && len(p.Polygons) == 0
}

// Frame is one time-stamped entry of an animation frame-set, holding the
// payload of every animated layer at Time.
type Frame struct {
	Time     time.Time        `json:"time"`
	Payloads map[Type]Payload `json:"payloads"`
}

// NearestIndex returns the index of the entry in sorted times closest to t,
// preferring the earlier entry on ties. It returns -1 for an empty slice.
func NearestIndex(times []time.Time, t time.Time) int {
	n := len(times)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return !times[i].Before(t) })
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	}
	if t.Sub(times[i-1]) <= times[i].Sub(t) {
		return i - 1
	}
	return i
}
