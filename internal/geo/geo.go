package geo

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// String formats the coordinate the way the weather API expects it in a place query.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// Bounds is an axis-aligned bounding box. South-west and north-east corners.
type Bounds struct {
	SouthWest Coordinate `json:"southWest"`
	NorthEast Coordinate `json:"northEast"`
}

// IsZero reports whether the bounds were never set.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Contains reports whether c falls inside b (inclusive).
func (b Bounds) Contains(c Coordinate) bool {
	return c.Lat >= b.SouthWest.Lat && c.Lat <= b.NorthEast.Lat &&
		c.Lon >= b.SouthWest.Lon && c.Lon <= b.NorthEast.Lon
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Coordinate {
	return Coordinate{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lon: (b.SouthWest.Lon + b.NorthEast.Lon) / 2,
	}
}

// String returns "minLat,minLon,maxLat,maxLon", the bounding box form used by
// the /within actions.
func (b Bounds) String() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
		b.SouthWest.Lat, b.SouthWest.Lon, b.NorthEast.Lat, b.NorthEast.Lon)
}

// Region is the visible part of a map: a center and a zoom level.
type Region struct {
	Center Coordinate `json:"center"`
	Zoom   uint       `json:"zoom"`
}

// Bounds approximates the visible box for a 256px-tile web mercator map
// rendered at 1024x768 points.
func (r Region) Bounds() Bounds {
	const (
		viewWidth  = 1024.0
		viewHeight = 768.0
		tileSize   = 256.0
	)
	scale := math.Pow(2, float64(r.Zoom)) * tileSize
	lonSpan := viewWidth / scale * 360
	latSpan := viewHeight / scale * 180

	b := Bounds{
		SouthWest: Coordinate{Lat: r.Center.Lat - latSpan/2, Lon: r.Center.Lon - lonSpan/2},
		NorthEast: Coordinate{Lat: r.Center.Lat + latSpan/2, Lon: r.Center.Lon + lonSpan/2},
	}
	b.SouthWest.Lat = math.Max(b.SouthWest.Lat, -90)
	b.NorthEast.Lat = math.Min(b.NorthEast.Lat, 90)
	b.SouthWest.Lon = math.Max(b.SouthWest.Lon, -180)
	b.NorthEast.Lon = math.Min(b.NorthEast.Lon, 180)
	return b
}
