package geo

import (
	"math"
	"testing"
)

func TestBoundsContainsAndCenter(t *testing.T) {
	b := Bounds{
		SouthWest: Coordinate{Lat: 30, Lon: -100},
		NorthEast: Coordinate{Lat: 40, Lon: -90},
	}
	if !b.Contains(Coordinate{Lat: 35, Lon: -95}) {
		t.Error("expected inside")
	}
	if !b.Contains(b.NorthEast) {
		t.Error("corners are inclusive")
	}
	if b.Contains(Coordinate{Lat: 41, Lon: -95}) {
		t.Error("expected outside")
	}
	if c := b.Center(); c.Lat != 35 || c.Lon != -95 {
		t.Errorf("center = %v", c)
	}
	if got := b.String(); got != "30.0000,-100.0000,40.0000,-90.0000" {
		t.Errorf("String() = %q", got)
	}
	if b.IsZero() || !(Bounds{}).IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestRegionBounds(t *testing.T) {
	r := Region{Center: Coordinate{Lat: 39.8, Lon: -98.6}, Zoom: 4}
	b := r.Bounds()

	if !b.Contains(r.Center) {
		t.Fatal("bounds must contain the center")
	}
	c := b.Center()
	if math.Abs(c.Lat-r.Center.Lat) > 1e-9 || math.Abs(c.Lon-r.Center.Lon) > 1e-9 {
		t.Fatalf("bounds not centered: %v", c)
	}

	zoomed := Region{Center: r.Center, Zoom: 5}.Bounds()
	if span := zoomed.NorthEast.Lon - zoomed.SouthWest.Lon; math.Abs(span*2-(b.NorthEast.Lon-b.SouthWest.Lon)) > 1e-9 {
		t.Fatalf("one zoom level should halve the span, got %f", span)
	}
}

func TestRegionBoundsClampToWorld(t *testing.T) {
	b := Region{Center: Coordinate{Lat: 80, Lon: 170}, Zoom: 0}.Bounds()
	if b.NorthEast.Lat != 90 || b.NorthEast.Lon != 180 || b.SouthWest.Lat < -90 || b.SouthWest.Lon < -180 {
		t.Fatalf("bounds not clamped: %v", b)
	}
}
