// Package layers defines the weather overlay categories a weather map can
// display, the payloads they draw and the frames they animate through.
package layers

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedLayerType is returned for layer types or codes that are not in
// the supported-layer registry.
var ErrUnsupportedLayerType = errors.New("unsupported layer type")

// Category groups layer types by how they are drawn.
type Category string

const (
	CategoryTile    Category = "tile"
	CategoryPoint   Category = "point"
	CategoryPolygon Category = "polygon"
)

// Type identifies a weather overlay category. Values are stable and safe to
// use as map keys.
type Type int

const (
	TypeUnknown Type = iota

	// Tile layers.
	Radar
	Satellite
	SatelliteVisible
	Temperatures
	WindSpeeds
	DewPoints
	Humidity
	SnowDepth
	Alerts

	// Point layers.
	TemperaturePoints
	StormCells
	StormReports
	Earthquakes
	Fires
	Records

	// Polygon layers.
	AdvisoryPolygons
	ConvectiveOutlook
)

// Info describes one supported layer type.
type Info struct {
	Type     Type          `json:"type"`
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Category Category      `json:"category"`
	Endpoint string        `json:"endpoint,omitempty"`
	Interval time.Duration `json:"interval"`
}

// NaiveFrameCount is the number of frames the layer's native data cadence
// produces across [start, end], both ends included.
func (i Info) NaiveFrameCount(start, end time.Time) int {
	if !end.After(start) || i.Interval <= 0 {
		return 0
	}
	return int(end.Sub(start)/i.Interval) + 1
}

var supported = []Info{
	{Type: Radar, Code: "radar", Name: "Radar", Category: CategoryTile, Interval: 5 * time.Minute},
	{Type: Satellite, Code: "satellite", Name: "Satellite", Category: CategoryTile, Interval: 15 * time.Minute},
	{Type: SatelliteVisible, Code: "satellite-visible", Name: "Visible Satellite", Category: CategoryTile, Interval: 15 * time.Minute},
	{Type: Temperatures, Code: "temperatures", Name: "Temperatures", Category: CategoryTile, Interval: time.Hour},
	{Type: WindSpeeds, Code: "wind-speeds", Name: "Wind Speeds", Category: CategoryTile, Interval: time.Hour},
	{Type: DewPoints, Code: "dew-points", Name: "Dew Points", Category: CategoryTile, Interval: time.Hour},
	{Type: Humidity, Code: "humidity", Name: "Humidity", Category: CategoryTile, Interval: time.Hour},
	{Type: SnowDepth, Code: "snow-depth", Name: "Snow Depth", Category: CategoryTile, Interval: 6 * time.Hour},
	{Type: Alerts, Code: "alerts", Name: "Advisories", Category: CategoryTile, Interval: 10 * time.Minute},

	{Type: TemperaturePoints, Code: "temperature-points", Name: "Temperatures (points)", Category: CategoryPoint, Endpoint: "observations", Interval: 10 * time.Minute},
	{Type: StormCells, Code: "stormcells", Name: "Storm Cells", Category: CategoryPoint, Endpoint: "stormcells", Interval: 10 * time.Minute},
	{Type: StormReports, Code: "stormreports", Name: "Storm Reports", Category: CategoryPoint, Endpoint: "stormreports", Interval: 10 * time.Minute},
	{Type: Earthquakes, Code: "earthquakes", Name: "Earthquakes", Category: CategoryPoint, Endpoint: "earthquakes", Interval: 10 * time.Minute},
	{Type: Fires, Code: "fires", Name: "Fires", Category: CategoryPoint, Endpoint: "fires", Interval: time.Hour},
	{Type: Records, Code: "records", Name: "Daily Records", Category: CategoryPoint, Endpoint: "records", Interval: 24 * time.Hour},

	{Type: AdvisoryPolygons, Code: "advisories", Name: "Advisories (polygons)", Category: CategoryPolygon, Endpoint: "advisories", Interval: 10 * time.Minute},
	{Type: ConvectiveOutlook, Code: "convective-outlook", Name: "Convective Outlook", Category: CategoryPolygon, Endpoint: "convective/outlook", Interval: 6 * time.Hour},
}

var (
	byType = make(map[Type]Info, len(supported))
	byCode = make(map[string]Info, len(supported))
)

func init() {
	for _, info := range supported {
		byType[info.Type] = info
		byCode[info.Code] = info
	}
}

// Supported returns a copy of the supported-layer registry in display order.
func Supported() []Info {
	out := make([]Info, len(supported))
	copy(out, supported)
	return out
}

// ByCategory returns the supported layers grouped by category, the shape used
// to build layer menus.
func ByCategory() map[Category][]Info {
	out := make(map[Category][]Info, 3)
	for _, info := range supported {
		out[info.Category] = append(out[info.Category], info)
	}
	return out
}

// Lookup returns the registry entry for t.
func Lookup(t Type) (Info, bool) {
	info, ok := byType[t]
	return info, ok
}

// MustLookup is Lookup for call sites where an unknown type is a programming
// error.
func MustLookup(t Type) Info {
	info, ok := byType[t]
	if !ok {
		panic(fmt.Sprintf("layers: unknown layer type %d", int(t)))
	}
	return info
}

// Parse maps a layer code such as "radar" back to its Type.
func Parse(code string) (Type, error) {
	info, ok := byCode[code]
	if !ok {
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedLayerType, code)
	}
	return info.Type, nil
}

// Valid reports whether t is in the registry.
func (t Type) Valid() bool {
	_, ok := byType[t]
	return ok
}

// Code returns the layer's code, or "unknown".
func (t Type) Code() string {
	if info, ok := byType[t]; ok {
		return info.Code
	}
	return "unknown"
}

func (t Type) String() string { return t.Code() }

// Category returns the layer's category, or "" for unknown types.
func (t Type) Category() Category {
	return byType[t].Category
}

// MarshalText encodes the type as its code, which also makes Type usable as a
// JSON object key.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.Code()), nil
}

// UnmarshalText decodes a layer code.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
