// Package hostmap models the map a weather map draws onto. Each variant keeps
// an ordered overlay stack using the positioning vocabulary of the map SDK it
// stands in for; none of them renders anything.
package hostmap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/layers"
)

var (
	ErrOverlayNotFound  = errors.New("overlay not on map")
	ErrDuplicateOverlay = errors.New("overlay already on map")
	ErrUnknownMapType   = errors.New("unknown map type")
)

// MapType selects the host map variant.
type MapType int

const (
	Apple MapType = iota
	Google
	Mapbox
)

func (t MapType) String() string {
	switch t {
	case Apple:
		return "apple"
	case Google:
		return "google"
	case Mapbox:
		return "mapbox"
	}
	return fmt.Sprintf("MapType(%d)", int(t))
}

// ParseMapType maps "apple", "google" or "mapbox" to a MapType. The empty
// string selects Apple.
func ParseMapType(s string) (MapType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "apple":
		return Apple, nil
	case "google":
		return Google, nil
	case "mapbox":
		return Mapbox, nil
	}
	return Apple, fmt.Errorf("%w: %q", ErrUnknownMapType, s)
}

// Level is the rendering level of an overlay. Overlays at LevelAboveLabels are
// always drawn above overlays at LevelAboveRoads.
type Level int

const (
	LevelAboveRoads Level = iota
	LevelAboveLabels
)

func (l Level) String() string {
	if l == LevelAboveLabels {
		return "above-labels"
	}
	return "above-roads"
}

// AnnotationStyle controls how a point item is drawn.
type AnnotationStyle struct {
	Icon         string  `json:"icon,omitempty" mapstructure:"icon"`
	Tint         string  `json:"tint,omitempty" mapstructure:"tint" validate:"omitempty,hexcolor"`
	Size         float64 `json:"size,omitempty" mapstructure:"size" validate:"gte=0"`
	ShowsCallout bool    `json:"showsCallout" mapstructure:"shows_callout"`
}

// PolygonStyle controls how a polygon item is drawn.
type PolygonStyle struct {
	Fill        string  `json:"fill,omitempty" mapstructure:"fill" validate:"omitempty,hexcolor"`
	FillAlpha   float64 `json:"fillAlpha" mapstructure:"fill_alpha" validate:"gte=0,lte=1"`
	Stroke      string  `json:"stroke,omitempty" mapstructure:"stroke" validate:"omitempty,hexcolor"`
	StrokeWidth float64 `json:"strokeWidth" mapstructure:"stroke_width" validate:"gte=0"`
}

// Annotation is a point drawn on the map.
type Annotation struct {
	ID         string          `json:"id"`
	LayerType  layers.Type     `json:"layerType"`
	Coordinate geo.Coordinate  `json:"coordinate"`
	Title      string          `json:"title,omitempty"`
	Value      *float64        `json:"value,omitempty"`
	Time       time.Time       `json:"time"`
	Style      AnnotationStyle `json:"style"`
}

// Shape is a polygon drawn on the map.
type Shape struct {
	ID        string             `json:"id"`
	LayerType layers.Type        `json:"layerType"`
	Name      string             `json:"name,omitempty"`
	Code      string             `json:"code,omitempty"`
	Rings     [][]geo.Coordinate `json:"rings"`
	Style     PolygonStyle       `json:"style"`
}

// Overlay is one entry of the host map's overlay stack. Tile overlays carry a
// URL template, point overlays annotations and polygon overlays shapes.
type Overlay struct {
	ID          string       `json:"id"`
	LayerType   layers.Type  `json:"layerType"`
	Level       Level        `json:"level"`
	Alpha       float64      `json:"alpha"`
	Time        time.Time    `json:"time"`
	TileURL     string       `json:"tileUrl,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Shapes      []Shape      `json:"shapes,omitempty"`
}

// Placement says where a new overlay goes. The zero value means on top.
type Placement struct {
	above   string
	below   string
	index   int
	indexed bool
}

// Top places an overlay above everything else at its level.
func Top() Placement { return Placement{} }

// Above places an overlay directly above the overlay with the given ID.
func Above(id string) Placement { return Placement{above: id} }

// Below places an overlay directly below the overlay with the given ID.
func Below(id string) Placement { return Placement{below: id} }

// AtIndex places an overlay at index i of the bottom-to-top stack.
func AtIndex(i int) Placement { return Placement{index: i, indexed: true} }

func (p Placement) String() string {
	switch {
	case p.above != "":
		return "above " + p.above
	case p.below != "":
		return "below " + p.below
	case p.indexed:
		return fmt.Sprintf("at %d", p.index)
	}
	return "top"
}

// Callout is an info bubble anchored to a coordinate.
type Callout struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Title      string         `json:"title"`
	Body       string         `json:"body,omitempty"`
	Annotation *Annotation    `json:"annotation,omitempty"`
}

// Listener receives user-driven map events.
type Listener interface {
	RegionChanged(r geo.Region)
	AnnotationTapped(a Annotation)
	LongPressed(c geo.Coordinate)
}

// HostMap is the capability a weather map needs from the map it draws on.
// Implementations are safe for concurrent use; listeners are called without
// any internal lock held.
type HostMap interface {
	Type() MapType

	AddOverlay(o Overlay, p Placement) error
	RemoveOverlay(id string) error
	// ReplaceOverlay swaps the content of an overlay already on the map,
	// keeping its stack position.
	ReplaceOverlay(o Overlay) error
	// Overlays returns the stack bottom to top.
	Overlays() []Overlay

	SetRegion(center geo.Coordinate, zoom uint, animated bool)
	Region() geo.Region

	ShowCallout(c Callout)
	DismissCallout()
	Callout() (Callout, bool)

	Subscribe(l Listener) (unsubscribe func())
	TapAnnotation(a Annotation)
	LongPress(c geo.Coordinate)
}

// New returns an empty host map of the given type centered on 0,0 at zoom 3.
func New(t MapType) (HostMap, error) {
	switch t {
	case Apple:
		return NewApple(), nil
	case Google:
		return NewGoogle(), nil
	case Mapbox:
		return NewMapbox(""), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownMapType, int(t))
}
