package mapconfig

import (
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
)

// OverlayStyle is how a whole layer overlay is composited.
type OverlayStyle struct {
	Alpha float64       `json:"alpha"`
	Level hostmap.Level `json:"level"`
}

// LegendStop is one labelled color of a legend.
type LegendStop struct {
	Value float64 `json:"value"`
	Color string  `json:"color" validate:"hexcolor"`
	Label string  `json:"label,omitempty"`
}

// LegendStyle describes the legend shown for a layer.
type LegendStyle struct {
	Title string       `json:"title"`
	Units string       `json:"units,omitempty"`
	Stops []LegendStop `json:"stops" validate:"dive"`
}

// ColorFor returns the color of the highest stop at or below v, or the first
// stop's color when v is below the scale.
func (l LegendStyle) ColorFor(v float64) string {
	if len(l.Stops) == 0 {
		return ""
	}
	color := l.Stops[0].Color
	for _, s := range l.Stops {
		if v < s.Value {
			break
		}
		color = s.Color
	}
	return color
}

// StyleForOverlay returns the compositing style of t's overlay. Tile layers
// follow the configured alpha and level; annotation and polygon layers draw
// opaque above labels.
func (c *Config) StyleForOverlay(t layers.Type) OverlayStyle {
	if t.Category() == layers.CategoryTile {
		return OverlayStyle{Alpha: c.TileOverlayAlpha, Level: c.TileOverlayLevel}
	}
	return OverlayStyle{Alpha: 1, Level: hostmap.LevelAboveLabels}
}

// StyleForAnnotation returns the style of a point item. Layers with a legend
// tint their annotations by value.
func (c *Config) StyleForAnnotation(a hostmap.Annotation) hostmap.AnnotationStyle {
	style, ok := c.AnnotationStyles[a.LayerType]
	if !ok {
		style = c.DefaultAnnotationStyle
	}
	if legend, ok := c.LegendStyles[a.LayerType]; ok && a.Value != nil {
		if color := legend.ColorFor(*a.Value); color != "" {
			style.Tint = color
		}
	}
	return style
}

// StyleForPolygon returns the style of a polygon item, looked up by its code.
func (c *Config) StyleForPolygon(s hostmap.Shape) hostmap.PolygonStyle {
	if style, ok := c.PolygonStyles[s.Code]; ok {
		return style
	}
	return c.DefaultPolygonStyle
}

// LegendStyleForLayer returns the legend for t, if one is configured.
func (c *Config) LegendStyleForLayer(t layers.Type) (LegendStyle, bool) {
	l, ok := c.LegendStyles[t]
	return l, ok
}

func defaultAnnotationStyles() map[layers.Type]hostmap.AnnotationStyle {
	return map[layers.Type]hostmap.AnnotationStyle{
		layers.TemperaturePoints: {Icon: "label", Size: 18, ShowsCallout: true},
		layers.StormCells:        {Icon: "stormcell", Tint: "#dc2626", Size: 16, ShowsCallout: true},
		layers.StormReports:      {Icon: "report", Tint: "#7c3aed", Size: 14, ShowsCallout: true},
		layers.Earthquakes:       {Icon: "quake", Tint: "#92400e", Size: 14, ShowsCallout: true},
		layers.Fires:             {Icon: "fire", Tint: "#ea580c", Size: 14, ShowsCallout: true},
		layers.Records:           {Icon: "record", Tint: "#0f766e", Size: 12, ShowsCallout: true},
	}
}

// defaultPolygonStyles covers the convective outlook categories.
func defaultPolygonStyles() map[string]hostmap.PolygonStyle {
	return map[string]hostmap.PolygonStyle{
		"tstm": {Fill: "#c1e9c1", FillAlpha: 0.4, Stroke: "#55bb55", StrokeWidth: 1},
		"mrgl": {Fill: "#66a366", FillAlpha: 0.4, Stroke: "#005500", StrokeWidth: 1},
		"slgt": {Fill: "#f6f67f", FillAlpha: 0.4, Stroke: "#dddd00", StrokeWidth: 1},
		"enh":  {Fill: "#e6c27f", FillAlpha: 0.4, Stroke: "#ff9900", StrokeWidth: 1},
		"mdt":  {Fill: "#e67f7f", FillAlpha: 0.4, Stroke: "#cc0000", StrokeWidth: 1},
		"high": {Fill: "#ff7fff", FillAlpha: 0.4, Stroke: "#cc00cc", StrokeWidth: 1},
	}
}

func defaultLegendStyles() map[layers.Type]LegendStyle {
	return map[layers.Type]LegendStyle{
		layers.TemperaturePoints: {
			Title: "Temperature",
			Units: "°C",
			Stops: []LegendStop{
				{Value: -30, Color: "#7e22ce", Label: "-30"},
				{Value: -15, Color: "#2563eb", Label: "-15"},
				{Value: 0, Color: "#06b6d4", Label: "0"},
				{Value: 10, Color: "#22c55e", Label: "10"},
				{Value: 20, Color: "#eab308", Label: "20"},
				{Value: 30, Color: "#ef4444", Label: "30"},
			},
		},
		layers.Earthquakes: {
			Title: "Magnitude",
			Stops: []LegendStop{
				{Value: 0, Color: "#fde68a", Label: "<3"},
				{Value: 3, Color: "#f59e0b", Label: "3"},
				{Value: 5, Color: "#dc2626", Label: "5"},
				{Value: 7, Color: "#7f1d1d", Label: "7+"},
			},
		},
	}
}
