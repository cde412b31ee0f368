// Package mapconfig holds the tunables of a weather map: refresh cadence,
// overlay appearance, timeline and animation settings, per-layer request
// options and styles.
package mapconfig

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

const (
	DefaultRefreshInterval              = 5 * time.Minute
	DefaultTileOverlayAlpha             = 0.8
	DefaultAnimationDuration            = 2 * time.Second
	DefaultAnimationEndDelay            = 2 * time.Second
	DefaultMaximumIntervalsForAnimation = 20
	DefaultTimelineStartOffsetFromNow   = -2 * time.Hour
	DefaultTimelineEndOffsetFromNow     = 0
)

// Config is read by the weather map on every operation that needs a setting,
// so changes apply to the next refresh, load or animation. It is not safe
// for concurrent mutation.
type Config struct {
	RefreshInterval  time.Duration `json:"refreshInterval" validate:"gte=0"`
	TileOverlayAlpha float64       `json:"tileOverlayAlpha" validate:"gte=0,lte=1"`
	TileOverlayLevel hostmap.Level `json:"tileOverlayLevel" validate:"gte=0,lte=1"`

	// DataRequestOptions overrides the built-in request options per layer.
	DataRequestOptions map[layers.Type]weatherapi.RequestOptions `json:"dataRequestOptions,omitempty" validate:"dive"`

	AnimationEnabled             bool          `json:"animationEnabled"`
	AnimationDuration            time.Duration `json:"animationDuration" validate:"gt=0"`
	AnimationEndDelay            time.Duration `json:"animationEndDelay" validate:"gte=0"`
	MaximumIntervalsForAnimation int           `json:"maximumIntervalsForAnimation" validate:"gte=1"`
	TimelineStartOffsetFromNow   time.Duration `json:"timelineStartOffsetFromNow"`
	TimelineEndOffsetFromNow     time.Duration `json:"timelineEndOffsetFromNow"`
	TimelineScrubbingEnabled     bool          `json:"timelineScrubbingEnabled"`

	ShowsAnnotationDuringLongPress bool                    `json:"showsAnnotationDuringLongPress"`
	ShowsAnnotationForLongPress    bool                    `json:"showsAnnotationForLongPress"`
	LongPressAnnotationStyle       hostmap.AnnotationStyle `json:"longPressAnnotationStyle"`

	MapboxMapID string `json:"mapboxMapId,omitempty"`

	AnnotationStyles       map[layers.Type]hostmap.AnnotationStyle `json:"annotationStyles,omitempty" validate:"dive"`
	DefaultAnnotationStyle hostmap.AnnotationStyle                 `json:"defaultAnnotationStyle"`
	// PolygonStyles is keyed by polygon code, e.g. an advisory type or an
	// outlook category.
	PolygonStyles       map[string]hostmap.PolygonStyle `json:"polygonStyles,omitempty" validate:"dive"`
	DefaultPolygonStyle hostmap.PolygonStyle            `json:"defaultPolygonStyle"`
	LegendStyles        map[layers.Type]LegendStyle     `json:"legendStyles,omitempty" validate:"dive"`
}

// Default returns a Config with the stock settings.
func Default() *Config {
	return &Config{
		RefreshInterval:              DefaultRefreshInterval,
		TileOverlayAlpha:             DefaultTileOverlayAlpha,
		TileOverlayLevel:             hostmap.LevelAboveRoads,
		DataRequestOptions:           make(map[layers.Type]weatherapi.RequestOptions),
		AnimationEnabled:             true,
		AnimationDuration:            DefaultAnimationDuration,
		AnimationEndDelay:            DefaultAnimationEndDelay,
		MaximumIntervalsForAnimation: DefaultMaximumIntervalsForAnimation,
		TimelineStartOffsetFromNow:   DefaultTimelineStartOffsetFromNow,
		TimelineEndOffsetFromNow:     DefaultTimelineEndOffsetFromNow,
		TimelineScrubbingEnabled:     true,
		ShowsAnnotationForLongPress:  true,
		LongPressAnnotationStyle:     hostmap.AnnotationStyle{Icon: "pin", Tint: "#e8472b", Size: 24, ShowsCallout: true},
		AnnotationStyles:             defaultAnnotationStyles(),
		DefaultAnnotationStyle:       hostmap.AnnotationStyle{Icon: "dot", Tint: "#3b82f6", Size: 12, ShowsCallout: true},
		PolygonStyles:                defaultPolygonStyles(),
		DefaultPolygonStyle:          hostmap.PolygonStyle{Fill: "#f59e0b", FillAlpha: 0.35, Stroke: "#b45309", StrokeWidth: 1},
		LegendStyles:                 defaultLegendStyles(),
	}
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid map config: %w", err)
	}
	return nil
}

// builtinRequestOptions are the per-layer defaults used before any override.
var builtinRequestOptions = map[layers.Type]weatherapi.RequestOptions{
	layers.TemperaturePoints: {Limit: 250, Filter: weatherapi.FilterMetar, Fields: []string{"id", "loc", "place.name", "ob.timestamp", "ob.tempC"}},
	layers.StormCells:        {Limit: 500},
	layers.StormReports:      {Limit: 250, Sort: "dt:-1"},
	layers.Earthquakes:       {Limit: 100, Sort: "mag:-1"},
	layers.Fires:             {Limit: 250},
	layers.Records:           {Limit: 100},
	layers.AdvisoryPolygons:  {Limit: 250},
	layers.ConvectiveOutlook: {Limit: 50},
}

// RequestOptionsForLayer returns the request options for t: the configured
// override merged over the built-in defaults.
func (c *Config) RequestOptionsForLayer(t layers.Type) weatherapi.RequestOptions {
	opts := builtinRequestOptions[t]
	if len(opts.Fields) > 0 {
		opts.Fields = append([]string(nil), opts.Fields...)
	}
	if over, ok := c.DataRequestOptions[t]; ok {
		opts = opts.Merge(over)
	}
	return opts
}

// SetRequestOptions overrides the request options for t.
func (c *Config) SetRequestOptions(t layers.Type, opts weatherapi.RequestOptions) {
	if c.DataRequestOptions == nil {
		c.DataRequestOptions = make(map[layers.Type]weatherapi.RequestOptions)
	}
	c.DataRequestOptions[t] = opts
}

// TimelineRange returns the default animation range relative to now.
func (c *Config) TimelineRange(now time.Time) (start, end time.Time) {
	return now.Add(c.TimelineStartOffsetFromNow), now.Add(c.TimelineEndOffsetFromNow)
}
