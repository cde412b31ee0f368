package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/i474232898/weathermap/internal/events"
	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/mapconfig"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

// EnvPrefix prefixes every environment override, e.g. WEATHERMAP_API_CLIENT_ID.
const EnvPrefix = "WEATHERMAP"

type AppConfig struct {
	API     APIConfig              `mapstructure:"api"`
	Map     MapConfig              `mapstructure:"map"`
	Store   StoreConfig            `mapstructure:"store"`
	MQTT    events.PublisherConfig `mapstructure:"mqtt"`
	HTTP    HTTPConfig             `mapstructure:"http"`
	Verbose bool                   `mapstructure:"verbose"`
}

// APIConfig holds the weather API credentials and client settings.
type APIConfig struct {
	ClientID       string        `mapstructure:"client_id" validate:"required"`
	ClientSecret   string        `mapstructure:"client_secret" validate:"required"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	TileURL        string        `mapstructure:"tile_url" validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	GeocoderAPIKey string        `mapstructure:"geocoder_api_key"`
}

// MapConfig is the file/env form of mapconfig.Config plus the initial map
// state.
type MapConfig struct {
	Type        string         `mapstructure:"type" validate:"oneof=apple google mapbox"`
	MapboxStyle string         `mapstructure:"mapbox_style"`
	Center      geo.Coordinate `mapstructure:"center"`
	Zoom        uint           `mapstructure:"zoom" validate:"lte=22"`
	Layers      []string       `mapstructure:"layers"`
	AutoRefresh bool           `mapstructure:"auto_refresh"`

	RefreshInterval              time.Duration `mapstructure:"refresh_interval" validate:"gte=0"`
	TileOverlayAlpha             float64       `mapstructure:"tile_overlay_alpha" validate:"gte=0,lte=1"`
	TileOverlayLevel             string        `mapstructure:"tile_overlay_level" validate:"oneof=above-roads above-labels"`
	AnimationEnabled             bool          `mapstructure:"animation_enabled"`
	AnimationDuration            time.Duration `mapstructure:"animation_duration" validate:"gt=0"`
	AnimationEndDelay            time.Duration `mapstructure:"animation_end_delay" validate:"gte=0"`
	MaximumIntervalsForAnimation int           `mapstructure:"max_intervals" validate:"gte=1"`
	TimelineStartOffset          time.Duration `mapstructure:"timeline_start_offset"`
	TimelineEndOffset            time.Duration `mapstructure:"timeline_end_offset"`
	TimelineScrubbingEnabled     bool          `mapstructure:"timeline_scrubbing"`

	// RequestOptions is keyed by layer code, e.g. "temperature-points".
	RequestOptions map[string]weatherapi.RequestOptions `mapstructure:"request_options" validate:"dive"`
}

type StoreConfig struct {
	// ArchivePath is the SQLite file for payload snapshots. Empty disables
	// the archive.
	ArchivePath      string        `mapstructure:"archive_path"`
	ArchiveRetention time.Duration `mapstructure:"archive_retention" validate:"gte=0"`
	FrameMaxAge      time.Duration `mapstructure:"frame_max_age" validate:"gte=0"`
}

type HTTPConfig struct {
	Port         string        `mapstructure:"port" validate:"required,numeric"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	def := mapconfig.Default()

	v.SetDefault("api.client_id", "")
	v.SetDefault("api.client_secret", "")
	v.SetDefault("api.base_url", weatherapi.DefaultBaseURL)
	v.SetDefault("api.tile_url", weatherapi.DefaultTileURL)
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.cache_ttl", "1m")
	v.SetDefault("api.geocoder_api_key", "")

	v.SetDefault("map.type", "apple")
	v.SetDefault("map.mapbox_style", "")
	v.SetDefault("map.center.lat", 39.8)
	v.SetDefault("map.center.lon", -98.6)
	v.SetDefault("map.zoom", 4)
	v.SetDefault("map.layers", []string{"radar"})
	v.SetDefault("map.auto_refresh", true)
	v.SetDefault("map.refresh_interval", def.RefreshInterval)
	v.SetDefault("map.tile_overlay_alpha", def.TileOverlayAlpha)
	v.SetDefault("map.tile_overlay_level", def.TileOverlayLevel.String())
	v.SetDefault("map.animation_enabled", def.AnimationEnabled)
	v.SetDefault("map.animation_duration", def.AnimationDuration)
	v.SetDefault("map.animation_end_delay", def.AnimationEndDelay)
	v.SetDefault("map.max_intervals", def.MaximumIntervalsForAnimation)
	v.SetDefault("map.timeline_start_offset", def.TimelineStartOffsetFromNow)
	v.SetDefault("map.timeline_end_offset", def.TimelineEndOffsetFromNow)
	v.SetDefault("map.timeline_scrubbing", def.TimelineScrubbingEnabled)

	v.SetDefault("store.archive_path", "./weathermap.db")
	v.SetDefault("store.archive_retention", "24h")
	v.SetDefault("store.frame_max_age", "6h")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "weathermap")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "weathermap")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("verbose", false)
}

// Load reads configuration from an optional YAML file, a .env file and the
// environment, in increasing order of precedence, and validates it.
func Load(configPath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("weathermap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/weathermap")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Map.InitialLayers(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Map.Settings(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MapType returns the configured host map variant.
func (m MapConfig) MapType() (hostmap.MapType, error) {
	return hostmap.ParseMapType(m.Type)
}

// InitialLayers returns the layer types to add at startup, bottom to top.
func (m MapConfig) InitialLayers() ([]layers.Type, error) {
	out := make([]layers.Type, 0, len(m.Layers))
	for _, code := range m.Layers {
		t, err := layers.Parse(strings.TrimSpace(code))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Settings converts the file/env form into the weather map's Config.
func (m MapConfig) Settings() (*mapconfig.Config, error) {
	cfg := mapconfig.Default()
	cfg.RefreshInterval = m.RefreshInterval
	cfg.TileOverlayAlpha = m.TileOverlayAlpha
	cfg.TileOverlayLevel = hostmap.LevelAboveRoads
	if m.TileOverlayLevel == hostmap.LevelAboveLabels.String() {
		cfg.TileOverlayLevel = hostmap.LevelAboveLabels
	}
	cfg.AnimationEnabled = m.AnimationEnabled
	cfg.AnimationDuration = m.AnimationDuration
	cfg.AnimationEndDelay = m.AnimationEndDelay
	cfg.MaximumIntervalsForAnimation = m.MaximumIntervalsForAnimation
	cfg.TimelineStartOffsetFromNow = m.TimelineStartOffset
	cfg.TimelineEndOffsetFromNow = m.TimelineEndOffset
	cfg.TimelineScrubbingEnabled = m.TimelineScrubbingEnabled
	cfg.MapboxMapID = m.MapboxStyle

	for code, opts := range m.RequestOptions {
		t, err := layers.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("request options: %w", err)
		}
		cfg.SetRequestOptions(t, opts)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
