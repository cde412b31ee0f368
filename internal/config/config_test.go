package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weathermap.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
api:
  client_id: abc
  client_secret: xyz
map:
  type: google
  layers: [satellite, radar, temperature-points]
  tile_overlay_level: above-labels
  animation_duration: 4s
  request_options:
    temperature-points:
      filter: pws
mqtt:
  topic_prefix: wx
`

func TestLoadFileWithEnvOverrides(t *testing.T) {
	t.Setenv("WEATHERMAP_MAP_ZOOM", "6")
	t.Setenv("WEATHERMAP_HTTP_PORT", "9090")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.ClientID != "abc" || cfg.API.BaseURL != weatherapi.DefaultBaseURL || cfg.API.Timeout != 10*time.Second {
		t.Fatalf("api = %+v", cfg.API)
	}
	if cfg.Map.Zoom != 6 || cfg.HTTP.Port != "9090" {
		t.Fatalf("env overrides not applied: zoom=%d port=%s", cfg.Map.Zoom, cfg.HTTP.Port)
	}
	if cfg.MQTT.TopicPrefix != "wx" || cfg.MQTT.Enabled {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}

	mt, err := cfg.Map.MapType()
	if err != nil || mt != hostmap.Google {
		t.Fatalf("map type = %v, %v", mt, err)
	}
	initial, err := cfg.Map.InitialLayers()
	if err != nil {
		t.Fatal(err)
	}
	if len(initial) != 3 || initial[0] != layers.Satellite || initial[2] != layers.TemperaturePoints {
		t.Fatalf("initial layers = %v", initial)
	}

	settings, err := cfg.Map.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if settings.TileOverlayLevel != hostmap.LevelAboveLabels || settings.AnimationDuration != 4*time.Second {
		t.Fatalf("settings = %+v", settings)
	}
	if settings.MaximumIntervalsForAnimation != 20 || settings.TimelineStartOffsetFromNow != -2*time.Hour {
		t.Fatalf("defaults not carried: %+v", settings)
	}
	opts := settings.RequestOptionsForLayer(layers.TemperaturePoints)
	if opts.Filter != weatherapi.FilterPWS || opts.Limit != 250 {
		t.Fatalf("temperature point options = %+v", opts)
	}
}

func TestLoadFromEnvOnly(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("WEATHERMAP_API_CLIENT_ID", "abc")
	t.Setenv("WEATHERMAP_API_CLIENT_SECRET", "xyz")
	t.Setenv("WEATHERMAP_MAP_LAYERS", "radar,alerts")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	initial, _ := cfg.Map.InitialLayers()
	if len(initial) != 2 || initial[1] != layers.Alerts {
		t.Fatalf("initial layers = %v", initial)
	}
	if cfg.Store.ArchiveRetention != 24*time.Hour || cfg.Map.RefreshInterval != 5*time.Minute {
		t.Fatalf("defaults = %+v / %+v", cfg.Store, cfg.Map)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing credentials", "map:\n  type: apple\n"},
		{"alpha above one", "api: {client_id: a, client_secret: b}\nmap:\n  tile_overlay_alpha: 1.5\n"},
		{"unknown map type", "api: {client_id: a, client_secret: b}\nmap:\n  type: bing\n"},
		{"unknown layer", "api: {client_id: a, client_secret: b}\nmap:\n  layers: [lightning]\n"},
		{"unknown request options layer", "api: {client_id: a, client_secret: b}\nmap:\n  request_options:\n    lightning: {limit: 5}\n"},
		{"zero frames", "api: {client_id: a, client_secret: b}\nmap:\n  max_intervals: 0\n"},
		{"mqtt without broker", "api: {client_id: a, client_secret: b}\nmqtt:\n  enabled: true\n  broker: \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
