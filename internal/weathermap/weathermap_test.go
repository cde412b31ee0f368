package weathermap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/mapconfig"
)

func TestAddAndRemoveEverySupportedLayer(t *testing.T) {
	ctx := context.Background()
	for _, info := range layers.Supported() {
		t.Run(info.Code, func(t *testing.T) {
			m, _, rec := testMap(t, nil)

			if err := m.AddLayer(ctx, info.Type); err != nil {
				t.Fatalf("add: %v", err)
			}
			if !m.ContainsLayer(info.Type) || m.DataLayer(info.Type) == nil {
				t.Fatal("layer missing after add")
			}
			if !m.DataLayer(info.Type).Loaded() {
				t.Fatal("initial payload not loaded")
			}

			m.RemoveLayer(info.Type)
			if m.ContainsLayer(info.Type) || m.DataLayer(info.Type) != nil {
				t.Fatal("layer still present after remove")
			}
			if len(m.Host().Overlays()) != 0 {
				t.Fatal("overlay left on host")
			}
			if len(rec.added) != 1 || len(rec.removed) != 1 {
				t.Fatalf("observer saw added=%v removed=%v", rec.added, rec.removed)
			}
		})
	}
}

func TestAddExistingLayerIsNoop(t *testing.T) {
	ctx := context.Background()
	m, f, _ := testMap(t, nil)

	_ = m.AddLayer(ctx, layers.Radar)
	_ = m.AddLayer(ctx, layers.Radar)

	if n := len(m.Host().Overlays()); n != 1 {
		t.Fatalf("expected 1 overlay, got %d", n)
	}
	if n := f.layerCallCount(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestAddUnsupportedLayerFails(t *testing.T) {
	m, f, _ := testMap(t, nil)

	err := m.AddLayer(context.Background(), layers.Type(999))
	if !errors.Is(err, ErrUnsupportedLayerType) {
		t.Fatalf("expected ErrUnsupportedLayerType, got %v", err)
	}
	if len(m.Host().Overlays()) != 0 || f.layerCallCount() != 0 {
		t.Fatal("unsupported layer touched the host or the network")
	}
}

func TestRemoveAbsentLayerIsNoop(t *testing.T) {
	m, _, rec := testMap(t, nil)
	m.RemoveLayer(layers.Radar)
	if len(rec.removed) != 0 {
		t.Fatal("remove of absent layer notified observers")
	}
}

func TestLayerPositions(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	_ = m.AddLayer(ctx, layers.Radar)
	_ = m.AddLayer(ctx, layers.Satellite, AboveLayer(layers.Radar))
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, []layers.Type{layers.Radar, layers.Satellite}) {
		t.Fatalf("satellite not above radar: %v", got)
	}

	_ = m.AddLayer(ctx, layers.Temperatures, BelowLayer(layers.Radar))
	_ = m.AddLayer(ctx, layers.WindSpeeds, AtIndex(1))
	_ = m.AddLayer(ctx, layers.DewPoints, AtIndex(42))
	_ = m.AddLayer(ctx, layers.Humidity, AboveLayer(layers.SnowDepth))

	want := []layers.Type{layers.Temperatures, layers.WindSpeeds, layers.Radar, layers.Satellite, layers.DewPoints, layers.Humidity}
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestAbsentLayerReferenceFallsBackToIndex(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	_ = m.AddLayers(ctx, []layers.Type{layers.Radar, layers.Satellite})
	_ = m.AddLayer(ctx, layers.Temperatures, AboveLayer(layers.SnowDepth), AtIndex(0))
	_ = m.AddLayer(ctx, layers.Humidity, BelowLayer(layers.SnowDepth), AtIndex(1))

	want := []layers.Type{layers.Temperatures, layers.Humidity, layers.Radar, layers.Satellite}
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestInsertLayerAndRemoveLayers(t *testing.T) {
	ctx := context.Background()
	m, _, rec := testMap(t, nil)

	if err := m.AddLayers(ctx, []layers.Type{layers.Radar, layers.Satellite}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertLayer(ctx, layers.Temperatures, 0); err != nil {
		t.Fatal(err)
	}
	want := []layers.Type{layers.Temperatures, layers.Radar, layers.Satellite}
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	m.RemoveLayers([]layers.Type{layers.Radar, layers.Temperatures, layers.Earthquakes})
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, []layers.Type{layers.Satellite}) {
		t.Fatalf("after remove = %v", got)
	}
	if len(rec.removed) != 2 {
		t.Fatalf("observer saw removed=%v", rec.removed)
	}
}

func TestOverlaySelectorWinsOverLayerSelector(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	_ = m.AddLayer(ctx, layers.Radar)
	_ = m.AddLayer(ctx, layers.Satellite)
	radarOverlay := m.DataLayer(layers.Radar).OverlayID()

	_ = m.AddLayer(ctx, layers.Temperatures, AboveLayer(layers.Satellite), BelowOverlay(radarOverlay))

	want := []layers.Type{layers.Temperatures, layers.Radar, layers.Satellite}
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestActiveLayerTypesIgnoresForeignOverlays(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	if err := m.Host().AddOverlay(hostmap.Overlay{ID: "roads-custom"}, hostmap.Top()); err != nil {
		t.Fatal(err)
	}
	_ = m.AddLayer(ctx, layers.Radar, BelowOverlay("roads-custom"))

	if got := overlayIDs(m); len(got) != 2 || got[1] != "roads-custom" {
		t.Fatalf("host order = %v", got)
	}
	if got := m.ActiveLayerTypes(); !reflect.DeepEqual(got, []layers.Type{layers.Radar}) {
		t.Fatalf("active = %v", got)
	}
}

func TestRefreshPreservesStackPosition(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	_ = m.AddLayers(ctx, []layers.Type{layers.Radar, layers.Satellite, layers.Temperatures})
	before := overlayIDs(m)
	oldURL := m.DataLayer(layers.Satellite).Payload().TileURL

	if err := m.RefreshLayer(ctx, layers.Satellite); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if after := overlayIDs(m); !reflect.DeepEqual(before, after) {
		t.Fatalf("stack changed: %v -> %v", before, after)
	}
	newURL := m.DataLayer(layers.Satellite).Payload().TileURL
	if newURL == oldURL {
		t.Fatal("payload not swapped")
	}
	if got := m.Host().Overlays()[1].TileURL; got != newURL {
		t.Fatalf("host shows %q, want %q", got, newURL)
	}
}

func TestRefreshFailureKeepsLastGoodData(t *testing.T) {
	ctx := context.Background()
	m, f, rec := testMap(t, nil)

	_ = m.AddLayer(ctx, layers.StormCells)
	good := m.DataLayer(layers.StormCells).Payload()

	f.setLayerErr(layers.StormCells, fmt.Errorf("upstream: %w", ErrNetwork))
	err := m.RefreshLayer(ctx, layers.StormCells)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if got := m.DataLayer(layers.StormCells).Payload(); !reflect.DeepEqual(got, good) {
		t.Fatalf("payload changed after failed refresh")
	}
	if len(m.Host().Overlays()[0].Annotations) != 1 {
		t.Fatal("host lost the last good annotations")
	}
	if len(rec.failed) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(rec.failed))
	}
}

func TestRefreshAbsentLayer(t *testing.T) {
	m, _, _ := testMap(t, nil)
	if err := m.RefreshLayer(context.Background(), layers.Radar); !errors.Is(err, ErrLayerNotActive) {
		t.Fatalf("expected ErrLayerNotActive, got %v", err)
	}
}

func TestAddLayerLoadsBeforeReturning(t *testing.T) {
	m, f, rec := testMap(t, nil)

	if err := m.AddLayer(context.Background(), layers.Radar); err != nil {
		t.Fatal(err)
	}
	if !m.DataLayer(layers.Radar).Loaded() || f.layerCallCount() != 1 {
		t.Fatalf("loaded=%v calls=%d", m.DataLayer(layers.Radar).Loaded(), f.layerCallCount())
	}
	if len(rec.updated) != 1 {
		t.Fatalf("updates = %v", rec.updated)
	}
}

func TestInitialLoadFailureLeavesEmptyLayer(t *testing.T) {
	ctx := context.Background()
	m, f, rec := testMap(t, nil)
	f.setLayerErr(layers.Earthquakes, ErrNoData)

	if err := m.AddLayer(ctx, layers.Earthquakes); err != nil {
		t.Fatalf("add: %v", err)
	}
	dl := m.DataLayer(layers.Earthquakes)
	if dl == nil || dl.Loaded() || !dl.Payload().Empty() {
		t.Fatalf("expected empty unloaded layer, got %+v", dl)
	}
	if len(rec.failed) != 1 || !errors.Is(rec.failed[0], ErrNoData) {
		t.Fatalf("failures = %v", rec.failed)
	}
}

func TestRefreshAllAndPointDataOnly(t *testing.T) {
	ctx := context.Background()
	m, f, _ := testMap(t, nil)

	_ = m.AddLayers(ctx, []layers.Type{layers.Radar, layers.TemperaturePoints, layers.AdvisoryPolygons})
	base := f.layerCallCount()

	if err := m.RefreshAllLayers(ctx); err != nil {
		t.Fatal(err)
	}
	if n := f.layerCallCount() - base; n != 3 {
		t.Fatalf("refresh all fetched %d layers, want 3", n)
	}

	m.SetMapCenter(geo.Coordinate{Lat: 44.98, Lon: -93.27}, 8, false)
	base = f.layerCallCount()
	if err := m.UpdatePointDataForCurrentMapBounds(ctx); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	calls := f.layerCalls[base:]
	f.mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("point refresh fetched %d layers, want 2", len(calls))
	}
	wantBounds := geo.Region{Center: geo.Coordinate{Lat: 44.98, Lon: -93.27}, Zoom: 8}.Bounds()
	for _, c := range calls {
		if c.Type.Category() == layers.CategoryTile {
			t.Fatalf("tile layer %s refreshed", c.Type)
		}
		if c.Bounds != wantBounds {
			t.Fatalf("bounds = %v, want %v", c.Bounds, wantBounds)
		}
	}
}

func TestRequestOptionsComeFromConfig(t *testing.T) {
	ctx := context.Background()
	m, f, _ := testMap(t, nil)

	_ = m.AddLayer(ctx, layers.TemperaturePoints)
	m.Config().SetRequestOptions(layers.TemperaturePoints, weatherOpts("pws"))
	_ = m.RefreshLayer(ctx, layers.TemperaturePoints)

	f.mu.Lock()
	defer f.mu.Unlock()
	if got := f.layerCalls[0].Options.Filter; got != "metar" {
		t.Fatalf("initial filter = %q", got)
	}
	if got := f.layerCalls[1].Options.Filter; got != "pws" {
		t.Fatalf("refresh filter = %q", got)
	}
}

func TestAutoRefreshEnableThenDisableMakesNoCalls(t *testing.T) {
	ctx := context.Background()
	m, f, _ := testMap(t, func(cfg *mapconfig.Config) { cfg.RefreshInterval = 50 * time.Millisecond })
	_ = m.AddLayer(ctx, layers.Radar)
	base := f.layerCallCount()

	if err := m.EnableAutoRefresh(); err != nil {
		t.Fatal(err)
	}
	m.DisableAutoRefresh()
	m.DisableAutoRefresh()

	time.Sleep(200 * time.Millisecond)
	if n := f.layerCallCount() - base; n != 0 {
		t.Fatalf("expected no refresh calls, got %d", n)
	}
	if m.AutoRefreshEnabled() {
		t.Fatal("auto-refresh still enabled")
	}
}

func TestAutoRefreshRefreshesLayers(t *testing.T) {
	ctx := context.Background()
	m, f, _ := testMap(t, func(cfg *mapconfig.Config) { cfg.RefreshInterval = 30 * time.Millisecond })
	_ = m.AddLayer(ctx, layers.Radar)
	base := f.layerCallCount()

	if err := m.EnableAutoRefresh(); err != nil {
		t.Fatal(err)
	}
	if err := m.EnableAutoRefresh(); err != nil {
		t.Fatal(err)
	}
	defer m.DisableAutoRefresh()

	deadline := time.Now().Add(2 * time.Second)
	for f.layerCallCount() == base && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.layerCallCount() == base {
		t.Fatal("auto-refresh never ran")
	}
}

type archiveRecorder struct {
	mu    sync.Mutex
	saved []layers.Payload
}

func (a *archiveRecorder) Save(_ context.Context, p layers.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, p)
	return nil
}

func TestSuccessfulLoadsAreArchived(t *testing.T) {
	ctx := context.Background()
	arch := &archiveRecorder{}
	f := newFakeFetcher()
	m := New(hostmap.NewGoogle(), f, nil, WithArchive(arch), WithClock(fixedClock))
	defer m.Close()

	_ = m.AddLayer(ctx, layers.Radar)
	_ = m.RefreshLayer(ctx, layers.Radar)
	f.setLayerErr(layers.Radar, ErrNetwork)
	_ = m.RefreshLayer(ctx, layers.Radar)

	if len(arch.saved) != 2 {
		t.Fatalf("expected 2 archived payloads, got %d", len(arch.saved))
	}
}

func TestObserversNotifiedInOrderAndUnregister(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	var got []string
	unregisterA := m.Register(Funcs{OnLayerAdded: func(layers.Type) { got = append(got, "a") }})
	m.Register(Funcs{OnLayerAdded: func(layers.Type) { got = append(got, "b") }})

	_ = m.AddLayer(ctx, layers.Radar)
	unregisterA()
	_ = m.AddLayer(ctx, layers.Satellite)

	if !reflect.DeepEqual(got, []string{"a", "b", "b"}) {
		t.Fatalf("notifications = %v", got)
	}
}

func TestObserverMayCallBackIntoMap(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)

	var seen []layers.Type
	m.Register(Funcs{OnLayerAdded: func(layers.Type) { seen = m.ActiveLayerTypes() }})
	_ = m.AddLayer(ctx, layers.Radar)

	if !reflect.DeepEqual(seen, []layers.Type{layers.Radar}) {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestRegionAndAnnotationEvents(t *testing.T) {
	ctx := context.Background()
	m, _, rec := testMap(t, nil)
	_ = m.AddLayer(ctx, layers.StormCells)

	m.SetMapCenter(geo.Coordinate{Lat: 35, Lon: -97}, 6, true)
	if len(rec.regions) != 1 || rec.regions[0].Zoom != 6 {
		t.Fatalf("regions = %v", rec.regions)
	}

	a := m.Host().Overlays()[0].Annotations[0]
	m.Host().TapAnnotation(a)
	if len(rec.taps) != 1 || rec.taps[0].ID != a.ID {
		t.Fatalf("taps = %v", rec.taps)
	}
	c, ok := m.Host().Callout()
	if !ok || c.Annotation == nil || c.Annotation.ID != a.ID {
		t.Fatalf("callout = %+v, %v", c, ok)
	}

	m.DismissCallout()
	m.Host().LongPress(geo.Coordinate{Lat: 30, Lon: -90})
	if len(rec.taps) != 2 || rec.taps[1].ID != "long-press" {
		t.Fatalf("long press not reported: %v", rec.taps)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	m, _, _ := testMap(t, nil)
	_ = m.AddLayers(ctx, []layers.Type{layers.Radar, layers.Fires})

	st := m.Snapshot()
	if len(st.Layers) != 2 || st.Layers[0].Type != layers.Radar || st.Layers[1].Items != 1 {
		t.Fatalf("snapshot layers = %+v", st.Layers)
	}
	if st.Animation != Stopped || st.MapType != "apple" || st.AutoRefresh {
		t.Fatalf("snapshot = %+v", st)
	}
}

func TestCloseRejectsNewLayers(t *testing.T) {
	m, _, _ := testMap(t, nil)
	m.Close()
	m.Close()
	if err := m.AddLayer(context.Background(), layers.Radar); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := m.EnableAutoRefresh(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseWhileEnablingAutoRefresh(t *testing.T) {
	for i := 0; i < 20; i++ {
		m, _, _ := testMap(t, func(cfg *mapconfig.Config) { cfg.RefreshInterval = time.Hour })

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := m.EnableAutoRefresh(); err != nil && !errors.Is(err, ErrClosed) {
				t.Errorf("enable: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			m.Close()
		}()
		wg.Wait()

		if m.AutoRefreshEnabled() {
			t.Fatalf("run %d: auto-refresh left running after Close", i)
		}
	}
}
