package weathermap

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/mapconfig"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

var now = time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

// fakeFetcher serves numbered payloads and records every request.
type fakeFetcher struct {
	mu         sync.Mutex
	seq        int
	layerCalls []weatherapi.LayerRequest
	frameCalls []weatherapi.FrameSetRequest
	layerErr   map[layers.Type]error
	framesErr  error

	// block, when set, holds FetchFrames until it is closed or the request
	// is cancelled.
	block     chan struct{}
	cancelled int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{layerErr: make(map[layers.Type]error)}
}

func (f *fakeFetcher) FetchLayer(_ context.Context, req weatherapi.LayerRequest) (layers.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layerCalls = append(f.layerCalls, req)
	if err := f.layerErr[req.Type]; err != nil {
		return layers.Payload{}, err
	}
	f.seq++
	return payloadFor(req.Type, req.Time, f.seq), nil
}

func (f *fakeFetcher) FetchFrames(ctx context.Context, req weatherapi.FrameSetRequest) ([]layers.Frame, error) {
	f.mu.Lock()
	f.frameCalls = append(f.frameCalls, req)
	block, err := f.block, f.framesErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled++
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	frames := make([]layers.Frame, len(req.Times))
	for i, t := range req.Times {
		frames[i] = layers.Frame{Time: t, Payloads: make(map[layers.Type]layers.Payload)}
		for _, lr := range req.Layers {
			frames[i].Payloads[lr.Type] = payloadFor(lr.Type, t, -1-i)
		}
	}
	return frames, nil
}

func (f *fakeFetcher) layerCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.layerCalls)
}

func (f *fakeFetcher) frameCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frameCalls)
}

func (f *fakeFetcher) setLayerErr(t layers.Type, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layerErr[t] = err
}

func payloadFor(t layers.Type, at time.Time, seq int) layers.Payload {
	p := layers.Payload{Type: t, Time: at, FetchedAt: now}
	switch t.Category() {
	case layers.CategoryTile:
		p.TileURL = fmt.Sprintf("tile://%s/%d", t.Code(), seq)
	case layers.CategoryPoint:
		v := float64(seq)
		p.Points = []layers.Point{{ID: fmt.Sprintf("%s-%d", t.Code(), seq), Coordinate: geo.Coordinate{Lat: 45, Lon: -93}, Time: at, Value: &v}}
	case layers.CategoryPolygon:
		p.Polygons = []layers.Polygon{{ID: fmt.Sprintf("%s-%d", t.Code(), seq), Code: "slgt", Rings: [][]geo.Coordinate{{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 1, Lon: 2}}}}}
	}
	return p
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu       sync.Mutex
	added    []layers.Type
	removed  []layers.Type
	updated  []layers.Type
	failed   []error
	animErrs []error
	times    []time.Time
	regions  []geo.Region
	taps     []hostmap.Annotation
	states   chan AnimationState
}

func newRecorder() *recorder {
	return &recorder{states: make(chan AnimationState, 256)}
}

func (r *recorder) LayerAdded(t layers.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, t)
}

func (r *recorder) LayerRemoved(t layers.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, t)
}

func (r *recorder) LayerUpdated(t layers.Type, _ layers.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, t)
}

func (r *recorder) LayerFailed(_ layers.Type, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *recorder) AnimationStateChanged(s AnimationState) {
	select {
	case r.states <- s:
	default:
	}
}

func (r *recorder) AnimationFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.animErrs = append(r.animErrs, err)
}

func (r *recorder) TimelineChanged(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, t)
}

func (r *recorder) RegionChanged(g geo.Region) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions = append(r.regions, g)
}

func (r *recorder) AnnotationTapped(a hostmap.Annotation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taps = append(r.taps, a)
}

func (r *recorder) timeline() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.times...)
}

func (r *recorder) waitFor(t *testing.T, want AnimationState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for animation state %s", want)
		}
	}
}

// testMap wires a weather map to an Apple host and a fake fetcher.
func testMap(t *testing.T, mutate func(cfg *mapconfig.Config)) (*WeatherMap, *fakeFetcher, *recorder) {
	t.Helper()
	cfg := mapconfig.Default()
	cfg.AnimationDuration = time.Hour
	if mutate != nil {
		mutate(cfg)
	}
	f := newFakeFetcher()
	m := New(hostmap.NewApple(), f, cfg, WithClock(fixedClock), WithLogger(zap.NewNop()))
	rec := newRecorder()
	m.Register(rec)
	t.Cleanup(m.Close)
	return m, f, rec
}

func overlayIDs(m *WeatherMap) []string {
	var out []string
	for _, o := range m.Host().Overlays() {
		out = append(out, o.ID)
	}
	return out
}

func weatherOpts(filter string) weatherapi.RequestOptions {
	return weatherapi.RequestOptions{Filter: filter}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
