// Package weathermap composes weather layers onto a host map. It keeps the
// ordered stack of active data layers, refreshes their data on demand or on a
// schedule, and animates them across a timeline.
package weathermap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/mapconfig"
	"github.com/i474232898/weathermap/internal/observability"
	"github.com/i474232898/weathermap/internal/scheduler"
	"github.com/i474232898/weathermap/internal/store"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

// Fetcher loads layer data. weatherapi.Client implements it.
type Fetcher interface {
	FetchLayer(ctx context.Context, req weatherapi.LayerRequest) (layers.Payload, error)
	FetchFrames(ctx context.Context, req weatherapi.FrameSetRequest) ([]layers.Frame, error)
}

// Archive keeps a history of refreshed payloads. store.Archive implements it.
type Archive interface {
	Save(ctx context.Context, p layers.Payload) error
}

// WeatherMap is safe for concurrent use. Every host map mutation happens
// under one lock; network fetches run outside it.
type WeatherMap struct {
	mu sync.Mutex

	host    hostmap.HostMap
	fetcher Fetcher
	cfg     *mapconfig.Config
	logger  *zap.Logger
	archive Archive
	now     func() time.Time

	layers map[layers.Type]*DataLayer

	// animation
	state       AnimationState
	timeline    Timeline
	fixedRange  bool
	frames      *store.FrameStore
	frameIndex  int
	startFrom   time.Time
	loadGen     uint64
	loadCancel  context.CancelFunc
	playGen     uint64
	playCancel  context.CancelFunc
	refresher   *scheduler.Scheduler
	observers   registry
	unsubscribe func()
	baseCtx     context.Context
	cancelAll   context.CancelFunc
	closed      bool
}

// Option configures a WeatherMap.
type Option func(m *WeatherMap)

func WithLogger(l *zap.Logger) Option {
	return func(m *WeatherMap) { m.logger = l }
}

// WithArchive records every successfully refreshed payload.
func WithArchive(a Archive) Option {
	return func(m *WeatherMap) { m.archive = a }
}

// WithClock overrides time.Now for timeline defaults.
func WithClock(now func() time.Time) Option {
	return func(m *WeatherMap) { m.now = now }
}

// WithFrameStore sets the animation frame cache.
func WithFrameStore(s *store.FrameStore) Option {
	return func(m *WeatherMap) { m.frames = s }
}

// New returns a weather map drawing onto host. A nil cfg uses
// mapconfig.Default().
func New(host hostmap.HostMap, fetcher Fetcher, cfg *mapconfig.Config, opts ...Option) *WeatherMap {
	if cfg == nil {
		cfg = mapconfig.Default()
	}
	m := &WeatherMap{
		host:    host,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
		layers:  make(map[layers.Type]*DataLayer),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.frames == nil {
		m.frames = store.NewFrameStore(cfg.MaximumIntervalsForAnimation, 0)
	}
	m.refresher = scheduler.New("auto-refresh", m.logger)
	m.baseCtx, m.cancelAll = context.WithCancel(context.Background())
	m.timeline = m.defaultTimelineLocked()
	m.unsubscribe = host.Subscribe(hostListener{m: m})
	return m
}

// Config returns the configuration the map reads its settings from.
func (m *WeatherMap) Config() *mapconfig.Config { return m.cfg }

// Host returns the host map.
func (m *WeatherMap) Host() hostmap.HostMap { return m.host }

// Register adds an observer and returns a func that removes it.
func (m *WeatherMap) Register(o Observer) (unregister func()) {
	return m.observers.add(o)
}

func (m *WeatherMap) emit(events []event) {
	m.observers.notify(events)
}

// Position selects where AddLayer places a new layer.
type Position func(p *position)

type position struct {
	aboveType    layers.Type
	belowType    layers.Type
	aboveOverlay string
	belowOverlay string
	index        int
	indexed      bool
}

// AboveLayer places the new layer directly above the layer of type t.
func AboveLayer(t layers.Type) Position { return func(p *position) { p.aboveType = t } }

// BelowLayer places the new layer directly below the layer of type t.
func BelowLayer(t layers.Type) Position { return func(p *position) { p.belowType = t } }

// AboveOverlay places the new layer directly above a host overlay.
func AboveOverlay(id string) Position { return func(p *position) { p.aboveOverlay = id } }

// BelowOverlay places the new layer directly below a host overlay.
func BelowOverlay(id string) Position { return func(p *position) { p.belowOverlay = id } }

// AtIndex places the new layer at index i of the host's overlay stack.
func AtIndex(i int) Position { return func(p *position) { p.index, p.indexed = i, true } }

// placementLocked maps positions onto a host placement. Overlay references
// win over layer-type references, which win over an index. A layer-type
// reference to a type not on the map is skipped.
func (m *WeatherMap) placementLocked(opts []Position) hostmap.Placement {
	var p position
	for _, opt := range opts {
		opt(&p)
	}
	if p.aboveOverlay != "" {
		return hostmap.Above(p.aboveOverlay)
	}
	if p.belowOverlay != "" {
		return hostmap.Below(p.belowOverlay)
	}
	if dl, ok := m.layers[p.aboveType]; ok && p.aboveType != layers.TypeUnknown {
		return hostmap.Above(dl.overlayID)
	}
	if dl, ok := m.layers[p.belowType]; ok && p.belowType != layers.TypeUnknown {
		return hostmap.Below(dl.overlayID)
	}
	if p.indexed {
		return hostmap.AtIndex(p.index)
	}
	return hostmap.Top()
}

// AddLayer adds a layer of type t at the given position (default top) and
// loads its initial data for the current map bounds before returning. Adding
// a type already on the map does nothing. A failed initial load is not
// returned: observers get LayerFailed and the empty layer stays in
// place for the next refresh.
func (m *WeatherMap) AddLayer(ctx context.Context, t layers.Type, pos ...Position) error {
	info, ok := layers.Lookup(t)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedLayerType, int(t))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, exists := m.layers[t]; exists {
		m.mu.Unlock()
		return nil
	}

	events := m.stopAnimationLocked()
	dl := newDataLayer(info, m.cfg.RequestOptionsForLayer(t))
	if err := m.host.AddOverlay(m.overlayFor(dl, dl.payload), m.placementLocked(pos)); err != nil {
		m.mu.Unlock()
		m.emit(events)
		return fmt.Errorf("add %s overlay: %w", info.Code, err)
	}
	m.layers[t] = dl
	req := m.layerRequestLocked(dl, time.Time{})
	active := len(m.layers)
	m.mu.Unlock()

	m.emit(append(events, func(o Observer) { o.LayerAdded(t) }))
	observability.CountMapEvent("layer_added")
	observability.SetActiveLayers(active)
	m.logger.Info("weathermap: layer added", zap.String("layer", info.Code))

	_ = m.fetchAndApply(ctx, t, dl.id, req)
	return nil
}

// AddLayers adds each type on top, in order.
func (m *WeatherMap) AddLayers(ctx context.Context, types []layers.Type) error {
	for _, t := range types {
		if err := m.AddLayer(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// InsertLayer adds t at index of the host overlay stack.
func (m *WeatherMap) InsertLayer(ctx context.Context, t layers.Type, index int) error {
	return m.AddLayer(ctx, t, AtIndex(index))
}

// RemoveLayer removes the layer of type t. Removing an absent type does
// nothing.
func (m *WeatherMap) RemoveLayer(t layers.Type) {
	m.mu.Lock()
	dl, ok := m.layers[t]
	if !ok {
		m.mu.Unlock()
		return
	}
	events := m.stopAnimationLocked()
	if err := m.host.RemoveOverlay(dl.overlayID); err != nil {
		m.logger.Warn("weathermap: overlay already gone", zap.String("layer", t.Code()), zap.Error(err))
	}
	delete(m.layers, t)
	active := len(m.layers)
	m.mu.Unlock()

	m.emit(append(events, func(o Observer) { o.LayerRemoved(t) }))
	observability.CountMapEvent("layer_removed")
	observability.SetActiveLayers(active)
	m.logger.Info("weathermap: layer removed", zap.String("layer", t.Code()))
}

// RemoveLayers removes each type.
func (m *WeatherMap) RemoveLayers(types []layers.Type) {
	for _, t := range types {
		m.RemoveLayer(t)
	}
}

// ContainsLayer reports whether a layer of type t is on the map.
func (m *WeatherMap) ContainsLayer(t layers.Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.layers[t]
	return ok
}

// DataLayer returns a snapshot of the layer of type t, or nil.
func (m *WeatherMap) DataLayer(t layers.Type) *DataLayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dl, ok := m.layers[t]; ok {
		return dl.clone()
	}
	return nil
}

// ActiveLayerTypes returns the active types in host stack order, bottom to
// top.
func (m *WeatherMap) ActiveLayerTypes() []layers.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeTypesLocked()
}

func (m *WeatherMap) activeTypesLocked() []layers.Type {
	byOverlay := make(map[string]layers.Type, len(m.layers))
	for t, dl := range m.layers {
		byOverlay[dl.overlayID] = t
	}
	out := make([]layers.Type, 0, len(m.layers))
	for _, o := range m.host.Overlays() {
		if t, ok := byOverlay[o.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (m *WeatherMap) layerRequestLocked(dl *DataLayer, at time.Time) weatherapi.LayerRequest {
	dl.options = m.cfg.RequestOptionsForLayer(dl.info.Type)
	return weatherapi.LayerRequest{
		Type:    dl.info.Type,
		Options: dl.options,
		Bounds:  m.host.Region().Bounds(),
		Time:    at,
	}
}

// SetMapCenter moves the host map's viewport.
func (m *WeatherMap) SetMapCenter(center geo.Coordinate, zoom uint, animated bool) {
	m.host.SetRegion(center, zoom, animated)
}

// ShowCallout shows an info bubble on the host map.
func (m *WeatherMap) ShowCallout(c hostmap.Callout) {
	m.host.ShowCallout(c)
}

// DismissCallout hides the info bubble, if any.
func (m *WeatherMap) DismissCallout() {
	m.host.DismissCallout()
}

// Close stops animation and auto-refresh and cancels in-flight loads. The
// map rejects new layers afterwards.
func (m *WeatherMap) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	events := m.stopAnimationLocked()
	m.cancelAll()
	m.mu.Unlock()

	m.refresher.Stop()

	m.unsubscribe()
	m.emit(events)
}

// State is a point-in-time view of the map.
type State struct {
	Layers      []LayerState     `json:"layers"`
	Animation   AnimationState   `json:"animation"`
	Timeline    Timeline         `json:"timeline"`
	Frames      int              `json:"frames"`
	AutoRefresh bool             `json:"autoRefresh"`
	MapType     string           `json:"mapType"`
	Region      geo.Region       `json:"region"`
	Callout     *hostmap.Callout `json:"callout,omitempty"`
}

// LayerState describes one active layer.
type LayerState struct {
	Type      layers.Type     `json:"type"`
	Name      string          `json:"name"`
	Category  layers.Category `json:"category"`
	OverlayID string          `json:"overlayId"`
	Loaded    bool            `json:"loaded"`
	DataTime  time.Time       `json:"dataTime"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Items     int             `json:"items"`
}

// Snapshot returns the current state, layers bottom to top.
func (m *WeatherMap) Snapshot() State {
	auto := m.refresher.Active()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		Animation:   m.state,
		Timeline:    m.timelineLocked(),
		Frames:      m.frames.Len(),
		AutoRefresh: auto,
		MapType:     m.host.Type().String(),
		Region:      m.host.Region(),
	}
	if c, ok := m.host.Callout(); ok {
		st.Callout = &c
	}
	for _, t := range m.activeTypesLocked() {
		dl := m.layers[t]
		st.Layers = append(st.Layers, LayerState{
			Type:      t,
			Name:      dl.info.Name,
			Category:  dl.info.Category,
			OverlayID: dl.overlayID,
			Loaded:    dl.loaded,
			DataTime:  dl.payload.Time,
			FetchedAt: dl.payload.FetchedAt,
			Items:     len(dl.payload.Points) + len(dl.payload.Polygons),
		})
	}
	return st
}
