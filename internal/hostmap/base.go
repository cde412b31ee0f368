package hostmap

import (
	"sync"

	"github.com/google/uuid"

	"github.com/i474232898/weathermap/internal/geo"
)

const defaultZoom = 3

// base holds what every variant shares: viewport, callout and listeners.
// Variants embed it and guard their overlay stack with mu.
type base struct {
	mu sync.Mutex

	region  geo.Region
	callout *Callout

	listenerMu sync.Mutex
	listeners  map[string]Listener
	order      []string
}

func (b *base) init() {
	b.region = geo.Region{Zoom: defaultZoom}
	b.listeners = make(map[string]Listener)
}

func (b *base) SetRegion(center geo.Coordinate, zoom uint, _ bool) {
	b.mu.Lock()
	b.region = geo.Region{Center: center, Zoom: zoom}
	r := b.region
	b.mu.Unlock()

	for _, l := range b.snapshotListeners() {
		l.RegionChanged(r)
	}
}

func (b *base) Region() geo.Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.region
}

func (b *base) ShowCallout(c Callout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callout = &c
}

func (b *base) DismissCallout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callout = nil
}

func (b *base) Callout() (Callout, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callout == nil {
		return Callout{}, false
	}
	return *b.callout, true
}

func (b *base) Subscribe(l Listener) func() {
	id := uuid.NewString()

	b.listenerMu.Lock()
	b.listeners[id] = l
	b.order = append(b.order, id)
	b.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.listenerMu.Lock()
			defer b.listenerMu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *base) TapAnnotation(a Annotation) {
	for _, l := range b.snapshotListeners() {
		l.AnnotationTapped(a)
	}
}

func (b *base) LongPress(c geo.Coordinate) {
	for _, l := range b.snapshotListeners() {
		l.LongPressed(c)
	}
}

func (b *base) snapshotListeners() []Listener {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	out := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.listeners[id])
	}
	return out
}

// insertionIndex resolves p against the bottom-to-top stack order. References
// to overlays that are not on the map and out-of-range indexes fall back to
// the top. The result is clamped into the overlay's level group.
func insertionIndex(order []Overlay, level Level, p Placement) int {
	n := len(order)
	idx := n
	switch {
	case p.above != "":
		if i := indexOf(order, p.above); i >= 0 {
			idx = i + 1
		}
	case p.below != "":
		if i := indexOf(order, p.below); i >= 0 {
			idx = i
		}
	case p.indexed:
		if p.index >= 0 && p.index <= n {
			idx = p.index
		}
	}

	lo, hi := levelSpan(order, level)
	if idx < lo {
		idx = lo
	}
	if idx > hi {
		idx = hi
	}
	return idx
}

// levelSpan returns the half-open range [lo, hi] of insertion indexes that
// keep order grouped by level.
func levelSpan(order []Overlay, level Level) (lo, hi int) {
	for _, o := range order {
		if o.Level < level {
			lo++
		}
		if o.Level <= level {
			hi++
		}
	}
	return lo, hi
}

func indexOf(order []Overlay, id string) int {
	for i, o := range order {
		if o.ID == id {
			return i
		}
	}
	return -1
}
