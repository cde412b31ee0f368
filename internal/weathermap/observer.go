package weathermap

import (
	"sync"
	"time"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
)

// Observer receives weather map events. Calls are made without the map's
// lock held, in registration order, so observers may call back into the map.
type Observer interface {
	LayerAdded(t layers.Type)
	LayerRemoved(t layers.Type)
	LayerUpdated(t layers.Type, p layers.Payload)
	LayerFailed(t layers.Type, err error)
	AnimationStateChanged(s AnimationState)
	AnimationFailed(err error)
	TimelineChanged(current time.Time)
	RegionChanged(r geo.Region)
	AnnotationTapped(a hostmap.Annotation)
}

// Funcs adapts optional callbacks to Observer. Nil fields are skipped.
type Funcs struct {
	OnLayerAdded            func(t layers.Type)
	OnLayerRemoved          func(t layers.Type)
	OnLayerUpdated          func(t layers.Type, p layers.Payload)
	OnLayerFailed           func(t layers.Type, err error)
	OnAnimationStateChanged func(s AnimationState)
	OnAnimationFailed       func(err error)
	OnTimelineChanged       func(current time.Time)
	OnRegionChanged         func(r geo.Region)
	OnAnnotationTapped      func(a hostmap.Annotation)
}

func (f Funcs) LayerAdded(t layers.Type) {
	if f.OnLayerAdded != nil {
		f.OnLayerAdded(t)
	}
}

func (f Funcs) LayerRemoved(t layers.Type) {
	if f.OnLayerRemoved != nil {
		f.OnLayerRemoved(t)
	}
}

func (f Funcs) LayerUpdated(t layers.Type, p layers.Payload) {
	if f.OnLayerUpdated != nil {
		f.OnLayerUpdated(t, p)
	}
}

func (f Funcs) LayerFailed(t layers.Type, err error) {
	if f.OnLayerFailed != nil {
		f.OnLayerFailed(t, err)
	}
}

func (f Funcs) AnimationStateChanged(s AnimationState) {
	if f.OnAnimationStateChanged != nil {
		f.OnAnimationStateChanged(s)
	}
}

func (f Funcs) AnimationFailed(err error) {
	if f.OnAnimationFailed != nil {
		f.OnAnimationFailed(err)
	}
}

func (f Funcs) TimelineChanged(current time.Time) {
	if f.OnTimelineChanged != nil {
		f.OnTimelineChanged(current)
	}
}

func (f Funcs) RegionChanged(r geo.Region) {
	if f.OnRegionChanged != nil {
		f.OnRegionChanged(r)
	}
}

func (f Funcs) AnnotationTapped(a hostmap.Annotation) {
	if f.OnAnnotationTapped != nil {
		f.OnAnnotationTapped(a)
	}
}

// event is a deferred observer call, collected under the map's lock and
// delivered after it is released.
type event func(o Observer)

type registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []registration
}

type registration struct {
	id uint64
	o  Observer
}

func (r *registry) add(o Observer) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registration{id: id, o: o})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.entries {
			if e.id == id {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				return
			}
		}
	}
}

func (r *registry) notify(events []event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	observers := make([]Observer, len(r.entries))
	for i, e := range r.entries {
		observers[i] = e.o
	}
	r.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			ev(o)
		}
	}
}
