package hostmap

import "fmt"

// MapboxMap keeps a style layer list. New layers are added before an existing
// layer ID, or on top when the before ID is empty.
type MapboxMap struct {
	base
	styleID string
	layers  []Overlay
}

// NewMapbox returns a Mapbox-style map for the given style ID, which may be
// empty.
func NewMapbox(styleID string) *MapboxMap {
	m := &MapboxMap{styleID: styleID}
	m.init()
	return m
}

func (m *MapboxMap) Type() MapType { return Mapbox }

// StyleID is the map style the layers are added to.
func (m *MapboxMap) StyleID() string { return m.styleID }

func (m *MapboxMap) AddOverlay(o Overlay, p Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if indexOf(m.layers, o.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOverlay, o.ID)
	}
	idx := insertionIndex(m.layers, o.Level, p)
	beforeID := ""
	if idx < len(m.layers) {
		beforeID = m.layers[idx].ID
	}
	m.addLayer(o, beforeID)
	return nil
}

func (m *MapboxMap) addLayer(o Overlay, beforeID string) {
	i := indexOf(m.layers, beforeID)
	if beforeID == "" || i < 0 {
		m.layers = append(m.layers, o)
		return
	}
	m.layers = append(m.layers, Overlay{})
	copy(m.layers[i+1:], m.layers[i:])
	m.layers[i] = o
}

func (m *MapboxMap) RemoveOverlay(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.layers, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, id)
	}
	m.layers = append(m.layers[:i], m.layers[i+1:]...)
	return nil
}

// ReplaceOverlay updates the layer's source in place.
func (m *MapboxMap) ReplaceOverlay(o Overlay) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.layers, o.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, o.ID)
	}
	o.Level = m.layers[i].Level
	m.layers[i] = o
	return nil
}

func (m *MapboxMap) Overlays() []Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Overlay, len(m.layers))
	copy(out, m.layers)
	return out
}
