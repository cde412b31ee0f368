package hostmap

import (
	"fmt"
	"sort"
)

// minZGap is the smallest z-index gap tolerated before the stack is
// renumbered.
const minZGap = 1e-6

type zOverlay struct {
	Overlay
	z float64
}

// GoogleMap orders overlays by a floating z-index. Inserting between two
// overlays takes the midpoint of their z-indexes.
type GoogleMap struct {
	base
	overlays []zOverlay // kept sorted by z
}

func NewGoogle() *GoogleMap {
	m := &GoogleMap{}
	m.init()
	return m
}

func (m *GoogleMap) Type() MapType { return Google }

func (m *GoogleMap) AddOverlay(o Overlay, p Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := m.ordered()
	if indexOf(order, o.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOverlay, o.ID)
	}
	idx := insertionIndex(order, o.Level, p)

	z, ok := m.zIndexAt(idx)
	if !ok {
		m.renumber()
		z, _ = m.zIndexAt(idx)
	}
	m.overlays = append(m.overlays, zOverlay{Overlay: o, z: z})
	sort.SliceStable(m.overlays, func(i, j int) bool { return m.overlays[i].z < m.overlays[j].z })
	return nil
}

// zIndexAt returns the z-index for a new overlay at position idx. It reports
// false when the neighbours are too close to split.
func (m *GoogleMap) zIndexAt(idx int) (float64, bool) {
	n := len(m.overlays)
	switch {
	case n == 0:
		return 1, true
	case idx == 0:
		return m.overlays[0].z - 1, true
	case idx >= n:
		return m.overlays[n-1].z + 1, true
	}
	lower, upper := m.overlays[idx-1].z, m.overlays[idx].z
	if upper-lower < minZGap {
		return 0, false
	}
	return lower + (upper-lower)/2, true
}

func (m *GoogleMap) renumber() {
	for i := range m.overlays {
		m.overlays[i].z = float64(i + 1)
	}
}

func (m *GoogleMap) RemoveOverlay(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, o := range m.overlays {
		if o.ID == id {
			m.overlays = append(m.overlays[:i], m.overlays[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOverlayNotFound, id)
}

func (m *GoogleMap) ReplaceOverlay(o Overlay) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.overlays {
		if m.overlays[i].ID == o.ID {
			o.Level = m.overlays[i].Level
			m.overlays[i].Overlay = o
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOverlayNotFound, o.ID)
}

func (m *GoogleMap) Overlays() []Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ordered()
}

// ZIndex returns the z-index of the overlay with the given ID.
func (m *GoogleMap) ZIndex(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.overlays {
		if o.ID == id {
			return o.z, true
		}
	}
	return 0, false
}

func (m *GoogleMap) ordered() []Overlay {
	out := make([]Overlay, len(m.overlays))
	for i, o := range m.overlays {
		out[i] = o.Overlay
	}
	return out
}
