package hostmap

import "fmt"

// AppleMap keeps one overlay list per level, the way MapKit inserts overlays
// with insertOverlay(_:at:level:).
type AppleMap struct {
	base
	levels map[Level][]Overlay
}

func NewApple() *AppleMap {
	m := &AppleMap{levels: make(map[Level][]Overlay)}
	m.init()
	return m
}

func (m *AppleMap) Type() MapType { return Apple }

func (m *AppleMap) AddOverlay(o Overlay, p Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order := m.ordered()
	if indexOf(order, o.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOverlay, o.ID)
	}
	idx := insertionIndex(order, o.Level, p)
	lo, _ := levelSpan(order, o.Level)
	m.insertOverlay(o, idx-lo, o.Level)
	return nil
}

func (m *AppleMap) insertOverlay(o Overlay, at int, level Level) {
	list := m.levels[level]
	list = append(list, Overlay{})
	copy(list[at+1:], list[at:])
	list[at] = o
	m.levels[level] = list
}

func (m *AppleMap) RemoveOverlay(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for level, list := range m.levels {
		if i := indexOf(list, id); i >= 0 {
			m.levels[level] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOverlayNotFound, id)
}

func (m *AppleMap) ReplaceOverlay(o Overlay) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for level, list := range m.levels {
		if i := indexOf(list, o.ID); i >= 0 {
			o.Level = level
			list[i] = o
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOverlayNotFound, o.ID)
}

func (m *AppleMap) Overlays() []Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ordered()
}

func (m *AppleMap) ordered() []Overlay {
	out := make([]Overlay, 0, len(m.levels[LevelAboveRoads])+len(m.levels[LevelAboveLabels]))
	out = append(out, m.levels[LevelAboveRoads]...)
	return append(out, m.levels[LevelAboveLabels]...)
}
