package weathermap

import (
	"fmt"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
)

// overlayFor renders p as the host overlay of dl, styled from the config.
func (m *WeatherMap) overlayFor(dl *DataLayer, p layers.Payload) hostmap.Overlay {
	style := m.cfg.StyleForOverlay(dl.info.Type)
	ov := hostmap.Overlay{
		ID:        dl.overlayID,
		LayerType: dl.info.Type,
		Level:     style.Level,
		Alpha:     style.Alpha,
		Time:      p.Time,
		TileURL:   p.TileURL,
	}
	for _, pt := range p.Points {
		a := hostmap.Annotation{
			ID:         pt.ID,
			LayerType:  dl.info.Type,
			Coordinate: pt.Coordinate,
			Title:      pt.Title,
			Value:      pt.Value,
			Time:       pt.Time,
		}
		a.Style = m.cfg.StyleForAnnotation(a)
		ov.Annotations = append(ov.Annotations, a)
	}
	for _, poly := range p.Polygons {
		s := hostmap.Shape{
			ID:        poly.ID,
			LayerType: dl.info.Type,
			Name:      poly.Name,
			Code:      poly.Code,
			Rings:     poly.Rings,
		}
		s.Style = m.cfg.StyleForPolygon(s)
		ov.Shapes = append(ov.Shapes, s)
	}
	return ov
}

// hostListener forwards host map events. It never takes the map's lock so
// hosts may call it from inside a map operation.
type hostListener struct {
	m *WeatherMap
}

func (l hostListener) RegionChanged(r geo.Region) {
	l.m.emit([]event{func(o Observer) { o.RegionChanged(r) }})
}

func (l hostListener) AnnotationTapped(a hostmap.Annotation) {
	if a.Style.ShowsCallout {
		body := ""
		if a.Value != nil {
			body = fmt.Sprintf("%.1f", *a.Value)
		}
		l.m.host.ShowCallout(hostmap.Callout{Coordinate: a.Coordinate, Title: a.Title, Body: body, Annotation: &a})
	}
	l.m.emit([]event{func(o Observer) { o.AnnotationTapped(a) }})
}

func (l hostListener) LongPressed(c geo.Coordinate) {
	cfg := l.m.cfg
	a := hostmap.Annotation{ID: "long-press", Coordinate: c, Title: c.String(), Style: cfg.LongPressAnnotationStyle}
	if cfg.ShowsAnnotationDuringLongPress {
		l.m.host.ShowCallout(hostmap.Callout{Coordinate: c, Title: a.Title, Annotation: &a})
	}
	if cfg.ShowsAnnotationForLongPress {
		l.m.emit([]event{func(o Observer) { o.AnnotationTapped(a) }})
	}
}
