package weathermap

import (
	"github.com/google/uuid"

	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

// DataLayer binds one active layer type to its overlay on the host map and
// the payload currently drawn by it.
type DataLayer struct {
	id        string
	info      layers.Info
	overlayID string
	options   weatherapi.RequestOptions
	payload   layers.Payload
	loaded    bool
}

func newDataLayer(info layers.Info, opts weatherapi.RequestOptions) *DataLayer {
	id := uuid.NewString()
	return &DataLayer{
		id:        id,
		info:      info,
		overlayID: "weathermap-" + info.Code + "-" + id[:8],
		options:   opts,
		payload:   layers.Payload{Type: info.Type},
	}
}

func (d *DataLayer) ID() string                                { return d.id }
func (d *DataLayer) Type() layers.Type                         { return d.info.Type }
func (d *DataLayer) Info() layers.Info                         { return d.info }
func (d *DataLayer) OverlayID() string                         { return d.overlayID }
func (d *DataLayer) RequestOptions() weatherapi.RequestOptions { return d.options }
func (d *DataLayer) Payload() layers.Payload                   { return d.payload }

// Loaded reports whether any payload has been swapped in since creation.
func (d *DataLayer) Loaded() bool { return d.loaded }

// Swap replaces the payload. The layer's place in the stack is untouched.
func (d *DataLayer) Swap(p layers.Payload) {
	p.Type = d.info.Type
	d.payload = p
	d.loaded = true
}

func (d *DataLayer) clone() *DataLayer {
	c := *d
	return &c
}
