package weathermap

import (
	"errors"

	"github.com/i474232898/weathermap/internal/weatherapi"
)

var (
	ErrUnsupportedLayerType = weatherapi.ErrUnsupportedLayerType
	ErrNetwork              = weatherapi.ErrNetwork
	ErrNoData               = weatherapi.ErrNoData
	ErrInvalidTimeRange     = weatherapi.ErrInvalidTimeRange

	// ErrAnimationDisabled is returned by the start operations when the
	// configuration disables animation.
	ErrAnimationDisabled = errors.New("animation disabled")
	ErrLayerNotActive    = errors.New("layer not on map")
	ErrClosed            = errors.New("weather map closed")
)
