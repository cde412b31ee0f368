package weatherapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/geo"
)

// Place identifies a location either by name or by coordinate. When both are
// present the coordinate wins.
type Place struct {
	Name       string          `json:"name,omitempty"`
	State      string          `json:"state,omitempty"`
	Country    string          `json:"country,omitempty"`
	ZIP        string          `json:"zip,omitempty"`
	Coordinate *geo.Coordinate `json:"coordinate,omitempty"`
}

// Query returns the place in the form the API accepts for the :id path
// segment and the p= parameter.
func (p Place) Query() string {
	switch {
	case p.Coordinate != nil:
		return p.Coordinate.String()
	case p.ZIP != "":
		return p.ZIP
	}
	parts := []string{strings.ToLower(p.Name)}
	if p.State != "" {
		parts = append(parts, strings.ToLower(p.State))
	}
	if p.Country != "" {
		parts = append(parts, strings.ToLower(p.Country))
	}
	return strings.Join(parts, ",")
}

// IsZero reports whether nothing identifies the place.
func (p Place) IsZero() bool {
	return p.Coordinate == nil && p.Name == "" && p.ZIP == ""
}

// ParsePlace accepts "lat,lon", a 5-digit ZIP, or "name[,state][,country]".
func ParsePlace(s string) (Place, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Place{}, fmt.Errorf("place is empty")
	}
	parts := strings.Split(s, ",")
	if len(parts) == 2 {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errLat == nil && errLon == nil {
			if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				return Place{}, fmt.Errorf("coordinate out of range: %q", s)
			}
			return Place{Coordinate: &geo.Coordinate{Lat: lat, Lon: lon}}, nil
		}
	}
	if len(parts) == 1 && len(s) == 5 {
		if _, err := strconv.Atoi(s); err == nil {
			return Place{ZIP: s}, nil
		}
	}
	p := Place{Name: strings.TrimSpace(parts[0])}
	switch len(parts) {
	case 2:
		p.Country = strings.TrimSpace(parts[1])
	case 3:
		p.State = strings.TrimSpace(parts[1])
		p.Country = strings.TrimSpace(parts[2])
	}
	return p, nil
}

// PlaceResolver turns named places into coordinates before a request is made.
type PlaceResolver interface {
	Resolve(ctx context.Context, p Place) (Place, error)
}

// GeocodeResolver resolves named places with the Google geocoding API.
// Results are memoised for the life of the resolver.
type GeocodeResolver struct {
	mu     sync.Mutex
	known  map[string]geo.Coordinate
	logger *zap.Logger
}

var geocoderKeyOnce sync.Once

// NewGeocodeResolver configures the geocoding API key. The key is process
// wide in the underlying library, so only the first call sets it.
func NewGeocodeResolver(apiKey string, logger *zap.Logger) *GeocodeResolver {
	geocoderKeyOnce.Do(func() { geocoder.ApiKey = apiKey })
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeocodeResolver{known: make(map[string]geo.Coordinate), logger: logger}
}

// Resolve fills in p.Coordinate for named places. Places that already carry a
// coordinate or only a ZIP are returned unchanged.
func (r *GeocodeResolver) Resolve(ctx context.Context, p Place) (Place, error) {
	if p.Coordinate != nil || p.Name == "" {
		return p, nil
	}
	if err := ctx.Err(); err != nil {
		return p, err
	}
	key := p.Query()

	r.mu.Lock()
	c, ok := r.known[key]
	r.mu.Unlock()
	if ok {
		p.Coordinate = &c
		return p, nil
	}

	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    p.Name,
		State:   p.State,
		Country: p.Country,
	})
	if err != nil {
		return p, fmt.Errorf("geocode %q: %w", key, err)
	}
	c = geo.Coordinate{Lat: loc.Latitude, Lon: loc.Longitude}
	r.logger.Debug("geocoder: resolved place", zap.String("place", key), zap.Stringer("coordinate", c))

	r.mu.Lock()
	r.known[key] = c
	r.mu.Unlock()

	p.Coordinate = &c
	return p, nil
}
