package weatherapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/layers"
)

// LayerRequest asks for the data of one layer. A zero Time asks for the
// latest data.
type LayerRequest struct {
	Type    layers.Type
	Options RequestOptions
	Bounds  geo.Bounds
	Time    time.Time
}

// FrameSetRequest asks for the payload of every layer at each of Times,
// which must be sorted ascending.
type FrameSetRequest struct {
	Layers []LayerRequest
	Times  []time.Time
	Bounds geo.Bounds
}

// TileURL returns the URL template for a tile layer at t. The {z}, {x} and
// {y} placeholders are left for the map renderer.
func (c *Client) TileURL(t layers.Type, at time.Time) (string, error) {
	info, ok := layers.Lookup(t)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedLayerType, int(t))
	}
	if info.Category != layers.CategoryTile {
		return "", fmt.Errorf("%w: %s is not a tile layer", ErrUnsupportedLayerType, info.Code)
	}
	return fmt.Sprintf("%s/%s_%s/%s/{z}/{x}/{y}/%s.png",
		c.tileURL, c.clientID, c.clientSecret, info.Code, formatTileTime(at)), nil
}

// formatTileTime formats t the way tile paths expect it. The zero time maps
// to "0", the latest available image.
func formatTileTime(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return t.UTC().Format("200601021504")
}

// FetchLayer returns the payload for one layer. Tile layers resolve to a URL
// template without any network I/O.
func (c *Client) FetchLayer(ctx context.Context, req LayerRequest) (layers.Payload, error) {
	info, ok := layers.Lookup(req.Type)
	if !ok {
		return layers.Payload{}, fmt.Errorf("%w: %d", ErrUnsupportedLayerType, int(req.Type))
	}
	fetchedAt := c.now()

	if info.Category == layers.CategoryTile {
		tileURL, err := c.TileURL(req.Type, req.Time)
		if err != nil {
			return layers.Payload{}, err
		}
		at := req.Time
		if at.IsZero() {
			at = fetchedAt
		}
		return layers.Payload{Type: req.Type, Time: at, TileURL: tileURL, FetchedAt: fetchedAt}, nil
	}

	opts := req.Options
	if !req.Time.IsZero() && opts.From.IsZero() && opts.To.IsZero() {
		opts.From = req.Time.Add(-info.Interval)
		opts.To = req.Time
	}
	items, err := c.fetchItems(ctx, info, opts, req.Bounds)
	if err != nil {
		return layers.Payload{}, err
	}

	at := req.Time
	if at.IsZero() {
		at = fetchedAt
	}
	payload := layers.Payload{Type: req.Type, Time: at, FetchedAt: fetchedAt}
	switch info.Category {
	case layers.CategoryPoint:
		payload.Points = pointsFromItems(info.Type, items)
	case layers.CategoryPolygon:
		payload.Polygons = polygonsFromItems(items)
	}
	return payload, nil
}

// FetchFrames builds a frame-set. Tile layers need no I/O; every point and
// polygon layer costs exactly one ranged request whose results are bucketed
// onto the nearest frame time. A layer with no data contributes empty
// payloads; any other failure fails the whole set.
func (c *Client) FetchFrames(ctx context.Context, req FrameSetRequest) ([]layers.Frame, error) {
	if len(req.Times) == 0 || !sort.SliceIsSorted(req.Times, func(i, j int) bool { return req.Times[i].Before(req.Times[j]) }) {
		return nil, fmt.Errorf("%w: frame-set needs ascending sample times", ErrInvalidTimeRange)
	}
	if len(req.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers to animate", ErrNoData)
	}

	fetchedAt := c.now()
	frames := make([]layers.Frame, len(req.Times))
	for i, t := range req.Times {
		frames[i] = layers.Frame{Time: t, Payloads: make(map[layers.Type]layers.Payload, len(req.Layers))}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, lr := range req.Layers {
		info, ok := layers.Lookup(lr.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedLayerType, int(lr.Type))
		}

		if info.Category == layers.CategoryTile {
			for i, t := range req.Times {
				tileURL, err := c.TileURL(info.Type, t)
				if err != nil {
					return nil, err
				}
				frames[i].Payloads[info.Type] = layers.Payload{Type: info.Type, Time: t, TileURL: tileURL, FetchedAt: fetchedAt}
			}
			continue
		}

		wg.Add(1)
		go func(info layers.Info, lr LayerRequest) {
			defer wg.Done()

			opts := lr.Options
			opts.From = req.Times[0].Add(-info.Interval)
			opts.To = req.Times[len(req.Times)-1]
			bounds := lr.Bounds
			if bounds.IsZero() {
				bounds = req.Bounds
			}

			items, err := c.fetchItems(ctx, info, opts, bounds)
			if err != nil && !errors.Is(err, ErrNoData) {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("frames for %s: %w", info.Code, err)
				}
				mu.Unlock()
				return
			}

			buckets := bucketItems(info, items, req.Times)

			mu.Lock()
			defer mu.Unlock()
			for i, t := range req.Times {
				frames[i].Payloads[info.Type] = layers.Payload{
					Type:      info.Type,
					Time:      t,
					Points:    buckets[i].points,
					Polygons:  buckets[i].polygons,
					FetchedAt: fetchedAt,
				}
			}
		}(info, lr)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	c.logger.Debug("weatherapi: frame-set built",
		zap.Int("frames", len(frames)), zap.Int("layers", len(req.Layers)))
	return frames, nil
}

func (c *Client) fetchItems(ctx context.Context, info layers.Info, opts RequestOptions, bounds geo.Bounds) ([]rawItem, error) {
	values := opts.Values()
	action := "search"
	if !bounds.IsZero() {
		action = "within"
		values.Set("p", bounds.String())
	}
	raw, err := c.get(ctx, info.Endpoint, action, values)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", info.Endpoint, action, err)
	}
	return decodeList[rawItem](raw)
}

type bucket struct {
	points   []layers.Point
	polygons []layers.Polygon
}

func bucketItems(info layers.Info, items []rawItem, times []time.Time) []bucket {
	out := make([]bucket, len(times))
	switch info.Category {
	case layers.CategoryPoint:
		for _, p := range pointsFromItems(info.Type, items) {
			i := len(times) - 1
			if !p.Time.IsZero() {
				i = layers.NearestIndex(times, p.Time)
			}
			out[i].points = append(out[i].points, p)
		}
	case layers.CategoryPolygon:
		for _, poly := range polygonsFromItems(items) {
			for i, t := range times {
				if poly.ActiveAt(t) {
					out[i].polygons = append(out[i].polygons, poly)
				}
			}
		}
	}
	return out
}

// rawItem is the common shape of every geographic endpoint's result.
type rawItem struct {
	ID         string         `json:"id"`
	Loc        apiLoc         `json:"loc"`
	Place      apiPlace       `json:"place"`
	Ob         map[string]any `json:"ob"`
	Report     map[string]any `json:"report"`
	Details    map[string]any `json:"details"`
	Timestamps struct {
		Issued  int64 `json:"issued"`
		Begins  int64 `json:"begins"`
		Expires int64 `json:"expires"`
	} `json:"timestamps"`
	GeoPoly *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geoPoly"`
}

func (it rawItem) fields() map[string]any {
	return map[string]any{"ob": it.Ob, "report": it.Report, "details": it.Details}
}

func (it rawItem) time() time.Time {
	for _, path := range []string{"ob.timestamp", "report.timestamp"} {
		if v, ok := lookupNumber(it.fields(), path); ok {
			return unixTime(int64(v))
		}
	}
	return unixTime(it.Timestamps.Issued)
}

// valuePaths picks the headline value shown for each point layer.
var valuePaths = map[layers.Type]string{
	layers.TemperaturePoints: "ob.tempC",
	layers.StormCells:        "ob.hail.prob",
	layers.Earthquakes:       "report.mag",
	layers.Fires:             "report.areaAC",
	layers.Records:           "report.value",
}

func pointsFromItems(t layers.Type, items []rawItem) []layers.Point {
	points := make([]layers.Point, 0, len(items))
	for _, it := range items {
		p := layers.Point{
			ID:         it.ID,
			Coordinate: it.Loc.coordinate(),
			Time:       it.time(),
			Title:      it.Place.Name,
		}
		if name, ok := lookupString(it.fields(), "report.name"); ok && p.Title == "" {
			p.Title = name
		}
		if path, ok := valuePaths[t]; ok {
			if v, ok := lookupNumber(it.fields(), path); ok {
				p.Value = &v
			}
		}
		if it.Ob != nil {
			p.Properties = it.Ob
		} else if it.Report != nil {
			p.Properties = it.Report
		}
		points = append(points, p)
	}
	return points
}

func polygonsFromItems(items []rawItem) []layers.Polygon {
	polys := make([]layers.Polygon, 0, len(items))
	for _, it := range items {
		if it.GeoPoly == nil {
			continue
		}
		rings, err := decodeRings(it.GeoPoly.Type, it.GeoPoly.Coordinates)
		if err != nil || len(rings) == 0 {
			continue
		}
		poly := layers.Polygon{
			ID:         it.ID,
			Rings:      rings,
			Issued:     unixTime(it.Timestamps.Issued),
			Expires:    unixTime(it.Timestamps.Expires),
			Properties: it.Details,
		}
		poly.Name, _ = lookupString(it.fields(), "details.name")
		if code, ok := lookupString(it.fields(), "details.type"); ok {
			poly.Code = code
		} else if code, ok := lookupString(it.fields(), "details.category"); ok {
			poly.Code = code
		}
		polys = append(polys, poly)
	}
	return polys
}

// decodeRings reads GeoJSON Polygon or MultiPolygon coordinates, which are
// ordered lon,lat.
func decodeRings(kind string, raw json.RawMessage) ([][]geo.Coordinate, error) {
	var polygons [][][][2]float64
	switch strings.ToLower(kind) {
	case "polygon":
		var one [][][2]float64
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		polygons = append(polygons, one)
	case "multipolygon":
		if err := json.Unmarshal(raw, &polygons); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported geometry %q", kind)
	}
	var rings [][]geo.Coordinate
	for _, poly := range polygons {
		for _, ring := range poly {
			r := make([]geo.Coordinate, len(ring))
			for i, pt := range ring {
				r[i] = geo.Coordinate{Lat: pt[1], Lon: pt[0]}
			}
			rings = append(rings, r)
		}
	}
	return rings, nil
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func lookupNumber(m map[string]any, path string) (float64, bool) {
	v, ok := lookup(m, path)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func lookupString(m map[string]any, path string) (string, bool) {
	v, ok := lookup(m, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
