package weatherapi

import (
	"context"
	"fmt"
)

const endpointForecasts = "forecasts"

// ForecastForPlace returns the forecast for place. Set opts.Filter to "1hr"
// for hourly periods; the default is daily.
func (c *Client) ForecastForPlace(ctx context.Context, place Place, opts RequestOptions) (Forecast, error) {
	place, err := c.resolvePlace(ctx, place)
	if err != nil {
		return Forecast{}, err
	}
	raw, err := c.get(ctx, endpointForecasts, place.Query(), opts.Values())
	if err != nil {
		return Forecast{}, fmt.Errorf("forecast for %s: %w", place.Query(), err)
	}
	items, err := decodeList[apiForecast](raw)
	if err != nil {
		return Forecast{}, err
	}
	if len(items) == 0 || len(items[0].Periods) == 0 {
		return Forecast{}, ErrNoData
	}
	it := items[0]
	coord := it.Loc.coordinate()
	fc := Forecast{
		Place:    Place{Name: place.Name, State: place.State, Country: place.Country, Coordinate: &coord},
		Interval: it.Interval,
		Periods:  make([]ForecastPeriod, 0, len(it.Periods)),
	}
	for _, p := range it.Periods {
		fc.Periods = append(fc.Periods, ForecastPeriod{
			Time:         unixTime(p.Timestamp),
			MaxTempC:     p.MaxTempC,
			MinTempC:     p.MinTempC,
			TempC:        p.TempC,
			PoP:          p.PoP,
			PrecipMM:     p.PrecipMM,
			WindSpeedKPH: p.WindSpeedKPH,
			Weather:      p.Weather,
			Icon:         p.Icon,
		})
	}
	if opts.Limit > 0 && len(fc.Periods) > opts.Limit {
		fc.Periods = fc.Periods[:opts.Limit]
	}
	return fc, nil
}

// ClosestToPlace lists results of any geographic endpoint (observations,
// stormreports, earthquakes, ...) nearest to place within radius, e.g. "50mi".
func (c *Client) ClosestToPlace(ctx context.Context, endpoint string, place Place, radius string, opts RequestOptions) ([]Listing, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	place, err := c.resolvePlace(ctx, place)
	if err != nil {
		return nil, err
	}
	values := opts.Values()
	values.Set("p", place.Query())
	if radius != "" {
		values.Set("radius", radius)
	}
	raw, err := c.get(ctx, endpoint, "closest", values)
	if err != nil {
		return nil, fmt.Errorf("%s closest to %s: %w", endpoint, place.Query(), err)
	}
	items, err := decodeList[rawItem](raw)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(items))
	for _, it := range items {
		coord := it.Loc.coordinate()
		details := it.Ob
		if details == nil {
			details = it.Report
		}
		if details == nil {
			details = it.Details
		}
		out = append(out, Listing{
			ID:         it.ID,
			Coordinate: coord,
			Place:      it.Place.place(coord),
			Time:       it.time(),
			Details:    details,
		})
	}
	return out, nil
}
