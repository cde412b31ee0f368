package weatherapi

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const endpointObservations = "observations"

// ObservationForPlace returns the latest observation for place.
func (c *Client) ObservationForPlace(ctx context.Context, place Place, opts RequestOptions) (Observation, error) {
	place, err := c.resolvePlace(ctx, place)
	if err != nil {
		return Observation{}, err
	}
	raw, err := c.get(ctx, endpointObservations, place.Query(), opts.Values())
	if err != nil {
		return Observation{}, fmt.Errorf("observation for %s: %w", place.Query(), err)
	}
	items, err := decodeList[apiObservation](raw)
	if err != nil {
		return Observation{}, err
	}
	if len(items) == 0 {
		return Observation{}, ErrNoData
	}
	it := items[0]
	return it.Ob.observation(it.ID, it.Place.place(it.Loc.coordinate())), nil
}

// RecentObservationsForPlace returns up to total recent observations for
// place, newest first.
func (c *Client) RecentObservationsForPlace(ctx context.Context, place Place, total int, opts RequestOptions) ([]Observation, error) {
	if total <= 0 {
		return nil, fmt.Errorf("total must be greater than zero")
	}
	place, err := c.resolvePlace(ctx, place)
	if err != nil {
		return nil, err
	}
	values := opts.Values()
	values.Set("limit", strconv.Itoa(total))
	values.Set("plimit", strconv.Itoa(total))
	values.Set("sort", "dt:-1")
	raw, err := c.get(ctx, endpointObservations+"/archive", place.Query(), values)
	if err != nil {
		return nil, fmt.Errorf("recent observations for %s: %w", place.Query(), err)
	}
	obs, err := decodeArchive(raw)
	if err != nil {
		return nil, err
	}
	if len(obs) > total {
		obs = obs[:total]
	}
	return obs, nil
}

// ArchivedObservationsForPlace returns observations between from and to. A
// zero to means now.
func (c *Client) ArchivedObservationsForPlace(ctx context.Context, place Place, from, to time.Time, opts RequestOptions) ([]Observation, error) {
	from, to, err := c.pastRange(from, to)
	if err != nil {
		return nil, err
	}
	place, err = c.resolvePlace(ctx, place)
	if err != nil {
		return nil, err
	}
	opts.From, opts.To = from, to
	raw, err := c.get(ctx, endpointObservations+"/archive", place.Query(), opts.Values())
	if err != nil {
		return nil, fmt.Errorf("archived observations for %s: %w", place.Query(), err)
	}
	return decodeArchive(raw)
}

// ObservationSummaryForPlace returns daily summaries between from and to. A
// zero to means now.
func (c *Client) ObservationSummaryForPlace(ctx context.Context, place Place, from, to time.Time, opts RequestOptions) ([]ObservationSummary, error) {
	from, to, err := c.pastRange(from, to)
	if err != nil {
		return nil, err
	}
	place, err = c.resolvePlace(ctx, place)
	if err != nil {
		return nil, err
	}
	opts.From, opts.To = from, to
	raw, err := c.get(ctx, endpointObservations+"/summary", place.Query(), opts.Values())
	if err != nil {
		return nil, fmt.Errorf("observation summary for %s: %w", place.Query(), err)
	}
	items, err := decodeList[apiSummary](raw)
	if err != nil {
		return nil, err
	}
	var out []ObservationSummary
	for _, it := range items {
		for _, p := range it.Periods {
			s := p.Summary
			out = append(out, ObservationSummary{
				StationID: it.ID,
				Date:      unixTime(s.Timestamp),
				MaxTempC:  s.Temp.MaxC,
				MinTempC:  s.Temp.MinC,
				AvgTempC:  s.Temp.AvgC,
				PrecipMM:  s.Precip.TotalMM,
				Count:     s.Count,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// pastRange validates an archive range: both ends in the past, from < to.
func (c *Client) pastRange(from, to time.Time) (time.Time, time.Time, error) {
	now := c.now()
	if to.IsZero() || to.After(now) {
		to = now
	}
	if from.IsZero() || !from.Before(to) {
		return from, to, fmt.Errorf("%w: from %s, to %s", ErrInvalidTimeRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

func decodeArchive(raw []byte) ([]Observation, error) {
	items, err := decodeList[apiArchive](raw)
	if err != nil {
		return nil, err
	}
	var out []Observation
	for _, it := range items {
		place := it.Place.place(it.Loc.coordinate())
		for _, p := range it.Periods {
			out = append(out, p.Ob.observation(it.ID, place))
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
