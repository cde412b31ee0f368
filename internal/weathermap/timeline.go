package weathermap

import (
	"fmt"
	"time"
)

// AnimationState is the state of the timeline animation.
type AnimationState int

const (
	Stopped AnimationState = iota
	Loading
	Playing
	Paused
)

func (s AnimationState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("AnimationState(%d)", int(s))
}

func (s AnimationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Timeline is the animation time range and playhead.
type Timeline struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Current          time.Time `json:"current"`
	MaximumIntervals int       `json:"maximumIntervals"`
}

// Valid reports whether the range is non-empty.
func (t Timeline) Valid() bool {
	return t.End.After(t.Start)
}

// Clamp limits at to [Start, End].
func (t Timeline) Clamp(at time.Time) time.Time {
	if at.Before(t.Start) {
		return t.Start
	}
	if at.After(t.End) {
		return t.End
	}
	return at
}

// FrameTimes returns the sample times of a frame-set over [start, end] for
// data with the given cadence. Samples step back from end by interval; when
// that would produce more than max samples, max evenly spaced samples
// including both ends are returned instead.
func FrameTimes(start, end time.Time, interval time.Duration, max int) ([]time.Time, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidTimeRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if max <= 0 {
		return nil, fmt.Errorf("maximum intervals must be positive, got %d", max)
	}
	if max == 1 {
		return []time.Time{end}, nil
	}

	span := end.Sub(start)
	naive := max + 1
	if interval > 0 {
		naive = int(span/interval) + 1
	}

	if naive <= max {
		out := make([]time.Time, naive)
		for i := range out {
			out[naive-1-i] = end.Add(-time.Duration(i) * interval)
		}
		return out, nil
	}

	// step*i + rem*i/(max-1) equals span*i/(max-1) without overflowing.
	gaps := time.Duration(max - 1)
	step, rem := span/gaps, span%gaps
	out := make([]time.Time, max)
	for i := range out {
		n := time.Duration(i)
		out[i] = start.Add(step*n + rem*n/gaps)
	}
	out[max-1] = end
	return out, nil
}
