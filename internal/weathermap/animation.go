package weathermap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/observability"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

const minFrameWait = time.Millisecond

// State returns the animation state.
func (m *WeatherMap) State() AnimationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAnimating reports whether frames are playing.
func (m *WeatherMap) IsAnimating() bool { return m.State() == Playing }

// IsLoadingAnimation reports whether a frame-set is being fetched.
func (m *WeatherMap) IsLoadingAnimation() bool { return m.State() == Loading }

// Timeline returns the animation range and playhead. Unless a range was set
// with SetTimelineRange, a stopped timeline follows the clock.
func (m *WeatherMap) Timeline() Timeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timelineLocked()
}

func (m *WeatherMap) defaultTimelineLocked() Timeline {
	start, end := m.cfg.TimelineRange(m.now())
	return Timeline{Start: start, End: end, Current: end, MaximumIntervals: m.cfg.MaximumIntervalsForAnimation}
}

// timelineLocked moves a stopped, unfixed range to the clock. A playhead
// resting on the end follows it; one scrubbed elsewhere is clamped into the
// new range.
func (m *WeatherMap) timelineLocked() Timeline {
	if !m.fixedRange && m.state == Stopped {
		atEnd := m.timeline.Current.Equal(m.timeline.End)
		current := m.timeline.Current
		m.timeline = m.defaultTimelineLocked()
		if !atEnd {
			m.timeline.Current = m.timeline.Clamp(current)
		}
	}
	tl := m.timeline
	tl.MaximumIntervals = m.cfg.MaximumIntervalsForAnimation
	return tl
}

// SetTimelineRange fixes the animation range. A running animation stops since
// its frames no longer cover the range.
func (m *WeatherMap) SetTimelineRange(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: %s..%s", ErrInvalidTimeRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	m.mu.Lock()
	events := m.stopAnimationLocked()
	m.fixedRange = true
	m.timeline = Timeline{Start: start, End: end, Current: end, MaximumIntervals: m.cfg.MaximumIntervalsForAnimation}
	events = append(events, timelineChanged(end))
	m.mu.Unlock()

	m.emit(events)
	return nil
}

// ResetTimelineRange goes back to the range relative to now given by the
// config offsets.
func (m *WeatherMap) ResetTimelineRange() {
	m.mu.Lock()
	events := m.stopAnimationLocked()
	m.fixedRange = false
	m.timeline = m.defaultTimelineLocked()
	events = append(events, timelineChanged(m.timeline.End))
	m.mu.Unlock()

	m.emit(events)
}

// StartAnimating fetches the frame-set for the timeline and plays it. A
// paused animation resumes from its playhead without refetching. Starting
// while a frame-set is loading abandons that load and issues a new one.
func (m *WeatherMap) StartAnimating() error {
	return m.start(time.Time{})
}

// StartAnimatingFrom is StartAnimating with playback beginning at the frame
// nearest from.
func (m *WeatherMap) StartAnimatingFrom(from time.Time) error {
	return m.start(from)
}

func (m *WeatherMap) start(from time.Time) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.cfg.AnimationEnabled {
		m.mu.Unlock()
		return ErrAnimationDisabled
	}

	var events []event
	switch m.state {
	case Playing:
		if !from.IsZero() {
			events = m.seekLocked(from)
		}
		m.mu.Unlock()
		m.emit(events)
		return nil
	case Paused:
		if !from.IsZero() {
			events = m.seekLocked(from)
		}
		m.state = Playing
		m.startPlayerLocked()
		m.mu.Unlock()
		m.emit(append(events, stateChanged(Playing)))
		return nil
	}

	events, err := m.beginLoadLocked(from)
	m.mu.Unlock()
	m.emit(events)
	return err
}

// beginLoadLocked issues the one frame-set request of a start.
func (m *WeatherMap) beginLoadLocked(from time.Time) ([]event, error) {
	prev := m.state
	var events []event
	if prev == Loading {
		m.cancelLoadLocked()
	}
	fail := func(err error) ([]event, error) {
		if prev == Loading {
			m.state = Stopped
			events = append(events, stateChanged(Stopped))
		}
		return events, err
	}

	if !m.fixedRange {
		start, end := m.cfg.TimelineRange(m.now())
		m.timeline.Start, m.timeline.End = start, end
	}
	tl := m.timeline
	if !tl.Valid() {
		return fail(fmt.Errorf("%w: %s..%s", ErrInvalidTimeRange, tl.Start.Format(time.RFC3339), tl.End.Format(time.RFC3339)))
	}

	types := m.activeTypesLocked()
	if len(types) == 0 {
		return fail(fmt.Errorf("%w: no layers to animate", ErrNoData))
	}
	var interval time.Duration
	reqs := make([]weatherapi.LayerRequest, 0, len(types))
	for _, t := range types {
		dl := m.layers[t]
		if interval == 0 || dl.info.Interval < interval {
			interval = dl.info.Interval
		}
		reqs = append(reqs, m.layerRequestLocked(dl, time.Time{}))
	}
	times, err := FrameTimes(tl.Start, tl.End, interval, m.cfg.MaximumIntervalsForAnimation)
	if err != nil {
		return fail(err)
	}
	req := weatherapi.FrameSetRequest{Layers: reqs, Times: times, Bounds: m.host.Region().Bounds()}

	m.loadGen++
	gen := m.loadGen
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.loadCancel = cancel
	m.startFrom = from
	m.state = Loading
	if prev != Loading {
		events = append(events, stateChanged(Loading))
	}
	m.logger.Info("weathermap: loading animation",
		zap.Time("start", tl.Start), zap.Time("end", tl.End), zap.Int("frames", len(times)))

	go m.load(ctx, gen, req)
	return events, nil
}

func (m *WeatherMap) load(ctx context.Context, gen uint64, req weatherapi.FrameSetRequest) {
	frames, err := m.fetcher.FetchFrames(ctx, req)
	if err == nil && len(frames) == 0 {
		err = ErrNoData
	}

	m.mu.Lock()
	if m.loadGen != gen || m.state != Loading {
		m.mu.Unlock()
		return
	}
	m.cancelLoadLocked()

	if err != nil {
		m.state = Stopped
		m.timeline.Current = m.timeline.End
		m.mu.Unlock()

		err = fmt.Errorf("load animation: %w", err)
		m.logger.Warn("weathermap: animation load failed", zap.Error(err))
		observability.CountMapEvent("animation_failed")
		m.emit([]event{func(o Observer) { o.AnimationFailed(err) }, stateChanged(Stopped)})
		return
	}

	m.frames.SetMaxFrames(m.cfg.MaximumIntervalsForAnimation)
	m.frames.Save(frames)
	idx := 0
	if !m.startFrom.IsZero() {
		if _, i, ferr := m.frames.Nearest(m.timeline.Clamp(m.startFrom)); ferr == nil {
			idx = i
		}
	}
	m.state = Playing
	events := append([]event{stateChanged(Playing)}, m.showFrameLocked(idx)...)
	m.startPlayerLocked()
	m.mu.Unlock()

	observability.CountMapEvent("animation_started")
	m.emit(events)
}

func (m *WeatherMap) cancelLoadLocked() {
	if m.loadCancel != nil {
		m.loadCancel()
		m.loadCancel = nil
	}
}

// PauseAnimation freezes playback on the current frame.
func (m *WeatherMap) PauseAnimation() {
	m.mu.Lock()
	if m.state != Playing {
		m.mu.Unlock()
		return
	}
	m.stopPlayerLocked()
	m.state = Paused
	m.mu.Unlock()

	m.emit([]event{stateChanged(Paused)})
}

// StopAnimating cancels any frame-set load, drops the frames, moves the
// playhead to the end of the timeline and puts live data back on the map.
func (m *WeatherMap) StopAnimating() {
	m.mu.Lock()
	events := m.stopAnimationLocked()
	m.mu.Unlock()

	m.emit(events)
}

func (m *WeatherMap) stopAnimationLocked() []event {
	if m.state == Stopped {
		return nil
	}
	m.cancelLoadLocked()
	m.loadGen++
	m.stopPlayerLocked()
	m.frames.Reset()
	m.frameIndex = 0
	m.state = Stopped
	m.timeline.Current = m.timeline.End

	for _, dl := range m.layers {
		if err := m.host.ReplaceOverlay(m.overlayFor(dl, dl.payload)); err != nil {
			m.logger.Warn("weathermap: restore live overlay", zap.String("layer", dl.info.Code), zap.Error(err))
		}
	}
	return []event{stateChanged(Stopped), timelineChanged(m.timeline.End)}
}

// GoToTime moves the playhead to t, clamped to the timeline. With frames
// loaded it shows the nearest frame. Otherwise, when scrubbing is enabled,
// every layer is reloaded for t; when it is not, only the playhead moves.
func (m *WeatherMap) GoToTime(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	tl := m.timelineLocked()
	if !tl.Valid() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s..%s", ErrInvalidTimeRange, tl.Start.Format(time.RFC3339), tl.End.Format(time.RFC3339))
	}
	at := tl.Clamp(t)

	if (m.state == Playing || m.state == Paused) && m.frames.Len() > 0 {
		events := m.seekLocked(at)
		m.mu.Unlock()
		m.emit(events)
		return nil
	}

	m.timeline.Current = at
	scrub := m.cfg.TimelineScrubbingEnabled && m.state == Stopped
	m.mu.Unlock()
	m.emit([]event{timelineChanged(at)})

	if !scrub {
		return nil
	}
	return m.refreshWhere(ctx, at, func(layers.Info) bool { return true })
}

func (m *WeatherMap) seekLocked(at time.Time) []event {
	_, idx, err := m.frames.Nearest(m.timeline.Clamp(at))
	if err != nil {
		return nil
	}
	return m.showFrameLocked(idx)
}

// showFrameLocked draws frame idx on the host. Layers missing from the frame
// draw empty.
func (m *WeatherMap) showFrameLocked(idx int) []event {
	f, err := m.frames.At(idx)
	if err != nil {
		return nil
	}
	m.frameIndex = idx
	for t, dl := range m.layers {
		p, ok := f.Payloads[t]
		if !ok {
			p = layers.Payload{Type: t, Time: f.Time}
		}
		if err := m.host.ReplaceOverlay(m.overlayFor(dl, p)); err != nil {
			m.logger.Warn("weathermap: draw frame", zap.String("layer", dl.info.Code), zap.Error(err))
		}
	}
	m.timeline.Current = f.Time
	return []event{timelineChanged(f.Time)}
}

func (m *WeatherMap) startPlayerLocked() {
	m.stopPlayerLocked()
	gen := m.playGen
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.playCancel = cancel
	go m.play(ctx, gen)
}

func (m *WeatherMap) stopPlayerLocked() {
	if m.playCancel != nil {
		m.playCancel()
		m.playCancel = nil
	}
	m.playGen++
}

// play advances one frame every AnimationDuration/len(frames), holds the
// last frame for AnimationEndDelay and loops.
func (m *WeatherMap) play(ctx context.Context, gen uint64) {
	for {
		m.mu.Lock()
		n := m.frames.Len()
		if m.playGen != gen || m.state != Playing || n == 0 {
			m.mu.Unlock()
			return
		}
		wait := m.cfg.AnimationDuration / time.Duration(n)
		if m.frameIndex >= n-1 && m.cfg.AnimationEndDelay > 0 {
			wait = m.cfg.AnimationEndDelay
		}
		m.mu.Unlock()

		if wait < minFrameWait {
			wait = minFrameWait
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		if m.playGen != gen || m.state != Playing {
			m.mu.Unlock()
			return
		}
		next := m.frameIndex + 1
		if next >= m.frames.Len() {
			next = 0
		}
		events := m.showFrameLocked(next)
		m.mu.Unlock()
		m.emit(events)
	}
}

func stateChanged(s AnimationState) event {
	observability.CountMapEvent("animation_" + s.String())
	return func(o Observer) { o.AnimationStateChanged(s) }
}

func timelineChanged(t time.Time) event {
	return func(o Observer) { o.TimelineChanged(t) }
}
