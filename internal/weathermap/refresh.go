package weathermap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/observability"
	"github.com/i474232898/weathermap/internal/weatherapi"
)

// fetchAndApply loads req and swaps the result into the layer identified by
// t and id. The host overlay is replaced in place unless animation frames
// are on screen. A layer removed while its data was in flight is left alone.
func (m *WeatherMap) fetchAndApply(ctx context.Context, t layers.Type, id string, req weatherapi.LayerRequest) error {
	payload, err := m.fetcher.FetchLayer(ctx, req)

	m.mu.Lock()
	dl, ok := m.layers[t]
	if !ok || dl.id != id {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		err = fmt.Errorf("load %s: %w", t.Code(), err)
		m.logger.Warn("weathermap: layer load failed; keeping last data", zap.String("layer", t.Code()), zap.Error(err))
		observability.CountMapEvent("layer_failed")
		m.emit([]event{func(o Observer) { o.LayerFailed(t, err) }})
		return err
	}
	dl.Swap(payload)
	if m.showingLiveLocked() {
		if rerr := m.host.ReplaceOverlay(m.overlayFor(dl, dl.payload)); rerr != nil {
			m.logger.Warn("weathermap: replace overlay", zap.String("layer", t.Code()), zap.Error(rerr))
		}
	}
	payload = dl.payload
	m.mu.Unlock()

	m.emit([]event{func(o Observer) { o.LayerUpdated(t, payload) }})
	observability.CountMapEvent("layer_updated")

	if m.archive != nil && req.Time.IsZero() {
		if aerr := m.archive.Save(ctx, payload); aerr != nil {
			m.logger.Warn("weathermap: archive payload", zap.String("layer", t.Code()), zap.Error(aerr))
		}
	}
	return nil
}

// showingLiveLocked reports whether the host displays live layer data rather
// than animation frames.
func (m *WeatherMap) showingLiveLocked() bool {
	return m.state == Stopped || m.state == Loading
}

// RefreshLayer reloads the data of the layer of type t, keeping its place in
// the stack. On failure the last good data stays on screen.
func (m *WeatherMap) RefreshLayer(ctx context.Context, t layers.Type) error {
	m.mu.Lock()
	dl, ok := m.layers[t]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLayerNotActive, t.Code())
	}
	id := dl.id
	req := m.layerRequestLocked(dl, time.Time{})
	m.mu.Unlock()

	return m.fetchAndApply(ctx, t, id, req)
}

// RefreshAllLayers reloads every active layer concurrently. It returns the
// first failure in stack order.
func (m *WeatherMap) RefreshAllLayers(ctx context.Context) error {
	return m.refreshWhere(ctx, time.Time{}, func(layers.Info) bool { return true })
}

// UpdatePointDataForCurrentMapBounds reloads point and polygon layers for the
// host map's visible bounds.
func (m *WeatherMap) UpdatePointDataForCurrentMapBounds(ctx context.Context) error {
	return m.refreshWhere(ctx, time.Time{}, func(info layers.Info) bool {
		return info.Category != layers.CategoryTile
	})
}

func (m *WeatherMap) refreshWhere(ctx context.Context, at time.Time, match func(layers.Info) bool) error {
	type job struct {
		t   layers.Type
		id  string
		req weatherapi.LayerRequest
	}

	m.mu.Lock()
	var jobs []job
	for _, t := range m.activeTypesLocked() {
		dl := m.layers[t]
		if !match(dl.info) {
			continue
		}
		jobs = append(jobs, job{t: t, id: dl.id, req: m.layerRequestLocked(dl, at)})
	}
	m.mu.Unlock()

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			errs[i] = m.fetchAndApply(ctx, j.t, j.id, j.req)
		}(i, j)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// EnableAutoRefresh refreshes all layers every config.RefreshInterval, the
// first time one interval from now. Enabling twice keeps the running job.
func (m *WeatherMap) EnableAutoRefresh() error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if m.refresher.Active() {
		return nil
	}
	interval := m.cfg.RefreshInterval
	if interval <= 0 {
		return errors.New("auto-refresh needs a positive refresh interval")
	}
	// A run must finish before the next one is due.
	m.refresher.SetTimeout(interval)
	err := m.refresher.Start(interval, func(ctx context.Context) {
		if err := m.RefreshAllLayers(ctx); err != nil {
			m.logger.Warn("weathermap: auto-refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	// Close marks the map closed before stopping the refresher, so a Close
	// that ran during Start is seen here.
	m.mu.Lock()
	closed = m.closed
	m.mu.Unlock()
	if closed {
		m.refresher.Stop()
		return ErrClosed
	}
	return nil
}

// DisableAutoRefresh stops auto-refresh. It is safe to call repeatedly.
func (m *WeatherMap) DisableAutoRefresh() {
	m.refresher.Stop()
}

// AutoRefreshEnabled reports whether auto-refresh is running.
func (m *WeatherMap) AutoRefreshEnabled() bool {
	return m.refresher.Active()
}
