package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/weathermap"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	body     map[string]any
}

type fakeClient struct {
	mu           sync.Mutex
	msgs         []published
	err          error
	disconnected bool
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var body map[string]any
	_ = json.Unmarshal(payload.([]byte), &body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, retained: retained, body: body})
	return doneToken{err: f.err}
}

func (f *fakeClient) IsConnected() bool { return true }

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func TestDisabledPublisherIsNoop(t *testing.T) {
	p, err := NewPublisher(PublisherConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.LayerAdded(layers.Radar)
	p.AnimationFailed(errors.New("boom"))
	if p.IsConnected() {
		t.Fatal("disabled publisher reports a connection")
	}
	p.Close()
}

func TestEnabledPublisherNeedsBroker(t *testing.T) {
	if _, err := NewPublisher(PublisherConfig{Enabled: true}, nil); err == nil {
		t.Fatal("expected error without a broker")
	}
}

func TestPublisherTopicsAndPayloads(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "wx", 1, zap.NewNop())

	p.LayerAdded(layers.Radar)
	p.LayerUpdated(layers.Earthquakes, layers.Payload{Type: layers.Earthquakes, Points: make([]layers.Point, 3)})
	p.LayerFailed(layers.Fires, errors.New("network failure"))
	p.AnimationStateChanged(weathermap.Playing)
	p.TimelineChanged(time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC))
	p.RegionChanged(geo.Region{Center: geo.Coordinate{Lat: 45, Lon: -93}, Zoom: 6})
	p.LayerRemoved(layers.Radar)
	p.Close()

	want := []struct {
		topic    string
		retained bool
	}{
		{"wx/layers/added", false},
		{"wx/layers/updated", false},
		{"wx/layers/failed", false},
		{"wx/animation/state", true},
		{"wx/timeline", true},
		{"wx/region", true},
		{"wx/layers/removed", false},
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.msgs) != len(want) {
		t.Fatalf("published %d messages, want %d", len(fc.msgs), len(want))
	}
	for i, w := range want {
		if fc.msgs[i].topic != w.topic || fc.msgs[i].retained != w.retained {
			t.Fatalf("message %d = %s (retained %v), want %s (retained %v)",
				i, fc.msgs[i].topic, fc.msgs[i].retained, w.topic, w.retained)
		}
	}

	if got := fc.msgs[0].body["type"]; got != "radar" {
		t.Fatalf("added type = %v", got)
	}
	if got := fc.msgs[1].body["points"]; got != float64(3) {
		t.Fatalf("updated points = %v", got)
	}
	if got := fc.msgs[2].body["error"]; got != "network failure" {
		t.Fatalf("failed error = %v", got)
	}
	if got := fc.msgs[3].body["state"]; got != "playing" {
		t.Fatalf("animation state = %v", got)
	}
	if got := fc.msgs[4].body["current"]; got != "2024-07-04T18:00:00Z" {
		t.Fatalf("timeline current = %v", got)
	}
	if _, ok := fc.msgs[0].body["at"]; !ok {
		t.Fatal("event has no timestamp")
	}
	if !fc.disconnected {
		t.Fatal("Close did not disconnect")
	}
}

func TestPublishErrorsDoNotStopTheQueue(t *testing.T) {
	fc := &fakeClient{err: errors.New("not connected")}
	p := newPublisher(fc, "", 0, zap.NewNop())

	p.LayerAdded(layers.Radar)
	p.LayerAdded(layers.Satellite)
	p.Close()
	p.LayerAdded(layers.Alerts)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.msgs) != 2 || fc.msgs[1].topic != "weathermap/layers/added" {
		t.Fatalf("messages = %+v", fc.msgs)
	}
}

func TestPublisherAsMapObserver(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "wx", 0, zap.NewNop())
	var o weathermap.Observer = p
	o.AnimationFailed(errors.New("load animation: no data available"))
	p.Close()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.msgs) != 1 || fc.msgs[0].topic != "wx/animation/error" {
		t.Fatalf("messages = %+v", fc.msgs)
	}
}
