// Package events mirrors weather map events onto an MQTT broker.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/i474232898/weathermap/internal/geo"
	"github.com/i474232898/weathermap/internal/hostmap"
	"github.com/i474232898/weathermap/internal/layers"
	"github.com/i474232898/weathermap/internal/weathermap"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

type PublisherConfig struct {
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos" validate:"lte=2"`
	Enabled     bool   `mapstructure:"enabled"`
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Publisher is a weathermap.Observer that publishes every event as JSON.
// Messages are queued and sent from one goroutine so observers never wait on
// the broker; when the queue is full new messages are dropped.
type Publisher struct {
	client  client
	prefix  string
	qos     byte
	enabled bool
	logger  *zap.Logger
	now     func() time.Time

	queue     chan message
	done      chan struct{}
	closeOnce sync.Once
}

var _ weathermap.Observer = (*Publisher)(nil)

// NewPublisher connects to the broker. A disabled config yields a no-op
// publisher.
func NewPublisher(cfg PublisherConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Publisher{enabled: false, logger: logger}, nil
	}
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "weathermap-" + time.Now().Format("150405.000")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt: connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Info("mqtt: connected", zap.String("broker", cfg.Broker))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	return newPublisher(c, cfg.TopicPrefix, cfg.QoS, logger), nil
}

func newPublisher(c client, prefix string, qos byte, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "weathermap"
	}
	p := &Publisher{
		client:  c,
		prefix:  prefix,
		qos:     qos,
		enabled: true,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan message, defaultQueueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		token := p.client.Publish(msg.topic, p.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(defaultPublishTimeout) {
			p.logger.Warn("mqtt: publish timed out", zap.String("topic", msg.topic))
			continue
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt: publish failed", zap.String("topic", msg.topic), zap.Error(err))
		}
	}
}

func (p *Publisher) publish(topic string, retained bool, body map[string]any) {
	if !p.enabled {
		return
	}
	body["at"] = p.now().UTC()
	payload, err := json.Marshal(body)
	if err != nil {
		p.logger.Warn("mqtt: encode event", zap.String("topic", topic), zap.Error(err))
		return
	}

	msg := message{topic: p.prefix + "/" + topic, retained: retained, payload: payload}
	defer func() {
		// Close raced with an event.
		if recover() != nil {
			p.logger.Debug("mqtt: publisher closed, event dropped", zap.String("topic", msg.topic))
		}
	}()
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("mqtt: queue full, event dropped", zap.String("topic", msg.topic))
	}
}

func (p *Publisher) LayerAdded(t layers.Type) {
	p.publish("layers/added", false, map[string]any{"type": t})
}

func (p *Publisher) LayerRemoved(t layers.Type) {
	p.publish("layers/removed", false, map[string]any{"type": t})
}

func (p *Publisher) LayerUpdated(t layers.Type, pl layers.Payload) {
	body := map[string]any{
		"type":      t,
		"time":      pl.Time,
		"fetchedAt": pl.FetchedAt,
		"points":    len(pl.Points),
		"polygons":  len(pl.Polygons),
	}
	if pl.TileURL != "" {
		body["tileUrl"] = pl.TileURL
	}
	p.publish("layers/updated", false, body)
}

func (p *Publisher) LayerFailed(t layers.Type, err error) {
	p.publish("layers/failed", false, map[string]any{"type": t, "error": err.Error()})
}

func (p *Publisher) AnimationStateChanged(s weathermap.AnimationState) {
	p.publish("animation/state", true, map[string]any{"state": s})
}

func (p *Publisher) AnimationFailed(err error) {
	p.publish("animation/error", false, map[string]any{"error": err.Error()})
}

func (p *Publisher) TimelineChanged(current time.Time) {
	p.publish("timeline", true, map[string]any{"current": current})
}

func (p *Publisher) RegionChanged(r geo.Region) {
	p.publish("region", true, map[string]any{"center": r.Center, "zoom": r.Zoom})
}

func (p *Publisher) AnnotationTapped(a hostmap.Annotation) {
	p.publish("annotations/tapped", false, map[string]any{
		"id":         a.ID,
		"type":       a.LayerType,
		"coordinate": a.Coordinate,
		"title":      a.Title,
		"value":      a.Value,
	})
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

// Close flushes queued events and disconnects.
func (p *Publisher) Close() {
	if !p.enabled {
		return
	}
	p.closeOnce.Do(func() {
		close(p.queue)
		<-p.done
		p.client.Disconnect(1000)
	})
}
