package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
)

var ErrUnknownKiosk = errors.New("unknown kiosk")

// Router resolves a kiosk code; *hub.Hub satisfies it.
type Router interface {
	Get(code string) *kiosk.Kiosk
}

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Codec       string
	QoS         byte
}

// MQTTSource subscribes to <prefix>/+/classifications, where the wildcard
// segment is the kiosk code, and feeds each frame to that kiosk.
type MQTTSource struct {
	cfg    Config
	cat    *catalog.Catalog
	router Router
	log    *zap.Logger
	client mqtt.Client

	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

type Stats struct {
	Received  uint64
	Delivered uint64
	Dropped   uint64
}

func NewMQTTSource(cfg Config, cat *catalog.Catalog, router Router, log *zap.Logger) (*MQTTSource, error) {
	if !ValidCodec(cfg.Codec) {
		return nil, fmt.Errorf("%q: %w", cfg.Codec, ErrUnknownCodec)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MQTTSource{cfg: cfg, cat: cat, router: router, log: log}, nil
}

func (s *MQTTSource) Topic() string {
	return s.cfg.TopicPrefix + "/+/classifications"
}

func (s *MQTTSource) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	// subscriptions are not kept across reconnects without a persistent session
	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe(s.Topic(), s.cfg.QoS, s.handle)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			s.log.Error("mqtt subscribe failed", zap.String("topic", s.Topic()), zap.Error(token.Error()))
			return
		}
		s.log.Info("mqtt subscribed", zap.String("broker", s.cfg.Broker), zap.String("topic", s.Topic()))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.log.Warn("mqtt connection lost, will auto-reconnect", zap.String("broker", s.cfg.Broker), zap.Error(err))
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

func (s *MQTTSource) handle(_ mqtt.Client, m mqtt.Message) {
	if err := s.Deliver(m.Topic(), m.Payload()); err != nil {
		s.log.Debug("classification dropped", zap.String("topic", m.Topic()), zap.Error(err))
	}
}

// Deliver decodes one frame published on topic and hands it to its kiosk.
func (s *MQTTSource) Deliver(topic string, payload []byte) error {
	s.received.Add(1)

	code, ok := KioskFromTopic(s.cfg.TopicPrefix, topic)
	if !ok {
		s.dropped.Add(1)
		return fmt.Errorf("topic %q: %w", topic, ErrUnknownKiosk)
	}
	msg, err := Decode(s.cfg.Codec, payload)
	if err != nil {
		s.dropped.Add(1)
		return err
	}
	samples, malformed := ToSamples(s.cat, msg)
	if malformed > 0 {
		s.dropped.Add(uint64(malformed))
		s.log.Debug("malformed detections discarded", zap.String("kiosk", code), zap.Int("count", malformed))
	}
	if len(samples) == 0 {
		return nil
	}

	k := s.router.Get(code)
	if k == nil {
		s.dropped.Add(1)
		return fmt.Errorf("%q: %w", code, ErrUnknownKiosk)
	}
	if !k.Send(kiosk.Detection{Samples: samples}) {
		s.dropped.Add(1)
		return fmt.Errorf("%q: %w", code, kiosk.ErrStopped)
	}
	s.delivered.Add(1)
	return nil
}

func (s *MQTTSource) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
	}
}

func (s *MQTTSource) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250) // 250ms grace period
		s.log.Info("mqtt disconnected")
	}
}

// KioskFromTopic extracts the code from <prefix>/<code>/classifications.
func KioskFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	code, ok := strings.CutSuffix(rest, "/classifications")
	if !ok || code == "" || strings.Contains(code, "/") {
		return "", false
	}
	return code, true
}
