package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Tom-Camp/fe/internal/config"
	"github.com/Tom-Camp/fe/internal/metrics"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// RefreshNotice announces that a device has posted new readings.
type RefreshNotice struct {
	DeviceClass telemetry.DeviceClass `json:"device_class"`
	DeviceID    string                `json:"device_id"`
}

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handlerMu sync.RWMutex
	handler   func(notice RefreshNotice) error
}

// SetMessageHandler sets the handler called for each valid refresh notice.
func (s *Subscriber) SetMessageHandler(handler func(notice RefreshNotice) error) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// After an automatic reconnect the clean session has dropped our
		// subscription.
		go func() {
			if err := s.subscribe(); err != nil {
				logger.Warn("mqtt resubscribe failed", "error", err)
			}
		}()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// Connect connects to the broker; the subscription is made by the
// connect handler. It gives up when ctx is done or the subscriber stops.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errors.New("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return errors.New("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var notice RefreshNotice
	if err := json.Unmarshal(payload, &notice); err != nil {
		metrics.RefreshNoticesTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn("failed to parse refresh notice",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := validateNotice(notice); err != nil {
		metrics.RefreshNoticesTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn("invalid refresh notice",
			"topic", topic,
			"device_class", notice.DeviceClass,
			"error", err,
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	if err := handler(notice); err != nil {
		metrics.RefreshNoticesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("refresh handler failed",
			"topic", topic,
			"device_class", notice.DeviceClass,
			"error", err,
		)
		return
	}
	metrics.RefreshNoticesTotal.WithLabelValues("applied").Inc()
	s.logger.Debug("applied refresh notice",
		"device_class", notice.DeviceClass,
		"device_id", notice.DeviceID,
	)
}

func validateNotice(n RefreshNotice) error {
	if n.DeviceClass == "" {
		return errors.New("device_class is required")
	}
	if _, err := telemetry.LookupSchema(n.DeviceClass); err != nil {
		return fmt.Errorf("unknown device_class %q", n.DeviceClass)
	}
	return nil
}

// IsConnected reports whether both our state and the paho client say the
// broker is reachable.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect unsubscribes and closes the broker connection. Calling it more
// than once is harmless.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
