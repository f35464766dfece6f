// Package ingest consumes sensor readings published by devices over MQTT and
// hands them to the readings service.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"envmonitor/internal/config"
	"envmonitor/internal/readings"
	"envmonitor/internal/types"
)

const (
	defaultHandleTimeout = 10 * time.Second
	disconnectQuiesce    = 250 // milliseconds
)

// Ingester stores a reading published by a device.
type Ingester interface {
	IngestFromDevice(ctx context.Context, in readings.IngestInput) (*types.SensorReading, error)
}

type SubscriberConfig struct {
	// Topic is the subscription filter. The device ID is the second level of
	// the concrete topic, as in sensors/<device_id>/readings.
	Topic         string
	QoS           byte
	Ingester      Ingester
	Logger        *slog.Logger
	HandleTimeout time.Duration
}

// Subscriber connects to the broker, (re)subscribes on every connect and
// ingests each message it receives.
type Subscriber struct {
	topic    string
	qos      byte
	ingester Ingester
	logger   *slog.Logger
	timeout  time.Duration
}

func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	return &Subscriber{
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		ingester: cfg.Ingester,
		logger:   cfg.Logger,
		timeout:  cfg.HandleTimeout,
	}
}

// ClientOptions builds paho options for cfg. The subscription is restored in
// the OnConnect handler so auto-reconnects resume consumption.
func (s *Subscriber) ClientOptions(cfg config.MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password.Unmask())
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}

// Run connects client and blocks until ctx is cancelled, then unsubscribes
// and disconnects.
func (s *Subscriber) Run(ctx context.Context, client mqtt.Client) error {
	if err := wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("connect to mqtt broker: %w", err)
	}

	<-ctx.Done()

	if tok := client.Unsubscribe(s.topic); !tok.WaitTimeout(2*time.Second) || tok.Error() != nil {
		s.logger.Warn("mqtt unsubscribe did not complete", "topic", s.topic, "error", tok.Error())
	}
	client.Disconnect(disconnectQuiesce)
	s.logger.Info("mqtt subscriber stopped", "topic", s.topic)
	return nil
}

func (s *Subscriber) onConnect(client mqtt.Client) {
	tok := client.Subscribe(s.topic, s.qos, s.HandleMessage)
	if tok.Wait() && tok.Error() != nil {
		s.logger.Error("mqtt subscribe failed", "topic", s.topic, "error", tok.Error())
		return
	}
	s.logger.Info("mqtt subscribed", "topic", s.topic, "qos", s.qos)
}

// HandleMessage decodes and ingests one reading. Invalid messages are logged
// and dropped; the broker is never asked to redeliver them.
func (s *Subscriber) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := DeviceIDFromTopic(msg.Topic())
	if !ok {
		s.logger.Warn("mqtt message on unexpected topic", "topic", msg.Topic())
		return
	}

	var in readings.IngestInput
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		s.logger.Warn("mqtt payload is not valid JSON",
			"device_id", deviceID,
			"error", err,
		)
		return
	}
	if in.DeviceID != "" && in.DeviceID != deviceID {
		s.logger.Warn("mqtt payload device does not match topic",
			"device_id", deviceID,
			"payload_device_id", in.DeviceID,
		)
		return
	}
	in.DeviceID = deviceID

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	sr, err := s.ingester.IngestFromDevice(ctx, in)
	if err != nil {
		level := slog.LevelError
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() < 500 {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "mqtt reading rejected",
			"device_id", deviceID,
			"error", err,
		)
		return
	}
	s.logger.Debug("mqtt reading stored", "device_id", deviceID, "reading_id", sr.ID)
}

// DeviceIDFromTopic extracts <id> from sensors/<id>/readings.
func DeviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "sensors" || parts[2] != "readings" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
