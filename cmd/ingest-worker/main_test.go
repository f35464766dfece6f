package main

import (
	"io"
	"log/slog"
	"testing"

	"envmonitor/internal/config"
)

func TestNewSubscriber_UsesMQTTConfig(t *testing.T) {
	cfg := &config.Config{MQTT: config.MQTTConfig{
		Broker:   "tcp://mosquitto:1883",
		ClientID: "ingest-test",
		Topic:    "sensors/+/readings",
		QoS:      1,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sub := newSubscriber(cfg, nil, logger)
	if sub == nil {
		t.Fatal("newSubscriber returned nil")
	}

	opts := sub.ClientOptions(cfg.MQTT)
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "mosquitto:1883" {
		t.Errorf("broker = %v, want mosquitto:1883", opts.Servers)
	}
	if opts.ClientID != "ingest-test" {
		t.Errorf("client id = %q, want ingest-test", opts.ClientID)
	}
	if opts.Username != "" {
		t.Errorf("username = %q, want empty when not configured", opts.Username)
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		if newLogger(level) == nil {
			t.Fatalf("newLogger(%q) returned nil", level)
		}
	}
}
