package mqtt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Tom-Camp/fe/internal/config"
	"github.com/Tom-Camp/fe/internal/metrics"
	"github.com/Tom-Camp/fe/internal/telemetry"
)

func newTestSubscriber(t *testing.T) (*Subscriber, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := config.Config{
		MQTTBroker:   "127.0.0.1",
		MQTTPort:     1883,
		MQTTClientID: "test",
		MQTTTopic:    "tomcamp/devices/refresh",
	}
	return NewSubscriber(cfg, logger), &logs
}

func counter(result string) float64 {
	return testutil.ToFloat64(metrics.RefreshNoticesTotal.WithLabelValues(result))
}

func TestHandleMessage_valid(t *testing.T) {
	s, _ := newTestSubscriber(t)
	var got []RefreshNotice
	s.SetMessageHandler(func(n RefreshNotice) error {
		got = append(got, n)
		return nil
	})
	before := counter("applied")

	s.handleMessage("tomcamp/devices/refresh", []byte(`{"device_class":"coop","device_id":"coop-1"}`))

	if len(got) != 1 {
		t.Fatalf("handler calls = %d; want 1", len(got))
	}
	if got[0].DeviceClass != telemetry.Coop || got[0].DeviceID != "coop-1" {
		t.Errorf("notice = %+v", got[0])
	}
	if d := counter("applied") - before; d != 1 {
		t.Errorf("applied counter delta = %v; want 1", d)
	}
}

func TestHandleMessage_invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		logged  string
	}{
		{"not json", `not json`, "failed to parse refresh notice"},
		{"missing class", `{"device_id":"x"}`, "device_class is required"},
		{"unknown class", `{"device_class":"toaster"}`, "unknown device_class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, logs := newTestSubscriber(t)
			called := false
			s.SetMessageHandler(func(RefreshNotice) error {
				called = true
				return nil
			})
			before := counter("invalid")

			s.handleMessage("t", []byte(tt.payload))

			if called {
				t.Error("handler called for invalid notice")
			}
			if d := counter("invalid") - before; d != 1 {
				t.Errorf("invalid counter delta = %v; want 1", d)
			}
			if !strings.Contains(logs.String(), tt.logged) {
				t.Errorf("logs = %q; want %q", logs.String(), tt.logged)
			}
		})
	}
}

func TestHandleMessage_handlerError(t *testing.T) {
	s, logs := newTestSubscriber(t)
	s.SetMessageHandler(func(RefreshNotice) error { return errors.New("cache down") })
	before := counter("failed")

	s.handleMessage("t", []byte(`{"device_class":"germinator"}`))

	if d := counter("failed") - before; d != 1 {
		t.Errorf("failed counter delta = %v; want 1", d)
	}
	if !strings.Contains(logs.String(), "cache down") {
		t.Errorf("logs = %q; want handler error", logs.String())
	}
}

func TestHandleMessage_noHandler(t *testing.T) {
	s, _ := newTestSubscriber(t)
	// Must not panic.
	s.handleMessage("t", []byte(`{"device_class":"coop"}`))
}

func TestDisconnect_idempotent(t *testing.T) {
	s, _ := newTestSubscriber(t)
	s.Disconnect()
	s.Disconnect()

	if s.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
	if err := s.Connect(context.Background()); err == nil {
		t.Error("Connect after Disconnect = nil; want error")
	}
}
