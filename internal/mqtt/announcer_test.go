package mqtt

import (
	"context"
	"testing"

	"github.com/blackmichael/journal/internal/domain"
)

func TestNew_Defaults(t *testing.T) {
	a := New(Config{Broker: "tcp://localhost:1883"})

	if a.Topic() != DefaultTopic {
		t.Errorf("expected default topic %q, got %q", DefaultTopic, a.Topic())
	}
	if a.log == nil {
		t.Error("expected logger to be set")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	a := New(Config{
		Broker:   "tcp://broker.example.com:1883",
		Username: "user",
		Password: "pass",
		Topic:    "home/journal",
	})

	if a.Topic() != "home/journal" {
		t.Errorf("expected topic %q, got %q", "home/journal", a.Topic())
	}
}

func TestStart_MissingBroker(t *testing.T) {
	a := New(Config{})
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected error with empty broker")
	}
}

func TestIsConnected_Default(t *testing.T) {
	a := New(Config{Broker: "tcp://localhost:1883"})
	if a.IsConnected() {
		t.Error("expected not connected before Start")
	}
}

func TestPostCreated_NotConnected(t *testing.T) {
	a := New(Config{Broker: "tcp://localhost:1883"})

	// Must neither panic nor block.
	a.PostCreated(context.Background(), domain.Post{ID: "01JNHS3Q7E2V3M5YB0Z1X2C3D4", Text: "hello"})
}

func TestStop_BeforeStart(t *testing.T) {
	a := New(Config{Broker: "tcp://localhost:1883"})
	a.Stop()
}
