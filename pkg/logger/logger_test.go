package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestInfoIncludesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "relay-test", Output: &buf})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"topic":          "order-placed",
		"consumer_group": "payment-service",
	})
	logg.Info(ctx, "message dispatched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["topic"] != "order-placed" {
		t.Fatalf("missing topic field: %v", entry)
	}
	if entry["consumer_group"] != "payment-service" {
		t.Fatalf("missing consumer_group field: %v", entry)
	}
	if entry["service"] != "relay-test" {
		t.Fatalf("missing service field: %v", entry)
	}
}

func TestErrorIncludesStack(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "relay-test", Output: &buf})

	logg.Error(context.Background(), "publish failed", errors.New("broker down"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["error"] != "broker down" {
		t.Fatalf("missing error field: %v", entry)
	}
	if entry["stack"] == nil || entry["stack"] == "" {
		t.Fatalf("expected stack trace on error logs")
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("warn"); got != zerolog.WarnLevel {
		t.Fatalf("parse warn: got %v", got)
	}
	if got := ParseLevel(""); got != zerolog.InfoLevel {
		t.Fatalf("empty should default to info: got %v", got)
	}
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Fatalf("unknown should default to info: got %v", got)
	}
}
