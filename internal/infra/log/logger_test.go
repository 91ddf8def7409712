package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "prod"), "webhook")
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали JSON-строку лога: %v", err)
	}
	if entry["component"] != "webhook" {
		t.Fatalf("ожидали component=webhook, получили %v", entry["component"])
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("ожидали поле time")
	}
}

func TestDebugOnlyInDev(t *testing.T) {
	var buf bytes.Buffer
	prod := newLogger(&buf, "prod")
	prod.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev")
	}
	prod.Info().Msg("info")
	if buf.Len() == 0 {
		t.Fatalf("info должен писаться вне dev")
	}
	buf.Reset()
	dev := newLogger(&buf, "dev")
	dev.Debug().Msg("видно")
	if buf.Len() == 0 {
		t.Fatalf("debug должен писаться в dev")
	}
}
