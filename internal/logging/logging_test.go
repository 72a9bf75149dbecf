package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":       zapcore.InfoLevel,
		"debug":  zapcore.DebugLevel,
		" WARN ": zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewFormats(t *testing.T) {
	for _, format := range []string{"", "json", "console", "text"} {
		l, err := New(Config{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("New(%q): %v", format, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("expected debug enabled for %q", format)
		}
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestAdaptForwardsKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Adapt(zap.New(core))
	l.Debug("reloaded", "count", 3)
	l.Info("inserted", "id", int64(7))
	l.Warn("corrupt store", "key", "crm")
	l.Error("persist failed", "err", "disk full")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[2].Level != zapcore.WarnLevel || entries[2].ContextMap()["key"] != "crm" {
		t.Fatalf("unexpected warn entry %+v", entries[2])
	}
	if entries[1].ContextMap()["id"] != int64(7) {
		t.Fatalf("unexpected info context %+v", entries[1].ContextMap())
	}
}

func TestNopAndNilAdapt(t *testing.T) {
	l := Adapt(nil)
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	if _, ok := l.(noopLogger); !ok {
		t.Fatalf("expected noop logger for nil zap logger")
	}
}
