package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesJSONWithService(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mimitomo", "debug", "json")
	log.Debug().Str("component", "session").Msg("state changed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "mimitomo" || entry["component"] != "session" || entry["message"] != "state changed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("expected timestamp field: %v", entry)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mimitomo", "warn", "json")
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewConsoleFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mimitomo", "info", "console")
	log.Info().Msg("聞き取り中")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "聞き取り中") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		" error ": zerolog.ErrorLevel,
		"loud":    zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}
