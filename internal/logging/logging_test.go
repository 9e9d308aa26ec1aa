package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}

	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetupWritesJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	previous := log.Logger
	defer func() { log.Logger = previous }()

	var buf bytes.Buffer
	if err := Setup(Config{Level: "info", Format: FormatJSON, Out: &buf}); err != nil {
		t.Fatalf("Setup err: %v", err)
	}

	logger := Component("turn")
	logger.Debug().Msg("hidden")
	logger.Info().Str("session", "s1").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry should be filtered: %s", out)
	}
	if !strings.Contains(out, `"component":"turn"`) || !strings.Contains(out, `"session":"s1"`) {
		t.Fatalf("missing structured fields: %s", out)
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	if err := Setup(Config{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
