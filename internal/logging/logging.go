// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format 日志输出格式。
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config holds logger configuration.
type Config struct {
	Level  string
	Format Format
	Out    io.Writer // 默认 os.Stderr
}

// Setup installs the global logger used through github.com/rs/zerolog/log.
func Setup(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	switch cfg.Format {
	case "", FormatJSON:
	case FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", cfg.Format)
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(out).With().Timestamp().Str("app", "voice-parlor").Logger()
	return nil
}

// ParseLevel maps a level name to a zerolog level; empty means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
