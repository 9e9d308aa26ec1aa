package config

import (
	"testing"
	"time"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "AI_PROVIDER", "AI_STREAM", "ARK_STREAM", "SPEECH_PROVIDER",
		"SPEECH_TTS_RETRY_ATTEMPTS", "SPEECH_TTS_RETRY_DELAY", "SESSION_DEFAULT_LENGTH",
		"SESSION_IDLE_TIMEOUT", "GEMINI_MODEL", "SPEECH_ASR_LANGUAGE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderGemini || cfg.AI.ModelName() != "gemini-2.5-flash" || !cfg.AI.StreamResponse {
		t.Errorf("unexpected ai defaults: %+v", cfg.AI)
	}
	if cfg.Speech.Provider != speech.ProviderOpenAI || cfg.Speech.RetryAttempts != 3 || cfg.Speech.RetryDelay != 2*time.Second {
		t.Errorf("unexpected speech defaults: %+v", cfg.Speech)
	}
	if cfg.Speech.ASRLanguage != "en-US" {
		t.Errorf("asr language = %q", cfg.Speech.ASRLanguage)
	}
	if cfg.Session.DefaultLength != chat.Medium || cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("unexpected session defaults: %+v", cfg.Session)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("AI_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AI_STREAM", "false")
	t.Setenv("AI_TEMPERATURE", "0.3")
	t.Setenv("SPEECH_PROVIDER", "volcengine")
	t.Setenv("SPEECH_TTS_RETRY_ATTEMPTS", "0")
	t.Setenv("SPEECH_TTS_RETRY_DELAY", "500ms")
	t.Setenv("SESSION_DEFAULT_LENGTH", "Short")
	t.Setenv("SESSION_IDLE_TIMEOUT", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderOpenAI || !cfg.AI.Enabled() || cfg.AI.StreamResponse {
		t.Errorf("unexpected ai config: %+v", cfg.AI)
	}
	if cfg.AI.Temperature == nil || *cfg.AI.Temperature != 0.3 {
		t.Errorf("temperature not parsed")
	}
	if cfg.Speech.Provider != speech.ProviderVolcengine || cfg.Speech.RetryAttempts != 1 || cfg.Speech.RetryDelay != 500*time.Millisecond {
		t.Errorf("unexpected speech config: %+v", cfg.Speech)
	}
	if cfg.Session.DefaultLength != chat.Short || cfg.Session.IdleTimeout != 30*time.Second || cfg.Session.SweepInterval != 30*time.Second {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AI_PROVIDER":            "bard",
		"SPEECH_PROVIDER":        "espeak",
		"SESSION_DEFAULT_LENGTH": "epic",
		"AI_STREAM":              "maybe",
		"SPEECH_TTS_RETRY_DELAY": "soon",
		"PORT":                   "80 80",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
