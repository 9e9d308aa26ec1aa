package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/voice-parlor/backend/internal/logging"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Speech  speech.SpeechConfig
	Session SessionConfig
	Log     logging.Config
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speechCfg, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Speech:  speechCfg,
		Session: session,
		Log: logging.Config{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: logging.Format(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// SessionConfig 描述会话默认值与回收策略。
type SessionConfig struct {
	DefaultPersonality string
	DefaultLength      chat.ResponseLength
	IdleTimeout        time.Duration
	SweepInterval      time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	length := chat.DefaultResponseLength
	if raw := strings.TrimSpace(os.Getenv("SESSION_DEFAULT_LENGTH")); raw != "" {
		parsed, err := chat.ParseResponseLength(raw)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_DEFAULT_LENGTH: %w", err)
		}
		length = parsed
	}

	idle, err := parseDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	interval := time.Minute
	if idle > 0 && idle < interval {
		interval = idle
	}

	return SessionConfig{
		DefaultPersonality: getEnvOrDefault("SESSION_DEFAULT_PERSONALITY", persona.DefaultID),
		DefaultLength:      length,
		IdleTimeout:        idle,
		SweepInterval:      interval,
	}, nil
}

func loadSpeechConfig() (speech.SpeechConfig, error) {
	provider := speech.Provider(strings.ToLower(getEnvOrDefault("SPEECH_PROVIDER", string(speech.ProviderOpenAI))))
	switch provider {
	case speech.ProviderOpenAI, speech.ProviderVolcengine:
	default:
		return speech.SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value %q", provider)
	}

	slow, err := parseBoolEnv("SPEECH_TTS_SLOW", false)
	if err != nil {
		return speech.SpeechConfig{}, err
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return speech.SpeechConfig{}, err
	}

	attempts := 3
	if override, err := parseOptionalIntEnv("SPEECH_TTS_RETRY_ATTEMPTS"); err != nil {
		return speech.SpeechConfig{}, err
	} else if override != nil {
		if *override < 1 {
			attempts = 1
		} else {
			attempts = *override
		}
	}

	retryDelay, err := parseDurationEnv("SPEECH_TTS_RETRY_DELAY", 2*time.Second)
	if err != nil {
		return speech.SpeechConfig{}, err
	}

	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return speech.SpeechConfig{}, err
	}

	openAIKey := strings.TrimSpace(os.Getenv("SPEECH_OPENAI_API_KEY"))
	if openAIKey == "" {
		openAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	asrModel, ttsModel := "whisper-1", "tts-1"
	if provider == speech.ProviderVolcengine {
		asrModel, ttsModel = "", ""
	}

	return speech.SpeechConfig{
		Provider:       provider,
		OpenAIAPIKey:   openAIKey,
		OpenAIBaseURL:  getEnvOrDefault("SPEECH_OPENAI_BASE_URL", strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))),
		ASRModel:       getEnvOrDefault("SPEECH_ASR_MODEL", asrModel),
		TTSModel:       getEnvOrDefault("SPEECH_TTS_MODEL", ttsModel),
		AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:    strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN")),
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en"),
		TTSVoice:       strings.TrimSpace(os.Getenv("SPEECH_TTS_VOICE")),
		TTSSlow:        slow,
		RetryAttempts:  attempts,
		RetryDelay:     retryDelay,
		Timeout:        timeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 Go 时长字符串（"2s"）或纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// firstOptionalFloatEnv 返回第一个已设置的浮点变量。
func firstOptionalFloatEnv(keys ...string) (*float64, error) {
	for _, key := range keys {
		val, err := parseOptionalFloatEnv(key)
		if err != nil || val != nil {
			return val, err
		}
	}
	return nil, nil
}

func firstOptionalIntEnv(keys ...string) (*int, error) {
	for _, key := range keys {
		val, err := parseOptionalIntEnv(key)
		if err != nil || val != nil {
			return val, err
		}
	}
	return nil, nil
}
