package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/voice-parlor/backend/internal/llm"
)

// AIProvider 文本生成服务提供方。
type AIProvider string

const (
	ProviderGemini AIProvider = "gemini"
	ProviderArk    AIProvider = "ark"
	ProviderOpenAI AIProvider = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider AIProvider

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Ark
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示当前提供方的必需凭证是否齐全。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	default:
		return false
	}
}

// ModelName 返回实际使用的模型名称，用于日志。
func (c AIConfig) ModelName() string {
	switch c.Provider {
	case ProviderArk:
		return c.Model
	case ProviderOpenAI:
		if c.OpenAIModel != "" {
			return c.OpenAIModel
		}
		return llm.DefaultOpenAIModel
	default:
		if c.GeminiModel != "" {
			return c.GeminiModel
		}
		return llm.DefaultGeminiModel
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	opts := llm.Options{Temperature: temperature, TopP: topP, MaxTokens: maxTokens}

	switch c.Provider {
	case ProviderArk:
		cfg := &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		}
		chatModel, err := ark.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return chatModel, nil
	case ProviderOpenAI:
		chatModel, err := llm.NewOpenAIChatModel(ctx, &llm.OpenAIConfig{
			APIKey:  c.OpenAIAPIKey,
			BaseURL: c.OpenAIBaseURL,
			Model:   c.OpenAIModel,
			Options: opts,
		})
		if err != nil {
			return nil, err
		}
		return chatModel, nil
	default:
		chatModel, err := llm.NewGeminiChatModel(ctx, &llm.GeminiConfig{
			APIKey:  c.GeminiAPIKey,
			Model:   c.GeminiModel,
			Options: opts,
		})
		if err != nil {
			return nil, err
		}
		return chatModel, nil
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := AIProvider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderGemini))))
	switch provider {
	case ProviderGemini, ProviderArk, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := firstOptionalFloatEnv("AI_TEMPERATURE", "ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := firstOptionalFloatEnv("AI_TOP_P", "ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := firstOptionalIntEnv("AI_MAX_TOKENS", "ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	streamKey := "AI_STREAM"
	if strings.TrimSpace(os.Getenv(streamKey)) == "" {
		streamKey = "ARK_STREAM"
	}
	stream, err := parseBoolEnv(streamKey, true)
	if err != nil {
		return AIConfig{}, err
	}

	geminiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if geminiKey == "" {
		geminiKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}

	return AIConfig{
		Provider:       provider,
		GeminiAPIKey:   geminiKey,
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", llm.DefaultGeminiModel),
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model"))),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:  strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", llm.DefaultOpenAIModel),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}
