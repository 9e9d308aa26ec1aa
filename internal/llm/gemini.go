package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// DefaultGeminiModel 与原有 Streamlit 应用使用的模型一致。
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini chat model.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Options Options
}

// GeminiChatModel implements model.BaseChatModel on top of the Gemini API.
type GeminiChatModel struct {
	client *genai.Client
	model  string
	opts   Options
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel creates a Gemini-backed chat model.
func NewGeminiChatModel(ctx context.Context, cfg *GeminiConfig) (*GeminiChatModel, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = DefaultGeminiModel
	}
	return &GeminiChatModel{client: client, model: name, opts: cfg.Options}, nil
}

// Generate returns the full reply in one call.
func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	name, contents, config, err := m.request(input, opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Models.GenerateContent(ctx, name, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return schema.AssistantMessage(resp.Text(), nil), nil
}

// Stream returns reply fragments in the order the service delivers them.
func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	name, contents, config, err := m.request(input, opts)
	if err != nil {
		return nil, err
	}

	return pipe(func(emit func(string) bool) error {
		for resp, err := range m.client.Models.GenerateContentStream(ctx, name, contents, config) {
			if err != nil {
				return fmt.Errorf("gemini stream: %w", err)
			}
			if text := resp.Text(); text != "" && !emit(text) {
				return nil
			}
		}
		return nil
	}), nil
}

func (m *GeminiChatModel) request(input []*schema.Message, opts []model.Option) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	system, contents := toGeminiContents(input)
	if len(contents) == 0 {
		return "", nil, nil, ErrEmptyInput
	}

	options := m.opts.merge(opts)
	name := m.model
	if options.Model != nil && *options.Model != "" {
		name = *options.Model
	}

	config := &genai.GenerateContentConfig{
		Temperature:   options.Temperature,
		TopP:          options.TopP,
		StopSequences: options.Stop,
	}
	if options.MaxTokens != nil {
		config.MaxOutputTokens = int32(*options.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return name, contents, config, nil
}

// toGeminiContents maps eino messages to Gemini contents. Assistant turns use the
// "model" role; system messages become the system instruction.
func toGeminiContents(input []*schema.Message) (string, []*genai.Content) {
	system, rest := splitSystem(input)
	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == schema.Assistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return system, contents
}
