package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel 未配置 OPENAI_MODEL 时使用。
const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIConfig configures the OpenAI-compatible chat model.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Options Options
}

// OpenAIChatModel implements model.BaseChatModel with the chat completions API.
type OpenAIChatModel struct {
	client *openai.Client
	model  string
	opts   Options
}

var _ model.BaseChatModel = (*OpenAIChatModel)(nil)

// NewOpenAIChatModel creates a chat model for OpenAI or any compatible endpoint.
func NewOpenAIChatModel(_ context.Context, cfg *OpenAIConfig) (*OpenAIChatModel, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	name := cfg.Model
	if name == "" {
		name = DefaultOpenAIModel
	}
	return &OpenAIChatModel{
		client: openai.NewClientWithConfig(clientCfg),
		model:  name,
		opts:   cfg.Options,
	}, nil
}

// Generate returns the full reply in one call.
func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req, err := m.request(input, opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}
	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream returns reply fragments in the order the service delivers them.
func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.request(input, opts)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat stream: %w", err)
	}

	return pipe(func(emit func(string) bool) error {
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("openai chat stream: %w", err)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" && !emit(choice.Delta.Content) {
					return nil
				}
			}
		}
	}), nil
}

func (m *OpenAIChatModel) request(input []*schema.Message, opts []model.Option) (openai.ChatCompletionRequest, error) {
	messages := toOpenAIMessages(input)
	if len(messages) == 0 {
		return openai.ChatCompletionRequest{}, ErrEmptyInput
	}

	options := m.opts.merge(opts)
	req := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
		Stop:     options.Stop,
	}
	if options.Model != nil && *options.Model != "" {
		req.Model = *options.Model
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.TopP != nil {
		req.TopP = *options.TopP
	}
	if options.MaxTokens != nil {
		req.MaxCompletionTokens = *options.MaxTokens
	}
	return req, nil
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessage {
	system, rest := splitSystem(input)
	messages := make([]openai.ChatCompletionMessage, 0, len(rest)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range rest {
		role := openai.ChatMessageRoleUser
		if msg.Role == schema.Assistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return messages
}
