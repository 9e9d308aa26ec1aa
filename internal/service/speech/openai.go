package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

// OpenAIProvider implements Recognizer with Whisper and Voice with the speech endpoint.
type OpenAIProvider struct {
	client   *openai.Client
	asrModel string
	ttsModel openai.SpeechModel
	voice    string
}

// NewOpenAIProvider 创建 OpenAI 语音客户端。
func NewOpenAIProvider(config *speechmodel.SpeechConfig) (*OpenAIProvider, error) {
	if config == nil || strings.TrimSpace(config.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("%w: openai speech requires OPENAI_API_KEY", ErrNotConfigured)
	}

	clientCfg := openai.DefaultConfig(config.OpenAIAPIKey)
	if config.OpenAIBaseURL != "" {
		clientCfg.BaseURL = config.OpenAIBaseURL
	}
	if config.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	provider := &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientCfg),
		asrModel: config.ASRModel,
		ttsModel: openai.SpeechModel(config.TTSModel),
		voice:    NormalizeVoiceAlias(speechmodel.ProviderOpenAI, config.TTSVoice),
	}
	if provider.asrModel == "" {
		provider.asrModel = openai.Whisper1
	}
	if provider.ttsModel == "" {
		provider.ttsModel = openai.TTSModel1
	}
	if provider.voice == "" {
		provider.voice = voiceAliases[speechmodel.ProviderOpenAI]["default"]
	}
	return provider, nil
}

// Recognize transcribes the WAV file. Only the language part of the locale is sent.
func (p *OpenAIProvider) Recognize(ctx context.Context, wavPath, language string) (string, error) {
	lang, _, _ := strings.Cut(language, "-")
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.asrModel,
		FilePath: wavPath,
		Language: strings.ToLower(lang),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}

// Synthesize renders req.Text as mp3 audio.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	voice := NormalizeVoiceAlias(speechmodel.ProviderOpenAI, req.Voice)
	if voice == "" {
		voice = p.voice
	}
	speed := 1.0
	if req.Slow {
		speed = 0.75
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          p.ttsModel,
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read speech body: %w", ErrServiceUnavailable, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrServiceUnavailable)
	}
	return audio, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	if isTransportError(err) {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return err
}
