package speech

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

// Service 语音服务门面：按配置选择提供方并组装两个适配器。
type Service struct {
	config      speechmodel.SpeechConfig
	transcriber *Transcriber
	synthesizer *Synthesizer
	disabled    error
}

// NewService builds the adapters for the configured provider.
func NewService(config speechmodel.SpeechConfig) (*Service, error) {
	var (
		recognizer Recognizer
		voice      Voice
	)

	switch config.Provider {
	case speechmodel.ProviderVolcengine:
		if _, _, err := resolveCredentials(&config); err != nil {
			return nil, err
		}
		recognizer = NewVolcengineRecognizer(&config)
		voice = NewVolcengineVoice(&config)
	case speechmodel.ProviderOpenAI, "":
		config.Provider = speechmodel.ProviderOpenAI
		provider, err := NewOpenAIProvider(&config)
		if err != nil {
			return nil, err
		}
		recognizer, voice = provider, provider
	default:
		return nil, fmt.Errorf("unknown speech provider %q", config.Provider)
	}

	log.Info().Str("component", "speech").Str("provider", string(config.Provider)).
		Int("retry_attempts", config.RetryAttempts).Dur("retry_delay", config.RetryDelay).
		Msg("speech service ready")

	return NewServiceWith(config, recognizer, voice), nil
}

// NewServiceWith assembles the adapters around explicit provider implementations.
func NewServiceWith(config speechmodel.SpeechConfig, recognizer Recognizer, voice Voice) *Service {
	return &Service{
		config:      config,
		transcriber: NewTranscriber(recognizer, config.ASRLanguage),
		synthesizer: NewSynthesizer(voice, RetryPolicy{Attempts: config.RetryAttempts, BaseDelay: config.RetryDelay}, SynthesisDefaults{
			Language: config.TTSLanguage,
			Slow:     config.TTSSlow,
			Format:   "mp3",
		}),
	}
}

// disabledProvider fails every call with the configuration error.
type disabledProvider struct {
	err error
}

func (d disabledProvider) Recognize(context.Context, string, string) (string, error) {
	return "", d.err
}

func (d disabledProvider) Synthesize(context.Context, *speechmodel.TTSRequest) ([]byte, error) {
	return nil, d.err
}

// NewDisabledService 在语音不可用时提供占位实现，调用时以提示形式报告原因。
func NewDisabledService(config speechmodel.SpeechConfig, cause error) *Service {
	svc := NewServiceWith(config, disabledProvider{err: cause}, disabledProvider{err: cause})
	svc.disabled = cause
	return svc
}

// Available reports whether a provider is configured. The error explains why not.
func (s *Service) Available() (bool, error) {
	return s.disabled == nil, s.disabled
}

// Provider 返回当前语音提供方。
func (s *Service) Provider() speechmodel.Provider {
	return s.config.Provider
}

// Transcriber returns the transcription adapter.
func (s *Service) Transcriber() *Transcriber {
	return s.transcriber
}

// Synthesizer returns the synthesis adapter.
func (s *Service) Synthesizer() *Synthesizer {
	return s.synthesizer
}
