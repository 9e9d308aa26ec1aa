package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

// Voice converts text into encoded audio.
type Voice interface {
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) ([]byte, error)
}

// RetryPolicy bounds the retries on rate-limit responses. The wait before retry n+1 is
// BaseDelay * n.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy 三次尝试，基础等待两秒。
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second}

// SynthesisDefaults 合成请求的固定参数。
type SynthesisDefaults struct {
	Language string
	Slow     bool
	Format   string
}

// Synthesizer wraps a Voice with the rate-limit retry policy and reports failures as
// notices. It does not cache.
type Synthesizer struct {
	voice    Voice
	policy   RetryPolicy
	defaults SynthesisDefaults
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSynthesizer wraps voice. Zero policy fields fall back to DefaultRetryPolicy.
func NewSynthesizer(voice Voice, policy RetryPolicy, defaults SynthesisDefaults) *Synthesizer {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultRetryPolicy.Attempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if defaults.Format == "" {
		defaults.Format = "mp3"
	}
	return &Synthesizer{voice: voice, policy: policy, defaults: defaults, sleep: sleepContext}
}

// Synthesize returns encoded audio for text. ok is false when synthesis failed; the
// failure has already been reported.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string, report Reporter) (audio []byte, ok bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	req := &speechmodel.TTSRequest{
		Text:     text,
		Voice:    voice,
		Language: s.defaults.Language,
		Slow:     s.defaults.Slow,
		Format:   s.defaults.Format,
	}
	logger := log.With().Str("component", "speech").Int("chars", len(text)).Logger()

	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		audio, err := s.voice.Synthesize(ctx, req)
		if err == nil {
			logger.Info().Int("attempt", attempt).Int("bytes", len(audio)).Msg("speech synthesized")
			return audio, true
		}

		if !errors.Is(err, ErrRateLimited) {
			logger.Error().Err(err).Int("attempt", attempt).Msg("synthesis failed")
			report.report(chat.Error(fmt.Sprintf("Text-to-speech error: %v", err)))
			return nil, false
		}

		if attempt == s.policy.Attempts {
			break
		}

		delay := s.policy.BaseDelay * time.Duration(attempt)
		logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("synthesis rate limited, retrying")
		if err := s.sleep(ctx, delay); err != nil {
			logger.Warn().Err(err).Msg("synthesis retry cancelled")
			report.report(chat.Warning("Text-to-speech was cancelled. The text reply is still available."))
			return nil, false
		}
	}

	logger.Warn().Int("attempts", s.policy.Attempts).Msg("synthesis rate limit retries exhausted")
	report.report(chat.Warning("Text-to-speech is temporarily unavailable (rate limited). The text reply is still available."))
	return nil, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
