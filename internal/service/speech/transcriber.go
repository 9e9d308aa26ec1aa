package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
)

// Recognizer converts a WAV file into text in the given locale.
type Recognizer interface {
	Recognize(ctx context.Context, wavPath, language string) (string, error)
}

// Reporter receives user-facing notices produced by the adapters.
type Reporter func(chat.Notice)

func (r Reporter) report(n chat.Notice) {
	if r != nil {
		r(n)
	}
}

// Transcriber owns the temporary-file lifecycle around a Recognizer and turns its
// failures into notices.
type Transcriber struct {
	recognizer Recognizer
	language   string
	tempDir    string
}

// NewTranscriber wraps recognizer. An empty language defaults to en-US.
func NewTranscriber(recognizer Recognizer, language string) *Transcriber {
	if strings.TrimSpace(language) == "" {
		language = "en-US"
	}
	return &Transcriber{recognizer: recognizer, language: language}
}

// Transcribe returns the recognised text of a WAV clip. ok is false when nothing was
// captured or any failure occurred; the failure has already been reported.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, report Reporter) (text string, ok bool) {
	if len(audio) == 0 {
		return "", false
	}

	logger := log.With().Str("component", "speech").Int("bytes", len(audio)).Logger()

	tmp, err := os.CreateTemp(t.tempDir, "parlor-*.wav")
	if err != nil {
		logger.Error().Err(err).Msg("temp file create failed")
		report.report(chat.Error(fmt.Sprintf("Error processing audio: %v", err)))
		return "", false
	}
	path := tmp.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", path).Msg("temp file cleanup failed")
		}
	}()

	_, err = tmp.Write(audio)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		logger.Error().Err(err).Msg("temp file write failed")
		report.report(chat.Error("Failed to create audio file"))
		return "", false
	}

	text, err = t.recognizer.Recognize(ctx, path, t.language)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = ErrUnintelligible
		}
	}

	switch {
	case err == nil:
		logger.Info().Int("chars", len(text)).Msg("audio transcribed")
		return text, true
	case errors.Is(err, ErrUnintelligible):
		logger.Info().Msg("audio unintelligible")
		report.report(chat.Error("Could not understand audio. Please speak more clearly."))
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrRateLimited):
		logger.Warn().Err(err).Msg("recognition service failed")
		report.report(chat.Error(fmt.Sprintf("Speech recognition error: %v. Please check your internet connection.", err)))
	default:
		logger.Error().Err(err).Msg("transcription failed")
		report.report(chat.Error(fmt.Sprintf("Error processing audio: %v", err)))
	}
	return "", false
}
