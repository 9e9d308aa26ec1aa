package chat

import (
	"errors"
	"fmt"
	"strings"
)

// ResponseLength controls how long the assistant replies should be.
type ResponseLength string

const (
	Short  ResponseLength = "short"
	Medium ResponseLength = "medium"
	Long   ResponseLength = "long"
)

// ErrInvalidResponseLength 未知的回复长度。
var ErrInvalidResponseLength = errors.New("invalid response length")

// DefaultResponseLength 新会话默认的回复长度。
const DefaultResponseLength = Medium

var lengthDirectives = map[ResponseLength]string{
	Short:  "1-3 sentences",
	Medium: "3-5 sentences",
	Long:   "6+ sentences",
}

// ParseResponseLength 解析回复长度，大小写不敏感。
func ParseResponseLength(raw string) (ResponseLength, error) {
	mode := ResponseLength(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := lengthDirectives[mode]; !ok {
		return "", fmt.Errorf("%w %q (want short, medium or long)", ErrInvalidResponseLength, raw)
	}
	return mode, nil
}

// Directive returns the sentence range injected into the system instruction.
func (l ResponseLength) Directive() string {
	if directive, ok := lengthDirectives[l]; ok {
		return directive
	}
	return lengthDirectives[DefaultResponseLength]
}

// Valid reports whether l is one of the known modes.
func (l ResponseLength) Valid() bool {
	_, ok := lengthDirectives[l]
	return ok
}

// Settings is the user-adjustable part of a session view.
type Settings struct {
	PersonalityID  string         `json:"personalityId"`
	ResponseLength ResponseLength `json:"responseLength"`
	VoiceOnly      bool           `json:"voiceOnly"`
	Autoplay       bool           `json:"autoplay"`
}

// SpeechEnabled reports whether replies should be synthesized right after generation.
func (s Settings) SpeechEnabled() bool {
	return s.VoiceOnly || s.Autoplay
}
