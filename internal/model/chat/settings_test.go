package chat

import (
	"errors"
	"testing"
)

func TestParseResponseLength(t *testing.T) {
	cases := []struct {
		raw     string
		want    ResponseLength
		wantErr bool
	}{
		{raw: "Short", want: Short},
		{raw: " long ", want: Long},
		{raw: "medium", want: Medium},
		{raw: "huge", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseResponseLength(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidResponseLength) {
				t.Errorf("ParseResponseLength(%q) err = %v, want ErrInvalidResponseLength", tc.raw, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseResponseLength(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
}

func TestDirective(t *testing.T) {
	if got := Short.Directive(); got != "1-3 sentences" {
		t.Fatalf("short directive = %q", got)
	}
	if got := Medium.Directive(); got != "3-5 sentences" {
		t.Fatalf("medium directive = %q", got)
	}
	if got := Long.Directive(); got != "6+ sentences" {
		t.Fatalf("long directive = %q", got)
	}
	if got := ResponseLength("").Directive(); got != "3-5 sentences" {
		t.Fatalf("unknown mode should fall back to medium, got %q", got)
	}
}

func TestSpeechEnabled(t *testing.T) {
	if (Settings{}).SpeechEnabled() {
		t.Fatal("speech must be off by default")
	}
	if !(Settings{Autoplay: true}).SpeechEnabled() || !(Settings{VoiceOnly: true}).SpeechEnabled() {
		t.Fatal("either flag enables speech")
	}
}

func TestStateString(t *testing.T) {
	if Transcribing.String() != "transcribing" || State(42).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
