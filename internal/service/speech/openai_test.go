package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

func newOpenAITestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider(&speechmodel.SpeechConfig{
		Provider:      speechmodel.ProviderOpenAI,
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: server.URL + "/v1",
		TTSVoice:      "parlor-host",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider err: %v", err)
	}
	return provider
}

func TestOpenAIRecognize(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" What is gravity? "}`))
	})

	text, err := provider.Recognize(context.Background(), writeTestWAV(t, 64), "en-US")
	if err != nil {
		t.Fatalf("Recognize err: %v", err)
	}
	if text != "What is gravity?" {
		t.Fatalf("text = %q", text)
	}
}

func TestOpenAIRecognizeEmptyTranscript(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":""}`))
	})

	if _, err := provider.Recognize(context.Background(), writeTestWAV(t, 64), "en-US"); !errors.Is(err, ErrUnintelligible) {
		t.Fatalf("err = %v, want ErrUnintelligible", err)
	}
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrServiceUnavailable},
	}

	for _, tc := range cases {
		provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
		})

		_, err := provider.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hi"})
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestOpenAISynthesize(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request json: %v", err)
		}
		if req["voice"] != "fable" {
			t.Errorf("voice = %v, want fable", req["voice"])
		}
		if req["speed"] != 0.75 {
			t.Errorf("speed = %v, want 0.75", req["speed"])
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-mp3-bytes"))
	})

	audio, err := provider.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "Quiet please.", Voice: "library-tutor", Slow: true})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(audio) != "ID3-mp3-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(&speechmodel.SpeechConfig{Provider: speechmodel.ProviderOpenAI}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
