package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
)

type fakeRecognizer struct {
	text     string
	err      error
	calls    int
	path     string
	existed  bool
	contents []byte
	language string
}

func (f *fakeRecognizer) Recognize(_ context.Context, wavPath, language string) (string, error) {
	f.calls++
	f.path = wavPath
	f.language = language
	data, err := os.ReadFile(wavPath)
	f.existed = err == nil
	f.contents = data
	return f.text, f.err
}

type noticeLog []chat.Notice

func (l *noticeLog) reporter() Reporter {
	return func(n chat.Notice) { *l = append(*l, n) }
}

func TestTranscribeEmptyInputSkipsService(t *testing.T) {
	rec := &fakeRecognizer{text: "hello"}
	var notices noticeLog

	for _, audio := range [][]byte{nil, {}} {
		if _, ok := NewTranscriber(rec, "").Transcribe(context.Background(), audio, notices.reporter()); ok {
			t.Fatal("empty audio must yield no text")
		}
	}
	if rec.calls != 0 || len(notices) != 0 {
		t.Fatalf("empty audio is not an error: calls=%d notices=%v", rec.calls, notices)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	rec := &fakeRecognizer{text: "  What is gravity? "}
	var notices noticeLog

	text, ok := NewTranscriber(rec, "").Transcribe(context.Background(), []byte("RIFFdata"), notices.reporter())
	if !ok || text != "What is gravity?" {
		t.Fatalf("unexpected result: %q %v", text, ok)
	}
	if !rec.existed || string(rec.contents) != "RIFFdata" {
		t.Fatal("recognizer should read the clip from the temp file")
	}
	if !strings.HasSuffix(rec.path, ".wav") || rec.language != "en-US" {
		t.Fatalf("unexpected call: path=%s language=%s", rec.path, rec.language)
	}
	if _, err := os.Stat(rec.path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file must be removed, stat err=%v", err)
	}
	if len(notices) != 0 {
		t.Fatalf("unexpected notices: %v", notices)
	}
}

func TestTranscribeFailuresReportAndCleanUp(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		err     error
		message string
	}{
		{name: "unintelligible", err: ErrUnintelligible, message: "Could not understand audio"},
		{name: "blank transcript", text: "   ", message: "Could not understand audio"},
		{name: "service unavailable", err: fmt.Errorf("%w: dial tcp: timeout", ErrServiceUnavailable), message: "Speech recognition error"},
		{name: "other", err: errors.New("bad wav header"), message: "Error processing audio: bad wav header"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &fakeRecognizer{text: tc.text, err: tc.err}
			var notices noticeLog

			if _, ok := NewTranscriber(rec, "en-US").Transcribe(context.Background(), []byte("clip"), notices.reporter()); ok {
				t.Fatal("expected failure")
			}
			if len(notices) != 1 || notices[0].Level != chat.LevelError || !strings.Contains(notices[0].Message, tc.message) {
				t.Fatalf("unexpected notices: %+v", notices)
			}
			if _, err := os.Stat(rec.path); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("temp file leaked: %s", rec.path)
			}
		})
	}
}
