package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
)

type stubTranscriber struct{ calls int }

func (s *stubTranscriber) Transcribe(_ context.Context, audio []byte, _ speech.Reporter) (string, bool) {
	s.calls++
	if len(audio) == 0 {
		return "", false
	}
	return "heard: " + string(audio), true
}

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, p persona.Persona, turns []chat.Turn, length chat.ResponseLength, _ func(string)) ai.Reply {
	return ai.Reply{Text: p.Label + " answers " + turns[len(turns)-1].Content}
}

type stubSynthesizer struct{ calls int }

func (s *stubSynthesizer) Synthesize(_ context.Context, text, _ string, _ speech.Reporter) ([]byte, bool) {
	s.calls++
	return []byte("mp3:" + text), true
}

type testEnv struct {
	router *chi.Mux
	svc    *chatservice.Service
	asr    *stubTranscriber
	tts    *stubSynthesizer
}

func setupRouter() *testEnv {
	svc := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), chatservice.Defaults{})
	asr := &stubTranscriber{}
	tts := &stubSynthesizer{}
	handler := New(svc, turn.NewOrchestrator(svc, asr, stubGenerator{}, tts))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return &testEnv{router: r, svc: svc, asr: asr, tts: tts}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) createSession(t *testing.T, body string) SessionView {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/session", []byte(body), "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var view SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return view
}

func TestCreateSessionDefaults(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")

	if view.Settings.PersonalityID != persona.DefaultID {
		t.Fatalf("expected default personality, got %s", view.Settings.PersonalityID)
	}
	if view.Settings.ResponseLength != chat.Medium || view.Settings.VoiceOnly || view.Settings.Autoplay {
		t.Fatalf("unexpected default settings: %+v", view.Settings)
	}
	if len(view.Turns) != 0 {
		t.Fatalf("expected empty transcript, got %d turns", len(view.Turns))
	}
}

func TestCreateSessionInvalidPersonality(t *testing.T) {
	env := setupRouter()
	resp := env.do(t, http.MethodPost, "/session", []byte(`{"personalityId":"pirate"}`), "application/json")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTextTurnAndTranscript(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, `{"personalityId":"study-buddy"}`)

	resp := env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"What is gravity?"}`), "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result TurnResultView
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Appended) != 2 {
		t.Fatalf("expected 2 appended turns, got %d", len(result.Appended))
	}
	if result.Appended[1].Content != "Study Buddy answers What is gravity?" {
		t.Fatalf("unexpected reply %q", result.Appended[1].Content)
	}
	if result.AudioURL != "" || env.tts.calls != 0 {
		t.Fatal("no synthesis expected with autoplay off")
	}
	if result.Appended[1].AudioURL != "/api/session/"+view.ID+"/turns/1/audio" {
		t.Fatalf("unexpected audio url %q", result.Appended[1].AudioURL)
	}

	resp = env.do(t, http.MethodGet, "/session/"+view.ID+"/", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var snapshot SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(snapshot.Turns) != 2 || snapshot.Personality != "📚 Study Buddy" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestTextTurnRejectsBlank(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")

	resp := env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"  "}`), "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	env := setupRouter()
	resp := env.do(t, http.MethodPost, "/session/missing/turns", []byte(`{"text":"hi"}`), "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAudioTurnMultipartAndDedup(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")

	upload := func() *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("audio", "clip.wav")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte("RIFF"))
		_ = writer.Close()
		return env.do(t, http.MethodPost, "/session/"+view.ID+"/audio", body.Bytes(), writer.FormDataContentType())
	}

	resp := upload()
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result TurnResultView
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Appended) != 2 || result.Appended[0].Content != "heard: RIFF" {
		t.Fatalf("unexpected result: %+v", result)
	}

	resp = upload()
	result = TurnResultView{}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Ignored || env.asr.calls != 1 {
		t.Fatalf("duplicate clip should be ignored: %+v calls=%d", result, env.asr.calls)
	}
}

func TestAudioTurnRawBodyEmpty(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")

	resp := env.do(t, http.MethodPost, "/session/"+view.ID+"/audio", nil, "audio/wav")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"ignored":true`) {
		t.Fatalf("expected ignored result: %s", resp.Body.String())
	}
}

func TestSettingsPersonalityChangeClearsHistory(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")
	env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"hello"}`), "application/json")

	resp := env.do(t, http.MethodPatch, "/session/"+view.ID+"/settings", []byte(`{"personalityId":"fitness-coach","responseLength":"LONG","voiceOnly":true}`), "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(updated.Turns) != 0 {
		t.Fatalf("expected cleared history, got %d turns", len(updated.Turns))
	}
	if updated.Settings.PersonalityID != "fitness-coach" || updated.Settings.ResponseLength != chat.Long || !updated.Settings.VoiceOnly {
		t.Fatalf("unexpected settings: %+v", updated.Settings)
	}
}

func TestSettingsInvalidLengthAppliesNothing(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")

	resp := env.do(t, http.MethodPatch, "/session/"+view.ID+"/settings", []byte(`{"autoplay":true,"responseLength":"epic"}`), "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	session, _ := env.svc.GetSession(context.Background(), view.ID)
	if session.Settings().Autoplay {
		t.Fatal("autoplay must not change when the request is rejected")
	}
}

func TestVoiceOnlyHidesReplyTextAndSynthesizes(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")
	env.do(t, http.MethodPatch, "/session/"+view.ID+"/settings", []byte(`{"voiceOnly":true}`), "application/json")

	resp := env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"hello"}`), "application/json")
	var result TurnResultView
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Appended[1].Content != "" || !result.Appended[1].Cached {
		t.Fatalf("expected hidden, cached reply: %+v", result.Appended[1])
	}
	if result.AudioURL == "" || env.tts.calls != 1 {
		t.Fatalf("expected eager synthesis, url=%q calls=%d", result.AudioURL, env.tts.calls)
	}
}

func TestTurnAudioLazySynthesis(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")
	env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"hello"}`), "application/json")

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, "/session/"+view.ID+"/turns/1/audio", nil, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		if resp.Header().Get("Content-Type") != "audio/mpeg" {
			t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
		}
		if !strings.HasPrefix(resp.Body.String(), "mp3:") {
			t.Fatalf("unexpected audio %q", resp.Body.String())
		}
	}
	if env.tts.calls != 1 {
		t.Fatalf("expected one synthesis, got %d", env.tts.calls)
	}

	if resp := env.do(t, http.MethodGet, "/session/"+view.ID+"/turns/0/audio", nil, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("user turn audio: expected 400, got %d", resp.Code)
	}
	if resp := env.do(t, http.MethodGet, "/session/"+view.ID+"/turns/x/audio", nil, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad seq: expected 400, got %d", resp.Code)
	}
}

func TestClearTurnsKeepsSettings(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, `{"personalityId":"gaming-helper"}`)
	env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"hello"}`), "application/json")

	resp := env.do(t, http.MethodDelete, "/session/"+view.ID+"/turns", nil, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var cleared SessionView
	if err := json.Unmarshal(resp.Body.Bytes(), &cleared); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(cleared.Turns) != 0 || cleared.Settings.PersonalityID != "gaming-helper" {
		t.Fatalf("unexpected session after clear: %+v", cleared)
	}

	resp = env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"again"}`), "application/json")
	var result TurnResultView
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Appended[0].Seq != 2 {
		t.Fatalf("sequence numbers must not be reused after clear, got %d", result.Appended[0].Seq)
	}
}

func TestResetRoutesConflictDuringTurn(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")
	env.do(t, http.MethodPost, "/session/"+view.ID+"/turns", []byte(`{"text":"hello"}`), "application/json")

	session, err := env.svc.GetSession(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if !session.TryBeginTurn() {
		t.Fatal("turn slot should be free")
	}
	defer session.EndTurn()

	if resp := env.do(t, http.MethodDelete, "/session/"+view.ID+"/turns", nil, ""); resp.Code != http.StatusConflict {
		t.Fatalf("clear: expected 409, got %d", resp.Code)
	}
	resp := env.do(t, http.MethodPatch, "/session/"+view.ID+"/settings", []byte(`{"personalityId":"fitness-coach"}`), "application/json")
	if resp.Code != http.StatusConflict {
		t.Fatalf("personality switch: expected 409, got %d", resp.Code)
	}
	if session.Len() != 2 || session.Settings().PersonalityID != persona.DefaultID {
		t.Fatalf("session must be untouched, got %d turns, personality %q", session.Len(), session.Settings().PersonalityID)
	}

	// 不切换人格的设置不受回合影响。
	resp = env.do(t, http.MethodPatch, "/session/"+view.ID+"/settings", []byte(`{"autoplay":true}`), "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("autoplay: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDeleteSession(t *testing.T) {
	env := setupRouter()
	view := env.createSession(t, "")

	if resp := env.do(t, http.MethodDelete, "/session/"+view.ID+"/", nil, ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := env.do(t, http.MethodGet, "/session/"+view.ID+"/", nil, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
