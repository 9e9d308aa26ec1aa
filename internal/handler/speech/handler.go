package speech

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
	"github.com/zhouzirui/voice-parlor/backend/pkg/utils"
)

const maxUpload = 32 << 20

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc *speechsvc.Service
	chatSvc   *chatservice.Service
	ws        *WebSocketHandler
}

// New 创建语音处理器
func New(speechSvc *speechsvc.Service, chatSvc *chatservice.Service, orchestrator *turn.Orchestrator, hub *Hub) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		ws:        NewWebSocketHandler(chatSvc, orchestrator, hub),
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		// ASR 端点
		speechRouter.Post("/transcribe", h.handleTranscribe)

		// TTS 端点
		speechRouter.Post("/synthesize", h.handleSynthesize)

		// 健康检查
		speechRouter.Get("/health", h.handleHealth)

		h.ws.RegisterWebSocketRoutes(speechRouter)
	})
}

type noticeError struct {
	Error   string        `json:"error"`
	Notices []chat.Notice `json:"notices"`
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}
	if len(audio) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	var notices []chat.Notice
	text, ok := h.speechSvc.Transcriber().Transcribe(r.Context(), audio, func(n chat.Notice) {
		notices = append(notices, n)
	})
	if !ok {
		utils.RespondJSON(w, http.StatusUnprocessableEntity, noticeError{Error: "speech recognition failed", Notices: notices})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"text":     text,
		"language": r.FormValue("language"),
	})
}

// handleSynthesize 处理文本转语音请求，未指定音色时使用会话人格的音色。
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speechmodel.TTSRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = h.resolveVoiceFromSession(r.Context(), req.SessionID)
	}

	var notices []chat.Notice
	audio, ok := h.speechSvc.Synthesizer().Synthesize(r.Context(), req.Text, req.Voice, func(n chat.Notice) {
		notices = append(notices, n)
	})
	if !ok {
		utils.RespondJSON(w, http.StatusBadGateway, noticeError{Error: "speech synthesis failed", Notices: notices})
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech.mp3")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		log.Debug().Err(err).Str("component", "speech").Msg("failed to write audio response")
	}
}

func (h *Handler) resolveVoiceFromSession(ctx context.Context, sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if h.chatSvc == nil || sessionID == "" {
		return ""
	}
	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return ""
	}
	p, err := session.Persona()
	if err != nil {
		return ""
	}
	return p.VoiceID
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":   "healthy",
		"service":  "speech",
		"provider": h.speechSvc.Provider(),
		"sockets":  h.ws.hub.Count(),
	}
	if ok, err := h.speechSvc.Available(); !ok {
		payload["status"] = "degraded"
		payload["error"] = err.Error()
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}
