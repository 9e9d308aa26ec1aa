package chat

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	chatService "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
	"github.com/zhouzirui/voice-parlor/backend/pkg/utils"
)

// maxAudioUpload 单次上传录音的大小上限。
const maxAudioUpload = 25 << 20

// Handler 会话与回合的HTTP处理器
type Handler struct {
	chatSvc      *chatService.Service
	orchestrator *turn.Orchestrator
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, orchestrator *turn.Orchestrator) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		orchestrator: orchestrator,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Patch("/settings", h.handleUpdateSettings)
		r.Delete("/turns", h.handleClearTurns)
		r.Post("/turns", h.handleTextTurn)
		r.Post("/audio", h.handleAudioTurn)
		r.Get("/turns/{seq}/audio", h.handleTurnAudio)
	})
}

// TurnView is a transcript entry as rendered to clients. Voice-only sessions hide the
// text of assistant replies and rely on AudioURL.
type TurnView struct {
	Seq       uint64       `json:"seq"`
	Role      chat.Speaker `json:"role"`
	Content   string       `json:"content,omitempty"`
	Failed    bool         `json:"failed,omitempty"`
	AudioURL  string       `json:"audioUrl,omitempty"`
	Cached    bool         `json:"cached,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// SessionView 会话快照
type SessionView struct {
	ID          string        `json:"id"`
	Settings    chat.Settings `json:"settings"`
	Personality string        `json:"personality"`
	Turns       []TurnView    `json:"turns"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// TurnResultView 一次输入事件的处理结果
type TurnResultView struct {
	Appended []TurnView    `json:"appended"`
	Notices  []chat.Notice `json:"notices"`
	Ignored  bool          `json:"ignored,omitempty"`
	Aborted  bool          `json:"aborted,omitempty"`
	State    chat.State    `json:"state"`
	AudioURL string        `json:"audioUrl,omitempty"`
}

// AudioURL returns the lazy-synthesis endpoint of a turn.
func AudioURL(sessionID string, seq uint64) string {
	return fmt.Sprintf("/api/session/%s/turns/%d/audio", sessionID, seq)
}

// NewTurnView renders a turn under the session's current settings.
func NewTurnView(session *chatService.Session, settings chat.Settings, t chat.Turn) TurnView {
	view := TurnView{Seq: t.Seq, Role: t.Role, Content: t.Content, Failed: t.Failed, CreatedAt: t.CreatedAt}
	if !t.IsAssistant() || t.Failed {
		return view
	}
	view.AudioURL = AudioURL(session.ID, t.Seq)
	_, view.Cached = session.Synthesis(t.Seq)
	if settings.VoiceOnly {
		view.Content = ""
	}
	return view
}

// NewSessionView 构建会话快照。
func NewSessionView(session *chatService.Session) SessionView {
	settings := session.Settings()
	turns := session.Turns()

	view := SessionView{
		ID:        session.ID,
		Settings:  settings,
		Turns:     make([]TurnView, 0, len(turns)),
		CreatedAt: session.CreatedAt,
	}
	if p, err := session.Persona(); err == nil {
		view.Personality = p.Title()
	}
	for _, t := range turns {
		view.Turns = append(view.Turns, NewTurnView(session, settings, t))
	}
	return view
}

// NewTurnResultView 构建回合结果。
func NewTurnResultView(session *chatService.Session, res *turn.Result) TurnResultView {
	view := TurnResultView{
		Appended: make([]TurnView, 0, len(res.Appended)),
		Notices:  res.Notices,
		Ignored:  res.Ignored,
		Aborted:  res.Aborted,
		State:    res.Final,
	}
	if view.Notices == nil {
		view.Notices = []chat.Notice{}
	}
	for _, t := range res.Appended {
		view.Appended = append(view.Appended, NewTurnView(session, res.Settings, t))
	}
	if res.HasAudio() {
		view.AudioURL = AudioURL(session.ID, res.AudioSeq)
	}
	return view
}

// StatusFor 将服务层错误映射为HTTP状态码。
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, turn.ErrTurnNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, turn.ErrEmptyText), errors.Is(err, turn.ErrNotAssistantTurn),
		errors.Is(err, persona.ErrNotFound), errors.Is(err, chat.ErrInvalidResponseLength):
		return http.StatusBadRequest
	case errors.Is(err, turn.ErrSynthesisFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return nil, false
	}
	return session, true
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonalityID string `json:"personalityId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonalityID)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, NewSessionView(session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewSessionView(session))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateSettings 更新会话设置；切换人格会清空历史与音频缓存。
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var patch chatService.SettingsPatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cleared, err := session.Apply(patch)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	if cleared {
		log.Info().Str("component", "chat").Str("session", session.ID).Str("personality", session.Settings().PersonalityID).Msg("personality changed, history cleared")
	}

	utils.RespondJSON(w, http.StatusOK, NewSessionView(session))
}

func (h *Handler) handleClearTurns(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Clear(); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	log.Info().Str("component", "chat").Str("session", session.ID).Msg("history cleared")
	utils.RespondJSON(w, http.StatusOK, NewSessionView(session))
}

// handleTextTurn 处理文本输入
func (h *Handler) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.orchestrator.HandleText(r.Context(), session.ID, payload.Text, turn.Hooks{})
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResultView(session, res))
}

// handleAudioTurn 处理录音输入，支持 multipart 的 audio 字段或原始请求体。
func (h *Handler) handleAudioTurn(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	clip, err := readAudio(w, r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.orchestrator.HandleAudio(r.Context(), session.ID, clip, turn.Hooks{})
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResultView(session, res))
}

// readAudio 读取上传的录音。
func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, fmt.Errorf("audio file is required: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return data, nil
}

// handleTurnAudio 返回助手回复的音频，首次请求时合成并缓存。
func (h *Handler) handleTurnAudio(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid turn sequence")
		return
	}

	audio, notices, err := h.orchestrator.TurnAudio(r.Context(), chi.URLParam(r, "sessionID"), seq)
	if err != nil {
		if len(notices) > 0 {
			utils.RespondJSON(w, StatusFor(err), map[string]any{"error": err.Error(), "notices": notices})
			return
		}
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	// 清空历史后序号会复用，响应不可缓存。
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		log.Debug().Err(err).Str("component", "chat").Msg("audio write interrupted")
	}
}
