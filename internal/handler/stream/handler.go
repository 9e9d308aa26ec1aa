package stream

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chathandler "github.com/zhouzirui/voice-parlor/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	chatService "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
	"github.com/zhouzirui/voice-parlor/backend/pkg/utils"
)

// Handler streams a text turn to the browser via Server-Sent Events
type Handler struct {
	chatSvc      *chatService.Service
	orchestrator *turn.Orchestrator
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, orchestrator *turn.Orchestrator) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		orchestrator: orchestrator,
	}
}

// RegisterRoutes 注册流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StateEvent 状态切换事件，Spinner 为进行中的提示文案。
type StateEvent struct {
	From    chat.State `json:"from"`
	To      chat.State `json:"to"`
	Spinner string     `json:"spinner,omitempty"`
}

// DeltaEvent 增量文本片段
type DeltaEvent struct {
	Content string `json:"content"`
}

// EndEvent 回合结束
type EndEvent struct {
	SessionID string     `json:"sessionId"`
	State     chat.State `json:"state"`
	AudioURL  string     `json:"audioUrl,omitempty"`
	Finished  bool       `json:"finished"`
}

// sseWriter defers the SSE headers until the first event so that errors raised before
// the turn starts can still be answered with a JSON status.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) send(event string, data any) {
	if !s.started {
		utils.SetupSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	utils.SendSSEEvent(s.w, s.flusher, event, data)
}

// handleStream runs one text turn and pushes state, delta, notice, message and end events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, chathandler.StatusFor(err), err.Error())
		return
	}

	logger := log.With().Str("component", "stream").Str("session", sessionID).Logger()
	out := &sseWriter{w: w, flusher: flusher}

	res, err := h.orchestrator.HandleText(r.Context(), sessionID, message, turn.Hooks{
		OnState: func(from, to chat.State) {
			out.send("state", StateEvent{From: from, To: to, Spinner: turn.Spinner(to)})
		},
		OnDelta: func(fragment string) {
			out.send("delta", DeltaEvent{Content: fragment})
		},
		OnNotice: func(n chat.Notice) {
			out.send("notice", n)
		},
	})
	if err != nil {
		if !out.started {
			utils.RespondError(w, chathandler.StatusFor(err), err.Error())
			return
		}
		logger.Warn().Err(err).Msg("stream turn failed")
		out.send("error", map[string]string{"error": err.Error()})
		return
	}

	view := chathandler.NewTurnResultView(session, res)
	if reply, ok := res.Reply(); ok {
		out.send("message", chathandler.NewTurnView(session, res.Settings, reply))
	}
	out.send("end", EndEvent{SessionID: sessionID, State: res.Final, AudioURL: view.AudioURL, Finished: true})

	logger.Info().Int("appended", len(res.Appended)).Bool("audio", res.HasAudio()).Msg("stream completed")
}
