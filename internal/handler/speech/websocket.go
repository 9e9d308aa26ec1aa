package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	chathandler "github.com/zhouzirui/voice-parlor/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
)

// maxBufferedAudio 单条录音在内存中累积的上限。
const maxBufferedAudio = 25 << 20

// WebSocketHandler WebSocket语音处理器
type WebSocketHandler struct {
	chatSvc      *chatservice.Service
	orchestrator *turn.Orchestrator
	hub          *Hub
	upgrader     websocket.Upgrader

	// pongWait 读超时；回合结束后重新计时。
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, orchestrator *turn.Orchestrator, hub *Hub) *WebSocketHandler {
	if hub == nil {
		hub = NewHub()
	}
	return &WebSocketHandler{
		chatSvc:      chatSvc,
		orchestrator: orchestrator,
		hub:          hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息，AudioData 以 base64 传输。
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息，字段为空表示不修改。
type ConfigMessage = chatservice.SettingsPatch

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 单条连接的处理状态，读循环独占。
type connection struct {
	client  *client
	session *chatservice.Session
	buffer  bytes.Buffer
	logger  zerolog.Logger
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), chathandler.StatusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Msg("upgrade failed")
		return
	}

	c := &connection{
		client:  &client{sessionID: sessionID, conn: conn},
		session: session,
		logger:  log.With().Str("component", "websocket").Str("session", sessionID).Logger(),
	}
	h.hub.add(c.client)
	defer func() {
		h.hub.remove(c.client)
		c.client.close()
	}()

	c.logger.Info().Msg("socket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	go h.pingLoop(ctx, c.client)

	c.send("connected", map[string]any{
		"settings": session.Settings(),
		"turns":    len(session.Turns()),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("read failed")
			}
			c.logger.Info().Msg("socket closed")
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			c.sendError("session mismatch")
			extend()
			continue
		}
		// 回合期间不读取连接，pong 无法处理，结束后重新计时。
		h.handleMessage(ctx, c, &msg)
		extend()
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, c *connection, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, c, msg.Data)
	case "text":
		h.handleTextMessage(ctx, c, msg.Data)
	case "config":
		h.handleConfigMessage(c, msg.Data)
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// handleAudioMessage 累积音频分片，收到最终分片后作为一次录音事件处理。
func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, c *connection, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		c.sendError("invalid audio payload")
		return
	}

	if c.buffer.Len()+len(audio.AudioData) > maxBufferedAudio {
		c.buffer.Reset()
		c.sendError("audio clip too large")
		return
	}
	c.buffer.Write(audio.AudioData)
	if !audio.IsFinal {
		return
	}

	clip := bytes.Clone(c.buffer.Bytes())
	c.buffer.Reset()
	c.logger.Debug().Int("bytes", len(clip)).Msg("audio clip received")

	res, err := h.orchestrator.HandleAudio(ctx, c.session.ID, clip, c.hooks())
	h.deliver(c, res, err)
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, c *connection, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		c.sendError("invalid text payload")
		return
	}

	res, err := h.orchestrator.HandleText(ctx, c.session.ID, text.Text, c.hooks())
	h.deliver(c, res, err)
}

// deliver pushes the appended turns and, when synthesized, the reply audio.
func (h *WebSocketHandler) deliver(c *connection, res *turn.Result, err error) {
	if err != nil {
		if !errors.Is(err, turn.ErrEmptyText) {
			c.logger.Warn().Err(err).Msg("turn rejected")
		}
		c.sendError(err.Error())
		return
	}

	view := chathandler.NewTurnResultView(c.session, res)
	c.send("turn", view)

	if res.HasAudio() {
		c.send("tts", map[string]any{
			"seq":       res.AudioSeq,
			"audioData": base64.StdEncoding.EncodeToString(res.Audio),
			"format":    "mp3",
			"autoplay":  res.Settings.Autoplay,
			"isFinal":   true,
		})
	}
}

func (h *WebSocketHandler) handleConfigMessage(c *connection, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.sendError("invalid config payload")
		return
	}
	cleared, err := c.session.Apply(cfg)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.logger.Info().Interface("settings", c.session.Settings()).Bool("cleared", cleared).Msg("config applied")
	c.send("config", chathandler.NewSessionView(c.session))
}

func (c *connection) hooks() turn.Hooks {
	return turn.Hooks{
		OnState: func(from, to chat.State) {
			c.send("state", map[string]any{"from": from, "to": to, "spinner": turn.Spinner(to)})
		},
		OnDelta: func(fragment string) {
			c.send("delta", map[string]any{"text": fragment})
		},
		OnNotice: func(n chat.Notice) {
			c.send("notice", n)
		},
	}
}

func (c *connection) send(kind string, data any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: c.session.ID,
		Data:      map[string]any{"type": kind, "payload": data},
		Timestamp: time.Now().Unix(),
	}
	if err := c.client.writeJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("type", kind).Msg("write failed")
	}
}

func (c *connection) sendError(message string) {
	msg := outgoingMessage{
		Type:      "error",
		SessionID: c.session.ID,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.client.writeJSON(msg); err != nil {
		c.logger.Debug().Err(err).Msg("write error failed")
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
