package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/pkg/utils"
)

// Handler 人格列表的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personalities", h.handleList)
	r.Get("/personalities/{personalityID}", h.handleGet)
}

type personaView struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Icon    string `json:"icon"`
	Title   string `json:"title"`
	VoiceID string `json:"voiceId,omitempty"`
}

func toView(p persona.Persona) personaView {
	return personaView{ID: p.ID, Label: p.Label, Icon: p.Icon, Title: p.Title(), VoiceID: p.VoiceID}
}

// handleList 列出所有人格，系统指令不对外暴露。
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items := h.personas.List()
	views := make([]personaView, 0, len(items))
	for _, item := range items {
		views = append(views, toView(item))
	}
	utils.RespondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.personas.Get(chi.URLParam(r, "personalityID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, toView(p))
}
