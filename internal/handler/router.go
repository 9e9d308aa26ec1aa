package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/voice-parlor/backend/internal/handler/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/handler/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/handler/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/voice-parlor/backend/internal/middleware"
	personaModel "github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	chatService "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	speechService "github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
	"github.com/zhouzirui/voice-parlor/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, orchestrator *turn.Orchestrator, speechSvc *speechService.Service, hub *speech.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": chatSvc.Count(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		chat.New(chatSvc, orchestrator).RegisterRoutes(api)

		// Server-Sent Events 文本回合
		stream.New(chatSvc, orchestrator).RegisterRoutes(api)

		// 语音端点在语音不可用时仍注册，由 health 报告降级
		speech.New(speechSvc, chatSvc, orchestrator, hub).RegisterRoutes(api)
	})

	return r
}
