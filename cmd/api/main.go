package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/config"
	"github.com/zhouzirui/voice-parlor/backend/internal/handler"
	speechHandler "github.com/zhouzirui/voice-parlor/backend/internal/handler/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/logging"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/ai"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	// Initialize persona store and chat service
	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService(personaStore, chat.Defaults{
		PersonalityID:  cfg.Session.DefaultPersonality,
		ResponseLength: cfg.Session.DefaultLength,
	})
	if cfg.Session.IdleTimeout > 0 {
		go chatService.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTimeout)
	}

	// Initialize response generator
	if !cfg.AI.Enabled() {
		log.Fatal().Str("provider", string(cfg.AI.Provider)).Msg("AI 凭证未配置，无法生成回复")
	}
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize chat model")
	}
	generator, err := ai.NewGenerator(ctx, chatModel, cfg.AI.StreamResponse)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize response generator")
	}
	log.Info().Str("provider", string(cfg.AI.Provider)).Str("model", cfg.AI.ModelName()).Msg("AI service initialized")

	// Initialize Speech service
	speechService, err := speech.NewService(cfg.Speech)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(cfg.Speech.Provider)).Msg("语音服务不可用，继续以纯文本模式运行")
		speechService = speech.NewDisabledService(cfg.Speech, err)
	} else {
		log.Info().Str("provider", string(cfg.Speech.Provider)).Msg("speech service initialized")
	}

	orchestrator := turn.NewOrchestrator(chatService, speechService.Transcriber(), generator, speechService.Synthesizer())
	hub := speechHandler.NewHub()

	router := handler.NewRouter(personaStore, chatService, orchestrator, speechService, hub)

	startServer(ctx, cfg.Server, router, hub)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, hub *speechHandler.Hub) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown 不会关闭已劫持的 WebSocket 连接
	srv.RegisterOnShutdown(hub.CloseAll)

	log.Info().Str("addr", addr).Msg("Voice Parlor backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
