// Command parlorctl drives the parlor core from a terminal: a text chat loop plus
// one-shot transcription and synthesis checks against the configured providers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/voice-parlor/backend/internal/config"
	"github.com/zhouzirui/voice-parlor/backend/internal/logging"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
)

var (
	// Version information (set at build time)
	version = "dev"

	envFile  string
	logLevel string
	timeout  time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "parlorctl",
		Short:         "Voice Parlor console client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "环境变量文件")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "日志级别")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 45*time.Second, "单次请求超时")

	rootCmd.AddCommand(newChatCmd(), newASRCmd(), newTTSCmd(), newPersonasCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并按命令行参数初始化日志。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("配置加载失败: %w", err)
	}
	cfg.Log.Level = logLevel
	cfg.Log.Format = logging.FormatConsole
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSpeech(cfg *config.Config) (*speech.Service, error) {
	svc, err := speech.NewService(cfg.Speech)
	if err != nil {
		return nil, fmt.Errorf("语音服务不可用: %w", err)
	}
	return svc, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printNotice 将提示输出到 stderr，保持 stdout 只有对话内容。
func printNotice(n chat.Notice) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
	log.Debug().Str("level", string(n.Level)).Msg(n.Message)
}
