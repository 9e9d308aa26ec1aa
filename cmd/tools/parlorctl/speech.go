package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
)

func newASRCmd() *cobra.Command {
	var audioPath string

	cmd := &cobra.Command{
		Use:   "asr",
		Short: "Transcribe a WAV file with the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if audioPath == "" {
				return errors.New("--audio is required")
			}
			audio, err := os.ReadFile(audioPath)
			if err != nil {
				return fmt.Errorf("读取音频失败: %w", err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := loadSpeech(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			text, ok := svc.Transcriber().Transcribe(ctx, audio, printNotice)
			if !ok {
				return errors.New("transcription failed")
			}
			fmt.Println(text)
			return nil
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "输入 WAV 文件路径")
	return cmd
}

func newTTSCmd() *cobra.Command {
	var (
		text      string
		voice     string
		personaID string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Synthesize text to an MP3 file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(text) == "" {
				return errors.New("--text is required")
			}

			if voice == "" && personaID != "" {
				p, err := persona.NewMemoryStore(persona.Seed()).Get(personaID)
				if err != nil {
					return err
				}
				voice = p.VoiceID
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := loadSpeech(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			audio, ok := svc.Synthesizer().Synthesize(ctx, text, voice, printNotice)
			if !ok {
				return errors.New("synthesis failed")
			}

			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(outPath, audio, 0o644); err != nil {
				return fmt.Errorf("写入音频失败: %w", err)
			}
			fmt.Printf("%d bytes written to %s\n", len(audio), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "要合成的文本")
	cmd.Flags().StringVar(&voice, "voice", "", "声音别名或提供方音色")
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "使用人格的默认音色")
	cmd.Flags().StringVarP(&outPath, "out", "o", "speech.mp3", "输出文件路径")
	return cmd
}

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the built-in personalities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range persona.NewMemoryStore(persona.Seed()).List() {
				fmt.Printf("%-18s %-22s voice=%s\n", p.ID, p.Title(), p.VoiceID)
			}
			return nil
		},
	}
}
