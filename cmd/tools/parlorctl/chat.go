package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/turn"
)

const chatHelp = `commands:
  /persona <id>     switch personality (clears the conversation)
  /length <mode>    short | medium | long
  /voice on|off     voice-only mode
  /autoplay on|off  synthesize every reply
  /say <file.wav>   send a recorded clip
  /clear            clear the conversation
  /quit             exit`

func newChatCmd() *cobra.Command {
	var (
		personalityID string
		length        string
		outDir        string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with a personality",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				return fmt.Errorf("AI 服务不可用: %w", err)
			}
			generator, err := ai.NewGenerator(ctx, chatModel, true)
			if err != nil {
				return err
			}

			speechSvc, err := speech.NewService(cfg.Speech)
			if err != nil {
				printNotice(chat.Warning("Speech unavailable: " + err.Error()))
				speechSvc = speech.NewDisabledService(cfg.Speech, err)
			}

			defaultLength := cfg.Session.DefaultLength
			if length != "" {
				if defaultLength, err = chat.ParseResponseLength(length); err != nil {
					return err
				}
			}

			sessions := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), chatservice.Defaults{
				PersonalityID:  cfg.Session.DefaultPersonality,
				ResponseLength: defaultLength,
			})
			session, err := sessions.CreateSession(ctx, personalityID)
			if err != nil {
				return err
			}

			c := &console{
				orchestrator: turn.NewOrchestrator(sessions, speechSvc.Transcriber(), generator, speechSvc.Synthesizer()),
				session:      session,
				outDir:       outDir,
			}
			return c.loop(ctx)
		},
	}

	cmd.Flags().StringVarP(&personalityID, "persona", "p", "", "初始人格 ID")
	cmd.Flags().StringVarP(&length, "length", "l", "", "回复长度: short, medium, long")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "合成音频输出目录")
	return cmd
}

type console struct {
	orchestrator *turn.Orchestrator
	session      *chatservice.Session
	outDir       string
	streamed     bool
}

func (c *console) loop(ctx context.Context) error {
	c.banner()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := c.command(ctx, line)
			if err != nil {
				printNotice(chat.Error(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := c.orchestrator.HandleText(ctx, c.session.ID, line, c.hooks())
		c.render(res, err)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *console) banner() {
	p, err := c.session.Persona()
	if err != nil {
		return
	}
	settings := c.session.Settings()
	fmt.Printf("%s (%s replies). Type /help for commands.\n", p.Title(), settings.ResponseLength)
}

func (c *console) hooks() turn.Hooks {
	c.streamed = false
	return turn.Hooks{
		OnState: func(_, to chat.State) {
			if spinner := turn.Spinner(to); spinner != "" {
				fmt.Fprintln(os.Stderr, spinner)
			}
		},
		OnDelta: func(fragment string) {
			if c.session.Settings().VoiceOnly {
				return
			}
			c.streamed = true
			fmt.Print(fragment)
		},
		OnNotice: printNotice,
	}
}

func (c *console) render(res *turn.Result, err error) {
	if err != nil {
		printNotice(chat.Error(err.Error()))
		return
	}
	reply, ok := res.Reply()
	if !ok {
		return
	}

	switch {
	case res.Settings.VoiceOnly && !reply.Failed:
		fmt.Println("(voice reply)")
	case c.streamed:
		fmt.Println()
	default:
		fmt.Println(reply.Content)
	}

	if res.HasAudio() {
		path := filepath.Join(c.outDir, fmt.Sprintf("reply-%03d.mp3", res.AudioSeq))
		if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
			printNotice(chat.Error("failed to write audio: " + err.Error()))
			return
		}
		fmt.Fprintf(os.Stderr, "audio saved to %s\n", path)
	}
}

func (c *console) command(ctx context.Context, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Println(chatHelp)
	case "/clear":
		if err := c.session.Clear(); err != nil {
			return false, err
		}
		fmt.Println("conversation cleared")
	case "/persona":
		if arg == "" {
			return false, errors.New("usage: /persona <id>")
		}
		if _, err := c.session.SetPersonality(arg); err != nil {
			return false, err
		}
		c.banner()
	case "/length":
		mode, err := chat.ParseResponseLength(arg)
		if err != nil {
			return false, err
		}
		if err := c.session.SetResponseLength(mode); err != nil {
			return false, err
		}
		fmt.Printf("reply length: %s\n", mode)
	case "/voice", "/autoplay":
		enabled, err := parseToggle(arg)
		if err != nil {
			return false, err
		}
		if name == "/voice" {
			c.session.SetVoiceOnly(enabled)
		} else {
			c.session.SetAutoplay(enabled)
		}
		fmt.Printf("%s: %t\n", strings.TrimPrefix(name, "/"), enabled)
	case "/say":
		clip, err := os.ReadFile(arg)
		if err != nil {
			return false, err
		}
		res, err := c.orchestrator.HandleAudio(ctx, c.session.ID, clip, c.hooks())
		c.render(res, err)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

func parseToggle(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", raw)
	}
}
