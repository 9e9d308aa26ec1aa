package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
)

// ErrNoUserTurn 表示日志末尾没有可回复的用户输入。
var ErrNoUserTurn = errors.New("conversation has no pending user turn")

// Reply is the outcome of one generation call. Err is set instead of Text when the
// service failed; callers decide how to render it.
type Reply struct {
	Text string
	Err  error
}

// Failed reports whether generation failed.
func (r Reply) Failed() bool {
	return r.Err != nil
}

// Content returns the text to store in the transcript. Failures keep the
// "Error: <reason>" wording users already recognise.
func (r Reply) Content() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return r.Text
}

// Generator builds persona-conditioned requests and runs them through the chat model.
type Generator struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	stream bool
}

// NewGenerator compiles the prompt chain around chatModel. When stream is true replies
// are consumed incrementally.
func NewGenerator(ctx context.Context, chatModel model.BaseChatModel, stream bool) (*Generator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Generator{chain: runnable, stream: stream}, nil
}

// StreamingEnabled 指示是否以流式方式消费回复。
func (g *Generator) StreamingEnabled() bool {
	return g.stream
}

// Generate produces the assistant reply to the newest turn of the log. Every earlier turn
// is sent as context. onDelta, when non-nil, receives each fragment in arrival order.
// Failures are returned inside the Reply, never raised.
func (g *Generator) Generate(ctx context.Context, p persona.Persona, turns []chat.Turn, length chat.ResponseLength, onDelta func(string)) Reply {
	if len(turns) == 0 || turns[len(turns)-1].Role != chat.User {
		return Reply{Err: ErrNoUserTurn}
	}

	input := map[string]any{
		"system":  BuildInstruction(p, length),
		"history": BuildHistory(turns),
		"query":   turns[len(turns)-1].Content,
	}

	var (
		text string
		err  error
	)
	if g.stream {
		text, err = g.consume(ctx, input, onDelta)
	} else {
		var msg *schema.Message
		msg, err = g.chain.Invoke(ctx, input)
		if err == nil {
			text = msg.Content
			if onDelta != nil && text != "" {
				onDelta(text)
			}
		}
	}

	logger := log.With().Str("component", "ai").Str("persona", p.ID).Str("length", string(length)).Int("history", len(turns)-1).Logger()
	if err != nil {
		logger.Warn().Err(err).Msg("generation failed")
		return Reply{Err: err}
	}
	logger.Info().Int("chars", len(text)).Msg("reply generated")
	return Reply{Text: text}
}

func (g *Generator) consume(ctx context.Context, input map[string]any, onDelta func(string)) (string, error) {
	stream, err := g.chain.Stream(ctx, input)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return builder.String(), nil
		}
		if err != nil {
			return builder.String(), err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if onDelta != nil {
			onDelta(chunk.Content)
		}
	}
}

// BuildInstruction combines the persona's instruction with the response-length directive.
func BuildInstruction(p persona.Persona, length chat.ResponseLength) string {
	var builder strings.Builder
	builder.WriteString(strings.TrimSpace(p.Instruction))
	if builder.Len() > 0 {
		builder.WriteString("\n\n")
	}
	builder.WriteString("Keep your responses to ")
	builder.WriteString(length.Directive())
	builder.WriteString(".")
	return builder.String()
}

// BuildHistory maps every turn except the newest to model messages, in log order.
func BuildHistory(turns []chat.Turn) []*schema.Message {
	if len(turns) <= 1 {
		return nil
	}

	prior := turns[:len(turns)-1]
	history := make([]*schema.Message, 0, len(prior))
	for _, turn := range prior {
		switch turn.Role {
		case chat.User:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.Assistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
