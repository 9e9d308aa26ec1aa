// Package llm adapts hosted text-generation APIs to the eino chat model interface.
package llm

import (
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyInput 表示没有可发送给模型的消息。
var ErrEmptyInput = errors.New("llm: no messages to send")

// Options 生成参数，未设置的字段交由服务端决定。
type Options struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
}

func (o Options) merge(opts []model.Option) *model.Options {
	return model.GetCommonOptions(&model.Options{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		MaxTokens:   o.MaxTokens,
	}, opts...)
}

// splitSystem separates system messages from the conversation turns.
func splitSystem(input []*schema.Message) (string, []*schema.Message) {
	var system []string
	rest := make([]*schema.Message, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		if msg.Role == schema.System {
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// pipe runs produce in a goroutine and exposes its fragments as an eino stream.
func pipe(produce func(emit func(string) bool) error) *schema.StreamReader[*schema.Message] {
	reader, writer := schema.Pipe[*schema.Message](8)
	go func() {
		defer writer.Close()
		err := produce(func(fragment string) bool {
			return !writer.Send(&schema.Message{Role: schema.Assistant, Content: fragment}, nil)
		})
		if err != nil {
			writer.Send(nil, err)
		}
	}()
	return reader
}
