package chat

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	User      Speaker = "user"
	Assistant Speaker = "assistant"
)

// Turn is one message in the conversation log. Seq is assigned by the store at append time,
// is never reused within a session and keys the synthesis cache; Content never changes
// after the append.
type Turn struct {
	Seq       uint64    `json:"seq"`
	Role      Speaker   `json:"role"`
	Content   string    `json:"content"`
	Failed    bool      `json:"failed,omitempty"` // 生成失败时的占位回复
	CreatedAt time.Time `json:"createdAt"`
}

// IsAssistant reports whether the turn was produced by the model.
func (t Turn) IsAssistant() bool {
	return t.Role == Assistant
}
