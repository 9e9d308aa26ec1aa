package speech

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`    // 声音别名或提供方音色
	Language  string `json:"language"` // en-US
	Slow      bool   `json:"slow"`     // 慢速朗读
	Format    string `json:"format"`   // mp3
}
