package speech

import "time"

// Provider 语音服务提供方。
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderVolcengine Provider = "volcengine"
)

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	Provider Provider `json:"provider"`

	// OpenAI 配置
	OpenAIAPIKey  string `json:"-"`
	OpenAIBaseURL string `json:"openaiBaseUrl,omitempty"`
	ASRModel      string `json:"asrModel"` // whisper-1 或火山模型名
	TTSModel      string `json:"ttsModel"`

	// Volcengine 配置
	AppID          string `json:"appId"`
	AccessToken    string `json:"-"`
	ConcurrentMode bool   `json:"concurrentMode"` // ASR并发模式（false为小时版）

	// 语言与音色
	ASRLanguage string `json:"asrLanguage"`
	TTSLanguage string `json:"ttsLanguage"`
	TTSVoice    string `json:"ttsVoice"`
	TTSSlow     bool   `json:"ttsSlow"`

	// 合成限流重试
	RetryAttempts int           `json:"retryAttempts"`
	RetryDelay    time.Duration `json:"retryDelay"`

	// 通用配置
	Timeout time.Duration `json:"timeout"`
}
