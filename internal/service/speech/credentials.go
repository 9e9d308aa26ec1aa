package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("%w: volcengine config missing", ErrNotConfigured)
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("%w: volcengine requires SPEECH_APP_ID and SPEECH_ACCESS_TOKEN", ErrNotConfigured)
	}
	return appID, token, nil
}
