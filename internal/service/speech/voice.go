package speech

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

// 人格声音别名到各提供方音色的映射。
var voiceAliases = map[speechmodel.Provider]map[string]string{
	speechmodel.ProviderOpenAI: {
		"parlor-host":   string(openai.VoiceAlloy),
		"library-tutor": string(openai.VoiceFable),
		"gym-coach":     string(openai.VoiceOnyx),
		"arcade-buddy":  string(openai.VoiceEcho),
		"default":       string(openai.VoiceAlloy),
	},
	speechmodel.ProviderVolcengine: {
		"parlor-host":   "en_female_skye_emo_v2_mars_bigtts",
		"library-tutor": "en_female_candice_emo_v2_mars_bigtts",
		"gym-coach":     "en_male_corey_emo_v2_mars_bigtts",
		"arcade-buddy":  "en_male_glen_emo_v2_mars_bigtts",
		"default":       "en_female_skye_emo_v2_mars_bigtts",
	},
}

// NormalizeVoiceAlias maps a persona voice alias to the provider's voice name.
// Unknown names are passed through unchanged so provider voices can be used directly.
func NormalizeVoiceAlias(provider speechmodel.Provider, alias string) string {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ""
	}
	if mapped, ok := voiceAliases[provider][strings.ToLower(alias)]; ok {
		return mapped
	}
	return alias
}
