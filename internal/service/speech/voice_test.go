package speech

import (
	"testing"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

func TestNormalizeVoiceAlias(t *testing.T) {
	cases := []struct {
		provider speechmodel.Provider
		alias    string
		want     string
	}{
		{speechmodel.ProviderOpenAI, "gym-coach", "onyx"},
		{speechmodel.ProviderOpenAI, " Library-Tutor ", "fable"},
		{speechmodel.ProviderVolcengine, "arcade-buddy", "en_male_glen_emo_v2_mars_bigtts"},
		{speechmodel.ProviderOpenAI, "nova", "nova"},
		{speechmodel.ProviderVolcengine, "S_custom01", "S_custom01"},
		{speechmodel.ProviderOpenAI, "", ""},
	}

	for _, tc := range cases {
		if got := NormalizeVoiceAlias(tc.provider, tc.alias); got != tc.want {
			t.Errorf("%s/%q: got %q, want %q", tc.provider, tc.alias, got, tc.want)
		}
	}
}
