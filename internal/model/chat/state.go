package chat

// State is a step of the per-turn pipeline.
type State int

const (
	Idle State = iota
	Capturing
	Transcribing
	Generating
	Synthesizing
	Rendered
)

var stateNames = [...]string{"idle", "capturing", "transcribing", "generating", "synthesizing", "rendered"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText 让状态在 JSON 中以名称出现。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
