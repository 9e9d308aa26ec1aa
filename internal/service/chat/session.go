package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
)

// Session is the conversation store of a single user session: the ordered turn log,
// the view settings, the last-seen audio fingerprint and the synthesis cache.
type Session struct {
	ID        string
	CreatedAt time.Time

	personas persona.Store

	mu          sync.RWMutex
	turns       []chat.Turn
	nextSeq     uint64
	settings    chat.Settings
	fingerprint string
	audio       map[uint64][]byte
	lastActive  time.Time

	// turnMu 保证同一会话同一时刻只有一个回合在处理。
	turnMu sync.Mutex
}

// NewSession creates an empty session bound to a registered personality.
func NewSession(id string, personas persona.Store, settings chat.Settings) (*Session, error) {
	p, err := personas.Get(settings.PersonalityID)
	if err != nil {
		return nil, err
	}
	settings.PersonalityID = p.ID
	if !settings.ResponseLength.Valid() {
		settings.ResponseLength = chat.DefaultResponseLength
	}

	now := time.Now().UTC()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		personas:   personas,
		turns:      make([]chat.Turn, 0, 16),
		settings:   settings,
		audio:      make(map[uint64][]byte),
		lastActive: now,
	}, nil
}

// AppendTurn appends a turn and returns it with its assigned sequence number.
func (s *Session) AppendTurn(role chat.Speaker, content string) chat.Turn {
	return s.appendTurn(chat.Turn{Role: role, Content: content})
}

// AppendFailedReply appends an assistant turn whose content is a failure description.
func (s *Session) AppendFailedReply(content string) chat.Turn {
	return s.appendTurn(chat.Turn{Role: chat.Assistant, Content: content, Failed: true})
}

func (s *Session) appendTurn(turn chat.Turn) chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn.Seq = s.nextSeq
	s.nextSeq++
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns = append(s.turns, turn)
	s.lastActive = turn.CreatedAt
	return turn
}

// SetPersonality switches the active personality. The log and the synthesis cache are
// always cleared, since cached context and audio belong to the previous tone. It fails with
// ErrTurnInFlight while a turn is running.
func (s *Session) SetPersonality(id string) (persona.Persona, error) {
	p, err := s.personas.Get(id)
	if err != nil {
		return persona.Persona{}, err
	}
	if !s.turnMu.TryLock() {
		return persona.Persona{}, ErrTurnInFlight
	}
	defer s.turnMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.PersonalityID = p.ID
	s.resetLocked()
	return p, nil
}

// SetResponseLength updates the response-length mode.
func (s *Session) SetResponseLength(mode chat.ResponseLength) error {
	if !mode.Valid() {
		return fmt.Errorf("%w %q", chat.ErrInvalidResponseLength, mode)
	}
	s.mu.Lock()
	s.settings.ResponseLength = mode
	s.mu.Unlock()
	return nil
}

// SetVoiceOnly toggles voice-only rendering.
func (s *Session) SetVoiceOnly(enabled bool) {
	s.mu.Lock()
	s.settings.VoiceOnly = enabled
	s.mu.Unlock()
}

// SetAutoplay toggles autoplay of new replies.
func (s *Session) SetAutoplay(enabled bool) {
	s.mu.Lock()
	s.settings.Autoplay = enabled
	s.mu.Unlock()
}

// Clear empties the log and the synthesis cache and leaves the settings untouched.
// It fails with ErrTurnInFlight while a turn is running.
func (s *Session) Clear() error {
	if !s.turnMu.TryLock() {
		return ErrTurnInFlight
	}
	defer s.turnMu.Unlock()

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	return nil
}

// resetLocked 清空日志与缓存。序号不归零，旧序号的合成结果无法再写入缓存。
func (s *Session) resetLocked() {
	s.turns = make([]chat.Turn, 0, 16)
	s.audio = make(map[uint64][]byte)
	s.lastActive = time.Now().UTC()
}

// SettingsPatch 部分更新会话设置，nil 字段保持不变。
type SettingsPatch struct {
	PersonalityID  *string `json:"personalityId,omitempty"`
	ResponseLength *string `json:"responseLength,omitempty"`
	VoiceOnly      *bool   `json:"voiceOnly,omitempty"`
	Autoplay       *bool   `json:"autoplay,omitempty"`
}

// Apply validates the whole patch before changing anything, then applies it atomically.
// Naming the active personality is a no-op; any other personality clears the log and
// needs the turn slot. cleared reports whether the log was reset.
func (s *Session) Apply(patch SettingsPatch) (cleared bool, err error) {
	var length chat.ResponseLength
	if patch.ResponseLength != nil {
		if length, err = chat.ParseResponseLength(*patch.ResponseLength); err != nil {
			return false, err
		}
	}

	var p persona.Persona
	switching := patch.PersonalityID != nil && *patch.PersonalityID != s.Settings().PersonalityID
	if switching {
		if p, err = s.personas.Get(*patch.PersonalityID); err != nil {
			return false, err
		}
		if !s.turnMu.TryLock() {
			return false, ErrTurnInFlight
		}
		defer s.turnMu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if switching {
		s.settings.PersonalityID = p.ID
		s.resetLocked()
	}
	if patch.ResponseLength != nil {
		s.settings.ResponseLength = length
	}
	if patch.VoiceOnly != nil {
		s.settings.VoiceOnly = *patch.VoiceOnly
	}
	if patch.Autoplay != nil {
		s.settings.Autoplay = *patch.Autoplay
	}
	return switching, nil
}

// Synthesis returns the cached audio of a turn.
func (s *Session) Synthesis(seq uint64) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.audio[seq]
	return data, ok
}

// CacheSynthesis memoises audio for a turn. The first value stored for a sequence wins;
// later calls return it unchanged. Audio for turns not in the log is rejected.
func (s *Session) CacheSynthesis(seq uint64, data []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.audio[seq]; ok {
		return cached, true
	}
	if _, ok := s.turnLocked(seq); !ok {
		return nil, false
	}
	s.audio[seq] = data
	return data, true
}

// CachedCount returns the number of memoised clips.
func (s *Session) CachedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audio)
}

// Turns returns a copy of the log in chronological order.
func (s *Session) Turns() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]chat.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len returns the number of turns in the log.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the newest turn of the log.
func (s *Session) Last() (chat.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return chat.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Turn looks up a turn by sequence number.
func (s *Session) Turn(seq uint64) (chat.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnLocked(seq)
}

func (s *Session) turnLocked(seq uint64) (chat.Turn, bool) {
	// 序号在会话内单调递增，日志按序号有序。
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Seq == seq {
			return s.turns[i], true
		}
		if s.turns[i].Seq < seq {
			break
		}
	}
	return chat.Turn{}, false
}

// Settings returns the current view settings.
func (s *Session) Settings() chat.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Persona resolves the active personality.
func (s *Session) Persona() (persona.Persona, error) {
	return s.personas.Get(s.Settings().PersonalityID)
}

// Fingerprint returns the identity of the last processed audio clip.
func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// SwapFingerprint stores fp and reports whether it differs from the previous one.
func (s *Session) SwapFingerprint(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fingerprint == fp {
		return false
	}
	s.fingerprint = fp
	return true
}

// TryBeginTurn acquires the session's turn slot without blocking.
func (s *Session) TryBeginTurn() bool {
	return s.turnMu.TryLock()
}

// EndTurn releases the turn slot acquired by TryBeginTurn.
func (s *Session) EndTurn() {
	s.mu.Lock()
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
	s.turnMu.Unlock()
}

// LastActive returns the time of the last mutation.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}
