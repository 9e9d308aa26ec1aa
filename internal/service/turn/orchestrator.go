package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/service/speech"
)

var (
	ErrSessionNotFound  = chatservice.ErrSessionNotFound
	ErrTurnInFlight     = chatservice.ErrTurnInFlight
	ErrEmptyText        = errors.New("message text is empty")
	ErrTurnNotFound     = errors.New("turn not found")
	ErrNotAssistantTurn = errors.New("only assistant turns can be synthesized")
	ErrSynthesisFailed  = errors.New("speech synthesis failed")
)

// Transcriber turns a captured clip into text, reporting failures as notices.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, report speech.Reporter) (string, bool)
}

// Generator produces the assistant reply for the newest user turn.
type Generator interface {
	Generate(ctx context.Context, p persona.Persona, turns []chat.Turn, length chat.ResponseLength, onDelta func(string)) ai.Reply
}

// Synthesizer renders reply text as audio, reporting failures as notices.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, report speech.Reporter) ([]byte, bool)
}

// Hooks let a renderer observe a turn while it runs. Every field is optional.
type Hooks struct {
	OnState  func(from, to chat.State)
	OnDelta  func(fragment string)
	OnNotice func(n chat.Notice)
}

// Result summarises one processed input event.
type Result struct {
	// Appended holds the turns added to the log, user turn first.
	Appended []chat.Turn   `json:"appended"`
	Audio    []byte        `json:"-"`
	AudioSeq uint64        `json:"audioSeq"`
	Notices  []chat.Notice `json:"notices"`
	Ignored  bool          `json:"ignored,omitempty"` // 无输入或重复的录音
	Aborted  bool          `json:"aborted,omitempty"` // 转写失败，日志未变
	Final    chat.State    `json:"state"`
	Settings chat.Settings `json:"settings"`
}

// HasAudio reports whether the newest reply was synthesized during the turn.
func (r *Result) HasAudio() bool {
	return len(r.Audio) > 0
}

// Reply returns the assistant turn appended by the event.
func (r *Result) Reply() (chat.Turn, bool) {
	for i := len(r.Appended) - 1; i >= 0; i-- {
		if r.Appended[i].IsAssistant() {
			return r.Appended[i], true
		}
	}
	return chat.Turn{}, false
}

// Orchestrator drives the per-session turn state machine:
// Idle -> Capturing -> Transcribing -> Generating -> Synthesizing? -> Rendered -> Idle.
type Orchestrator struct {
	sessions    *chatservice.Service
	transcriber Transcriber
	generator   Generator
	synthesizer Synthesizer
}

// NewOrchestrator wires the adapters around the session registry.
func NewOrchestrator(sessions *chatservice.Service, transcriber Transcriber, generator Generator, synthesizer Synthesizer) *Orchestrator {
	return &Orchestrator{
		sessions:    sessions,
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
	}
}

// run carries the state of one event through the machine.
type run struct {
	session *chatservice.Session
	hooks   Hooks
	state   chat.State
	result  *Result
	logger  zerolog.Logger
}

func (r *run) transition(to chat.State) {
	from := r.state
	r.state = to
	r.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("turn state")
	if r.hooks.OnState != nil {
		r.hooks.OnState(from, to)
	}
}

func (r *run) report(n chat.Notice) {
	r.result.Notices = append(r.result.Notices, n)
	if r.hooks.OnNotice != nil {
		r.hooks.OnNotice(n)
	}
}

func (r *run) finish() *Result {
	if r.state != chat.Idle {
		r.transition(chat.Idle)
	}
	r.result.Final = r.state
	r.result.Settings = r.session.Settings()
	return r.result
}

func (o *Orchestrator) begin(ctx context.Context, sessionID string, hooks Hooks) (*run, error) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.TryBeginTurn() {
		return nil, ErrTurnInFlight
	}
	return &run{
		session: session,
		hooks:   hooks,
		state:   chat.Idle,
		result:  &Result{},
		logger:  log.With().Str("component", "turn").Str("session", sessionID).Logger(),
	}, nil
}

// HandleAudio processes a captured clip. Empty clips and clips identical to the last one
// seen by the session are ignored; a failed transcription aborts without touching the log.
func (o *Orchestrator) HandleAudio(ctx context.Context, sessionID string, clip []byte, hooks Hooks) (*Result, error) {
	r, err := o.begin(ctx, sessionID, hooks)
	if err != nil {
		return nil, err
	}
	defer r.session.EndTurn()

	if len(clip) == 0 {
		r.result.Ignored = true
		return r.finish(), nil
	}

	fp := Fingerprint(clip)
	if !r.session.SwapFingerprint(fp) {
		r.logger.Debug().Str("fingerprint", fp).Msg("duplicate audio ignored")
		r.result.Ignored = true
		return r.finish(), nil
	}
	r.transition(chat.Capturing)

	r.transition(chat.Transcribing)
	text, ok := o.transcriber.Transcribe(ctx, clip, r.report)
	if !ok {
		r.logger.Info().Int("bytes", len(clip)).Msg("turn aborted after transcription")
		r.result.Aborted = true
		return r.finish(), nil
	}
	r.report(chat.Info("You said: " + text))

	r.result.Appended = append(r.result.Appended, r.session.AppendTurn(chat.User, text))
	o.respond(ctx, r)
	return r.finish(), nil
}

// HandleText processes a submitted message. Text skips the transcription step.
func (o *Orchestrator) HandleText(ctx context.Context, sessionID, text string, hooks Hooks) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	r, err := o.begin(ctx, sessionID, hooks)
	if err != nil {
		return nil, err
	}
	defer r.session.EndTurn()

	r.result.Appended = append(r.result.Appended, r.session.AppendTurn(chat.User, text))
	o.respond(ctx, r)
	return r.finish(), nil
}

// respond runs Generating, the optional Synthesizing step and Rendered.
func (o *Orchestrator) respond(ctx context.Context, r *run) {
	r.transition(chat.Generating)

	settings := r.session.Settings()
	p, err := r.session.Persona()
	var reply ai.Reply
	if err != nil {
		reply = ai.Reply{Err: err}
	} else {
		reply = o.generator.Generate(ctx, p, r.session.Turns(), settings.ResponseLength, r.hooks.OnDelta)
	}

	var assistant chat.Turn
	if reply.Failed() {
		r.logger.Warn().Err(reply.Err).Msg("generation failed, storing error reply")
		assistant = r.session.AppendFailedReply(reply.Content())
	} else {
		assistant = r.session.AppendTurn(chat.Assistant, reply.Content())
	}
	r.result.Appended = append(r.result.Appended, assistant)

	if settings.SpeechEnabled() && !assistant.Failed {
		r.transition(chat.Synthesizing)
		if audio, ok := o.synthesizer.Synthesize(ctx, assistant.Content, p.VoiceID, r.report); ok {
			if cached, stored := r.session.CacheSynthesis(assistant.Seq, audio); stored {
				r.result.Audio = cached
				r.result.AudioSeq = assistant.Seq
			}
		}
	}

	r.transition(chat.Rendered)
	r.logger.Info().Uint64("seq", assistant.Seq).Bool("failed", assistant.Failed).Bool("audio", r.result.HasAudio()).Msg("turn rendered")
}

// TurnAudio returns the audio of an assistant turn, synthesizing and caching it on first
// request. Later requests for the same turn are served from the session cache.
func (o *Orchestrator) TurnAudio(ctx context.Context, sessionID string, seq uint64) ([]byte, []chat.Notice, error) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	turn, ok := session.Turn(seq)
	if !ok {
		return nil, nil, fmt.Errorf("%w: seq %d", ErrTurnNotFound, seq)
	}
	if !turn.IsAssistant() {
		return nil, nil, ErrNotAssistantTurn
	}
	if audio, ok := session.Synthesis(seq); ok {
		return audio, nil, nil
	}

	voice := ""
	if p, err := session.Persona(); err == nil {
		voice = p.VoiceID
	}

	var notices []chat.Notice
	audio, ok := o.synthesizer.Synthesize(ctx, turn.Content, voice, func(n chat.Notice) {
		notices = append(notices, n)
	})
	if !ok {
		return nil, notices, ErrSynthesisFailed
	}

	cached, stored := session.CacheSynthesis(seq, audio)
	if !stored {
		// 合成期间会话被清空。
		return nil, notices, fmt.Errorf("%w: seq %d", ErrTurnNotFound, seq)
	}
	log.Debug().Str("component", "turn").Str("session", sessionID).Uint64("seq", seq).Int("bytes", len(cached)).Msg("turn audio cached")
	return cached, notices, nil
}

// Fingerprint identifies a captured clip by content hash and length.
func Fingerprint(clip []byte) string {
	return fmt.Sprintf("%016x-%d", xxhash.Sum64(clip), len(clip))
}

// Spinner returns the progress text shown while the machine is in state s.
func Spinner(s chat.State) string {
	switch s {
	case chat.Transcribing:
		return "Transcribing audio..."
	case chat.Generating:
		return "Thinking..."
	case chat.Synthesizing:
		return "Generating speech..."
	default:
		return ""
	}
}
