package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	speechmodel "github.com/zhouzirui/voice-parlor/backend/internal/model/speech"
)

const (
	volcengineASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	volcengineTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	// 每包约 200ms 的 16kHz/16bit 单声道音频。
	asrChunkSize = 6400

	asrCodeOK      = 20000000
	asrCodeSilence = 20000003
)

// volcengineDial 建立带鉴权头的连接，握手失败按 HTTP 状态归类。
func volcengineDial(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header, logger zerolog.Logger) (*websocket.Conn, error) {
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, classifyStatus(resp.StatusCode, fmt.Errorf("volcengine handshake: %w", err))
		}
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			logger.Debug().Str("logid", logid).Msg("volcengine connected")
		}
	}
	return conn, nil
}

func readFrame(conn *websocket.Conn) (*frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrServiceUnavailable, err)
	}
	return decodeFrame(data)
}

// VolcengineRecognizer implements Recognizer with the big-model ASR websocket API.
type VolcengineRecognizer struct {
	config        *speechmodel.SpeechConfig
	dialer        *websocket.Dialer
	url           string
	chunkInterval time.Duration
}

// NewVolcengineRecognizer 创建火山引擎识别客户端。
func NewVolcengineRecognizer(config *speechmodel.SpeechConfig) *VolcengineRecognizer {
	return &VolcengineRecognizer{
		config:        config,
		dialer:        &websocket.Dialer{HandshakeTimeout: handshakeTimeout(config)},
		url:           volcengineASRURL,
		chunkInterval: 200 * time.Millisecond,
	}
}

type asrRequestPayload struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec"`
		Rate     int    `json:"rate"`
		Bits     int    `json:"bits"`
		Channel  int    `json:"channel"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn"`
		EnablePunc     bool   `json:"enable_punc"`
		ShowUtterances bool   `json:"show_utterances"`
		ResultType     string `json:"result_type"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrResultPayload struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
}

func (p *asrResultPayload) text() string {
	if p.Result.Text != "" {
		return p.Result.Text
	}
	parts := make([]string, 0, len(p.Result.Utterances))
	for _, u := range p.Result.Utterances {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, " ")
}

// Recognize uploads the WAV file in chunks and returns the final transcript.
func (c *VolcengineRecognizer) Recognize(ctx context.Context, wavPath, language string) (string, error) {
	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return "", err
	}

	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	connectID := uuid.NewString()
	logger := log.With().Str("component", "speech").Str("provider", "volcengine").Str("connect_id", connectID).Logger()

	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, err := volcengineDial(ctx, c.dialer, c.url, header, logger)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	var req asrRequestPayload
	req.User.UID = connectID
	req.Audio.Language = language
	req.Audio.Format = "wav"
	req.Audio.Codec = "raw"
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal asr request: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return "", err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newRequestFrame(compressed, compressionGzip).encode()); err != nil {
		return "", fmt.Errorf("%w: send asr request: %w", ErrServiceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.sendAudio(ctx, conn, audio)
	}()

	type outcome struct {
		text string
		err  error
	}
	result := make(chan outcome, 1)
	go func() {
		text, err := c.receive(conn)
		result <- outcome{text, err}
	}()

	for {
		select {
		case err := <-sendErr:
			if err != nil {
				return "", err
			}
		case out := <-result:
			if out.err == nil {
				logger.Debug().Int("chars", len(out.text)).Msg("volcengine transcript received")
			}
			return out.text, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *VolcengineRecognizer) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("no audio data to send")
	}

	// 完整请求占用序号 1，音频从 2 开始。
	sequence := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := gzipBytes(audio[start:end])
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, newAudioFrame(chunk, sequence, last).encode()); err != nil {
			return fmt.Errorf("%w: send audio chunk: %w", ErrServiceUnavailable, err)
		}
		sequence++

		if last || c.chunkInterval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.chunkInterval):
		}
	}
	return nil
}

func (c *VolcengineRecognizer) receive(conn *websocket.Conn) (string, error) {
	var transcript string
	for {
		f, err := readFrame(conn)
		if err != nil {
			return "", err
		}

		switch f.kind {
		case errorMessage:
			body, _ := f.body()
			return "", classifyVolcengineError(f.code, string(body))

		case fullServerResponse:
			body, err := f.body()
			if err != nil {
				return "", err
			}
			var resp asrResultPayload
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", fmt.Errorf("decode asr response: %w", err)
			}
			if resp.Code == asrCodeSilence {
				return "", ErrUnintelligible
			}
			if resp.Code != 0 && resp.Code != asrCodeOK {
				return "", classifyVolcengineError(uint32(resp.Code), resp.Message)
			}
			if text := resp.text(); text != "" {
				transcript = text
			}
			if f.isLast() || resp.Sequence < 0 {
				if strings.TrimSpace(transcript) == "" {
					return "", ErrUnintelligible
				}
				return transcript, nil
			}
		}
	}
}

// VolcengineVoice implements Voice with the unidirectional streaming TTS API.
type VolcengineVoice struct {
	config *speechmodel.SpeechConfig
	dialer *websocket.Dialer
	url    string
}

// NewVolcengineVoice 创建火山引擎合成客户端。
func NewVolcengineVoice(config *speechmodel.SpeechConfig) *VolcengineVoice {
	return &VolcengineVoice{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout(config)},
		url:    volcengineTTSURL,
	}
}

type ttsRequestPayload struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string `json:"speaker"`
		Text        string `json:"text"`
		AudioParams struct {
			Format     string  `json:"format"`
			SampleRate int     `json:"sample_rate"`
			SpeedRatio float32 `json:"speed_ratio,omitempty"`
		} `json:"audio_params"`
		Language string `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsResultPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Synthesize streams audio for req.Text and returns the concatenated clip. A speaker
// whose resource id does not match falls through to the next candidate resource.
func (v *VolcengineVoice) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	appID, token, err := resolveCredentials(v.config)
	if err != nil {
		return nil, err
	}

	speaker := NormalizeVoiceAlias(speechmodel.ProviderVolcengine, req.Voice)
	if speaker == "" {
		speaker = NormalizeVoiceAlias(speechmodel.ProviderVolcengine, v.config.TTSVoice)
	}
	if speaker == "" {
		speaker = voiceAliases[speechmodel.ProviderVolcengine]["default"]
	}

	var lastErr error
	for _, resourceID := range ttsResourceCandidates(speaker) {
		audio, err := v.synthesizeWith(ctx, req, appID, token, speaker, resourceID)
		if err == nil {
			return audio, nil
		}
		if !strings.Contains(err.Error(), "resource ID is mismatched") {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (v *VolcengineVoice) synthesizeWith(ctx context.Context, req *speechmodel.TTSRequest, appID, token, speaker, resourceID string) ([]byte, error) {
	connectID := uuid.NewString()
	logger := log.With().Str("component", "speech").Str("provider", "volcengine").Str("connect_id", connectID).Str("speaker", speaker).Logger()

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, err := volcengineDial(ctx, v.dialer, v.url, header, logger)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var payload ttsRequestPayload
	payload.User.UID = connectID
	payload.ReqParams.Speaker = speaker
	payload.ReqParams.Text = req.Text
	payload.ReqParams.AudioParams.Format = req.Format
	if payload.ReqParams.AudioParams.Format == "" || payload.ReqParams.AudioParams.Format == "wav" {
		payload.ReqParams.AudioParams.Format = "mp3"
	}
	payload.ReqParams.AudioParams.SampleRate = 24000
	if req.Slow {
		payload.ReqParams.AudioParams.SpeedRatio = 0.8
	}
	payload.ReqParams.Language = req.Language

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newRequestFrame(data, compressionNone).encode()); err != nil {
		return nil, fmt.Errorf("%w: send tts request: %w", ErrServiceUnavailable, err)
	}

	var audio []byte
	for {
		f, err := readFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		switch f.kind {
		case errorMessage:
			body, _ := f.body()
			return nil, classifyVolcengineError(f.code, string(body))

		case audioOnlyServerResponse:
			chunk, err := f.body()
			if err != nil {
				return nil, err
			}
			audio = append(audio, chunk...)

		case fullServerResponse:
			body, err := f.body()
			if err != nil {
				return nil, err
			}
			if len(body) > 0 {
				var resp ttsResultPayload
				if err := json.Unmarshal(body, &resp); err != nil {
					logger.Warn().Err(err).Msg("tts response payload not json")
				} else {
					if resp.Code != 0 && resp.Code != 3000 && resp.Code != asrCodeOK {
						return nil, classifyVolcengineError(uint32(resp.Code), resp.Message)
					}
					if resp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(resp.Data)
						if err != nil {
							return nil, fmt.Errorf("decode base64 audio chunk: %w", err)
						}
						audio = append(audio, chunk...)
					}
				}
			}

			if (f.hasEvent() && f.event == eventSessionFinished) || f.isLast() {
				if len(audio) == 0 {
					return nil, fmt.Errorf("%w: empty audio", ErrServiceUnavailable)
				}
				return audio, nil
			}
		}
	}
}

func ttsResourceCandidates(speaker string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	if strings.HasPrefix(speaker, "S_") {
		return []string{megaResource}
	}
	normalized := strings.ToLower(speaker)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}

// classifyVolcengineError maps service error codes onto the sentinel errors.
func classifyVolcengineError(code uint32, message string) error {
	err := fmt.Errorf("volcengine error %d: %s", code, message)
	lower := strings.ToLower(message)
	switch {
	case code == 45000292, strings.Contains(lower, "quota exceeded"), strings.Contains(lower, "too many requests"):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case code >= 55000000 && code < 56000000:
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	default:
		return err
	}
}

func handshakeTimeout(config *speechmodel.SpeechConfig) time.Duration {
	if config != nil && config.Timeout > 0 {
		return config.Timeout
	}
	return 30 * time.Second
}
