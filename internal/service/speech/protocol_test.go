package speech

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload, err := gzipBytes([]byte(`{"audio":{"format":"wav"}}`))
	if err != nil {
		t.Fatalf("gzip err: %v", err)
	}

	decoded, err := decodeFrame(newRequestFrame(payload, compressionGzip).encode())
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if decoded.kind != fullClientRequest || decoded.serialization != serializationJSON || decoded.compression != compressionGzip {
		t.Fatalf("unexpected header: %+v", decoded)
	}

	body, err := decoded.body()
	if err != nil {
		t.Fatalf("body err: %v", err)
	}
	if string(body) != `{"audio":{"format":"wav"}}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestAudioFrameSequences(t *testing.T) {
	cases := []struct {
		sequence int32
		last     bool
		flags    messageFlags
		wantSeq  int32
	}{
		{sequence: 2, last: false, flags: flagPositiveSequence, wantSeq: 2},
		{sequence: 5, last: true, flags: flagNegativeSequence, wantSeq: -5},
		{sequence: 0, last: true, flags: flagLastNoSequence, wantSeq: 0},
		{sequence: 0, last: false, flags: flagNoSequence, wantSeq: 0},
	}

	for _, tc := range cases {
		f, err := decodeFrame(newAudioFrame([]byte("pcm"), tc.sequence, tc.last).encode())
		if err != nil {
			t.Fatalf("decode err: %v", err)
		}
		if f.flags != tc.flags || f.sequence != tc.wantSeq || f.isLast() != tc.last {
			t.Errorf("seq=%d last=%v: got flags=%04b seq=%d", tc.sequence, tc.last, f.flags, f.sequence)
		}
		if !bytes.Equal(f.payload, []byte("pcm")) {
			t.Errorf("payload mismatch: %q", f.payload)
		}
	}
}

func TestEventFrameCarriesIDs(t *testing.T) {
	started := &frame{kind: fullServerResponse, flags: flagWithEvent, serialization: serializationJSON, event: eventConnectionStarted, connectID: "conn-1", payload: []byte("{}")}
	f, err := decodeFrame(started.encode())
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if f.event != eventConnectionStarted || f.connectID != "conn-1" || f.sessionID != "" {
		t.Fatalf("unexpected event frame: %+v", f)
	}

	finished := &frame{kind: fullServerResponse, flags: flagWithEvent, event: eventSessionFinished, sessionID: "sess-9"}
	f, err = decodeFrame(finished.encode())
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if f.event != eventSessionFinished || f.sessionID != "sess-9" || len(f.payload) != 0 {
		t.Fatalf("unexpected event frame: %+v", f)
	}
}

func TestErrorFrameCode(t *testing.T) {
	raw := (&frame{kind: errorMessage, payload: []byte("quota exceeded")}).encode()
	// 错误帧在负载长度之前多一个 4 字节错误码。
	withCode := append(append(append([]byte{}, raw[:4]...), 0x02, 0xAE, 0xA6, 0x64), raw[4:]...)

	f, err := decodeFrame(withCode)
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if f.code != 45000292 || string(f.payload) != "quota exceeded" {
		t.Fatalf("unexpected error frame: code=%d payload=%q", f.code, f.payload)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, err := decodeFrame([]byte{0x21, 0x90}); err == nil {
		t.Fatal("expected error for truncated header")
	}
	if _, err := decodeFrame([]byte{0x21, 0x90, 0x10, 0x00, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected error for wrong protocol version")
	}
	if _, err := decodeFrame([]byte{0x11, 0x90, 0x10, 0x00, 0, 0, 0, 9, 'x'}); err == nil {
		t.Fatal("expected error for short payload")
	}
}
