package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制帧：4 字节头 + 可选序号/事件 + 负载长度 + 负载。

const protocolVersion = 0b0001

type messageType uint8

const (
	fullClientRequest       messageType = 0b0001
	audioOnlyRequest        messageType = 0b0010
	fullServerResponse      messageType = 0b1001
	audioOnlyServerResponse messageType = 0b1011
	errorMessage            messageType = 0b1111
)

type messageFlags uint8

const (
	flagNoSequence       messageFlags = 0b0000
	flagPositiveSequence messageFlags = 0b0001
	flagLastNoSequence   messageFlags = 0b0010
	flagNegativeSequence messageFlags = 0b0011
	flagWithEvent        messageFlags = 0b0100
)

const (
	serializationNone uint8 = 0b0000
	serializationJSON uint8 = 0b0001
)

type compression uint8

const (
	compressionNone compression = 0b0000
	compressionGzip compression = 0b0001
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
)

// frame is one protocol message.
type frame struct {
	kind          messageType
	flags         messageFlags
	serialization uint8
	compression   compression
	sequence      int32
	event         eventType
	sessionID     string
	connectID     string
	code          uint32
	payload       []byte
}

func (f *frame) hasSequence() bool {
	seq := f.flags & 0b0011
	return seq == flagPositiveSequence || seq == flagNegativeSequence
}

func (f *frame) hasEvent() bool {
	return f.flags&flagWithEvent != 0
}

// isLast reports whether the frame closes the stream.
func (f *frame) isLast() bool {
	seq := f.flags & 0b0011
	return seq == flagLastNoSequence || seq == flagNegativeSequence
}

func eventCarriesSession(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection, eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	}
	return true
}

func eventCarriesConnect(e eventType) bool {
	return e == eventConnectionStarted || e == eventConnectionFailed || e == eventConnectionFinished
}

func (f *frame) encode() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0b0001,
		uint8(f.kind)<<4 | uint8(f.flags),
		f.serialization<<4 | uint8(f.compression),
		0,
	})

	writeU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeString := func(s string) {
		writeU32(uint32(len(s)))
		buf.WriteString(s)
	}

	if f.hasSequence() {
		writeU32(uint32(f.sequence))
	}
	if f.hasEvent() {
		writeU32(uint32(f.event))
		if eventCarriesSession(f.event) {
			writeString(f.sessionID)
		}
		if eventCarriesConnect(f.event) {
			writeString(f.connectID)
		}
	}
	writeU32(uint32(len(f.payload)))
	buf.Write(f.payload)
	return buf.Bytes()
}

func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version := head[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("skip extended header: %w", err)
		}
	}

	f := &frame{
		kind:          messageType(head[1] >> 4),
		flags:         messageFlags(head[1] & 0x0F),
		serialization: head[2] >> 4,
		compression:   compression(head[2] & 0x0F),
	}

	readU32 := func(field string) (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return 0, fmt.Errorf("read %s: %w", field, err)
		}
		return v, nil
	}
	readString := func(field string) (string, error) {
		size, err := readU32(field + " size")
		if err != nil {
			return "", err
		}
		b := make([]byte, size)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("read %s: %w", field, err)
		}
		return string(b), nil
	}

	if f.hasSequence() {
		v, err := readU32("sequence")
		if err != nil {
			return nil, err
		}
		f.sequence = int32(v)
	}
	if f.hasEvent() {
		v, err := readU32("event")
		if err != nil {
			return nil, err
		}
		f.event = eventType(int32(v))
		if eventCarriesSession(f.event) {
			if f.sessionID, err = readString("session id"); err != nil {
				return nil, err
			}
		}
		if eventCarriesConnect(f.event) {
			if f.connectID, err = readString("connect id"); err != nil {
				return nil, err
			}
		}
	}
	if f.kind == errorMessage {
		code, err := readU32("error code")
		if err != nil {
			return nil, err
		}
		f.code = code
	}

	size, err := readU32("payload size")
	if err != nil {
		return nil, err
	}
	f.payload = make([]byte, size)
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
	}
	return f, nil
}

// body returns the decompressed payload.
func (f *frame) body() ([]byte, error) {
	if f.compression == compressionGzip {
		return gunzip(f.payload)
	}
	return f.payload, nil
}

func newRequestFrame(payload []byte, c compression) *frame {
	return &frame{kind: fullClientRequest, flags: flagNoSequence, serialization: serializationJSON, compression: c, payload: payload}
}

// newAudioFrame builds an audio chunk. The final chunk carries a negated sequence.
func newAudioFrame(chunk []byte, sequence int32, last bool) *frame {
	f := &frame{kind: audioOnlyRequest, serialization: serializationNone, compression: compressionGzip, payload: chunk, sequence: sequence}
	switch {
	case last && sequence != 0:
		f.flags = flagNegativeSequence
		f.sequence = -sequence
	case last:
		f.flags = flagLastNoSequence
	case sequence > 0:
		f.flags = flagPositiveSequence
	default:
		f.flags = flagNoSequence
	}
	return f
}

// gzipBytes compresses a frame payload.
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("gzip payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip payload: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip payload: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
