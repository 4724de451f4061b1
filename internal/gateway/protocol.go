// Package gateway adapts a media gateway's WebSocket stream to the detection
// service.
//
// A gateway opens one WebSocket per call on /v1/amd and speaks a small JSON
// control protocol around binary audio messages:
//
//	client → {"type":"start","call_id":"…","args":"hello,2500,1500","encoding":"ulaw","sample_rate":8000,"channels":1}
//	client → binary audio payloads, any chunking
//	client → {"type":"playback_done"} or {"type":"hangup"}
//	server → {"type":"result","call_id":"…","AMDSTATUS":"MACHINE","AMDCAUSE":"LONGGREETING"}
//
// The server closes the socket after the result. A start message that cannot
// be honoured is answered with {"type":"error","message":"…"} and a
// policy-violation close. An abrupt disconnect is a stream fault and yields
// a HANGUP verdict.
package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrWong99/amdetect/internal/config"
	"github.com/MrWong99/amdetect/internal/detect"
	"github.com/MrWong99/amdetect/pkg/amd"
	"github.com/MrWong99/amdetect/pkg/audio"
)

// Message types.
const (
	TypeStart        = "start"
	TypePlaybackDone = "playback_done"
	TypeHangup       = "hangup"
	TypeResult       = "result"
	TypeError        = "error"
)

// Stream defaults applied when the start message leaves them unset.
const (
	DefaultSampleRate = 8000
	DefaultChannels   = 1
)

// envelope is decoded first to dispatch on the message type.
type envelope struct {
	Type string `json:"type"`
}

// StartMessage opens a call.
type StartMessage struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`

	// Args is the positional argument string "fileName,initialSilence,…".
	// When set, FileName is taken from it and Overrides are applied on top.
	Args string `json:"args,omitempty"`

	FileName  string        `json:"file_name,omitempty"`
	Overrides config.Params `json:"overrides,omitzero"`

	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// ResultMessage carries the verdict variables.
type ResultMessage struct {
	Type   string     `json:"type"`
	CallID string     `json:"call_id"`
	Status amd.Status `json:"AMDSTATUS"`
	Cause  amd.Cause  `json:"AMDCAUSE"`
}

// ErrorMessage reports a rejected start message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// streamParams is a validated start message.
type streamParams struct {
	call     detect.Call
	encoding audio.Encoding
	format   audio.Format
}

// parseStart decodes and validates a start message. A missing call ID is
// generated.
func parseStart(data []byte) (streamParams, error) {
	var msg StartMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return streamParams{}, fmt.Errorf("gateway: decode start message: %w", err)
	}
	if msg.Type != TypeStart {
		return streamParams{}, fmt.Errorf("gateway: expected %q message, got %q", TypeStart, msg.Type)
	}

	sp := streamParams{
		call: detect.Call{
			ID:        msg.CallID,
			FileName:  msg.FileName,
			Overrides: msg.Overrides,
		},
		format: audio.Format{SampleRate: msg.SampleRate, Channels: msg.Channels},
	}
	if sp.call.ID == "" {
		sp.call.ID = uuid.NewString()
	}
	if msg.Args != "" {
		fileName, params, err := config.ParseArgs(msg.Args)
		if err != nil {
			return streamParams{}, err
		}
		sp.call.FileName = fileName
		sp.call.Overrides = params.Merge(msg.Overrides)
	}

	enc, err := audio.ParseEncoding(msg.Encoding)
	if err != nil {
		return streamParams{}, err
	}
	sp.encoding = enc

	if sp.format.SampleRate == 0 {
		sp.format.SampleRate = DefaultSampleRate
	}
	if sp.format.Channels == 0 {
		sp.format.Channels = DefaultChannels
	}
	if sp.format.SampleRate < 0 || sp.format.Channels < 0 || sp.format.Channels > 2 {
		return streamParams{}, fmt.Errorf("gateway: unsupported stream format %s", sp.format)
	}
	if enc == audio.EncodingULaw || enc == audio.EncodingALaw {
		if sp.format.SampleRate != DefaultSampleRate {
			return streamParams{}, fmt.Errorf("gateway: %s requires %d Hz, got %d", enc, DefaultSampleRate, sp.format.SampleRate)
		}
	}
	// A declared stream rate takes precedence over audio.sample_rate.
	sp.call.SampleRate = audio.SupportedRate(sp.format.SampleRate)
	return sp, nil
}
