package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/MrWong99/amdetect/pkg/amd"
	"github.com/MrWong99/amdetect/pkg/audio"
)

// streamSource exposes one WebSocket call stream as an [amd.Source]. Binary
// payloads are decoded, converted to mono at the analysis rate and re-framed
// to the analyzer frame size.
type streamSource struct {
	conn   *websocket.Conn
	callID string
	from   audio.Format

	decoder   audio.Decoder
	converter *audio.FormatConverter
	framer    *audio.Framer

	// unit is the byte size of one sample frame of the encoded stream, or 0
	// for packetised codecs. Partial units are carried to the next payload.
	unit  int
	carry []byte

	queue [][]byte
}

func newStreamSource(conn *websocket.Conn, sp streamParams, format amd.FrameFormat) (*streamSource, error) {
	dec, err := audio.NewDecoder(sp.encoding, sp.format)
	if err != nil {
		return nil, err
	}
	s := &streamSource{
		conn:      conn,
		callID:    sp.call.ID,
		from:      sp.format,
		decoder:   dec,
		converter: &audio.FormatConverter{TargetRate: format.SampleRate},
		framer:    audio.NewFramer(format.FrameBytes()),
	}
	switch sp.encoding {
	case audio.EncodingSLIN:
		s.unit = 2 * sp.format.Channels
	case audio.EncodingULaw, audio.EncodingALaw:
		s.unit = sp.format.Channels
	}
	return s, nil
}

// Next implements [amd.Source]. Read errors, including a peer close, are
// returned as-is and end the analysis as a stream fault.
func (s *streamSource) Next(ctx context.Context) (amd.SourceEvent, error) {
	for len(s.queue) == 0 {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A dropped connection is a fault, not the end of playback.
				return amd.SourceEvent{}, fmt.Errorf("gateway: peer disconnected (%v): %w", err, io.ErrUnexpectedEOF)
			}
			return amd.SourceEvent{}, err
		}
		switch typ {
		case websocket.MessageBinary:
			if err := s.push(data); err != nil {
				return amd.SourceEvent{}, err
			}
		case websocket.MessageText:
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return amd.SourceEvent{}, fmt.Errorf("gateway: decode control message: %w", err)
			}
			switch env.Type {
			case TypePlaybackDone:
				return amd.SourceEvent{Kind: amd.SourceStreamEnd}, nil
			case TypeHangup:
				return amd.SourceEvent{Kind: amd.SourceHangup}, nil
			default:
				slog.Debug("gateway: ignoring control message", "call_id", s.callID, "type", env.Type)
			}
		}
	}
	frame := s.queue[0]
	s.queue = s.queue[1:]
	return amd.SourceEvent{Kind: amd.SourceFrame, Frame: frame}, nil
}

// push decodes one payload and queues every complete analyzer frame.
func (s *streamSource) push(payload []byte) error {
	if s.unit > 0 {
		s.carry = append(s.carry, payload...)
		n := len(s.carry) - len(s.carry)%s.unit
		payload = s.carry[:n:n]
		s.carry = append([]byte(nil), s.carry[n:]...)
	}
	if len(payload) == 0 {
		return nil
	}
	pcm, err := s.decoder.Decode(payload)
	if err != nil {
		return fmt.Errorf("gateway: call %s: %w", s.callID, err)
	}
	pcm = s.converter.Convert(pcm, s.from)
	s.queue = append(s.queue, s.framer.Write(pcm)...)
	return nil
}
