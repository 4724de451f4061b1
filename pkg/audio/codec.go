package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedEncoding is returned by [ParseEncoding] and [NewDecoder] for
// encodings this package cannot decode.
var ErrUnsupportedEncoding = errors.New("audio: unsupported encoding")

// Encoding names a media payload format.
type Encoding string

const (
	// EncodingSLIN is signed 16-bit little-endian linear PCM.
	EncodingSLIN Encoding = "slin"

	// EncodingULaw is G.711 µ-law, one byte per sample.
	EncodingULaw Encoding = "ulaw"

	// EncodingALaw is G.711 A-law, one byte per sample.
	EncodingALaw Encoding = "alaw"

	// EncodingOpus is one Opus packet per payload.
	EncodingOpus Encoding = "opus"
)

// ParseEncoding maps a name (case-insensitive, with the common aliases
// "pcmu", "pcma" and "l16") to an Encoding. The empty string is slin.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "slin", "l16", "pcm":
		return EncodingSLIN, nil
	case "ulaw", "pcmu", "mulaw":
		return EncodingULaw, nil
	case "alaw", "pcma":
		return EncodingALaw, nil
	case "opus":
		return EncodingOpus, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}

// Decoder turns media payloads into interleaved 16-bit little-endian PCM in
// the stream's own format. Stateful codecs need one Decoder per stream.
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
}

// DecoderFunc adapts a stateless function to [Decoder].
type DecoderFunc func(payload []byte) ([]byte, error)

// Decode calls f.
func (f DecoderFunc) Decode(payload []byte) ([]byte, error) { return f(payload) }

// NewDecoder returns a decoder for enc producing PCM in format f.
func NewDecoder(enc Encoding, f Format) (Decoder, error) {
	switch enc {
	case EncodingSLIN:
		return DecoderFunc(decodeSLIN), nil
	case EncodingULaw:
		return DecoderFunc(func(p []byte) ([]byte, error) { return expand(p, &ulawTable), nil }), nil
	case EncodingALaw:
		return DecoderFunc(func(p []byte) ([]byte, error) { return expand(p, &alawTable), nil }), nil
	case EncodingOpus:
		return newOpusDecoder(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// decodeSLIN passes linear PCM through; an odd trailing byte is dropped.
func decodeSLIN(p []byte) ([]byte, error) {
	return p[:len(p)&^1], nil
}
