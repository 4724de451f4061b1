package audio_test

import (
	"errors"
	"testing"

	"layeh.com/gopus"

	"github.com/MrWong99/amdetect/pkg/audio"
)

func TestParseEncoding(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want audio.Encoding
	}{
		{"", audio.EncodingSLIN},
		{"L16", audio.EncodingSLIN},
		{"PCMU", audio.EncodingULaw},
		{"ulaw", audio.EncodingULaw},
		{"pcma", audio.EncodingALaw},
		{" opus ", audio.EncodingOpus},
	}
	for _, tc := range tests {
		got, err := audio.ParseEncoding(tc.in)
		if err != nil {
			t.Errorf("ParseEncoding(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseEncoding(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := audio.ParseEncoding("gsm"); !errors.Is(err, audio.ErrUnsupportedEncoding) {
		t.Errorf("ParseEncoding(gsm) err = %v, want ErrUnsupportedEncoding", err)
	}
}

func TestULawDecoder(t *testing.T) {
	t.Parallel()
	dec, err := audio.NewDecoder(audio.EncodingULaw, audio.Format{SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	out, err := dec.Decode([]byte{0xFF, 0x7F, 0x00, 0x80})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := bytesToSamples(out)
	want := []int16{0, 0, -32124, 32124}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestALawDecoder(t *testing.T) {
	t.Parallel()
	dec, err := audio.NewDecoder(audio.EncodingALaw, audio.Format{SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	out, err := dec.Decode([]byte{0xD5, 0x55, 0xAA, 0x2A})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := bytesToSamples(out)
	want := []int16{8, -8, 32256, -32256}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSLINDecoder_DropsOddByte(t *testing.T) {
	t.Parallel()
	dec, err := audio.NewDecoder(audio.EncodingSLIN, audio.Format{SampleRate: 8000, Channels: 1})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	out, _ := dec.Decode([]byte{1, 2, 3})
	if len(out) != 2 {
		t.Errorf("len = %d, want 2", len(out))
	}
}

func TestOpusDecoder_RoundTrip(t *testing.T) {
	t.Parallel()
	const rate, frameSize = 8000, 160

	enc, err := gopus.NewEncoder(rate, 1, gopus.Voip)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	pcm := make([]int16, frameSize)
	for i := range pcm {
		pcm[i] = int16((i % 20) * 500)
	}
	packet, err := enc.Encode(pcm, frameSize, 4000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := audio.NewDecoder(audio.EncodingOpus, audio.Format{SampleRate: rate, Channels: 1})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	out, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != frameSize*2 {
		t.Errorf("decoded %d bytes, want %d", len(out), frameSize*2)
	}
}

func TestNewDecoder_Unsupported(t *testing.T) {
	t.Parallel()
	_, err := audio.NewDecoder("g729", audio.Format{SampleRate: 8000, Channels: 1})
	if !errors.Is(err, audio.ErrUnsupportedEncoding) {
		t.Errorf("err = %v, want ErrUnsupportedEncoding", err)
	}
}
