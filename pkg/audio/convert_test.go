package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/amdetect/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestDownmixToMono(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		in       []int16
		want     []int16
	}{
		{"stereo", 2, []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"stereo full scale", 2, []int16{32767, 32767, -32768, -32768}, []int16{32767, -32768}},
		{"three channels", 3, []int16{30, 60, 90}, []int16{60}},
		{"partial frame dropped", 2, []int16{10, 20, 30}, []int16{15}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := bytesToSamples(audio.DownmixToMono(samplesToBytes(tc.in), tc.channels))
			if len(got) != len(tc.want) {
				t.Fatalf("length mismatch: got %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 24kHz → 2 samples at 8kHz (1/3x)
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 24000, 8000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200})
	if out := audio.ResampleMono16(pcm, 0, 8000); len(out) != len(pcm) {
		t.Errorf("zero source rate: got %d bytes, want input unchanged", len(out))
	}
}

func TestSupportedRate(t *testing.T) {
	tests := []struct{ in, want int }{
		{8000, 8000},
		{11025, 16000},
		{16000, 16000},
		{22050, 48000},
		{48000, 48000},
		{96000, 48000},
		{4000, 8000},
	}
	for _, tc := range tests {
		if got := audio.SupportedRate(tc.in); got != tc.want {
			t.Errorf("SupportedRate(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	conv := audio.FormatConverter{TargetRate: 8000}
	pcm := samplesToBytes([]int16{100, 200})
	result := conv.Convert(pcm, audio.Format{SampleRate: 8000, Channels: 1})
	// Same slice, pointer equality check.
	if &result[0] != &pcm[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestFormatConverter_StereoToMonoResampled(t *testing.T) {
	conv := audio.FormatConverter{TargetRate: 16000}
	// 3 stereo frames at 48kHz → 1 mono sample at 16kHz.
	pcm := samplesToBytes([]int16{100, 300, 100, 300, 100, 300})
	got := bytesToSamples(conv.Convert(pcm, audio.Format{SampleRate: 48000, Channels: 2}))
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 200 {
		t.Errorf("sample: got %d, want 200", got[0])
	}
}

func TestFormatConverter_MisalignedInput(t *testing.T) {
	conv := audio.FormatConverter{TargetRate: 8000}
	if out := conv.Convert([]byte{1, 2, 3, 4, 5, 6}, audio.Format{SampleRate: 8000, Channels: 2}); out != nil {
		t.Errorf("expected nil for misaligned stereo input, got %d bytes", len(out))
	}
}
