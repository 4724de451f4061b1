package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "8000Hz mono".
func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// supportedRates are the analyzer rates, lowest first.
var supportedRates = [...]int{8000, 16000, 48000}

// SupportedRate returns the analyzer rate to use for audio at rate: rate
// itself when it is supported, otherwise the lowest supported rate that is not
// below it (48000 for anything above).
func SupportedRate(rate int) int {
	for _, r := range supportedRates {
		if rate <= r {
			return r
		}
	}
	return supportedRates[len(supportedRates)-1]
}

// FormatConverter converts interleaved 16-bit PCM to mono at TargetRate. It
// logs a warning on the first conversion and drops misaligned input.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	TargetRate     int
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns pcm in from's layout converted to mono at c.TargetRate. If
// from already matches, pcm is returned unchanged (zero allocation).
// Conversion order: downmix first, then resample.
func (c *FormatConverter) Convert(pcm []byte, from Format) []byte {
	channels := max(from.Channels, 1)
	if len(pcm)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: misaligned PCM data, dropping chunk",
				"bytes", len(pcm),
				"format", from.String(),
			)
		})
		return nil
	}
	if channels == 1 && from.SampleRate == c.TargetRate {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", from.String(),
			"to", formatString(c.TargetRate, 1),
		)
	})

	if channels > 1 {
		pcm = DownmixToMono(pcm, channels)
	}
	return ResampleMono16(pcm, from.SampleRate, c.TargetRate)
}

// DownmixToMono averages each interleaved frame of channels samples into one
// mono sample. Uses int32 arithmetic to prevent overflow. A trailing partial
// frame is dropped.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := channels * 2
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		base := i * stride
		for ch := range channels {
			j := base + ch*2
			sum += int32(int16(pcm[j]) | int16(pcm[j+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
