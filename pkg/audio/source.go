package audio

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// RateForFile returns the sample rate implied by a signed-linear file
// extension: .sln (8 kHz), .sln16 and .sln48. Other extensions report false.
func RateForFile(name string) (int, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sln", ".slin":
		return 8000, true
	case ".sln16":
		return 16000, true
	case ".sln48":
		return 48000, true
	default:
		return 0, false
	}
}

// ReaderSource is an [amd.Source] over a raw 16-bit mono PCM stream. It
// yields one frame per Next call and reports io.EOF at the end. A trailing
// partial frame is dropped and counted in Dropped.
type ReaderSource struct {
	r     io.Reader
	size  int
	drops int
}

// NewReaderSource returns a source reading frames of format from r.
func NewReaderSource(r io.Reader, format amd.FrameFormat) *ReaderSource {
	return &ReaderSource{r: r, size: format.FrameBytes()}
}

// Next implements [amd.Source].
func (s *ReaderSource) Next(ctx context.Context) (amd.SourceEvent, error) {
	if err := ctx.Err(); err != nil {
		return amd.SourceEvent{}, err
	}
	frame := make([]byte, s.size)
	n, err := io.ReadFull(s.r, frame)
	switch {
	case err == nil:
		return amd.SourceEvent{Kind: amd.SourceFrame, Frame: frame}, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.drops += n
		return amd.SourceEvent{}, io.EOF
	default:
		return amd.SourceEvent{}, err
	}
}

// Dropped returns the number of trailing bytes that did not fill a frame.
func (s *ReaderSource) Dropped() int { return s.drops }

var _ amd.Source = (*ReaderSource)(nil)
