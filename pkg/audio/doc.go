// Package audio turns call media into the fixed-size 16-bit mono frames the
// amd package analyses.
//
// A media path is built from three parts: a [Decoder] for the wire encoding
// (linear PCM, G.711 or Opus), a [FormatConverter] that downmixes to mono and
// brings the rate to one the analyzer supports, and a [Framer] that slices
// the result into frames of exactly [amd.FrameFormat.FrameBytes] bytes.
// [ReaderSource] does all of this for raw PCM files.
package audio
