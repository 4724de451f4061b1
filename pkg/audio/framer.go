package audio

// Framer slices a PCM byte stream into frames of a fixed size. Bytes that do
// not yet fill a frame are held until the next Write.
type Framer struct {
	size int
	buf  []byte
}

// NewFramer returns a Framer producing frames of size bytes. size must be
// positive.
func NewFramer(size int) *Framer {
	if size <= 0 {
		panic("audio: framer size must be positive")
	}
	return &Framer{size: size}
}

// Size returns the frame size in bytes.
func (f *Framer) Size() int { return f.size }

// Buffered returns the number of bytes held back for the next frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Write appends pcm and returns every complete frame now available. Each
// returned frame is a fresh slice owned by the caller.
func (f *Framer) Write(pcm []byte) [][]byte {
	f.buf = append(f.buf, pcm...)
	n := len(f.buf) / f.size
	if n == 0 {
		return nil
	}
	frames := make([][]byte, n)
	for i := range frames {
		frame := make([]byte, f.size)
		copy(frame, f.buf[i*f.size:])
		frames[i] = frame
	}
	rest := copy(f.buf, f.buf[n*f.size:])
	f.buf = f.buf[:rest]
	return frames
}

// Reset discards any buffered bytes.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
