package audiocapture

import "time"

// chunker re-slices an arbitrary byte stream into fixed-size frames with
// monotonic sequence numbers.
type chunker struct {
	size int
	buf  []byte
	seq  uint64
}

func newChunker(size int) *chunker {
	return &chunker{size: size}
}

// push appends data and returns all complete frames now available.
func (c *chunker) push(data []byte, now time.Time) []Frame {
	c.buf = append(c.buf, data...)

	var out []Frame
	for len(c.buf) >= c.size {
		pcm := make([]byte, c.size)
		copy(pcm, c.buf[:c.size])
		c.buf = c.buf[c.size:]
		out = append(out, Frame{Seq: c.seq, PCM: pcm, Captured: now})
		c.seq++
	}
	return out
}

// flush returns the trailing partial frame, if any.
func (c *chunker) flush(now time.Time) (Frame, bool) {
	if len(c.buf) == 0 {
		return Frame{}, false
	}
	pcm := make([]byte, len(c.buf))
	copy(pcm, c.buf)
	c.buf = c.buf[:0]
	f := Frame{Seq: c.seq, PCM: pcm, Captured: now}
	c.seq++
	return f, true
}
