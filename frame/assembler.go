package frame

// DefaultBufferSize is initial assembler capacity.
const DefaultBufferSize = 2048

// Assembler converts arbitrary sized stream chunks into frames.
// Survives torn reads, noise between frames and corrupt CRC.
// Not safe for concurrent use, each connection owns one.
type Assembler struct {
	buf  []byte
	Stat AssemblerStat
}

// AssemblerStat counters are cumulative since creation.
type AssemblerStat struct {
	Frames     uint64
	NoiseBytes uint64
	BadLength  uint64
	BadCRC     uint64
}

func (s AssemblerStat) Sub(other AssemblerStat) AssemblerStat {
	return AssemblerStat{
		Frames:     s.Frames - other.Frames,
		NoiseBytes: s.NoiseBytes - other.NoiseBytes,
		BadLength:  s.BadLength - other.BadLength,
		BadCRC:     s.BadCRC - other.BadCRC,
	}
}

func NewAssembler(size int) *Assembler {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Assembler{buf: make([]byte, 0, size)}
}

// Buffered returns count of bytes waiting for the rest of a frame.
func (a *Assembler) Buffered() int { return len(a.buf) }

// Cap returns current buffer capacity. It only grows.
func (a *Assembler) Cap() int { return cap(a.buf) }

// Reset forgets buffered bytes, capacity is kept.
func (a *Assembler) Reset() { a.buf = a.buf[:0] }

// Feed appends chunk and returns all complete valid frames, in stream order.
// After Feed buffer is either empty or starts with Start byte of incomplete frame.
func (a *Assembler) Feed(chunk []byte) []Frame {
	a.append(chunk)
	var out []Frame
	for len(a.buf) > 0 {
		f, n, err := Decode(a.buf)
		switch err {
		case nil:
			a.Stat.Frames++
			out = append(out, f)
		case ErrIncomplete:
			return out
		case ErrNoise:
			a.Stat.NoiseBytes += uint64(n)
		case ErrLength:
			a.Stat.BadLength++
		case ErrCRC:
			a.Stat.BadCRC++
		}
		a.consume(n)
	}
	return out
}

func (a *Assembler) append(chunk []byte) {
	need := len(a.buf) + len(chunk)
	if need > cap(a.buf) {
		c := cap(a.buf)
		if c == 0 {
			c = DefaultBufferSize
		}
		for c < need {
			c *= 2
		}
		nb := make([]byte, len(a.buf), c)
		copy(nb, a.buf)
		a.buf = nb
	}
	a.buf = append(a.buf, chunk...)
}

// consume drops n leading bytes, compacting rest to index 0.
func (a *Assembler) consume(n int) {
	if n >= len(a.buf) {
		a.buf = a.buf[:0]
		return
	}
	rest := copy(a.buf, a.buf[n:])
	a.buf = a.buf[:rest]
}
