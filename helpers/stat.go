package helpers

import (
	"io"
)

// Adder is satisfied by prometheus.Counter and similar accumulators.
type Adder interface {
	Add(float64)
}

// StatReader counts bytes passed through R into V.
// F is added per non-empty read, e.g. to account protocol overhead.
type StatReader struct {
	R io.Reader
	V Adder
	F int
}

var _ io.Reader = &StatReader{}

func NewStatReader(r io.Reader, v Adder, fix int) io.Reader {
	return &StatReader{R: r, F: fix, V: v}
}

func (sr *StatReader) Read(p []byte) (n int, err error) {
	n, err = sr.R.Read(p)
	if n > 0 && sr.V != nil {
		sr.V.Add(float64(n + sr.F))
	}
	return
}

type StatWriter struct {
	W io.Writer
	V Adder
	F int
}

var _ io.Writer = &StatWriter{}

func NewStatWriter(w io.Writer, v Adder, fix int) io.Writer {
	return &StatWriter{W: w, F: fix, V: v}
}

func (sw *StatWriter) Write(p []byte) (n int, err error) {
	n, err = sw.W.Write(p)
	if n > 0 && sw.V != nil {
		sw.V.Add(float64(n + sw.F))
	}
	return
}
