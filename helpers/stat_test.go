package helpers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testAdder struct{ v float64 }

func (ta *testAdder) Add(x float64) { ta.v += x }

func TestStatReader(t *testing.T) {
	t.Parallel()
	var counter testAdder
	s := NewStatReader(strings.NewReader(strings.Repeat(".", 1024)), &counter, 0)
	assert.Equal(t, 0.0, counter.v)
	buf := make([]byte, 17)
	_, _ = s.Read(buf[:0])
	assert.Equal(t, 0.0, counter.v)
	_, _ = s.Read(buf[:5])
	assert.Equal(t, 5.0, counter.v)
	_, _ = s.Read(buf)
	assert.Equal(t, 22.0, counter.v)
}

func TestStatWriter(t *testing.T) {
	t.Parallel()
	var counter testAdder
	s := NewStatWriter(bytes.NewBuffer(nil), &counter, 40)
	buf := make([]byte, 17)
	_, _ = s.Write(buf[:0])
	assert.Equal(t, 0.0, counter.v)
	_, _ = s.Write(buf[:5])
	assert.Equal(t, 45.0, counter.v)
}

func TestStatNilCounter(t *testing.T) {
	t.Parallel()
	s := NewStatReader(strings.NewReader("abc"), nil, 0)
	n, err := s.Read(make([]byte, 8))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}
