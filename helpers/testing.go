package helpers

import (
	"math/rand"
	"time"
)

func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// RandChunks splits b into random pieces of 1..max bytes.
func RandChunks(r *rand.Rand, b []byte, max int) [][]byte {
	chunks := make([][]byte, 0, len(b))
	for len(b) > 0 {
		n := 1 + r.Intn(max)
		if n > len(b) {
			n = len(b)
		}
		chunks = append(chunks, b[:n])
		b = b[n:]
	}
	return chunks
}
