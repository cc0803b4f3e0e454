package helpers

import (
	"encoding/hex"
	"strings"
)

// MustHex decodes hex string, whitespace is ignored: "7e 03 00".
func MustHex(s string) []byte {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// SpacedHex formats b as "7E 03 00 01", empty for empty input.
func SpacedHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3-1)
	for i, x := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, digits[x>>4], digits[x&0x0f])
	}
	return string(out)
}
