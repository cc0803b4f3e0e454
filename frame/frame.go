// Package frame implements controller wire format.
//
// Frame binary representation: field:size in bytes
// start(0x7e):1 device:1 length:2(big endian) payload:length crc:1
// CRC-8 poly 0x31 covers device, length and payload.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/temoto/linkctl/crc"
	"github.com/temoto/linkctl/helpers"
)

const (
	Start      byte = 0x7e
	Overhead        = 1 /*start*/ + 1 /*device*/ + 2 /*length*/ + 1 /*crc*/
	HeaderSize      = 4
	MaxPayload      = 4096
	MaxSize         = Overhead + MaxPayload

	DeviceMin = 1
	DeviceMax = 8
	StateMin  = 1
	StateMax  = 6
)

var (
	ErrIncomplete = fmt.Errorf("frame incomplete")
	ErrNoise      = fmt.Errorf("frame noise before start")
	ErrLength     = fmt.Errorf("frame length exceeds max")
	ErrCRC        = fmt.Errorf("frame crc mismatch")
)

type Frame struct {
	Payload  []byte
	DeviceID byte
	CRC      byte
}

// Size of encoded frame.
func (f *Frame) Size() int { return Overhead + len(f.Payload) }

// State returns control state carried by single byte payload.
func (f *Frame) State() (int, bool) {
	if len(f.Payload) != 1 {
		return 0, false
	}
	return int(f.Payload[0]), true
}

// Line renders frame for console and telemetry listeners.
func (f *Frame) Line() string {
	if state, ok := f.State(); ok {
		return fmt.Sprintf("cmd=0x%02X loco=%d state=%d", f.DeviceID, f.DeviceID, state)
	}
	return fmt.Sprintf("cmd=0x%02X len=%d data=%s", f.DeviceID, len(f.Payload), helpers.SpacedHex(f.Payload))
}

func (f *Frame) String() string {
	return fmt.Sprintf("(device=%d payload=(%d)%x crc=%02x)", f.DeviceID, len(f.Payload), f.Payload, f.CRC)
}

func (f *Frame) Equal(other *Frame) bool {
	return f.DeviceID == other.DeviceID && f.CRC == other.CRC && bytes.Equal(f.Payload, other.Payload)
}

// Encode never fails: device is clamped into [DeviceMin, DeviceMax],
// payload longer than MaxPayload is truncated.
func Encode(device int, payload []byte) []byte {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}
	plen := len(payload)
	b := make([]byte, Overhead+plen)
	b[0] = Start
	b[1] = byte(clamp(device, DeviceMin, DeviceMax))
	binary.BigEndian.PutUint16(b[2:4], uint16(plen))
	copy(b[HeaderSize:], payload)
	b[HeaderSize+plen] = crc.CRC8_p31_n(0, b[1:HeaderSize+plen])
	return b
}

// EncodeControl builds command frame with single state byte, clamped into [StateMin, StateMax].
func EncodeControl(device, state int) []byte {
	return Encode(device, []byte{byte(clamp(state, StateMin, StateMax))})
}

// ControlFrameHex is EncodeControl formatted for logs.
func ControlFrameHex(device, state int) string {
	return helpers.SpacedHex(EncodeControl(device, state))
}

// Decode attempts to parse exactly one frame at the beginning of b.
// n is how many bytes caller must advance:
// - err=nil: valid frame of n bytes
// - ErrIncomplete: n=0, wait for more input
// - ErrNoise, ErrLength, ErrCRC: drop n bytes and try again
// Returned frame does not reference b.
func Decode(b []byte) (f Frame, n int, err error) {
	if len(b) == 0 {
		return f, 0, ErrIncomplete
	}
	if b[0] != Start {
		i := bytes.IndexByte(b, Start)
		if i < 0 {
			i = len(b)
		}
		return f, i, ErrNoise
	}
	if len(b) < Overhead {
		return f, 0, ErrIncomplete
	}
	plen := int(binary.BigEndian.Uint16(b[2:4]))
	if plen > MaxPayload {
		// start byte was spurious
		return f, 1, ErrLength
	}
	total := Overhead + plen
	if len(b) < total {
		return f, 0, ErrIncomplete
	}
	expect := b[total-1]
	actual := crc.CRC8_p31_n(0, b[1:total-1])
	if expect != actual {
		// keep the rest, valid start may be hidden inside
		return f, 1, ErrCRC
	}
	f.DeviceID = b[1]
	f.CRC = expect
	f.Payload = make([]byte, plen)
	copy(f.Payload, b[HeaderSize:HeaderSize+plen])
	return f, total, nil
}

func clamp(x, min, max int) int {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
