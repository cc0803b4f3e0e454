package frame

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/linkctl/helpers"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		device  int
		payload string
		expect  string
	}
	cases := []Case{
		{"control", 3, "02", "7e 03 00 01 02 0a"},
		{"empty", 1, "", "7e 01 00 00 46"},
		{"two", 2, "abcd", "7e 02 00 02 ab cd f5"},
		{"device-low", 0, "", "7e 01 00 00 46"},
		{"device-negative", -5, "", "7e 01 00 00 46"},
		{"device-high", 99, "06", "7e 08 00 01 06 4e"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			b := Encode(c.device, helpers.MustHex(c.payload))
			assert.Equal(t, helpers.MustHex(c.expect), b)
		})
	}
}

func TestEncodeTruncate(t *testing.T) {
	t.Parallel()
	b := Encode(1, make([]byte, MaxPayload+100))
	require.Equal(t, MaxSize, len(b))
	assert.Equal(t, []byte{0x10, 0x00}, b[2:4])
	f, n, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, MaxSize, n)
	assert.Equal(t, MaxPayload, len(f.Payload))
}

func TestEncodeControl(t *testing.T) {
	t.Parallel()

	// crc over [device, 0, 1, state]
	table := [8][6]byte{
		{0x5e, 0x0d, 0x3c, 0xab, 0x9a, 0xc9},
		{0xc2, 0x91, 0xa0, 0x37, 0x06, 0x55},
		{0x59, 0x0a, 0x3b, 0xac, 0x9d, 0xce},
		{0xcb, 0x98, 0xa9, 0x3e, 0x0f, 0x5c},
		{0x50, 0x03, 0x32, 0xa5, 0x94, 0xc7},
		{0xcc, 0x9f, 0xae, 0x39, 0x08, 0x5b},
		{0x57, 0x04, 0x35, 0xa2, 0x93, 0xc0},
		{0xd9, 0x8a, 0xbb, 0x2c, 0x1d, 0x4e},
	}
	for d := DeviceMin; d <= DeviceMax; d++ {
		for s := StateMin; s <= StateMax; s++ {
			b := EncodeControl(d, s)
			expect := []byte{Start, byte(d), 0, 1, byte(s), table[d-1][s-1]}
			assert.Equal(t, expect, b, "device=%d state=%d", d, s)

			f, n, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, len(b), n)
			assert.Equal(t, byte(d), f.DeviceID)
			state, ok := f.State()
			assert.True(t, ok)
			assert.Equal(t, s, state)
		}
	}
}

func TestEncodeControlClamp(t *testing.T) {
	t.Parallel()
	assert.Equal(t, EncodeControl(1, 1), EncodeControl(0, 0))
	assert.Equal(t, EncodeControl(1, 1), EncodeControl(-3, -1))
	assert.Equal(t, EncodeControl(8, 6), EncodeControl(100, 100))
	assert.Equal(t, EncodeControl(4, 6), EncodeControl(4, 7))
	assert.Equal(t, "7E 03 00 01 02 0A", ControlFrameHex(3, 2))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	type Case struct {
		name    string
		input   string
		n       int
		err     error
		device  byte
		payload string
	}
	cases := []Case{
		{"empty", "", 0, ErrIncomplete, 0, ""},
		{"noise-all", "aa bb", 2, ErrNoise, 0, ""},
		{"noise-until-start", "aa 7e 03", 1, ErrNoise, 0, ""},
		{"short-header", "7e 03 00", 0, ErrIncomplete, 0, ""},
		{"short-payload", "7e 03 00 01 02", 0, ErrIncomplete, 0, ""},
		{"length-4097", "7e 03 10 01 00 00", 1, ErrLength, 0, ""},
		{"length-max", "7e 03 ff ff 00 00", 1, ErrLength, 0, ""},
		{"length-4096-wait", "7e 03 10 00 00 00", 0, ErrIncomplete, 0, ""},
		{"crc", "7e 03 00 01 02 0b", 1, ErrCRC, 0, ""},
		{"ok", "7e 03 00 01 02 0a", 6, nil, 3, "02"},
		{"ok-trailing", "7e 03 00 01 02 0a ff 7e", 6, nil, 3, "02"},
		{"ok-empty", "7e 01 00 00 46", 5, nil, 1, ""},
		{"ok-two", "7e 02 00 02 ab cd f5", 7, nil, 2, "abcd"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			f, n, err := Decode(helpers.MustHex(c.input))
			assert.Equal(t, c.err, err)
			assert.Equal(t, c.n, n)
			if c.err == nil {
				assert.Equal(t, c.device, f.DeviceID)
				assert.Equal(t, helpers.MustHex(c.payload), f.Payload)
			}
		})
	}
}

func TestDecodeCopies(t *testing.T) {
	t.Parallel()
	b := helpers.MustHex("7e 03 00 01 02 0a")
	f, _, err := Decode(b)
	require.NoError(t, err)
	b[4] = 0xff
	assert.Equal(t, []byte{0x02}, f.Payload)
}

func TestFrameLine(t *testing.T) {
	t.Parallel()

	type Case struct {
		input  string
		expect string
	}
	cases := []Case{
		{"7e 03 00 01 02 0a", "cmd=0x03 loco=3 state=2"},
		{"7e 02 00 02 ab cd f5", "cmd=0x02 len=2 data=AB CD"},
		{"7e 01 00 00 46", "cmd=0x01 len=0 data="},
	}
	for i, c := range cases {
		c := c
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			f, _, err := Decode(helpers.MustHex(c.input))
			require.NoError(t, err)
			assert.Equal(t, c.expect, f.Line())
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	rnd := helpers.RandUnix()
	for i := 0; i < 100; i++ {
		payload := make([]byte, rnd.Intn(300))
		_, _ = rnd.Read(payload)
		device := DeviceMin + rnd.Intn(DeviceMax)
		b := Encode(device, payload)
		f, n, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
		assert.Equal(t, len(b), f.Size())
		assert.Equal(t, byte(device), f.DeviceID)
		assert.Equal(t, payload, f.Payload)
		assert.Equal(t, b[len(b)-1], f.CRC)
	}
}
