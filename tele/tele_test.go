package tele

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/linkctl/link"
	"github.com/temoto/linkctl/log2"
)

type fakeController struct {
	sync.Mutex
	connected bool
	calls     []string
}

func (self *fakeController) SendControl(device, state int) bool {
	self.Lock()
	defer self.Unlock()
	self.calls = append(self.calls, fmt.Sprintf("%d %d", device, state))
	return self.connected
}

func (self *fakeController) list() []string {
	self.Lock()
	defer self.Unlock()
	return append([]string(nil), self.calls...)
}

func newTestBridge(t *testing.T, config Config, ctl Controller, outBuffer int) (*Bridge, *transportMock) {
	t.Helper()
	mock := &transportMock{t: t, outBuffer: outBuffer}
	b := &Bridge{transport: mock}
	config.Enabled = true
	require.NoError(t, b.Init(context.Background(), log2.NewTest(t, log2.LDebug), config, ctl))
	return b, mock
}

func TestParseControl(t *testing.T) {
	t.Parallel()
	type Case struct {
		input     string
		expectDev int
		expectSt  int
		expectErr string
	}
	cases := []Case{
		{"3 2", 3, 2, ""},
		{"  1\t6\n", 1, 6, ""},
		{"0 9", 0, 9, ""},
		{"", 0, 0, "not valid"},
		{"3", 0, 0, "not valid"},
		{"3 2 1", 0, 0, "not valid"},
		{"x 2", 0, 0, "control loco"},
		{"3 y", 0, 0, "control state"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			dev, st, err := ParseControl(c.input)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expectDev, dev)
			assert.Equal(t, c.expectSt, st)
		})
	}
}

func TestBridgePublish(t *testing.T) {
	t.Parallel()
	b, mock := newTestBridge(t, Config{}, &fakeController{}, 16)
	assert.Equal(t, string(link.StatusDisconnected), string(mock.will))

	b.Status(link.StatusConnected)
	b.Searching(true)
	b.Reachable(true, false)
	b.TelemetryLine("cmd=0x03 loco=3 state=2")
	b.Error(errors.New("dial refused"))
	b.Error(nil)

	assert.Equal(t, published{TopicStatus, true, "connected"}, mock.next())
	assert.Equal(t, published{TopicSearching, true, "1"}, mock.next())
	assert.Equal(t, published{TopicReachable, true, "connected=1 reachable=0"}, mock.next())
	assert.Equal(t, published{TopicTelemetry, false, "cmd=0x03 loco=3 state=2"}, mock.next())
	assert.Equal(t, published{TopicError, false, "dial refused"}, mock.next())
	b.Close()
	<-mock.closed
	assert.Equal(t, 0, len(mock.out))
}

func TestBridgeControl(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{connected: true}
	b, mock := newTestBridge(t, Config{}, ctl, 16)
	defer b.Close()

	assert.True(t, mock.onControl([]byte("3 2")))
	assert.False(t, mock.onControl([]byte("garbage")))
	assert.Equal(t, []string{"3 2"}, ctl.list())

	ctl.Lock()
	ctl.connected = false
	ctl.Unlock()
	assert.True(t, mock.onControl([]byte("1 6")))
	p := mock.next()
	assert.Equal(t, TopicError, p.topic)
	assert.Contains(t, p.payload, "control loco=1 state=6")
	assert.Equal(t, []string{"3 2", "1 6"}, ctl.list())
}

func TestBridgeCloseDrains(t *testing.T) {
	t.Parallel()
	b, mock := newTestBridge(t, Config{}, &fakeController{}, 64)
	for i := 0; i < 10; i++ {
		b.TelemetryLine(fmt.Sprintf("line %d", i))
	}
	b.Close()
	assert.Equal(t, 10, len(mock.out))
	// after close publish is ignored
	b.Status(link.StatusConnected)
	assert.Equal(t, 10, len(mock.out))
}

func TestBridgeQueueFull(t *testing.T) {
	t.Parallel()
	// unbuffered mock with long timeout blocks worker on first message
	mock := &transportMock{t: t, networkTimeout: time.Minute}
	b := &Bridge{transport: mock}
	require.NoError(t, b.Init(context.Background(), log2.NewTest(t, log2.LDebug), Config{Enabled: true, QueueSize: 2}, &fakeController{}))
	for i := 0; i < 10; i++ {
		b.TelemetryLine("x")
	}
	dropped := int(b.Dropped())
	assert.True(t, dropped == 7 || dropped == 8, "dropped=%d", dropped)
	for i := 0; i < 10-dropped; i++ {
		assert.Equal(t, "x", mock.next().payload)
	}
	b.Close()
}

func TestBridgeDisabled(t *testing.T) {
	t.Parallel()
	mock := &transportMock{t: t}
	b := &Bridge{transport: mock}
	require.NoError(t, b.Init(context.Background(), log2.NewTest(t, log2.LDebug), Config{}, nil))
	b.Status(link.StatusConnected)
	b.Close()
	assert.Nil(t, mock.out)

	var nilb *Bridge
	nilb.Status(link.StatusConnected)
	nilb.Searching(false)
	nilb.Close()
}

func TestBridgeInitNoController(t *testing.T) {
	t.Parallel()
	b := &Bridge{transport: &transportMock{t: t}}
	err := b.Init(context.Background(), log2.NewTest(t, log2.LDebug), Config{Enabled: true}, nil)
	assert.True(t, errors.IsNotValid(err))
}
