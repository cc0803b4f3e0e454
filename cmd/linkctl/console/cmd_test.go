package console

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/linkctl/helpers"
	"github.com/temoto/linkctl/link"
	"github.com/temoto/linkctl/log2"
	"github.com/temoto/linkctl/state"
)

func newTestContext(t *testing.T) (context.Context, *state.Global) {
	t.Helper()
	log := log2.NewTest(t, log2.LDebug)
	ctx, g := state.NewContext(log)
	config := state.MustReadConfig(log, state.NewMockFullReader(map[string]string{"c": `link { tick_ms = 10 }`}), "c")
	require.NoError(t, g.Init(ctx, config))
	t.Cleanup(g.Stop)
	return ctx, g
}

func TestExecLine(t *testing.T) {
	t.Parallel()
	ctx, g := newTestContext(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	assert.NoError(t, execLine(ctx, ""))
	assert.NoError(t, execLine(ctx, "help"))
	assert.True(t, errors.IsNotFound(execLine(ctx, "fly")))
	assert.True(t, errors.IsNotValid(execLine(ctx, "send 3")))
	assert.Error(t, execLine(ctx, "send x 2"))
	assert.True(t, errors.IsNotValid(execLine(ctx, "target 127.0.0.1")))
	assert.Error(t, execLine(ctx, "target 127.0.0.1 port"))
	err = execLine(ctx, "send 3 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), link.ErrNotConnected.Error())

	require.NoError(t, execLine(ctx, "target 127.0.0.1 "+strconv.Itoa(port)))
	assert.Equal(t, port, g.Client.TargetPort())
	require.NoError(t, execLine(ctx, "connect"))
	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()
	require.Eventually(t, func() bool { return g.Client.IsConnected() }, 5*time.Second, time.Millisecond)
	require.NoError(t, execLine(ctx, "status"))
	require.NoError(t, execLine(ctx, "probe"))

	require.NoError(t, execLine(ctx, "send 3 2"))
	buf := make([]byte, 6)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, helpers.MustHex("7e 03 00 01 02 0a"), buf)

	require.NoError(t, execLine(ctx, "disconnect"))
	assert.Equal(t, link.StateDisconnected, g.Client.State())

	require.NoError(t, execLine(ctx, "auto"))
	require.NoError(t, execLine(ctx, "pause"))
	assert.False(t, g.Client.Searching())
	require.NoError(t, execLine(ctx, "resume"))
	require.NoError(t, execLine(ctx, "noauto"))
	assert.False(t, g.Client.Searching())
}

func TestCompleter(t *testing.T) {
	t.Parallel()
	complete := newCompleter(context.Background())
	buf := prompt.NewBuffer()
	buf.InsertText("pa", false, true)
	got := complete(*buf.Document())
	require.Equal(t, 1, len(got))
	assert.Equal(t, "pause", got[0].Text)

	buf = prompt.NewBuffer()
	buf.InsertText("send 3", false, true)
	assert.Nil(t, complete(*buf.Document()))
}
