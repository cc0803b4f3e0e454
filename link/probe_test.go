package link

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketProbeLive(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	conn, err := net.DialTimeout("tcp", srv.ln.Addr().String(), testWait)
	require.NoError(t, err)
	defer conn.Close()
	srv.accept(t)
	assert.NoError(t, SocketProbe(conn))
}

func TestSocketProbeClosed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	conn, err := net.DialTimeout("tcp", srv.ln.Addr().String(), testWait)
	require.NoError(t, err)
	srv.accept(t)
	require.NoError(t, conn.Close())
	assert.Error(t, SocketProbe(conn))
}

func TestSocketProbePipe(t *testing.T) {
	t.Parallel()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	assert.NoError(t, SocketProbe(a))
}
