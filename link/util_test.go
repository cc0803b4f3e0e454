package link

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/temoto/linkctl/frame"
	"github.com/temoto/linkctl/log2"
)

const testWait = 5 * time.Second
const testTick = 10 * time.Millisecond

type testServer struct {
	ln       net.Listener
	conns    chan net.Conn
	accepted int32
}

func newTestServer(t testing.TB) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &testServer{ln: ln, conns: make(chan net.Conn, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&s.accepted, 1)
			s.conns <- conn
		}
	}()
	t.Cleanup(s.close)
	return s
}

func (s *testServer) port() int             { return s.ln.Addr().(*net.TCPAddr).Port }
func (s *testServer) Accepted() int         { return int(atomic.LoadInt32(&s.accepted)) }
func (s *testServer) stopListen()           { _ = s.ln.Close() }
func (s *testServer) target() (string, int) { return "127.0.0.1", s.port() }

func (s *testServer) close() {
	_ = s.ln.Close()
	for {
		select {
		case conn := <-s.conns:
			_ = conn.Close()
		default:
			return
		}
	}
}

func (s *testServer) accept(t testing.TB) net.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(testWait):
		t.Fatal("accept timeout")
		return nil
	}
}

// closedPort returns port nobody listens on.
func closedPort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

type recorder struct {
	mu     sync.Mutex
	events []string
	frames []frame.Frame
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(s string) int {
	n := 0
	for _, e := range r.list() {
		if e == s {
			n++
		}
	}
	return n
}

func (r *recorder) options(t testing.TB) Options {
	return Options{
		Log:                 log2.NewTest(t, log2.LDebug),
		Tick:                testTick,
		OnConnectingStarted: func() { r.add("searching") },
		OnConnectingStopped: func() { r.add("found") },
		OnTelemetry: func(f frame.Frame) {
			r.mu.Lock()
			r.frames = append(r.frames, f)
			r.mu.Unlock()
		},
		OnTelemetryLine: func(line string) { r.add("line " + line) },
		OnError:         func(error) { r.add("error") },
		OnStatus:        func(s Status) { r.add("status " + string(s)) },
	}
}
