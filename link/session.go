package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/linkctl/frame"
	"github.com/temoto/linkctl/helpers"
	"github.com/temoto/linkctl/helpers/atomic_clock"
	"github.com/temoto/linkctl/log2"
)

const (
	DefaultConnectTimeout = 2000 * time.Millisecond
	DefaultReadChunk      = 512
	DefaultSendQueue      = 64
)

var (
	ErrClosing      = fmt.Errorf("closing")
	ErrNotConnected = fmt.Errorf("not connected")
)

type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionConnected
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	}
	return "state=" + strconv.Itoa(int(s))
}

type SessionOptions struct {
	Log       *log2.Log
	Metrics   *Metrics
	Probe     ProbeFunc
	LogFrames bool

	ReadChunk    int
	BufferSize   int
	SendQueue    int
	WriteTimeout time.Duration

	// OnFrame is called from read loop in stream order.
	OnFrame func(*Session, frame.Frame)
	// OnClose is called exactly once for session that reached Connected.
	// err=nil means peer or local side closed normally.
	OnClose func(*Session, error)
}

// Session is single use TCP connection attempt and its read/write loops.
// Connecting -> Connected -> Closed
type Session struct {
	mu    sync.Mutex // protects conn
	alive *alive.Alive
	asm   *frame.Assembler
	conn  net.Conn
	err   helpers.AtomicError
	last  atomic_clock.Clock
	opt   SessionOptions
	sendq chan []byte
	state int32
	addr  string
}

func NewSession(opt SessionOptions) *Session {
	if opt.ReadChunk <= 0 {
		opt.ReadChunk = DefaultReadChunk
	}
	if opt.BufferSize <= 0 {
		opt.BufferSize = frame.DefaultBufferSize
	}
	if opt.SendQueue <= 0 {
		opt.SendQueue = DefaultSendQueue
	}
	if opt.Probe == nil {
		opt.Probe = SocketProbe
	}
	return &Session{
		alive: alive.NewAlive(),
		asm:   frame.NewAssembler(opt.BufferSize),
		opt:   opt,
		sendq: make(chan []byte, opt.SendQueue),
	}
}

// Open performs bounded connect. No retries, caller decides.
// Close() during Open aborts dial and Open returns ErrClosing.
func (s *Session) Open(ctx context.Context, host string, port int, timeout time.Duration) error {
	if s.State() != SessionConnecting {
		return ErrClosing
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	s.addr = net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	dialer := net.Dialer{Timeout: timeout, KeepAlive: -1}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		s.setState(SessionClosed)
		if !s.alive.IsRunning() {
			return ErrClosing
		}
		_ = s.die(err)
		return errors.Annotatef(err, "connect %s", s.addr)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetLinger(0)
	}

	s.mu.Lock()
	if !s.alive.Add(2) {
		s.mu.Unlock()
		_ = conn.Close()
		s.setState(SessionClosed)
		return ErrClosing
	}
	s.conn = conn
	s.last.SetNow()
	s.setState(SessionConnected)
	s.mu.Unlock()

	s.opt.Log.Debugf("connected local=%s remote=%s", addrString(conn.LocalAddr()), s.addr)
	go s.reader(conn)
	go s.writer(conn)
	return nil
}

// Send enqueues encoded frame for write loop.
// Returns false unless Connected or when send queue is full.
func (s *Session) Send(b []byte) bool {
	if s.State() != SessionConnected {
		return false
	}
	select {
	case s.sendq <- b:
		return true
	default:
		s.opt.Log.Errorf("session %s send queue full, frame dropped", s.addr)
		s.opt.Metrics.sendDropped()
		return false
	}
}

// Close is idempotent and does not wait for loops, use Done() for that.
func (s *Session) Close() error {
	_ = s.die(ErrClosing)
	return nil
}

// CheckAlive returns false for closed session or failed zombie probe.
func (s *Session) CheckAlive() bool {
	if s.State() != SessionConnected {
		return false
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if err := s.opt.Probe(conn); err != nil {
		s.opt.Log.Debugf("session %s probe err=%v", s.addr, err)
		return false
	}
	return true
}

// Done is closed after Close and both loops finished.
func (s *Session) Done() <-chan struct{}        { return s.alive.WaitChan() }
func (s *Session) Addr() string                 { return s.addr }
func (s *Session) State() SessionState          { return SessionState(atomic.LoadInt32(&s.state)) }
func (s *Session) SinceLastRecv() time.Duration { return atomic_clock.Since(&s.last) }
func (s *Session) String() string {
	return fmt.Sprintf("(remote=%s state=%s)", s.addr, s.State())
}

func (s *Session) setState(new SessionState) { atomic.StoreInt32(&s.state, int32(new)) }

// die records first cause, stops loops and closes socket.
// Returns first cause.
func (s *Session) die(e error) error {
	if err, found := s.err.StoreOnce(e); found {
		return err
	}
	s.alive.Stop()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.opt.Log.Debugf("session %s die e=%s", s.addr, errorString(e))
	return e
}

func (s *Session) reader(conn net.Conn) {
	defer s.alive.Done()
	buf := make([]byte, s.opt.ReadChunk)
	r := helpers.NewStatReader(conn, s.opt.Metrics.recvAdder(), 0)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.last.SetNow()
			s.receive(buf[:n])
		}
		if err != nil {
			s.finish(err)
			return
		}
	}
}

func (s *Session) receive(chunk []byte) {
	if s.opt.LogFrames {
		s.opt.Log.Debugf("session %s rx (%d)%x", s.addr, len(chunk), chunk)
	}
	before := s.asm.Stat
	frames := s.asm.Feed(chunk)
	s.opt.Metrics.observeAssembler(s.asm.Stat.Sub(before))
	for _, f := range frames {
		if s.opt.LogFrames {
			s.opt.Log.Debugf("session %s frame %s", s.addr, f.String())
		}
		if s.opt.OnFrame != nil {
			s.opt.OnFrame(s, f)
		}
	}
}

func (s *Session) finish(err error) {
	if err != io.EOF {
		err = errors.Annotate(err, "receive")
	}
	cause := s.die(err)
	s.asm.Reset()
	s.setState(SessionClosed)
	s.opt.Metrics.disconnect()
	if cause == io.EOF || cause == ErrClosing {
		cause = nil
	}
	s.opt.Log.Debugf("session %s closed cause=%v", s.addr, cause)
	if s.opt.OnClose != nil {
		s.opt.OnClose(s, cause)
	}
}

func (s *Session) writer(conn net.Conn) {
	defer s.alive.Done()
	w := helpers.NewStatWriter(conn, s.opt.Metrics.sentAdder(), 0)
	stopch := s.alive.StopChan()
	for {
		select {
		case b := <-s.sendq:
			if s.opt.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(s.opt.WriteTimeout))
			}
			if err := helpers.WriteAll(w, b); err != nil {
				_ = s.die(errors.Annotate(err, "send"))
				return
			}
			s.opt.Metrics.frameSent()
			if s.opt.LogFrames {
				s.opt.Log.Debugf("session %s tx %s", s.addr, helpers.SpacedHex(b))
			}

		case <-stopch:
			return
		}
	}
}

// errorString reformats some well known errors for easier log reading.
func errorString(e error) string {
	if e == nil {
		return "<nil>"
	}
	estr := e.Error()
	if neterr, ok := errors.Cause(e).(net.Error); ok && neterr.Timeout() {
		estr = "timeout"
	} else if strings.HasSuffix(estr, "i/o timeout") {
		estr = "timeout"
	} else if strings.HasSuffix(estr, "connection reset by peer") {
		estr = "closed by remote"
	} else if e == io.EOF {
		estr = "EOF"
	}
	return estr
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
