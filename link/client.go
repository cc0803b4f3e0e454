package link

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/linkctl/frame"
	"github.com/temoto/linkctl/helpers"
	"github.com/temoto/linkctl/log2"
)

const (
	DefaultTick     = time.Second
	MinProbeTimeout = 100 * time.Millisecond
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "state=" + strconv.Itoa(int(s))
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

type Options struct {
	Log      *log2.Log
	Metrics  *Metrics
	Endpoint *Endpoint // shared with other owners, created when nil
	Probe    ProbeFunc

	ConnectTimeout time.Duration
	Tick           time.Duration
	ReadChunk      int
	BufferSize     int
	SendQueue      int
	LogFrames      bool

	// Callbacks run on single dispatcher goroutine in production order.
	// They may call any Client method except Close.
	OnConnectingStarted func()
	OnConnectingStopped func()
	OnTelemetry         func(frame.Frame)
	OnTelemetryLine     func(string)
	OnError             func(error)
	OnStatus            func(Status)
}

// Client owns at most one Session and reconnects it:
// - manual Connect/Disconnect
// - auto-connect loop, one attempt in flight at most
// - liveness and reachability probes for Monitor
type Client struct {
	alive    *alive.Alive
	log      *log2.Log
	notify   *notifier
	opt      Options
	sessions sync.WaitGroup
	target   *Endpoint

	sync.Mutex // protects fields below
	auto       bool
	autoStop   chan struct{}
	connecting bool
	current    *Session
	paused     bool
	searching  bool
	state      State
}

func NewClient(opt Options) *Client {
	if opt.ConnectTimeout <= 0 {
		opt.ConnectTimeout = DefaultConnectTimeout
	}
	if opt.Tick <= 0 {
		opt.Tick = DefaultTick
	}
	if opt.Endpoint == nil {
		opt.Endpoint = &Endpoint{}
	}
	return &Client{
		alive:  alive.NewAlive(),
		log:    opt.Log,
		notify: newNotifier(opt.Log),
		opt:    opt,
		target: opt.Endpoint,
		state:  StateIdle,
	}
}

// Close stops auto-connect, closes session, waits for all goroutines
// and delivers pending callbacks.
func (c *Client) Close() error {
	c.alive.Stop()
	c.Lock()
	c.auto = false
	c.stopAutoLocked()
	c.disconnectLocked()
	c.setSearchingLocked(false)
	c.Unlock()
	c.alive.Wait()
	c.sessions.Wait()
	c.notify.stop()
	return nil
}

// Connect starts attempt to host:port unless one is in flight or connected.
// Returns true if new attempt was started. Target endpoint is not changed.
func (c *Client) Connect(host string, port int) bool {
	c.Lock()
	defer c.Unlock()
	return c.connectLocked(Target{Host: host, Port: port})
}

// Disconnect closes current session or aborts attempt in flight.
// Safe from any goroutine including callbacks.
func (c *Client) Disconnect() { helpers.WithLock(c, c.disconnectLocked) }

// EnableAutoConnect stores target and (re)starts auto-connect loop,
// first tick runs immediately.
func (c *Client) EnableAutoConnect(host string, port int) {
	c.target.Store(host, port)
	c.Lock()
	defer c.Unlock()
	c.auto = true
	c.stopAutoLocked()
	if !c.alive.Add(1) {
		return
	}
	stop := make(chan struct{})
	c.autoStop = stop
	go c.autoLoop(stop)
}

func (c *Client) DisableAutoConnect() {
	c.Lock()
	defer c.Unlock()
	c.auto = false
	c.stopAutoLocked()
	c.setSearchingLocked(false)
}

// PauseAuto suspends auto-connect without losing target.
func (c *Client) PauseAuto(paused bool) {
	c.Lock()
	defer c.Unlock()
	c.paused = paused
	if paused {
		c.setSearchingLocked(false)
	}
}

// UpdateTarget never disconnects, only future attempts use new target.
func (c *Client) UpdateTarget(host string, port int) { c.target.Store(host, port) }

// Tick is one auto-connect decision, normally called by auto-connect loop.
func (c *Client) Tick() {
	c.Lock()
	defer c.Unlock()
	if !c.auto || c.paused {
		c.setSearchingLocked(false)
		return
	}
	t := c.target.Load()
	if !t.Valid() {
		return
	}
	if c.state == StateConnected {
		c.setSearchingLocked(false)
		return
	}
	if c.connecting || c.current != nil {
		return
	}
	c.setSearchingLocked(true)
	c.connectLocked(t)
}

// SendControl is fire and forget. Returns false when not connected or send queue is full.
func (c *Client) SendControl(device, state int) bool {
	return c.send(frame.EncodeControl(device, state))
}

// Send arbitrary payload to device.
func (c *Client) Send(device int, payload []byte) bool {
	return c.send(frame.Encode(device, payload))
}

func (c *Client) send(b []byte) bool {
	s := c.connected()
	if s == nil {
		c.log.Debugf("link: send not connected, dropped %s", helpers.SpacedHex(b))
		return false
	}
	c.log.Debugf("link: send %s", helpers.SpacedHex(b))
	return s.Send(b)
}

// CheckConnectionAlive probes current session socket, false when not connected.
func (c *Client) CheckConnectionAlive() bool {
	s := c.connected()
	if s == nil {
		return false
	}
	return s.CheckAlive()
}

// IsEndpointReachable dials with separate short lived connection
// the remote of connected session, otherwise stored target.
// Timeout is at least MinProbeTimeout.
func (c *Client) IsEndpointReachable(timeout time.Duration) bool {
	var addr string
	if s := c.connected(); s != nil {
		addr = s.Addr()
	} else {
		t := c.target.Load()
		if !t.Valid() {
			return false
		}
		addr = t.String()
	}
	if timeout < MinProbeTimeout {
		timeout = MinProbeTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		c.log.Debugf("link: reachable %s err=%s", addr, errorString(err))
		return false
	}
	_ = conn.Close()
	return true
}

func (c *Client) IsConnected() bool   { return c.connected() != nil }
func (c *Client) Endpoint() *Endpoint { return c.target }
func (c *Client) TargetHost() string  { return c.target.Load().Host }
func (c *Client) TargetPort() int     { return c.target.Load().Port }

func (c *Client) State() State {
	c.Lock()
	defer c.Unlock()
	return c.state
}

func (c *Client) Searching() bool {
	c.Lock()
	defer c.Unlock()
	return c.searching
}

// SinceLastRecv returns 0 when not connected.
func (c *Client) SinceLastRecv() time.Duration {
	if s := c.connected(); s != nil {
		return s.SinceLastRecv()
	}
	return 0
}

func (c *Client) connected() *Session {
	c.Lock()
	defer c.Unlock()
	if c.state != StateConnected || c.current == nil {
		return nil
	}
	return c.current
}

func (c *Client) autoLoop(stop <-chan struct{}) {
	defer c.alive.Done()
	c.log.Debugf("link: auto-connect tick=%s", c.opt.Tick)
	tmr := time.NewTicker(c.opt.Tick)
	defer tmr.Stop()
	stopch := c.alive.StopChan()
	for {
		c.Tick()
		select {
		case <-tmr.C:
		case <-stop:
			return
		case <-stopch:
			return
		}
	}
}

// must be called with lock
func (c *Client) stopAutoLocked() {
	if c.autoStop != nil {
		close(c.autoStop)
		c.autoStop = nil
	}
}

// must be called with lock
func (c *Client) connectLocked(t Target) bool {
	if !t.Valid() {
		c.log.Debugf("link: connect invalid target=%q", t.String())
		return false
	}
	if c.connecting || c.current != nil {
		return false
	}
	if !c.alive.Add(1) {
		return false
	}
	s := NewSession(SessionOptions{
		Log:          c.log,
		Metrics:      c.opt.Metrics,
		Probe:        c.opt.Probe,
		LogFrames:    c.opt.LogFrames,
		ReadChunk:    c.opt.ReadChunk,
		BufferSize:   c.opt.BufferSize,
		SendQueue:    c.opt.SendQueue,
		WriteTimeout: c.opt.ConnectTimeout,
		OnFrame:      c.onSessionFrame,
		OnClose:      c.onSessionClose,
	})
	c.sessions.Add(1)
	go func() {
		<-s.Done()
		c.sessions.Done()
	}()
	c.current = s
	c.connecting = true
	c.setStateLocked(StateConnecting)
	c.setSearchingLocked(true)
	go c.connect(s, t)
	return true
}

func (c *Client) connect(s *Session, t Target) {
	defer c.alive.Done()
	c.log.Debugf("link: connecting %s", t)
	begin := time.Now()
	err := s.Open(context.Background(), t.Host, t.Port, c.opt.ConnectTimeout)
	c.opt.Metrics.connect(err, time.Since(begin))

	c.Lock()
	defer c.Unlock()
	if c.current != s {
		// disconnected meanwhile
		_ = s.Close()
		return
	}
	c.connecting = false
	if err != nil {
		c.current = nil
		if err != ErrClosing {
			c.log.Errorf("link: connect %s err=%s", t, errorString(err))
			c.pushError(err)
		}
		c.setStateLocked(StateDisconnected)
		// auto mode keeps searching until next tick
		if !c.auto {
			c.setSearchingLocked(false)
		}
		return
	}
	c.log.Infof("link: connected %s", t)
	c.setStateLocked(StateConnected)
	c.setSearchingLocked(false)
}

// must be called with lock
func (c *Client) disconnectLocked() {
	s := c.current
	c.current = nil
	c.connecting = false
	if s != nil {
		_ = s.Close()
		c.log.Infof("link: disconnect %s", s.Addr())
	}
	if c.state == StateConnecting || c.state == StateConnected {
		c.setStateLocked(StateDisconnected)
	}
}

func (c *Client) onSessionFrame(s *Session, f frame.Frame) {
	c.Lock()
	defer c.Unlock()
	if c.current != s {
		return
	}
	if fn := c.opt.OnTelemetry; fn != nil {
		c.notify.push(func() { fn(f) })
	}
	if fn := c.opt.OnTelemetryLine; fn != nil {
		line := f.Line()
		c.notify.push(func() { fn(line) })
	}
}

func (c *Client) onSessionClose(s *Session, err error) {
	c.Lock()
	defer c.Unlock()
	if c.current != s {
		return
	}
	c.current = nil
	c.connecting = false
	if err != nil {
		c.log.Errorf("link: session %s err=%s", s.Addr(), errorString(err))
		c.pushError(err)
	} else {
		c.log.Infof("link: session %s closed", s.Addr())
	}
	c.setStateLocked(StateDisconnected)
}

// must be called with lock
func (c *Client) setStateLocked(new State) {
	old := c.state
	if old == new {
		return
	}
	c.state = new
	c.opt.Metrics.setConnected(new == StateConnected)
	switch {
	case new == StateConnected:
		c.pushStatus(StatusConnected)
	case new == StateDisconnected && (old == StateConnecting || old == StateConnected):
		c.pushStatus(StatusDisconnected)
	}
}

// must be called with lock
func (c *Client) setSearchingLocked(v bool) {
	if c.searching == v {
		return
	}
	c.searching = v
	c.opt.Metrics.setSearching(v)
	if v {
		c.notify.push(c.opt.OnConnectingStarted)
	} else {
		c.notify.push(c.opt.OnConnectingStopped)
	}
}

func (c *Client) pushStatus(s Status) {
	if fn := c.opt.OnStatus; fn != nil {
		c.notify.push(func() { fn(s) })
	}
}

func (c *Client) pushError(err error) {
	if fn := c.opt.OnError; fn != nil {
		c.notify.push(func() { fn(err) })
	}
}
