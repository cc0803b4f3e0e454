package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/linkctl/log2"
)

const (
	DefaultProbeInterval = time.Second
	DefaultProbeTimeout  = 600 * time.Millisecond
)

// Supervised is the part of Client used by Monitor.
type Supervised interface {
	CheckConnectionAlive() bool
	IsEndpointReachable(timeout time.Duration) bool
	IsConnected() bool
	Disconnect()
}

var _ Supervised = &Client{}

type MonitorOptions struct {
	Log      *log2.Log
	Metrics  *Metrics
	Interval time.Duration
	Timeout  time.Duration
	// OnChange is called from monitor goroutine after connected or reachable changed.
	OnChange func(connected, reachable bool)
}

// Monitor periodically compares socket liveness with endpoint reachability
// and force closes zombie sessions.
type Monitor struct {
	alive     *alive.Alive
	log       *log2.Log
	opt       MonitorOptions
	target    Supervised
	mu        sync.Mutex // serializes Check
	checked   bool
	connected atomic.Bool
	reachable atomic.Bool
}

func NewMonitor(target Supervised, opt MonitorOptions) *Monitor {
	if opt.Interval <= 0 {
		opt.Interval = DefaultProbeInterval
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultProbeTimeout
	}
	return &Monitor{
		alive:  alive.NewAlive(),
		log:    opt.Log,
		opt:    opt,
		target: target,
	}
}

func (m *Monitor) Connected() bool { return m.connected.Load() }
func (m *Monitor) Reachable() bool { return m.reachable.Load() }

// Check runs one liveness round synchronously. phase is only for logs.
func (m *Monitor) Check(phase string) (connected, reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connected = m.target.CheckConnectionAlive()
	// probe regardless of socket state to detect half-open socket
	reachable = m.target.IsEndpointReachable(m.opt.Timeout)
	if connected && !reachable {
		m.log.Errorf("monitor: zombie socket (alive, probe failed) force disconnect phase=%s", phase)
		m.opt.Metrics.zombie()
		connected = false
		m.target.Disconnect()
	}

	wasConnected, wasReachable := m.connected.Load(), m.reachable.Load()
	changed := !m.checked || wasConnected != connected || wasReachable != reachable
	if wasConnected != connected {
		m.log.Infof("monitor: connected %t -> %t phase=%s", wasConnected, connected, phase)
		// client may already be in new attempt, keep it
		if wasConnected && !connected && m.target.IsConnected() {
			m.log.Errorf("monitor: connection lost, force disconnect phase=%s", phase)
			m.target.Disconnect()
		}
	}
	if wasReachable != reachable {
		m.log.Infof("monitor: reachable %t -> %t phase=%s", wasReachable, reachable, phase)
	}
	m.checked = true
	m.connected.Store(connected)
	m.reachable.Store(reachable)
	m.opt.Metrics.setReachable(reachable)
	if changed && m.opt.OnChange != nil {
		m.opt.OnChange(connected, reachable)
	}
	return connected, reachable
}

// Run checks immediately then every Interval until Stop.
func (m *Monitor) Run() {
	if !m.alive.Add(1) {
		return
	}
	defer m.alive.Done()
	m.Check("init")
	tmr := time.NewTicker(m.opt.Interval)
	defer tmr.Stop()
	stopch := m.alive.StopChan()
	for {
		select {
		case <-tmr.C:
			m.Check("tick")
		case <-stopch:
			return
		}
	}
}

func (m *Monitor) Start() { go m.Run() }

// Stop waits for Run to return.
func (m *Monitor) Stop() {
	m.alive.Stop()
	m.alive.Wait()
}
