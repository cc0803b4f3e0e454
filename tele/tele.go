// Package tele mirrors link status and telemetry to MQTT
// and accepts control commands from it.
//
// Topics under Config.TopicPrefix:
// - status (retained): connected|disconnected, will=disconnected
// - searching (retained): 1|0
// - reachable (retained): connected=1 reachable=0
// - telemetry: cmd=0x03 loco=3 state=2
// - error: text
// - control (subscribed): "<loco> <state>"
package tele

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/linkctl/link"
	"github.com/temoto/linkctl/log2"
)

const (
	defaultNetworkTimeout = 30 * time.Second
	defaultQueueSize      = 256
	defaultTopicPrefix    = "linkctl"

	TopicStatus    = "status"
	TopicSearching = "searching"
	TopicReachable = "reachable"
	TopicTelemetry = "telemetry"
	TopicError     = "error"
	TopicControl   = "control"
)

type Transporter interface {
	Init(ctx context.Context, log *log2.Log, config Config, onControl func([]byte) bool, willPayload []byte) error
	Publish(topicSuffix string, retained bool, payload []byte) bool
	Close()
}

// Controller is the command half of link.Client.
type Controller interface {
	SendControl(device, state int) bool
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// Bridge contract:
// - Init() fails only with invalid config, network issues ignored
// - publish methods never block, messages are dropped on full queue
// - disabled or nil Bridge ignores everything
type Bridge struct {
	dropped   uint64 // atomic, first for alignment
	alive     *alive.Alive
	ctl       Controller
	enabled   bool
	log       *log2.Log
	q         chan message
	transport Transporter
}

func (self *Bridge) Init(ctx context.Context, log *log2.Log, config Config, ctl Controller) error {
	self.enabled = config.Enabled
	self.log = log.Clone(log2.LInfo)
	if config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.enabled {
		return nil
	}
	if ctl == nil {
		return errors.NotValidf("code error tele Init ctl=nil")
	}
	self.ctl = ctl
	self.alive = alive.NewAlive()
	size := config.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	self.q = make(chan message, size)

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	willPayload := []byte(link.StatusDisconnected)
	if err := self.transport.Init(ctx, self.log, config, self.onControlMessage, willPayload); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	self.alive.Add(1)
	go self.worker()
	return nil
}

// Close delivers queued messages and stops transport.
func (self *Bridge) Close() {
	if self == nil || !self.enabled {
		return
	}
	self.alive.Stop()
	self.alive.Wait()
	self.transport.Close()
}

func (self *Bridge) Status(s link.Status)   { self.publish(TopicStatus, true, string(s)) }
func (self *Bridge) TelemetryLine(s string) { self.publish(TopicTelemetry, false, s) }

func (self *Bridge) Searching(v bool) {
	self.publish(TopicSearching, true, boolString(v))
}

func (self *Bridge) Reachable(connected, reachable bool) {
	self.publish(TopicReachable, true, fmt.Sprintf("connected=%s reachable=%s", boolString(connected), boolString(reachable)))
}

func (self *Bridge) Error(err error) {
	if err != nil {
		self.publish(TopicError, false, err.Error())
	}
}

// Dropped is the number of messages lost to full queue.
func (self *Bridge) Dropped() uint64 {
	if self == nil {
		return 0
	}
	return atomic.LoadUint64(&self.dropped)
}

func (self *Bridge) publish(topic string, retained bool, payload string) {
	if self == nil || !self.enabled || !self.alive.IsRunning() {
		return
	}
	select {
	case self.q <- message{topic: topic, retained: retained, payload: []byte(payload)}:
	default:
		n := atomic.AddUint64(&self.dropped, 1)
		self.log.Debugf("tele: queue full, dropped topic=%s total=%d", topic, n)
	}
}

func (self *Bridge) worker() {
	defer self.alive.Done()
	stopch := self.alive.StopChan()
	for {
		select {
		case m := <-self.q:
			self.send(m)
		case <-stopch:
			for {
				select {
				case m := <-self.q:
					self.send(m)
				default:
					return
				}
			}
		}
	}
}

func (self *Bridge) send(m message) {
	if !self.transport.Publish(m.topic, m.retained, m.payload) {
		self.log.Debugf("tele: publish topic=%s failed", m.topic)
	}
}

func (self *Bridge) onControlMessage(payload []byte) bool {
	device, state, err := ParseControl(string(payload))
	if err != nil {
		self.log.Errorf("tele: control payload=%q err=%v", payload, err)
		return false
	}
	if !self.ctl.SendControl(device, state) {
		self.log.Infof("tele: control loco=%d state=%d err=%v", device, state, link.ErrNotConnected)
		self.Error(errors.Annotatef(link.ErrNotConnected, "control loco=%d state=%d", device, state))
		return true
	}
	self.log.Debugf("tele: control loco=%d state=%d", device, state)
	return true
}

// ParseControl parses "<loco> <state>" command.
func ParseControl(s string) (device, state int, err error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, errors.NotValidf("control format, expected \"loco state\"")
	}
	if device, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, errors.Annotate(err, "control loco")
	}
	if state, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, errors.Annotate(err, "control state")
	}
	return device, state, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
