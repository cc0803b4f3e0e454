package tele

import (
	"context"
	"testing"
	"time"

	"github.com/temoto/linkctl/log2"
)

type published struct {
	topic    string
	retained bool
	payload  string
}

type transportMock struct {
	t              testing.TB
	networkTimeout time.Duration
	outBuffer      int
	out            chan published
	closed         chan struct{}
	onControl      func([]byte) bool
	will           []byte
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, config Config, onControl func([]byte) bool, willPayload []byte) error {
	self.onControl = func(payload []byte) bool {
		self.t.Logf("mock control=%q", payload)
		return onControl(payload)
	}
	self.will = willPayload
	if self.networkTimeout == 0 {
		self.networkTimeout = time.Second
	}
	self.out = make(chan published, self.outBuffer)
	self.closed = make(chan struct{})
	return nil
}

func (self *transportMock) Publish(topicSuffix string, retained bool, payload []byte) bool {
	select {
	case self.out <- published{topic: topicSuffix, retained: retained, payload: string(payload)}:
		return true
	case <-time.After(self.networkTimeout):
		self.t.Logf("mock network timeout topic=%s", topicSuffix)
		return false
	}
}

func (self *transportMock) Close() { close(self.closed) }

func (self *transportMock) next() published {
	self.t.Helper()
	select {
	case p := <-self.out:
		return p
	case <-time.After(5 * time.Second):
		self.t.Fatal("mock publish timeout")
		return published{}
	}
}
