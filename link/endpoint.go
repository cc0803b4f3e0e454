package link

import (
	"net"
	"strconv"
	"strings"
	"sync/atomic"
)

type Target struct {
	Host string
	Port int
}

func (t Target) Valid() bool {
	return strings.TrimSpace(t.Host) != "" && t.Port >= 1 && t.Port <= 65535
}

func (t Target) String() string { return net.JoinHostPort(t.Host, strconv.Itoa(t.Port)) }

// Endpoint is shared target, read as consistent snapshot.
// Updates affect only future connection attempts.
type Endpoint struct{ v atomic.Value }

func NewEndpoint(host string, port int) *Endpoint {
	e := &Endpoint{}
	e.Store(host, port)
	return e
}

func (e *Endpoint) Load() Target {
	t, _ := e.v.Load().(Target)
	return t
}

func (e *Endpoint) Store(host string, port int) { e.v.Store(Target{Host: host, Port: port}) }
