package link

import (
	"net"
	"syscall"

	"github.com/juju/errors"
)

// ProbeFunc returns nil while conn looks alive.
type ProbeFunc func(net.Conn) error

// SocketProbe inspects kernel socket state where available and sends one
// urgent (out of band) byte without blocking. Full send buffer is inconclusive
// and counts as alive. Connections without raw socket access are assumed alive.
func SocketProbe(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return errors.Annotate(err, "probe")
	}
	var perr error
	if err = raw.Control(func(fd uintptr) { perr = probeFD(fd) }); err != nil {
		return errors.Annotate(err, "probe")
	}
	return perr
}
