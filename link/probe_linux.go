package link

import (
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// linux/include/net/tcp_states.h
const tcpEstablished = 1

func probeFD(fd uintptr) error {
	info, err := unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return errors.Annotate(err, "TCP_INFO")
	}
	if info.State != tcpEstablished {
		return errors.Errorf("tcp state=%d", info.State)
	}
	return sendUrgent(int(fd), unix.MSG_NOSIGNAL)
}
