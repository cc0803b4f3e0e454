//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package link

import (
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

func sendUrgent(fd int, flags int) error {
	err := unix.Sendto(fd, []byte{0xff}, unix.MSG_OOB|unix.MSG_DONTWAIT|flags, nil)
	switch err {
	case nil, unix.EAGAIN:
		return nil
	default:
		return errors.Annotate(err, "urgent send")
	}
}
