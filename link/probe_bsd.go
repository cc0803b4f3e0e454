//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package link

func probeFD(fd uintptr) error { return sendUrgent(int(fd), 0) }
