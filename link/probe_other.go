//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package link

func probeFD(fd uintptr) error { return nil }
