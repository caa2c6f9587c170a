//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package server

import (
	"errors"
	"net"
)

func listenShared(addr string) (net.Listener, error) {
	return nil, errors.New("shared port binding is not supported on this platform")
}
