package server

import (
	"fmt"
	"net"
)

// BindError reports that the worker could not bind its port.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// listen binds addr. Shared listeners set SO_REUSEPORT so every worker of a
// pool can bind the same port and the kernel spreads connections among them.
func listen(addr string, shared bool) (net.Listener, error) {
	if !shared {
		return net.Listen("tcp", addr)
	}
	return listenShared(addr)
}
