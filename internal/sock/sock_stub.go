//go:build !linux && !darwin

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sock

import (
	"errors"
	"net"
)

var errUnsupported = errors.New("sock: not supported on this platform")

// Socket is a stub for platforms without raw stream-socket support.
type Socket struct{}

func ListenTCP(addr string, opts Options) (*Socket, error) {
	return nil, errUnsupported
}

func ListenPath(path string, opts Options) (*Socket, error) {
	return nil, errUnsupported
}

func FromFD(fd int) (*Socket, error) {
	return nil, errUnsupported
}

func (s *Socket) Accept() (net.Conn, error) {
	return nil, errUnsupported
}

func (s *Socket) Close() error {
	return nil
}

func (s *Socket) Addr() string {
	return ""
}

func (s *Socket) BoundAddr() (string, error) {
	return "", errUnsupported
}

func (s *Socket) FD() int {
	return -1
}
