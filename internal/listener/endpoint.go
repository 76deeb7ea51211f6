// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is the closed set of endpoint kinds a listener can bind: a TCP
// address, a filesystem path for a unix-domain socket, or an inherited file
// descriptor. The set is sealed so endpoint dispatch stays exhaustive; adding
// a kind is a deliberate, compile-visible change.
type Endpoint interface {
	fmt.Stringer
	sealedEndpoint()
}

// TCPEndpoint binds a TCP address ("host:port"). Each worker binds the
// address independently with SO_REUSEPORT.
type TCPEndpoint struct {
	Addr string
}

func (TCPEndpoint) sealedEndpoint() {}

func (e TCPEndpoint) String() string { return "tcp:" + e.Addr }

// UnixEndpoint binds a unix-domain socket at Path. One shared acceptor
// socket feeds all workers.
type UnixEndpoint struct {
	Path string
}

func (UnixEndpoint) sealedEndpoint() {}

func (e UnixEndpoint) String() string { return "unix:" + e.Path }

// FDEndpoint adopts an externally inherited descriptor that is already
// listening. One shared acceptor socket feeds all workers.
type FDEndpoint struct {
	FD int
}

func (FDEndpoint) sealedEndpoint() {}

func (e FDEndpoint) String() string { return "fd:" + strconv.Itoa(e.FD) }

// ParseEndpoint turns a textual endpoint ("host:port", "unix:/path", "fd:N")
// into its typed form.
func ParseEndpoint(s string) (Endpoint, error) {
	switch {
	case s == "":
		return nil, ErrNilEndpoint
	case strings.HasPrefix(s, "unix:"):
		path := strings.TrimPrefix(s, "unix:")
		if path == "" {
			return nil, fmt.Errorf("listener: empty unix socket path in %q", s)
		}
		return UnixEndpoint{Path: path}, nil
	case strings.HasPrefix(s, "fd:"):
		fd, err := strconv.Atoi(strings.TrimPrefix(s, "fd:"))
		if err != nil || fd < 0 {
			return nil, fmt.Errorf("listener: invalid file descriptor in %q", s)
		}
		return FDEndpoint{FD: fd}, nil
	default:
		return TCPEndpoint{Addr: s}, nil
	}
}
