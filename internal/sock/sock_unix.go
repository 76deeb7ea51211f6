//go:build linux || darwin

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sock

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long Accept blocks in poll(2) before re-checking
// whether the socket has been closed. Closing an fd does not wake a thread
// already blocked on it, so Accept must poll with a timeout.
const pollTimeoutMs = 200

// Socket is a listening stream socket identified by a raw file descriptor.
type Socket struct {
	fd     int
	addr   string // diagnostic address (tcp addr or unix path)
	path   string // non-empty for path sockets; unlinked on Close
	closed atomic.Bool
}

// ListenTCP creates a TCP listening socket bound to addr ("host:port").
func ListenTCP(addr string, opts Options) (*Socket, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sock: resolve %q: %w", addr, err)
	}

	family := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		family = unix.AF_INET6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := prepareListenFD(fd, opts); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	sa, err := tcpSockaddr(family, tcpAddr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("sock: bind %q: %w", addr, os.NewSyscallError("bind", err))
	}
	if err := unix.Listen(fd, backlog(opts)); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}
	return &Socket{fd: fd, addr: addr}, nil
}

// ListenPath creates a unix-domain listening socket bound to path. Any stale
// file at the path is removed first; its absence is not an error.
func ListenPath(path string, opts Options) (*Socket, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("sock: remove stale socket %q: %w", path, err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("sock: bind %q: %w", path, os.NewSyscallError("bind", err))
	}
	if err := unix.Listen(fd, backlog(opts)); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, os.NewSyscallError("listen", err)
	}
	return &Socket{fd: fd, addr: path, path: path}, nil
}

// FromFD adopts an externally supplied descriptor that is assumed to be a
// listening stream socket already. The socket takes ownership of the fd.
func FromFD(fd int) (*Socket, error) {
	if fd < 0 {
		return nil, fmt.Errorf("sock: invalid file descriptor %d", fd)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, os.NewSyscallError("setnonblock", err)
	}
	return &Socket{fd: fd, addr: fmt.Sprintf("fd:%d", fd)}, nil
}

// Accept blocks until a connection arrives or the socket is closed. A closed
// socket yields net.ErrClosed.
func (s *Socket) Accept() (net.Conn, error) {
	for {
		if s.closed.Load() {
			return nil, net.ErrClosed
		}

		fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			if s.closed.Load() || err == unix.EBADF {
				return nil, net.ErrClosed
			}
			return nil, os.NewSyscallError("poll", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLNVAL|unix.POLLERR|unix.POLLHUP) != 0 {
			return nil, net.ErrClosed
		}

		nfd, err := acceptFD(s.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			if s.closed.Load() || err == unix.EBADF {
				return nil, net.ErrClosed
			}
			return nil, os.NewSyscallError("accept", err)
		}
		return wrapConn(nfd)
	}
}

// Close releases the descriptor and, for path sockets, removes the socket
// file. Safe to call more than once.
func (s *Socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := unix.Close(s.fd)
	if s.path != "" {
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	if err != nil {
		return fmt.Errorf("sock: close %s: %w", s.addr, err)
	}
	return nil
}

// Addr returns the diagnostic address the socket was created with.
func (s *Socket) Addr() string { return s.addr }

// BoundAddr reports the concrete local address the kernel bound the socket
// to. Useful when the requested address carried port 0.
func (s *Socket) BoundAddr() (string, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return "", os.NewSyscallError("getsockname", err)
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port)), nil
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port)), nil
	case *unix.SockaddrUnix:
		return sa.Name, nil
	default:
		return s.addr, nil
	}
}

// FD returns the raw descriptor, for diagnostics only.
func (s *Socket) FD() int { return s.fd }

func prepareListenFD(fd int, opts Options) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return os.NewSyscallError("setnonblock", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return os.NewSyscallError("setsockopt(SO_REUSEADDR)", err)
	}
	if opts.ReusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return os.NewSyscallError("setsockopt(SO_REUSEPORT)", err)
		}
	}
	if opts.DeferAccept {
		if err := setDeferAccept(fd); err != nil {
			return err
		}
	}
	if opts.IncomingCPU >= 0 {
		if err := setIncomingCPU(fd, opts.IncomingCPU); err != nil {
			return err
		}
	}
	return nil
}

func tcpSockaddr(family int, addr *net.TCPAddr) (unix.Sockaddr, error) {
	if family == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], addr.IP.To16())
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	return sa, nil
}

func backlog(opts Options) int {
	if opts.Backlog > 0 {
		return opts.Backlog
	}
	return DefaultBacklog
}

// wrapConn adapts an accepted descriptor to a net.Conn. net.FileConn dups
// the descriptor, so the original is closed here.
func wrapConn(nfd int) (net.Conn, error) {
	f := os.NewFile(uintptr(nfd), "sock")
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("sock: adapt accepted fd: %w", err)
	}
	return c, nil
}
