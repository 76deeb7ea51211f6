// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sock

import "golang.org/x/sys/unix"

// TCP_DEFER_ACCEPT and SO_INCOMING_CPU are Linux-only; without them the
// listener still works, just without the respective optimization.

func setDeferAccept(fd int) error { return nil }

func setIncomingCPU(fd, cpu int) error { return nil }

func acceptFD(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}
