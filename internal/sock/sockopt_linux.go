// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sock

import (
	"os"

	"golang.org/x/sys/unix"
)

func setDeferAccept(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, 1); err != nil {
		return os.NewSyscallError("setsockopt(TCP_DEFER_ACCEPT)", err)
	}
	return nil
}

func setIncomingCPU(fd, cpu int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_INCOMING_CPU, cpu); err != nil {
		return os.NewSyscallError("setsockopt(SO_INCOMING_CPU)", err)
	}
	return nil
}

func acceptFD(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}
