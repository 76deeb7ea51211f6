//go:build !linux

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cputopo

import "errors"

// PinThread is unsupported outside Linux.
func PinThread(cpu int) error {
	return errors.New("cputopo: thread pinning is not supported on this platform")
}
