//go:build !linux

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cputopo

func discover() (Topology, error) {
	return Topology{}, nil
}
