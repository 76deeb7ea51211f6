// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cputopo enumerates the physical CPU topology of the host and pins
// OS threads to logical CPUs. The topology is reported as sockets containing
// cores containing sibling logical CPU ids, which is the shape the listener
// needs to spread worker threads across distinct physical cores before
// reusing hyperthread siblings.
package cputopo

// Core is one physical core and its sibling logical CPU ids, ascending.
type Core struct {
	ID   int
	CPUs []int
}

// Socket is one physical package and its cores, ordered by core id.
type Socket struct {
	ID    int
	Cores []Core
}

// Topology is the full socket/core/sibling hierarchy of the host.
type Topology struct {
	Sockets []Socket
}

// Empty reports whether no logical CPUs were discovered.
func (t Topology) Empty() bool {
	for _, s := range t.Sockets {
		for _, c := range s.Cores {
			if len(c.CPUs) > 0 {
				return false
			}
		}
	}
	return true
}

// NumCPUs returns the total number of logical CPUs in the topology.
func (t Topology) NumCPUs() int {
	n := 0
	for _, s := range t.Sockets {
		for _, c := range s.Cores {
			n += len(c.CPUs)
		}
	}
	return n
}

// Discover enumerates the host CPU topology. On unsupported platforms it
// returns an empty topology and no error; callers treat an empty topology
// as "no placement information available".
func Discover() (Topology, error) {
	return discover()
}
