// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

import "github.com/ManuGH/portmux/internal/cputopo"

// planCPUs computes the preferred logical CPU for each of n workers. An
// explicit CPU set wins and is cycled modulo its length when n exceeds it.
// Otherwise candidates come from spreadAcrossCores; a nil result means no
// placement information is available and workers stay unpinned.
func planCPUs(topo cputopo.Topology, explicit []int, n int) []int {
	if n <= 0 {
		return nil
	}
	candidates := explicit
	if len(candidates) == 0 {
		candidates = spreadAcrossCores(topo, n)
	}
	if len(candidates) == 0 {
		return nil
	}
	plan := make([]int, n)
	for i := range plan {
		plan[i] = candidates[i%len(candidates)]
	}
	return plan
}

// spreadAcrossCores collects candidate CPUs in sibling-depth levels: level 0
// takes the first sibling of every core socket by socket, level 1 the second
// sibling, and so on. Workers therefore land on distinct physical cores
// before any hyperthread sibling of an already-used core is handed out. A
// level to which no core contributes means the topology is exhausted.
func spreadAcrossCores(topo cputopo.Topology, n int) []int {
	var out []int
	for depth := 0; ; depth++ {
		found := false
		for _, s := range topo.Sockets {
			for _, c := range s.Cores {
				if depth >= len(c.CPUs) {
					continue
				}
				out = append(out, c.CPUs[depth])
				found = true
				if len(out) >= n {
					return out
				}
			}
		}
		if !found {
			return out
		}
	}
}
