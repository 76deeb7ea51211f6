// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cputopo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const sysCPURoot = "/sys/devices/system/cpu"

func discover() (Topology, error) {
	return discoverFrom(sysCPURoot)
}

// discoverFrom reads the sysfs topology rooted at dir. Split out so tests can
// point it at a fixture tree.
func discoverFrom(dir string) (Topology, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Topology{}, fmt.Errorf("cputopo: read %s: %w", dir, err)
	}

	type coreKey struct {
		pkg  int
		core int
	}
	coreCPUs := make(map[coreKey][]int)

	for _, e := range entries {
		cpu, ok := parseCPUDirName(e.Name())
		if !ok {
			continue
		}
		topoDir := filepath.Join(dir, e.Name(), "topology")
		pkg, err := readSysfsInt(filepath.Join(topoDir, "physical_package_id"))
		if err != nil {
			// Offline CPUs have no topology directory; skip them.
			continue
		}
		core, err := readSysfsInt(filepath.Join(topoDir, "core_id"))
		if err != nil {
			continue
		}
		key := coreKey{pkg: pkg, core: core}
		coreCPUs[key] = append(coreCPUs[key], cpu)
	}

	perSocket := make(map[int]map[int][]int)
	for key, cpus := range coreCPUs {
		sort.Ints(cpus)
		if perSocket[key.pkg] == nil {
			perSocket[key.pkg] = make(map[int][]int)
		}
		perSocket[key.pkg][key.core] = cpus
	}

	var topo Topology
	for _, pkg := range sortedKeys(perSocket) {
		s := Socket{ID: pkg}
		for _, core := range sortedKeys(perSocket[pkg]) {
			s.Cores = append(s.Cores, Core{ID: core, CPUs: perSocket[pkg][core]})
		}
		topo.Sockets = append(topo.Sockets, s)
	}
	return topo, nil
}

func parseCPUDirName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "cpu")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func readSysfsInt(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("cputopo: parse %s: %w", path, err)
	}
	return n, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
