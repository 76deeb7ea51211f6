// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cputopo

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// writeFixtureCPU lays out one cpuN directory in the sysfs layout that
// discoverFrom expects.
func writeFixtureCPU(t *testing.T, root string, cpu, pkg, core int) {
	t.Helper()
	dir := filepath.Join(root, "cpu"+strconv.Itoa(cpu), "topology")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "physical_package_id"), []byte(strconv.Itoa(pkg)+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "core_id"), []byte(strconv.Itoa(core)+"\n"), 0o644))
}

func TestDiscoverFrom_TwoSocketsTwoCoresHT(t *testing.T) {
	root := t.TempDir()
	// 2 sockets x 2 cores x 2 hyperthreads, siblings interleaved the way
	// Linux usually numbers them (0/4, 1/5, ...).
	writeFixtureCPU(t, root, 0, 0, 0)
	writeFixtureCPU(t, root, 4, 0, 0)
	writeFixtureCPU(t, root, 1, 0, 1)
	writeFixtureCPU(t, root, 5, 0, 1)
	writeFixtureCPU(t, root, 2, 1, 0)
	writeFixtureCPU(t, root, 6, 1, 0)
	writeFixtureCPU(t, root, 3, 1, 1)
	writeFixtureCPU(t, root, 7, 1, 1)

	topo, err := discoverFrom(root)
	require.NoError(t, err)

	want := Topology{Sockets: []Socket{
		{ID: 0, Cores: []Core{
			{ID: 0, CPUs: []int{0, 4}},
			{ID: 1, CPUs: []int{1, 5}},
		}},
		{ID: 1, Cores: []Core{
			{ID: 0, CPUs: []int{2, 6}},
			{ID: 1, CPUs: []int{3, 7}},
		}},
	}}
	if diff := cmp.Diff(want, topo); diff != "" {
		t.Fatalf("topology mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 8, topo.NumCPUs())
	require.False(t, topo.Empty())
}

func TestDiscoverFrom_SkipsNonCPUEntries(t *testing.T) {
	root := t.TempDir()
	writeFixtureCPU(t, root, 0, 0, 0)
	// Entries like cpufreq, online, and offline CPUs without a topology dir
	// must be ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpufreq"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "online"), []byte("0\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpu1"), 0o755)) // offline, no topology

	topo, err := discoverFrom(root)
	require.NoError(t, err)
	require.Equal(t, 1, topo.NumCPUs())
}

func TestDiscover_Host(t *testing.T) {
	topo, err := Discover()
	require.NoError(t, err)
	require.False(t, topo.Empty(), "host must report at least one logical CPU")
}
