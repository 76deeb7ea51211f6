// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/portmux/internal/cputopo"
)

// twoByTwoByTwo is 2 sockets x 2 cores x 2 hyperthreads: 8 logical CPUs,
// siblings numbered the interleaved way Linux does (0/4, 1/5, 2/6, 3/7).
func twoByTwoByTwo() cputopo.Topology {
	return cputopo.Topology{Sockets: []cputopo.Socket{
		{ID: 0, Cores: []cputopo.Core{
			{ID: 0, CPUs: []int{0, 4}},
			{ID: 1, CPUs: []int{1, 5}},
		}},
		{ID: 1, Cores: []cputopo.Core{
			{ID: 0, CPUs: []int{2, 6}},
			{ID: 1, CPUs: []int{3, 7}},
		}},
	}}
}

func TestPlanCPUs_DistinctCoresFirst(t *testing.T) {
	// 4 threads on 4 physical cores: every thread gets the first sibling of
	// a distinct core; no hyperthread sibling appears.
	plan := planCPUs(twoByTwoByTwo(), nil, 4)
	if diff := cmp.Diff([]int{0, 1, 2, 3}, plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanCPUs_HyperthreadsOnlyAfterAllCores(t *testing.T) {
	plan := planCPUs(twoByTwoByTwo(), nil, 8)
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6, 7}, plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanCPUs_MoreThreadsThanCPUs(t *testing.T) {
	// Topology exhausted: candidates cycle.
	plan := planCPUs(twoByTwoByTwo(), nil, 10)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 0, 1}, plan)
}

func TestPlanCPUs_ExplicitSetCycles(t *testing.T) {
	// An explicit CPU set wins over the topology and is reused modulo its
	// size when the thread count exceeds it.
	plan := planCPUs(twoByTwoByTwo(), []int{3, 5}, 5)
	assert.Equal(t, []int{3, 5, 3, 5, 3}, plan)
}

func TestPlanCPUs_EmptyTopology(t *testing.T) {
	assert.Nil(t, planCPUs(cputopo.Topology{}, nil, 4))
	assert.Nil(t, planCPUs(twoByTwoByTwo(), nil, 0))
}

func TestSpreadAcrossCores_TerminatesOnExhaustedTopology(t *testing.T) {
	// Asking for more candidates than logical CPUs exist must terminate
	// once a depth level contributes nothing, not loop forever.
	got := spreadAcrossCores(twoByTwoByTwo(), 100)
	assert.Len(t, got, 8)
}

func TestSpreadAcrossCores_UnevenSiblingCounts(t *testing.T) {
	topo := cputopo.Topology{Sockets: []cputopo.Socket{
		{ID: 0, Cores: []cputopo.Core{
			{ID: 0, CPUs: []int{0, 2, 8}},
			{ID: 1, CPUs: []int{1}},
		}},
	}}
	got := spreadAcrossCores(topo, 4)
	assert.Equal(t, []int{0, 1, 2, 8}, got)
}
