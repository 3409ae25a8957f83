package ppenum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/elasticplan/pkg/device"
	"github.com/khryptorgraphics/elasticplan/pkg/tpgroup"
)

func normalGroup(nodeIdx device.NodeIndex, lastDevice device.ID) *tpgroup.Group {
	return &tpgroup.Group{NodeIdx: nodeIdx, Devices: []device.ID{lastDevice}, StragglerRatio: 1.0}
}

func stragglerGroup(nodeIdx device.NodeIndex, dev device.ID, sr float64) *tpgroup.Group {
	return &tpgroup.Group{NodeIdx: nodeIdx, Devices: []device.ID{dev}, StragglerRatio: sr}
}

func TestStageCountPlansUniform(t *testing.T) {
	plans := StageCountPlans(2, 4, 2)
	require.Len(t, plans, 1)
	assert.Equal(t, HeteroStagesPlan{2, 2}, plans[0])
}

func TestStageCountPlansConcentratedAndSpread(t *testing.T) {
	plans := StageCountPlans(2, 5, 2)
	require.Len(t, plans, 2)
	assert.Equal(t, HeteroStagesPlan{3, 2}, plans[0]) // concentrated
	assert.Equal(t, HeteroStagesPlan{3, 2}, plans[1]) // spread: r=1 so only pipeline 0 gets +1
}

func TestStageCountPlansSpreadDistributesRemainder(t *testing.T) {
	plans := StageCountPlans(3, 11, 3)
	require.Len(t, plans, 2)
	// base=3, r=2
	assert.Equal(t, HeteroStagesPlan{5, 3, 3}, plans[0])
	assert.Equal(t, HeteroStagesPlan{4, 4, 3}, plans[1])
}

func TestEnumerateNoStragglersFillsAllHoles(t *testing.T) {
	groups := []*tpgroup.Group{
		normalGroup(0, 0), normalGroup(0, 1), normalGroup(1, 8), normalGroup(1, 9),
	}
	plans := StageCountPlans(2, 4, 2)
	templates, err := Enumerate(groups, 2, plans)
	require.NoError(t, err)
	require.NotEmpty(t, templates)
	for _, tmpl := range templates {
		for _, pipeline := range tmpl.Pipelines {
			for _, slot := range pipeline {
				assert.Nil(t, slot)
			}
		}
	}
}

func TestEnumerateSingleStragglerFrontOfOnePipeline(t *testing.T) {
	groups := []*tpgroup.Group{
		stragglerGroup(0, 7, 2.0),
		normalGroup(0, 0), normalGroup(0, 1), normalGroup(0, 2),
		normalGroup(1, 8), normalGroup(1, 9), normalGroup(1, 10),
	}
	plans := StageCountPlans(2, 4, 2)
	templates, err := Enumerate(groups, 2, plans)
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	foundPlacement := false
	for _, tmpl := range templates {
		for _, pipeline := range tmpl.Pipelines {
			if len(pipeline) > 0 && pipeline[0] != nil && pipeline[0].Devices[0] == device.ID(7) {
				foundPlacement = true
			}
		}
	}
	assert.True(t, foundPlacement)
}

func TestEnumerateAllowsNonContiguousStragglerSubsequences(t *testing.T) {
	// Three stragglers s0 > s1 > s2 descending, dp=2, stage plan [2,1]:
	// pipeline 0 (2 stages) must take a non-decreasing-index subsequence of
	// length <= 2, pipeline 1 (1 stage) takes one of the rest. The reference
	// DFS enumerates {s0,s1}/{s2}, {s0,s2}/{s1}, and {s1,s2}/{s0} — not just
	// the contiguous prefix {s0,s1}/{s2}.
	s0 := stragglerGroup(0, 0, 3.0)
	s1 := stragglerGroup(0, 1, 2.0)
	s2 := stragglerGroup(1, 8, 1.5)
	plan := HeteroStagesPlan{2, 1}

	templates := enumeratePlan(plan, 2, []*tpgroup.Group{s0, s1, s2}, 0)
	require.NotEmpty(t, templates)

	seen := map[[2]device.ID]bool{}
	for _, tmpl := range templates {
		require.Len(t, tmpl.Pipelines, 2)
		p0 := tmpl.Pipelines[0]
		require.Len(t, p0, 2)
		require.NotNil(t, p0[0])
		require.NotNil(t, p0[1])
		seen[[2]device.ID{p0[0].Devices[0], p0[1].Devices[0]}] = true
	}

	assert.True(t, seen[[2]device.ID{0, 1}], "expected contiguous {s0,s1} in pipeline 0")
	assert.True(t, seen[[2]device.ID{0, 8}], "expected non-contiguous {s0,s2} in pipeline 0")
	assert.True(t, seen[[2]device.ID{1, 8}], "expected non-contiguous {s1,s2} in pipeline 0")
}

func TestEnumerateFailsWithoutEnoughGroups(t *testing.T) {
	groups := []*tpgroup.Group{normalGroup(0, 0)}
	plans := StageCountPlans(2, 1, 2)
	_, err := Enumerate(groups, 2, plans)
	assert.ErrorIs(t, err, ErrNoFeasibleTemplate)
}
