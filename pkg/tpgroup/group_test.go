package tpgroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khryptorgraphics/elasticplan/pkg/device"
	"github.com/khryptorgraphics/elasticplan/pkg/tctx"
)

func baseCtxs() tctx.TrainerCtxs {
	return tctx.TrainerCtxs{
		HeteroTPAlpha:      []float64{1.0, 1.3, 1.6, 2.0},
		HeteroTPWeight:     []float64{1.0, 0.9, 0.8, 0.7},
		StragglerThreshold: 1.2,
		StragglerSafeGap:   0.05,
	}
}

func TestPromoteMovesHealthySuspendedBack(t *testing.T) {
	ctxs := baseCtxs()
	used := map[device.ID]float64{0: 1.0, 1: 1.0}
	suspended := map[device.ID]float64{2: 1.1, 3: 1.5}

	available, stillSuspended := Promote(used, suspended, ctxs)

	assert.Contains(t, available, device.ID(2))
	assert.NotContains(t, available, device.ID(3))
	assert.Equal(t, []device.ID{3}, stillSuspended)
}

func TestGroupNodeAllHealthyHomogeneous(t *testing.T) {
	ctxs := baseCtxs()
	available := map[device.ID]float64{}
	for i := 0; i < device.DevicesPerNode; i++ {
		available[device.ID(i)] = 1.0
	}

	groups, newSuspended, skip, err := GroupNode(ctxs, 0, 2, available, map[device.ID]bool{})
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Empty(t, newSuspended)
	require.Len(t, groups, 4)
	for _, g := range groups {
		assert.Equal(t, 1, g.HeteroRatio)
		assert.Len(t, g.Devices, 2)
		assert.Equal(t, 1.0, g.StragglerRatio)
	}
}

func TestGroupNodeSkipsFullyUnusedNode(t *testing.T) {
	ctxs := baseCtxs()
	unused := map[device.ID]bool{}
	for i := 0; i < device.DevicesPerNode; i++ {
		unused[device.ID(i)] = true
	}

	groups, newSuspended, skip, err := GroupNode(ctxs, 0, 4, map[device.ID]float64{}, unused)
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Nil(t, groups)
	assert.Nil(t, newSuspended)
}

func TestGroupNodeRejectsPartialUnused(t *testing.T) {
	ctxs := baseCtxs()
	available := map[device.ID]float64{0: 1.0, 1: 1.0, 2: 1.0, 3: 1.0, 4: 1.0, 5: 1.0, 6: 1.0}
	unused := map[device.ID]bool{7: true}

	_, _, _, err := GroupNode(ctxs, 0, 4, available, unused)
	require.Error(t, err)
}

func TestGroupNodeCarvesHeteroTailFromStragglers(t *testing.T) {
	ctxs := baseCtxs()
	available := map[device.ID]float64{}
	for i := 0; i < device.DevicesPerNode; i++ {
		available[device.ID(i)] = 1.0
	}
	// Make the last two devices stragglers so the tail search has real
	// asymmetry to resolve. The split [2,1] over tail devices 4..6 scores
	// R = 1/(1.3*1.0*0.9) + 1/(1.6*1.6*0.8) ~ 1.34, beating [4] (R = 0.5,
	// bounded by device 7's sr of 2.0), so device 7 is suspended.
	available[6] = 1.6
	available[7] = 2.0

	groups, newSuspended, skip, err := GroupNode(ctxs, 0, 4, available, map[device.ID]bool{})
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, []device.ID{7}, newSuspended)

	totalDevices := 0
	for _, g := range groups {
		totalDevices += len(g.Devices)
	}
	assert.Equal(t, device.DevicesPerNode-1, totalDevices)
}

func TestOrderForSplitPutsHealthyBeforeStragglersByID(t *testing.T) {
	devices := map[device.ID]float64{
		10: 1.5, // straggler, high id
		2:  1.0, // healthy
		3:  1.0, // healthy
		11: 1.3, // straggler, lower sr than 10
	}
	ordered := orderForSplit(devices, 1.2)
	require.Len(t, ordered, 4)
	assert.Equal(t, device.ID(2), ordered[0].id)
	assert.Equal(t, device.ID(3), ordered[1].id)
	assert.Equal(t, device.ID(11), ordered[2].id)
	assert.Equal(t, device.ID(10), ordered[3].id)
}
