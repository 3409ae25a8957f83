package dsconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate3DConfigBuildsOneBlockPerLayer(t *testing.T) {
	cfg := Generate3DConfig(GenerateInput{
		NumLayers:       4,
		Devices:         []int{0, 1, 2, 3},
		DP:              1,
		CP:              1,
		TP:              2,
		PP:              2,
		Zero:            true,
		StageDeviceIDs:  [][]int{{0, 1}, {2, 3}},
		StageLayerRange: [][]int{{0, 1}, {2, 3}},
		RecomputeLayers: map[int]bool{2: true},
	})

	assert.False(t, cfg.Zero, "dp=1 forces zero off")
	gpt, ok := cfg.Root.Branch["gpt"]
	require.True(t, ok)
	blocks, ok := gpt.Branch["blocks"]
	require.True(t, ok)
	require.Len(t, blocks.Branch, 4)

	block2, ok := blocks.Branch["blocks2"]
	require.True(t, ok)
	ln1, ok := block2.Branch["layernorm1"]
	require.True(t, ok)
	require.NotNil(t, ln1.Leaf)
	assert.True(t, ln1.Leaf.Recompute[0])
}

func TestSpreadZeroIsPassThrough(t *testing.T) {
	cfg := Config{Zero: true, Devices: []int{0, 1}}
	assert.Equal(t, cfg, SpreadZero(cfg))
}
