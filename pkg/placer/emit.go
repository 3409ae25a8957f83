package placer

import (
	"github.com/khryptorgraphics/elasticplan/pkg/device"
	"github.com/khryptorgraphics/elasticplan/pkg/dsconfig"
	perrors "github.com/khryptorgraphics/elasticplan/pkg/errors"
	"github.com/khryptorgraphics/elasticplan/pkg/ilp"
	"github.com/khryptorgraphics/elasticplan/pkg/ppenum"
	"github.com/khryptorgraphics/elasticplan/pkg/tctx"
)

// EmitInput carries everything Emit needs beyond the filled template: the
// per-pipeline Q1 layer splits, the Q2 micro-batch split, the baseline
// args, the model's total layer count and recompute set, and the device
// pool left over after TP grouping (consumed, in order, to pad
// undersized hetero TP groups up to full rank width).
type EmitInput struct {
	Template        ppenum.Template
	Q1              []ilp.Q1Result
	Q2              ilp.Q2Result
	Ctxs            tctx.TrainerCtxs
	Baseline        tctx.TrainerStrategyArgs
	NewlySuspended  []device.ID
	NewlyUnused     []device.ID
	NumLayers       int
	RecomputeLayers map[int]bool
}

// ErrPaddingExhausted is fatal: more rank slots need padding than there
// are newly-suspended or newly-unused devices to fill them, which means
// the TP grouping and placement stages disagreed about device counts.
var ErrPaddingExhausted = perrors.New("placer.Emit", perrors.KindExhausted,
	"ran out of suspended/unused devices to pad a hetero TP group to full rank width").Err()

// paddingSource tags which pool a padding device was pulled from, so the
// rank it lands on can be recorded in SuspendedRankList/UnusedRankList.
type paddingSource int

const (
	paddingNone paddingSource = iota
	paddingSuspended
	paddingUnused
)

// Emit implements spec §4.4 "Emission": walks pipelines in DP order
// assigning contiguous rank blocks per stage, pads undersized hetero TP
// groups with newly suspended then newly unused devices, and generates
// the accompanying 3D parallel configuration.
func Emit(in EmitInput) (tctx.TrainerStrategyArgs, dsconfig.Config, error) {
	args := in.Baseline
	args.RankToDeviceMapping = make(map[int]int)
	args.HeteroStages = append([]int(nil), in.Template.StageCounts...)

	tp := in.Baseline.TP
	rank := 0
	suspendedPtr, unusedPtr := 0, 0
	heteroData := false
	var suspendedRanks, unusedRanks []int

	var representativeDeviceGroups [][]int
	var representativeLayerRange [][]int

	for pIdx, pipeline := range in.Template.Pipelines {
		var pipelineDeviceGroups [][]int
		for _, group := range pipeline {
			padded := make([]device.ID, 0, tp)
			padded = append(padded, group.Devices...)
			if len(group.Devices) < tp {
				heteroData = true
			}
			paddedFrom := make([]paddingSource, len(padded))
			for len(padded) < tp {
				if suspendedPtr < len(in.NewlySuspended) {
					padded = append(padded, in.NewlySuspended[suspendedPtr])
					paddedFrom = append(paddedFrom, paddingSuspended)
					suspendedPtr++
					continue
				}
				if unusedPtr < len(in.NewlyUnused) {
					padded = append(padded, in.NewlyUnused[unusedPtr])
					paddedFrom = append(paddedFrom, paddingUnused)
					unusedPtr++
					continue
				}
				return tctx.TrainerStrategyArgs{}, dsconfig.Config{}, ErrPaddingExhausted
			}
			for i, id := range padded {
				args.RankToDeviceMapping[rank] = int(id)
				switch paddedFrom[i] {
				case paddingSuspended:
					suspendedRanks = append(suspendedRanks, rank)
				case paddingUnused:
					unusedRanks = append(unusedRanks, rank)
				}
				rank++
			}
			ids := make([]int, len(padded))
			for i, id := range padded {
				ids[i] = int(id)
			}
			pipelineDeviceGroups = append(pipelineDeviceGroups, ids)
		}
		if pIdx == 0 {
			representativeDeviceGroups = pipelineDeviceGroups
			if len(in.Q1) > 0 {
				representativeLayerRange = layerRanges(in.Q1[0].L)
			}
		}
	}

	args.SuspendedRankList = suspendedRanks
	args.UnusedRankList = unusedRanks
	args.HeteroData = heteroData
	if len(in.Q1) > 0 {
		layers := make([][]int, len(in.Q1))
		for i, q1 := range in.Q1 {
			layers[i] = q1.L
		}
		args.HeteroLayers = layers
	}
	args.HeteroMicroBatchNumList = in.Q2.M

	devices := make([]int, 0, rank)
	for r := 0; r < rank; r++ {
		devices = append(devices, args.RankToDeviceMapping[r])
	}

	if representativeDeviceGroups == nil {
		representativeDeviceGroups = [][]int{devices}
	}
	if representativeLayerRange == nil {
		representativeLayerRange = [][]int{allLayers(in.NumLayers)}
	}

	cfg := dsconfig.Generate3DConfig(dsconfig.GenerateInput{
		NumLayers:       in.NumLayers,
		Devices:         devices,
		DP:              args.DP,
		CP:              1,
		TP:              tp,
		PP:              len(representativeDeviceGroups),
		Zero:            args.Zero,
		StageDeviceIDs:  representativeDeviceGroups,
		StageLayerRange: representativeLayerRange,
		RecomputeLayers: in.RecomputeLayers,
	})
	cfg = dsconfig.SpreadZero(cfg)

	return args, cfg, nil
}

// layerRanges turns a Q1 per-stage layer count vector into the cumulative
// layer-id ranges each stage owns, in model order.
func layerRanges(l []int) [][]int {
	ranges := make([][]int, len(l))
	next := 0
	for i, count := range l {
		ids := make([]int, count)
		for j := 0; j < count; j++ {
			ids[j] = next
			next++
		}
		ranges[i] = ids
	}
	return ranges
}

func allLayers(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
