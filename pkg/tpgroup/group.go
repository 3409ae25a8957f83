// Package tpgroup implements the device classifier and TP grouper: stage 1
// and stage 2 of the planner pipeline (spec §4.1). It forms homogeneous and
// heterogeneous tensor-parallel groups per node from live straggler ratios.
package tpgroup

import (
	"math"
	"sort"

	"github.com/khryptorgraphics/elasticplan/pkg/device"
	perrors "github.com/khryptorgraphics/elasticplan/pkg/errors"
	"github.com/khryptorgraphics/elasticplan/pkg/tctx"
)

// Group is an immutable TP group: a sorted set of devices on one node,
// together with its effective straggler ratio and hetero ratio. See
// spec §3 "TPGroup".
type Group struct {
	NodeIdx        device.NodeIndex
	TPNominal      int
	Devices        []device.ID
	HeteroRatio    int // TP / len(Devices), a power of two
	StragglerRatio float64
	Unused         bool
}

// IsStraggler reports whether this group's effective sr exceeds 1.0 — the
// partition the PP enumerator uses to separate stragglers from normals.
func (g *Group) IsStraggler() bool {
	return g.StragglerRatio > 1.0
}

// NewGroup builds a TP group from a node, the TP nominal size, a device
// list, and their straggler ratios, applying the alpha-penalty and
// straggler-threshold-rounding rule from spec §3.
func NewGroup(ctxs tctx.TrainerCtxs, nodeIdx device.NodeIndex, tp int, devices []device.ID, sr []float64) *Group {
	sorted := append([]device.ID(nil), devices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	heteroRatio := tp / len(devices)
	alphaIdx := int(math.Log2(float64(heteroRatio)))
	alpha := ctxs.HeteroTPAlpha[alphaIdx]

	maxSR := sr[0]
	for _, s := range sr[1:] {
		if s > maxSR {
			maxSR = s
		}
	}
	effective := maxSR * alpha
	if effective < ctxs.StragglerThreshold {
		effective = 1.0
	}

	return &Group{
		NodeIdx:        nodeIdx,
		TPNominal:      tp,
		Devices:        sorted,
		HeteroRatio:    heteroRatio,
		StragglerRatio: effective,
	}
}

// Promote implements the "Promotion" rule of spec §4.1: suspended devices
// whose current sr has dropped below the straggler threshold rejoin the
// candidate pool; the rest remain suspended.
func Promote(usedSR, suspendedSR map[device.ID]float64, ctxs tctx.TrainerCtxs) (available map[device.ID]float64, stillSuspended []device.ID) {
	available = make(map[device.ID]float64, len(usedSR)+len(suspendedSR))
	for id, sr := range usedSR {
		available[id] = sr
	}
	for id, sr := range suspendedSR {
		if sr < ctxs.StragglerThreshold {
			available[id] = sr
		} else {
			stillSuspended = append(stillSuspended, id)
		}
	}
	return available, stillSuspended
}

// nodeDevice pairs a device id with its straggler ratio, for sorting.
type nodeDevice struct {
	id device.ID
	sr float64
}

// orderForSplit implements the fixed two-key comparator spec §9's Open
// Question asks for: healthy devices first in ascending device-id order,
// stragglers last in ascending sr order (tie-broken by device id) — not
// the original `sr * DEVICES_PER_NODE` magnitude trick, which can place a
// mildly-straggling device ahead of a healthy one on a high-numbered node.
func orderForSplit(devices map[device.ID]float64, threshold float64) []nodeDevice {
	ordered := make([]nodeDevice, 0, len(devices))
	for id, sr := range devices {
		ordered = append(ordered, nodeDevice{id: id, sr: sr})
	}
	sort.Slice(ordered, func(i, j int) bool {
		iStraggler := ordered[i].sr >= threshold
		jStraggler := ordered[j].sr >= threshold
		if iStraggler != jStraggler {
			return !iStraggler // healthy (false) sorts first
		}
		if !iStraggler {
			return ordered[i].id < ordered[j].id
		}
		if ordered[i].sr != ordered[j].sr {
			return ordered[i].sr < ordered[j].sr
		}
		return ordered[i].id < ordered[j].id
	})
	return ordered
}

// GroupNode implements the per-node grouping of spec §4.1: fail-fast on
// partial-unused nodes, skip fully-unused nodes, otherwise carve the tail
// into a strictly-halving heterogeneous split maximizing the throughput
// score R, and emit homogeneous groups from the head.
//
// available is this node's slice of the promoted candidate pool; unused
// is the full device-unused set (used only to validate the all-or-nothing
// invariant for this node).
func GroupNode(ctxs tctx.TrainerCtxs, nodeIdx device.NodeIndex, tp int, available map[device.ID]float64, unused map[device.ID]bool) (groups []*Group, newSuspended []device.ID, skip bool, err error) {
	base := int(nodeIdx) * device.DevicesPerNode
	unusedCount := 0
	for i := 0; i < device.DevicesPerNode; i++ {
		if unused[device.ID(base+i)] {
			unusedCount++
		}
	}
	if unusedCount == device.DevicesPerNode {
		return nil, nil, true, nil
	}
	if unusedCount != 0 {
		return nil, nil, false, perrors.New("tpgroup.GroupNode", perrors.KindInvariant,
			"node has a partial set of unused devices; only all-or-nothing unused nodes are supported").
			WithNode(int(nodeIdx)).Err()
	}

	nodeAvailable := make(map[device.ID]float64)
	for i := 0; i < device.DevicesPerNode; i++ {
		id := device.ID(base + i)
		if sr, ok := available[id]; ok {
			nodeAvailable[id] = sr
		}
	}

	homoBudget := device.DevicesPerNode - tp
	if len(nodeAvailable) <= homoBudget {
		return nil, nil, false, perrors.New("tpgroup.GroupNode", perrors.KindInvariant,
			"too few available devices on node: at most TP-1 may be unused or suspended").
			WithNode(int(nodeIdx)).Err()
	}

	ordered := orderForSplit(nodeAvailable, ctxs.StragglerThreshold)
	n := len(ordered)

	tailLen := n - homoBudget
	heteroTPMax := 1
	for heteroTPMax <= tailLen {
		heteroTPMax *= 2
	}
	heteroTPMax /= 2

	startIdx := homoBudget - 1
	var bestR float64
	var bestSplit []int
	for beginHetero := heteroTPMax; beginHetero >= 1; beginHetero /= 2 {
		idx := startIdx
		hetero := beginHetero
		var r float64
		var split []int
		for hetero >= 1 {
			idx += hetero
			if idx > n-1 {
				break
			}
			split = append(split, hetero)
			relIdx := int(math.Log2(float64(tp / hetero)))
			alpha := ctxs.HeteroTPAlpha[relIdx]
			weight := ctxs.HeteroTPWeight[relIdx]
			sr := ordered[idx].sr
			r += 1.0 / (alpha * sr * weight)
			hetero /= 2
		}
		if r > bestR {
			bestR = r
			bestSplit = split
		}
	}

	finalUsed := device.DevicesPerNode - tp
	for _, s := range bestSplit {
		finalUsed += s
	}

	for tpIdx := 0; tpIdx < homoBudget/tp; tpIdx++ {
		var devs []device.ID
		var srs []float64
		for i := tpIdx * tp; i < (tpIdx+1)*tp; i++ {
			devs = append(devs, ordered[i].id)
			srs = append(srs, ordered[i].sr)
		}
		groups = append(groups, NewGroup(ctxs, nodeIdx, tp, devs, srs))
	}

	startHetero := homoBudget
	for _, hetero := range bestSplit {
		endHetero := startHetero + hetero
		var devs []device.ID
		var srs []float64
		for i := startHetero; i < endHetero; i++ {
			devs = append(devs, ordered[i].id)
			srs = append(srs, ordered[i].sr)
		}
		groups = append(groups, NewGroup(ctxs, nodeIdx, tp, devs, srs))
		startHetero = endHetero
	}

	for i := finalUsed; i < n; i++ {
		newSuspended = append(newSuspended, ordered[i].id)
	}

	return groups, newSuspended, false, nil
}

// GroupAll runs GroupNode over every node implied by allDevices, returning
// the combined TP groups and the devices newly suspended by the split
// search, on top of any suspended devices already above threshold.
func GroupAll(ctxs tctx.TrainerCtxs, tp int, snapshot device.Snapshot, allDevices int) (groups []*Group, newSuspended []device.ID, err error) {
	available, alreadySuspended := Promote(snapshot.UsedSR, snapshot.SuspendedSR, ctxs)
	newSuspended = append(newSuspended, alreadySuspended...)

	unusedSet := make(map[device.ID]bool, len(snapshot.Unused))
	for _, id := range snapshot.Unused {
		unusedSet[id] = true
	}

	nodeCount := device.NodeCount(allDevices)
	for n := 0; n < nodeCount; n++ {
		nodeGroups, nodeSuspended, skip, gErr := GroupNode(ctxs, device.NodeIndex(n), tp, available, unusedSet)
		if gErr != nil {
			return nil, nil, gErr
		}
		if skip {
			continue
		}
		groups = append(groups, nodeGroups...)
		newSuspended = append(newSuspended, nodeSuspended...)
	}
	return groups, newSuspended, nil
}
