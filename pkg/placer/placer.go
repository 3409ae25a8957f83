// Package placer implements the placer and emitter: stage 4 of the
// planner pipeline (spec §4.4). It selects the top-k lowest-scoring
// templates, fills their normal-slot holes, and emits the final
// StrategyArgs plus rank-to-device mapping.
package placer

import (
	"container/heap"
	"sort"

	"github.com/khryptorgraphics/elasticplan/pkg/device"
	perrors "github.com/khryptorgraphics/elasticplan/pkg/errors"
	"github.com/khryptorgraphics/elasticplan/pkg/ilp"
	"github.com/khryptorgraphics/elasticplan/pkg/ppenum"
	"github.com/khryptorgraphics/elasticplan/pkg/tpgroup"
)

// ScoredTemplate bundles a DFS template with its Q1/Q2 solve results, the
// unit the top-k select and the placement fill operate on.
type ScoredTemplate struct {
	Template ppenum.Template
	Q1       []ilp.Q1Result
	Q2       ilp.Q2Result
	Score    float64
}

// templateHeap is a max-heap on Score so SelectTopK can evict the worst
// candidate in O(log k) as it scans.
type templateHeap []ScoredTemplate

func (h templateHeap) Len() int            { return len(h) }
func (h templateHeap) Less(i, j int) bool  { return h[i].Score > h[j].Score } // max-heap
func (h templateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *templateHeap) Push(x interface{}) { *h = append(*h, x.(ScoredTemplate)) }
func (h *templateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SelectTopK returns the k templates with the smallest Q2 score, using a
// bounded max-heap so the whole candidate set need not be sorted.
func SelectTopK(templates []ScoredTemplate, k int) []ScoredTemplate {
	if k <= 0 || len(templates) == 0 {
		return nil
	}
	h := &templateHeap{}
	heap.Init(h)
	for _, t := range templates {
		if h.Len() < k {
			heap.Push(h, t)
			continue
		}
		if t.Score < (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, t)
		}
	}
	out := make([]ScoredTemplate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ScoredTemplate)
	}
	return out
}

// ErrExhausted is fatal (spec §7): the fallback fill pass could not find
// a normal TP group for a remaining hole, which indicates a bookkeeping
// bug in the DFS, not a legitimate infeasibility.
var ErrExhausted = perrors.New("placer.Fill", perrors.KindExhausted,
	"can't find a normal tp group to place here").Err()

// stock is the per-node pool of unplaced normal TP groups, consumed
// front-to-back as Fill assigns them.
type stock struct {
	byNode map[device.NodeIndex][]*tpgroup.Group
	nodes  []device.NodeIndex
}

func newStock(normalGroups map[device.NodeIndex][]*tpgroup.Group) *stock {
	s := &stock{byNode: make(map[device.NodeIndex][]*tpgroup.Group, len(normalGroups))}
	for node, groups := range normalGroups {
		cp := append([]*tpgroup.Group(nil), groups...)
		sort.Slice(cp, func(i, j int) bool {
			return maxDevice(cp[i]) < maxDevice(cp[j])
		})
		s.byNode[node] = cp
		s.nodes = append(s.nodes, node)
	}
	sort.Slice(s.nodes, func(i, j int) bool { return s.nodes[i] < s.nodes[j] })
	return s
}

func maxDevice(g *tpgroup.Group) device.ID {
	max := device.ID(-1)
	for _, d := range g.Devices {
		if d > max {
			max = d
		}
	}
	return max
}

func (s *stock) popFrom(node device.NodeIndex) (*tpgroup.Group, bool) {
	groups := s.byNode[node]
	if len(groups) == 0 {
		return nil, false
	}
	g := groups[0]
	s.byNode[node] = groups[1:]
	return g, true
}

func (s *stock) popLowestNumberedNode() (*tpgroup.Group, bool) {
	for _, node := range s.nodes {
		if g, ok := s.popFrom(node); ok {
			return g, true
		}
	}
	return nil, false
}

// Fill implements the two-pass heuristic of spec §4.4, mutating
// template's nil (normal-slot) holes in place.
func Fill(template ppenum.Template, normalGroups map[device.NodeIndex][]*tpgroup.Group) error {
	s := newStock(normalGroups)

	maxStages := 0
	for _, pipeline := range template.Pipelines {
		if len(pipeline) > maxStages {
			maxStages = len(pipeline)
		}
	}

	// Pass 1: stage-aligned, keyed off pipeline 0's placement at each stage.
	if len(template.Pipelines) > 0 {
		pipeline0 := template.Pipelines[0]
		for stageID := 0; stageID < maxStages; stageID++ {
			if stageID >= len(pipeline0) || pipeline0[stageID] == nil {
				continue
			}
			suggestedNode := pipeline0[stageID].NodeIdx
			for p := 1; p < len(template.Pipelines); p++ {
				pipeline := template.Pipelines[p]
				if stageID >= len(pipeline) || pipeline[stageID] != nil {
					continue
				}
				if g, ok := s.popFrom(suggestedNode); ok {
					pipeline[stageID] = g
				}
			}
		}
	}

	// Pass 2: fallback fill from the lowest-numbered node with stock left,
	// iterating stage-major (all pipelines at stage 0, then stage 1, ...)
	// to match the reference's fill order.
	for stageID := 0; stageID < maxStages; stageID++ {
		for _, pipeline := range template.Pipelines {
			if stageID >= len(pipeline) || pipeline[stageID] != nil {
				continue
			}
			g, ok := s.popLowestNumberedNode()
			if !ok {
				return ErrExhausted
			}
			pipeline[stageID] = g
		}
	}

	for _, pipeline := range template.Pipelines {
		for _, g := range pipeline {
			if g == nil {
				return ErrExhausted
			}
		}
	}
	return nil
}
