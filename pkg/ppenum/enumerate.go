// Package ppenum implements the PP enumerator: stage-count plan generation
// and the straggler-placement depth-first search described in spec §4.2.
package ppenum

import (
	"sort"

	perrors "github.com/khryptorgraphics/elasticplan/pkg/errors"
	"github.com/khryptorgraphics/elasticplan/pkg/tpgroup"
)

// HeteroStagesPlan is the per-pipeline stage count, one entry per DP
// pipeline.
type HeteroStagesPlan []int

// Template is one DFS leaf: a fully-shaped set of pipelines where straggler
// slots hold a *tpgroup.Group and normal slots are left nil, to be filled
// by package placer.
type Template struct {
	StageCounts HeteroStagesPlan
	Pipelines   [][]*tpgroup.Group
}

// ErrNoFeasibleTemplate is returned when the DFS produces zero completed
// templates for every stage-count plan — a fatal condition (spec §7):
// it signals a contradiction in the caller's constants, e.g. fewer TP
// groups than DP.
var ErrNoFeasibleTemplate = perrors.New("ppenum.Enumerate", perrors.KindExhausted,
	"no feasible pipeline template: check that total TP groups >= DP").Err()

// StageCountPlans implements spec §4.2's "Stage-count plans": the sole
// uniform plan of pp stages per pipeline when totalGroups equals dp*pp,
// otherwise the concentrated and spread variants for the remainder r.
func StageCountPlans(dp, totalGroups, pp int) []HeteroStagesPlan {
	if dp*pp == totalGroups {
		uniform := make(HeteroStagesPlan, dp)
		for i := range uniform {
			uniform[i] = pp
		}
		return []HeteroStagesPlan{uniform}
	}

	base := totalGroups / dp
	r := totalGroups - dp*base

	concentrated := make(HeteroStagesPlan, dp)
	for i := range concentrated {
		concentrated[i] = base
	}
	if dp > 0 {
		concentrated[0] += r
	}

	spread := make(HeteroStagesPlan, dp)
	for i := range spread {
		spread[i] = base
		if i < r {
			spread[i]++
		}
	}

	return []HeteroStagesPlan{concentrated, spread}
}

// classify splits groups into stragglers (sr > 1.0, sorted sr descending)
// and the count of normal (non-straggler) groups available to fill holes,
// per spec §4.2.
func classify(groups []*tpgroup.Group) (stragglers []*tpgroup.Group, normalCount int) {
	for _, g := range groups {
		if g.IsStraggler() {
			stragglers = append(stragglers, g)
		} else {
			normalCount++
		}
	}
	sort.SliceStable(stragglers, func(i, j int) bool {
		return stragglers[i].StragglerRatio > stragglers[j].StragglerRatio
	})
	return stragglers, normalCount
}

// Enumerate runs the template DFS of spec §4.2 over every stage-count plan,
// returning every completed template across all plans. Within one pipeline,
// a straggler's place in the descending-sr list is only required to be
// greater than the previously-placed straggler's (an increasing
// subsequence, not a contiguous prefix): a pipeline may skip over a
// straggler and leave it for a later pipeline to claim. Once a pipeline
// places its first normal-group hole, every later stage in that pipeline
// must also be a hole — stragglers are always front-loaded. Pipelines are
// pruned against each other so a later pipeline can never carry more
// stragglers than an earlier one, nor an equal count whose leading
// straggler ranks earlier (smaller original index) than the previous
// pipeline's — the tie-break is by list position rather than raw sr value,
// so two stragglers of exactly equal sr still collapse to one canonical
// ordering instead of being enumerated as mirrored duplicates.
func Enumerate(groups []*tpgroup.Group, dp int, plans []HeteroStagesPlan) ([]Template, error) {
	stragglers, normalCount := classify(groups)

	var all []Template
	for _, plan := range plans {
		templates := enumeratePlan(plan, dp, stragglers, normalCount)
		all = append(all, templates...)
	}
	if len(all) == 0 {
		return nil, ErrNoFeasibleTemplate
	}
	return all, nil
}

func enumeratePlan(plan HeteroStagesPlan, dp int, stragglers []*tpgroup.Group, normalCount int) []Template {
	for _, stages := range plan {
		if stages < 1 {
			return nil // every pipeline needs at least one stage
		}
	}

	var results []Template
	total := len(stragglers)
	visited := make([]bool, total)
	pipelines := make([][]*tpgroup.Group, dp)
	pipelineStragglerCounts := make([]int, dp)
	pipelineLeadIdx := make([]int, dp)
	visitedNormalCount := 0

	var dfsPipelines func(pIdx int)
	dfsPipelines = func(pIdx int) {
		if pIdx == dp {
			snapshot := make([][]*tpgroup.Group, dp)
			for i, buf := range pipelines {
				cp := make([]*tpgroup.Group, len(buf))
				copy(cp, buf)
				snapshot[i] = cp
			}
			results = append(results, Template{StageCounts: append(HeteroStagesPlan(nil), plan...), Pipelines: snapshot})
			return
		}

		stageCount := plan[pIdx]
		buf := make([]*tpgroup.Group, stageCount)
		pipelineStragglerCount := 0
		leadIdx := -1

		var dfsStage func(stageIdx, minIdx int)
		dfsStage = func(stageIdx, minIdx int) {
			if pIdx != 0 {
				if pipelineStragglerCount > pipelineStragglerCounts[pIdx-1] {
					return
				}
				if pipelineStragglerCount >= 1 && pipelineStragglerCount == pipelineStragglerCounts[pIdx-1] {
					if leadIdx < pipelineLeadIdx[pIdx-1] {
						return
					}
				}
			}

			if stageIdx == stageCount {
				pipelines[pIdx] = buf
				pipelineStragglerCounts[pIdx] = pipelineStragglerCount
				pipelineLeadIdx[pIdx] = leadIdx
				dfsPipelines(pIdx + 1)
				return
			}

			for idx := minIdx; idx < total; idx++ {
				if visited[idx] {
					continue
				}
				visited[idx] = true
				buf[stageIdx] = stragglers[idx]
				pipelineStragglerCount++
				if stageIdx == 0 {
					leadIdx = idx
				}
				dfsStage(stageIdx+1, idx+1)
				if stageIdx == 0 {
					leadIdx = -1
				}
				pipelineStragglerCount--
				buf[stageIdx] = nil
				visited[idx] = false
			}

			if visitedNormalCount < normalCount {
				visitedNormalCount++
				dfsStage(stageIdx+1, total)
				visitedNormalCount--
			}
		}

		dfsStage(0, 0)
	}

	dfsPipelines(0)
	return results
}
