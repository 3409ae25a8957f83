// Package planner is the top-level orchestrator: it wires the device
// classifier, TP grouper, PP enumerator, ILP balancer, and placer into
// the five-stage pipeline of spec §4, exposing the single entry point
// `StrategyModel.MakePlans`.
package planner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/khryptorgraphics/elasticplan/pkg/device"
	"github.com/khryptorgraphics/elasticplan/pkg/dsconfig"
	perrors "github.com/khryptorgraphics/elasticplan/pkg/errors"
	"github.com/khryptorgraphics/elasticplan/pkg/ilp"
	"github.com/khryptorgraphics/elasticplan/pkg/logging"
	"github.com/khryptorgraphics/elasticplan/pkg/placer"
	"github.com/khryptorgraphics/elasticplan/pkg/ppenum"
	"github.com/khryptorgraphics/elasticplan/pkg/tctx"
	"github.com/khryptorgraphics/elasticplan/pkg/tpgroup"
)

// ModelInput is the construction-time data a StrategyModel is built from:
// the previous StrategyArgs plus the current device classification
// (spec §3 "Lifecycle").
type ModelInput struct {
	Ctxs            tctx.TrainerCtxs
	Baseline        tctx.TrainerStrategyArgs
	Snapshot        device.Snapshot
	AllDevices      int
	NumLayers       int
	MicroBatches    int // B/b, total micro-batches per training step
	RecomputeLayers map[int]bool
	Solver          ilp.Solver     // defaults to a branch-and-bound solver if nil
	SolveTimeout    time.Duration  // per-Solve call budget; defaults to 2s
	OnlyAdjustBatch bool           // skip Q1, use the uniform layer-split fast path
}

// StrategyModel is immutable after construction; MakePlans is memoized
// via sync.Once, matching the "first call computes, subsequent calls
// return the cached result" idiom spec §4.5 calls for.
type StrategyModel struct {
	input ModelInput

	once    sync.Once
	plans   []tctx.TrainerStrategyArgs
	configs []dsconfig.Config
	err     error
}

// NewStrategyModel validates the device-status invariant (spec §3: used,
// suspended, and unused sets partition all devices, pairwise disjoint)
// and returns a ready-to-query StrategyModel.
func NewStrategyModel(in ModelInput) (*StrategyModel, error) {
	if err := validateSnapshot(in.Snapshot, in.AllDevices); err != nil {
		return nil, err
	}
	if in.Solver == nil {
		timeout := in.SolveTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		in.Solver = ilp.NewBranchAndBoundSolver(timeout)
	}
	return &StrategyModel{input: in}, nil
}

func validateSnapshot(s device.Snapshot, allDevices int) error {
	seen := make(map[device.ID]string, allDevices)
	for id := range s.UsedSR {
		seen[id] = "used"
	}
	for id := range s.SuspendedSR {
		if _, dup := seen[id]; dup {
			return perrors.New("planner.NewStrategyModel", perrors.KindInvariant,
				"device appears in more than one status set").WithDevice(int(id)).Err()
		}
		seen[id] = "suspended"
	}
	for _, id := range s.Unused {
		if _, dup := seen[id]; dup {
			return perrors.New("planner.NewStrategyModel", perrors.KindInvariant,
				"device appears in more than one status set").WithDevice(int(id)).Err()
		}
		seen[id] = "unused"
	}
	if len(seen) != allDevices {
		return perrors.New("planner.NewStrategyModel", perrors.KindInvariant,
			"used + suspended + unused must cover exactly all_devices").Err()
	}
	return nil
}

// MakePlans runs the five-stage pipeline on first call and caches the
// result; every subsequent call returns the same slices without
// recomputation.
func (m *StrategyModel) MakePlans(ctx context.Context) ([]tctx.TrainerStrategyArgs, []dsconfig.Config, error) {
	m.once.Do(func() {
		m.plans, m.configs, m.err = m.makePlans(ctx)
	})
	return m.plans, m.configs, m.err
}

func (m *StrategyModel) makePlans(ctx context.Context) ([]tctx.TrainerStrategyArgs, []dsconfig.Config, error) {
	in := m.input

	var groups []*tpgroup.Group
	var newSuspended []device.ID
	func() {
		defer logging.Phase("tp-arrangement")()
		groups, newSuspended, m.err = tpgroup.GroupAll(in.Ctxs, in.Baseline.TP, in.Snapshot, in.AllDevices)
	}()
	if m.err != nil {
		return nil, nil, m.err
	}

	normalStock := make(map[device.NodeIndex][]*tpgroup.Group)
	for _, g := range groups {
		if !g.IsStraggler() {
			normalStock[g.NodeIdx] = append(normalStock[g.NodeIdx], g)
		}
	}

	var templates []ppenum.Template
	func() {
		defer logging.Phase("pp-enumeration")()
		plans := ppenum.StageCountPlans(in.Baseline.DP, len(groups), in.Baseline.PP)
		templates, m.err = ppenum.Enumerate(groups, in.Baseline.DP, plans)
	}()
	if m.err != nil {
		return nil, nil, m.err
	}

	var scored []placer.ScoredTemplate
	for _, tmpl := range templates {
		st, ok, err := scoreTemplate(ctx, in, tmpl)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			scored = append(scored, st)
		}
	}

	top := placer.SelectTopK(scored, in.Ctxs.TopK)
	if len(top) == 0 {
		return nil, nil, perrors.New("planner.MakePlans", perrors.KindExhausted, "no possible strategies").Err()
	}

	var resultArgs []tctx.TrainerStrategyArgs
	var resultConfigs []dsconfig.Config
	for _, st := range top {
		if err := placer.Fill(st.Template, normalStock); err != nil {
			return nil, nil, err
		}
		args, cfg, err := placer.Emit(placer.EmitInput{
			Template:        st.Template,
			Q1:              st.Q1,
			Q2:              st.Q2,
			Ctxs:            in.Ctxs,
			Baseline:        in.Baseline,
			NewlySuspended:  newSuspended,
			NewlyUnused:     in.Snapshot.Unused,
			NumLayers:       in.NumLayers,
			RecomputeLayers: in.RecomputeLayers,
		})
		if err != nil {
			return nil, nil, err
		}
		resultArgs = append(resultArgs, args)
		resultConfigs = append(resultConfigs, cfg)
	}

	return resultArgs, resultConfigs, nil
}

// scoreTemplate solves Q1 per pipeline and Q2 across pipelines for one
// DFS template, treating holes as sr=1.0/hetero=1.0 slots (spec §4.3) so
// scoring never needs the hole-filling stage to have run yet. A non-
// optimal Q1/Q2 discards the template (ok=false) rather than failing the
// whole plan (spec §7).
func scoreTemplate(ctx context.Context, in ModelInput, tmpl ppenum.Template) (placer.ScoredTemplate, bool, error) {
	q1Results := make([]ilp.Q1Result, len(tmpl.Pipelines))
	pipelineT := make([]float64, len(tmpl.Pipelines))

	for i, pipeline := range tmpl.Pipelines {
		stages := len(pipeline)
		y := make([]float64, stages)
		h := make([]float64, stages)
		k := make([]float64, stages)
		unused := make([]bool, stages)
		for j, g := range pipeline {
			if g == nil {
				y[j], h[j] = 1.0, 1.0
			} else {
				y[j], h[j] = g.StragglerRatio, float64(g.HeteroRatio)
			}
			k[j] = in.Ctxs.MemoryKTail(stages, j)
		}

		q1Input := ilp.Q1Input{
			Stages:          stages,
			Layers:          in.NumLayers,
			Y:               y,
			H:               h,
			MemoryK:         k,
			MemoryEmbedding: in.Ctxs.MemoryEmbedding,
			MemoryExtra:     in.Ctxs.MemoryExtra,
			MemoryBoundC:    in.Ctxs.MemoryBound - in.Ctxs.MemorySafeGap,
			SlotUnused:      unused,
		}

		var q1 ilp.Q1Result
		if in.OnlyAdjustBatch {
			q1 = ilp.SolveLayerSplitUniform(q1Input)
		} else {
			var err error
			q1, err = ilp.SolveLayerSplit(ctx, in.Solver, q1Input)
			if err != nil {
				if perrors.IsInfeasible(err) {
					return placer.ScoredTemplate{}, false, nil
				}
				return placer.ScoredTemplate{}, false, err
			}
		}
		q1Results[i] = q1
		pipelineT[i] = q1.T
	}

	q2, err := ilp.SolveMicroBatchSplit(ctx, in.Solver, pipelineT, []int(tmpl.StageCounts), in.MicroBatches)
	if err != nil {
		if perrors.IsInfeasible(err) {
			return placer.ScoredTemplate{}, false, nil
		}
		return placer.ScoredTemplate{}, false, err
	}

	return placer.ScoredTemplate{Template: tmpl, Q1: q1Results, Q2: q2, Score: q2.U}, true, nil
}

// ApproxEqual implements the equivalence test of spec §3 "Lifecycle" as a
// pure function rather than an overloaded operator (Design Note, spec
// §9): two models are equivalent if their structural args match, every
// used-device sr differs by less than gap, and every suspended-device sr
// either both exceed the straggler threshold or differ by less than gap.
func ApproxEqual(a, b *StrategyModel, gap float64) bool {
	ai, bi := a.input, b.input
	if ai.Baseline.DP != bi.Baseline.DP || ai.Baseline.TP != bi.Baseline.TP ||
		ai.Baseline.PP != bi.Baseline.PP || ai.Baseline.Zero != bi.Baseline.Zero {
		return false
	}
	if !srMapsApproxEqual(ai.Snapshot.UsedSR, bi.Snapshot.UsedSR, gap, ai.Ctxs.StragglerThreshold, false) {
		return false
	}
	if !srMapsApproxEqual(ai.Snapshot.SuspendedSR, bi.Snapshot.SuspendedSR, gap, ai.Ctxs.StragglerThreshold, true) {
		return false
	}
	return sameUnusedSet(ai.Snapshot.Unused, bi.Snapshot.Unused)
}

func srMapsApproxEqual(a, b map[device.ID]float64, gap, threshold float64, suspendedRule bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id, aSR := range a {
		bSR, ok := b[id]
		if !ok {
			return false
		}
		if suspendedRule && aSR >= threshold && bSR >= threshold {
			continue // both past-threshold stragglers: exact sr is ignored
		}
		if diff := aSR - bSR; diff >= gap || diff <= -gap {
			return false
		}
	}
	return true
}

func sameUnusedSet(a, b []device.ID) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]device.ID(nil), a...)
	bs := append([]device.ID(nil), b...)
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
