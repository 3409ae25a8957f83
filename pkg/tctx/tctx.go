// Package tctx holds the planner's consumed and produced record types:
// TrainerCtxs (static constants), TrainerStrategyArgs (baseline and
// produced parallelization args) — see spec §6 EXTERNAL INTERFACES.
package tctx

// TrainerCtxs are the planner's immutable tuning constants, supplied by
// the training control loop and otherwise unchanged across MakePlans calls.
type TrainerCtxs struct {
	// HeteroTPAlpha[k] penalizes a TP group shrunk by 2^k (alpha[0]=1.0).
	HeteroTPAlpha []float64 `yaml:"hetero_tp_alpha"`
	// HeteroTPWeight[k] weights the throughput-approximation score R.
	HeteroTPWeight []float64 `yaml:"hetero_tp_weight"`
	// StragglerThreshold: sr below this is treated as healthy (1.0).
	StragglerThreshold float64 `yaml:"straggler_threshold"`
	// StragglerSafeGap: tolerance for StrategyModel equivalence (spec §3).
	StragglerSafeGap float64 `yaml:"straggler_safe_gap"`
	// MemoryBound is the raw per-stage memory budget C before the safe gap.
	MemoryBound float64 `yaml:"memory_bound"`
	MemorySafeGap float64 `yaml:"memory_safe_gap"`
	// MemoryK[i] is indexed from the pipeline's tail (k[-(S-j)]).
	MemoryK         []float64 `yaml:"memory_k"`
	MemoryEmbedding float64   `yaml:"memory_embedding"`
	MemoryExtra     float64   `yaml:"memory_extra"`
	// NormalLayers is the per-stage layer count at baseline PP (L = PP*NormalLayers).
	NormalLayers int `yaml:"normal_layers"`
	// NormalMBN is the per-pipeline micro-batch count at baseline DP (B/b = DP*NormalMBN).
	NormalMBN int `yaml:"normal_mbn"`
	// TopK is the number of best-scoring plans MakePlans returns.
	TopK int `yaml:"top_k"`
}

// MemoryKTail returns the per-stage memory coefficient for stage j of a
// pipeline with `stages` total stages, indexed from the tail as spec §4.3
// describes (k[-(stages-j)]).
func (c TrainerCtxs) MemoryKTail(stages, j int) float64 {
	idx := len(c.MemoryK) - (stages - j)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.MemoryK) {
		idx = len(c.MemoryK) - 1
	}
	return c.MemoryK[idx]
}

// TrainerStrategyArgs is both the baseline (consumed) and the produced
// parallelization record; the produced fields are populated only in plans
// MakePlans emits.
type TrainerStrategyArgs struct {
	DP   int  `yaml:"dp" json:"dp"`
	TP   int  `yaml:"tp" json:"tp"`
	PP   int  `yaml:"pp" json:"pp"`
	Zero bool `yaml:"zero" json:"zero"`

	RankToDeviceMapping    map[int]int `yaml:"-" json:"rank_to_device_mapping,omitempty"`
	SuspendedRankList      []int       `yaml:"-" json:"suspended_rank_list,omitempty"`
	UnusedRankList         []int       `yaml:"-" json:"unused_rank_list,omitempty"`
	HeteroData             bool        `yaml:"-" json:"hetero_data,omitempty"`
	HeteroLayers           [][]int     `yaml:"-" json:"hetero_layers,omitempty"`
	HeteroStages           []int       `yaml:"-" json:"hetero_stages,omitempty"`
	HeteroMicroBatchNumList []int      `yaml:"-" json:"hetero_micro_batch_num_list,omitempty"`
}
