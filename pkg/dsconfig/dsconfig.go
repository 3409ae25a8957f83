// Package dsconfig builds the 3D-parallel configuration tree emitted
// alongside each plan (spec §4.4 "Emission", §9 DOMAIN STACK). It
// generalizes the reference generate_gpt_3d_config/config_spread_zero
// collaborators to heterogeneous, variable-width pipeline stages.
package dsconfig

import "encoding/json"

// Leaf is one tensor's placement spec: how it is split and duplicated
// across the device mesh, and which device group union realizes it.
type Leaf struct {
	Split            map[string][]int `json:"split"`
	Dup              []int            `json:"dup"`
	DeviceGroupUnion [][]int          `json:"device_group_union"`
	Kind             string           `json:"type"`
	Range            []int            `json:"range,omitempty"`
	Recompute        []bool           `json:"recompute,omitempty"`
}

// Node is a tagged variant: either a Leaf placement spec or a Branch of
// named child nodes. Exactly one of Leaf/Branch is non-nil. A tagged
// struct, rather than `interface{}`, keeps the tree statically typed
// while MarshalJSON still renders it in the reference tool's nested-dict
// shape.
type Node struct {
	Leaf   *Leaf
	Branch map[string]Node
}

// MarshalJSON renders a Leaf node as its flat placement object, or a
// Branch node as a plain nested object of its children, matching
// generate_gpt_3d_config's dict-of-dicts output.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Leaf != nil {
		return json.Marshal(n.Leaf)
	}
	return json.Marshal(n.Branch)
}

// Config is the top-level 3D parallel configuration for one plan.
type Config struct {
	Zero    bool
	Devices []int
	Root    Node
}

// MarshalJSON flattens Root's top-level branch keys (input, gpt,
// lm_head, label) as siblings of zero/devices, matching the reference
// tool's top-level dict shape rather than nesting them under "root".
func (c Config) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Root.Branch)+2)
	out["zero"] = c.Zero
	out["devices"] = c.Devices
	for k, v := range c.Root.Branch {
		out[k] = v
	}
	return json.Marshal(out)
}

// GenerateInput carries everything Generate3DConfig needs to build a
// heterogeneous configuration: per-stage device groups (which may differ
// in width across stages, unlike the reference tool's uniform case) and
// per-stage layer ranges (from the Q1 layer split).
type GenerateInput struct {
	NumLayers       int
	Devices         []int
	DP, CP, TP, PP  int
	Zero            bool
	StageDeviceIDs  [][]int // per stage index, the devices realizing it
	StageLayerRange [][]int // per stage index, the layer indices it owns
	RecomputeLayers map[int]bool
}

func leafNode(l Leaf) Node { return Node{Leaf: &l} }

func branchNode(children map[string]Node) Node { return Node{Branch: children} }

// Generate3DConfig builds the configuration tree following the reference
// generate_gpt_3d_config layout (top-level zero/devices/input/gpt/lm_head
// /label, blocks keyed "blocksN"), generalized so each stage's device
// group and layer range come from the planner's own placement rather
// than a uniform num_layers/pp and contiguous GPU range.
func Generate3DConfig(in GenerateInput) Config {
	stages := len(in.StageDeviceIDs)
	dupAll := in.DP * in.CP * in.TP
	firstGroup := in.StageDeviceIDs[0]
	lastGroup := in.StageDeviceIDs[stages-1]

	input := leafNode(Leaf{
		Split:            map[string][]int{"0": {in.DP * in.CP}},
		Dup:              []int{in.TP},
		DeviceGroupUnion: [][]int{firstGroup},
		Kind:             "placeholder",
	})
	wte := leafNode(Leaf{
		Split:            map[string][]int{"0": {in.TP}},
		Dup:              []int{in.DP * in.CP},
		DeviceGroupUnion: [][]int{firstGroup},
		Kind:             "variable",
	})
	wpe := leafNode(Leaf{
		Split:            map[string][]int{},
		Dup:              []int{dupAll},
		DeviceGroupUnion: [][]int{firstGroup},
		Kind:             "variable",
	})
	layernormFinal := leafNode(Leaf{
		Split:            map[string][]int{},
		Dup:              []int{dupAll},
		DeviceGroupUnion: [][]int{lastGroup},
		Kind:             "variable",
	})
	lmHead := leafNode(Leaf{
		Split:            map[string][]int{"1": {in.TP}},
		Dup:              []int{in.DP * in.CP},
		DeviceGroupUnion: [][]int{lastGroup},
		Kind:             "variable",
	})
	label := leafNode(Leaf{
		Split:            map[string][]int{"0": {in.DP * in.CP}},
		Dup:              []int{in.TP},
		DeviceGroupUnion: [][]int{lastGroup},
		Kind:             "placeholder",
	})

	blocks := map[string]Node{}
	for stageID := 0; stageID < stages; stageID++ {
		deviceGroup := in.StageDeviceIDs[stageID]
		for _, layerID := range in.StageLayerRange[stageID] {
			blocks[blockKey(layerID)] = branchNode(map[string]Node{
				"layernorm1": leafNode(Leaf{
					Split:            map[string][]int{},
					Dup:              []int{dupAll},
					DeviceGroupUnion: [][]int{deviceGroup},
					Kind:             "variable",
					Range:            []int{layerID},
					Recompute:        []bool{in.RecomputeLayers[layerID]},
				}),
				"attn": branchNode(map[string]Node{
					"qkv": leafNode(Leaf{
						Split:            map[string][]int{"1": {in.TP}},
						Dup:              []int{in.DP * in.CP},
						DeviceGroupUnion: [][]int{deviceGroup},
						Kind:             "variable",
					}),
					"dense": leafNode(Leaf{
						Split:            map[string][]int{"0": {in.TP}},
						Dup:              []int{in.DP * in.CP},
						DeviceGroupUnion: [][]int{deviceGroup},
						Kind:             "variable",
					}),
				}),
				"layernorm2": leafNode(Leaf{
					Split:            map[string][]int{},
					Dup:              []int{dupAll},
					DeviceGroupUnion: [][]int{deviceGroup},
					Kind:             "variable",
				}),
				"mlp": branchNode(map[string]Node{
					"dense_h_to_4h": leafNode(Leaf{
						Split:            map[string][]int{"1": {in.TP}},
						Dup:              []int{in.DP * in.CP},
						DeviceGroupUnion: [][]int{deviceGroup},
						Kind:             "variable",
					}),
					"dense_4h_to_h": leafNode(Leaf{
						Split:            map[string][]int{"0": {in.TP}},
						Dup:              []int{in.DP * in.CP},
						DeviceGroupUnion: [][]int{deviceGroup},
						Kind:             "variable",
					}),
				}),
			})
		}
	}

	gpt := branchNode(map[string]Node{
		"wte":             wte,
		"wpe":             wpe,
		"blocks":          branchNode(blocks),
		"layernorm_final": layernormFinal,
	})

	root := branchNode(map[string]Node{
		"input":   input,
		"gpt":     gpt,
		"lm_head": lmHead,
		"label":   label,
	})

	zero := in.Zero
	if in.DP == 1 {
		zero = false
	}

	return Config{Zero: zero, Devices: in.Devices, Root: root}
}

func blockKey(layerID int) string {
	return "blocks" + itoa(layerID)
}

// itoa avoids pulling in strconv for a single-purpose, always-non-negative
// integer-to-string conversion used only to build a map key.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// SpreadZero is the seam for the config_spread_zero collaborator named in
// spec §4.4 "Emission"; its source was not present in the original_source
// filtered set, so this keeps its signature as a pass-through. Spreading
// ZeRO-1 optimizer state across a heterogeneous device mesh is a config
// post-processing concern orthogonal to the planning decisions this
// repository makes, not something to guess at re-deriving.
func SpreadZero(cfg Config) Config {
	return cfg
}
