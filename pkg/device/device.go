// Package device holds the primitive identifiers shared across every stage
// of the elastic parallelization planner: device ids, node indices, and the
// three-way device status partition described by the planner's data model.
package device

// DevicesPerNode is the fixed number of accelerator slots a node owns.
const DevicesPerNode = 8

// ID identifies a single accelerator in [0, DP*TP*PP).
type ID int

// NodeIndex identifies a contiguous block of DevicesPerNode device ids.
type NodeIndex int

// NodeOf returns the node owning a device id.
func NodeOf(id ID) NodeIndex {
	return NodeIndex(int(id) / DevicesPerNode)
}

// Status is one of the three disjoint device classifications.
type Status string

const (
	StatusUsed      Status = "used"
	StatusSuspended Status = "suspended"
	StatusUnused    Status = "unused"
)

// Snapshot is the device-status triple the planner consumes: straggler
// ratios for used and suspended devices, and the set of unused device ids.
type Snapshot struct {
	UsedSR      map[ID]float64
	SuspendedSR map[ID]float64
	Unused      []ID
}

// AllDevices returns the total device count implied by dp*tp*pp.
func AllDevices(dp, tp, pp int) int {
	return dp * tp * pp
}

// NodeCount returns the number of nodes implied by a device count.
func NodeCount(allDevices int) int {
	return allDevices / DevicesPerNode
}
