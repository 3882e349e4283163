package scaling

import (
	"github.com/vkngwrapper/gfxcore/commands"
)

// PartitionArgs is the resolved shape of one partitioned dispatch. Sizing and emission both work from
// the same PartitionArgs so they cannot disagree.
type PartitionArgs struct {
	WorkPartitionAllocationGpuVa uint64
	TileCount                    uint32
	PartitionCount               uint32
	PartitionSize                uint32
	PartitionType                commands.PartitionType

	StaticPartitioning             bool
	SynchronizeBeforeExecution     bool
	CrossTileAtomicSynchronization bool
	SemaphoreProgrammingRequired   bool
	EmitSelfCleanup                bool
	UseAtomicsForSelfCleanup       bool
	InitializeWparidRegister       bool
	EmitPipeControlStall           bool
	SecondaryBatchBuffer           bool
	UsesImages                     bool
}

// Iterations is the number of partitions each tile claims in dynamic mode
func (a *PartitionArgs) Iterations() uint32 {
	if a.StaticPartitioning {
		return 1
	}
	return (a.PartitionCount + a.TileCount - 1) / a.TileCount
}

// The control section trails the partitioned commands and is jumped over by the command streamer.
// Every field is one dword and starts at zero.
const (
	controlWorkPartitionCounter = iota * commands.DwordSize
	controlTileCount
	controlInTileCount
	controlFinalSyncTileCount

	ControlSectionSize
)

// The barrier control section has the same size as the partition one, with two fields in use
const (
	barrierCrossTileSyncCount = iota * commands.DwordSize
	barrierFinalSyncTileCount

	BarrierControlSectionSize = 4 * commands.DwordSize
)

// DynamicPartitionsPerTile bounds how many partitions each tile may claim in dynamic mode
const DynamicPartitionsPerTile = 4

// PartitionTypeFor selects the largest dimension of the group grid, favoring X then Y on ties
func PartitionTypeFor(groupCount [3]uint32) commands.PartitionType {
	switch {
	case groupCount[0] >= groupCount[1] && groupCount[0] >= groupCount[2]:
		return commands.PartitionTypeX
	case groupCount[1] >= groupCount[2]:
		return commands.PartitionTypeY
	}
	return commands.PartitionTypeZ
}

func groupsAlong(partitionType commands.PartitionType, groupCount [3]uint32) uint32 {
	var groups uint32
	switch partitionType {
	case commands.PartitionTypeX:
		groups = groupCount[0]
	case commands.PartitionTypeY:
		groups = groupCount[1]
	case commands.PartitionTypeZ:
		groups = groupCount[2]
	}
	if groups == 0 {
		return 1
	}
	return groups
}

func divideUp(value, divisor uint32) uint32 {
	return (value + divisor - 1) / divisor
}

// computePartitions fills the partition type, count and size. Static partitioning gives each tile one
// contiguous slice; dynamic partitioning cuts the grid finer and lets tiles claim slices as they go.
func computePartitions(args *PartitionArgs, groupCount [3]uint32) {
	args.PartitionType = PartitionTypeFor(groupCount)
	groups := groupsAlong(args.PartitionType, groupCount)

	if args.StaticPartitioning {
		args.PartitionCount = args.TileCount
		args.PartitionSize = divideUp(groups, args.TileCount)
		return
	}

	count := min(groups, args.TileCount*DynamicPartitionsPerTile)
	args.PartitionSize = divideUp(groups, count)
	args.PartitionCount = divideUp(groups, args.PartitionSize)
}
