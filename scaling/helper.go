package scaling

import (
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/hw"
)

// Registers consulted by partitioned walkers on every tile
const (
	// WparidCCSOffset holds the partition ID the tile executes
	WparidCCSOffset uint32 = 0x221C
	// AddressOffsetCCSOffset is added to post-sync and store addresses that request a partition offset
	AddressOffsetCCSOffset uint32 = 0x23B4
)

// PostSyncOffset is the distance between the post-sync slots written by consecutive partitions
const PostSyncOffset uint32 = 16

// Helper resolves the implicit scaling toggles against the defaults a caller proposes
type Helper struct {
	flags      config.Flags
	apiSupport bool
}

func NewHelper(flags config.Flags) *Helper {
	return &Helper{flags: flags, apiSupport: true}
}

func (h *Helper) Flags() config.Flags {
	return h.flags
}

// IsImplicitScalingEnabled reports whether a dispatch to devices should be partitioned across tiles.
// precondition carries the caller's own requirements, such as local memory being available.
func (h *Helper) IsImplicitScalingEnabled(devices hw.DeviceBitfield, precondition bool) bool {
	partitionWalker := devices.Count() > 1 && precondition && h.apiSupport
	return config.Resolve(h.flags.EnableWalkerPartition, partitionWalker)
}

func (h *Helper) IsSemaphoreProgrammingRequired() bool {
	return config.Resolve(h.flags.ExperimentalSynchronizeWithSemaphores, false)
}

func (h *Helper) IsCrossTileAtomicRequired(defaultCrossTileRequirement bool) bool {
	return config.Resolve(h.flags.UseCrossAtomicSynchronization, defaultCrossTileRequirement)
}

func (h *Helper) IsSynchronizeBeforeExecutionRequired() bool {
	return config.Resolve(h.flags.SynchronizeWalkerInWparidMode, false)
}

func (h *Helper) IsAtomicsUsedForSelfCleanup() bool {
	return config.Resolve(h.flags.UseAtomicsForSelfCleanupSection, false)
}

// IsSelfCleanupRequired reports whether the partitioned sequence must return its control section
// to zero so the command buffer can be submitted again. Only sequences that touch the control
// section need it.
func (h *Helper) IsSelfCleanupRequired(args *PartitionArgs, apiSelfCleanup bool) bool {
	defaultSelfCleanup := apiSelfCleanup &&
		(args.CrossTileAtomicSynchronization || args.SynchronizeBeforeExecution || !args.StaticPartitioning)
	return config.Resolve(h.flags.ProgramWalkerPartitionSelfCleanup, defaultSelfCleanup)
}

func (h *Helper) IsWparidRegisterInitializationRequired() bool {
	return config.Resolve(h.flags.WparidRegisterProgramming, true)
}

func (h *Helper) IsPipeControlStallRequired(defaultEmitPipeControl bool) bool {
	return config.Resolve(h.flags.UsePipeControlAfterPartitionedWalker, defaultEmitPipeControl)
}
