package config

// Flags holds the runtime toggles consulted by encoders, controllers, device queues and ioctl helpers.
// A Flags value is never mutated after construction: use With to derive a modified copy.
//
// Integer toggles use -1 to mean "use the hardware default".
type Flags struct {
	// EnableNullHardware skips everything that would require a GPU to act on written memory,
	// such as acquiring the execution model critical section
	EnableNullHardware bool `yaml:"enableNullHardware"`
	// SchedulerSimulationReturnInstance makes the device-side scheduler return early after the
	// given number of loops. Zero disables the simulation.
	SchedulerSimulationReturnInstance int32 `yaml:"schedulerSimulationReturnInstance"`
	// ForceDispatchScheduler dispatches the scheduler kernel even when no child was enqueued
	ForceDispatchScheduler bool `yaml:"forceDispatchScheduler"`

	EnableWalkerPartition                 int32 `yaml:"enableWalkerPartition"`
	EnableStaticPartitioning              int32 `yaml:"enableStaticPartitioning"`
	SynchronizeWalkerInWparidMode         int32 `yaml:"synchronizeWalkerInWparidMode"`
	UseCrossAtomicSynchronization         int32 `yaml:"useCrossAtomicSynchronization"`
	UseAtomicsForSelfCleanupSection       int32 `yaml:"useAtomicsForSelfCleanupSection"`
	ProgramWalkerPartitionSelfCleanup     int32 `yaml:"programWalkerPartitionSelfCleanup"`
	WparidRegisterProgramming             int32 `yaml:"wparidRegisterProgramming"`
	UsePipeControlAfterPartitionedWalker  int32 `yaml:"usePipeControlAfterPartitionedWalker"`
	ExperimentalSynchronizeWithSemaphores int32 `yaml:"experimentalSynchronizeWithSemaphores"`

	// OverridePreferredSlmAllocationSizePerDss replaces the preferred SLM size selected for a dispatch
	OverridePreferredSlmAllocationSizePerDss int32 `yaml:"overridePreferredSlmAllocationSizePerDss"`
	// ForceThreadGroupDispatchSize replaces the thread group dispatch size selected for a dispatch
	ForceThreadGroupDispatchSize int32 `yaml:"forceThreadGroupDispatchSize"`

	// DirectSubmissionDrmContext forces (1) or disables (0) the direct submission context flag
	DirectSubmissionDrmContext int32 `yaml:"directSubmissionDrmContext"`
	// ForceCacheRegionWays overrides the number of ways requested from closAllocWays. Zero keeps the request.
	ForceCacheRegionWays uint16 `yaml:"forceCacheRegionWays"`

	// ResidencyCompactionThreshold is the percentage of the trim candidate list that must be holes
	// before a compaction is requested. -1 uses the default of half the list.
	ResidencyCompactionThreshold int32 `yaml:"residencyCompactionThreshold"`

	PrintBOCreateDestroyResult bool `yaml:"printBOCreateDestroyResult"`
	PrintIoctlEntries          bool `yaml:"printIoctlEntries"`
	PrintDeviceQueueResets     bool `yaml:"printDeviceQueueResets"`
}

// Default returns the flag set used when nothing has been overridden
func Default() Flags {
	return Flags{
		EnableWalkerPartition:                    -1,
		EnableStaticPartitioning:                 -1,
		SynchronizeWalkerInWparidMode:            -1,
		UseCrossAtomicSynchronization:            -1,
		UseAtomicsForSelfCleanupSection:          -1,
		ProgramWalkerPartitionSelfCleanup:        -1,
		WparidRegisterProgramming:                -1,
		UsePipeControlAfterPartitionedWalker:     -1,
		ExperimentalSynchronizeWithSemaphores:    -1,
		OverridePreferredSlmAllocationSizePerDss: -1,
		ForceThreadGroupDispatchSize:             -1,
		DirectSubmissionDrmContext:               -1,
		ResidencyCompactionThreshold:             -1,
	}
}

// With returns a copy of f with modify applied
func (f Flags) With(modify func(flags *Flags)) Flags {
	modify(&f)
	return f
}

// Resolve returns defaultValue when the toggle is -1 and the toggle's truth value otherwise
func Resolve(toggle int32, defaultValue bool) bool {
	if toggle == -1 {
		return defaultValue
	}
	return toggle != 0
}
