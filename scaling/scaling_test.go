package scaling_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/config/configtest"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/scaling"
	"github.com/vkngwrapper/gfxcore/stream"
)

const gpuBase = 0x1000_0000

func newStream() *stream.LinearStream {
	return stream.New(make([]byte, 16384), gpuBase)
}

func newDispatcher(t *testing.T, family hw.Family, flags config.Flags) *scaling.Dispatcher {
	encoder, err := encode.ForFamily(family, flags)
	require.NoError(t, err)
	return scaling.NewDispatcher(encoder, nil)
}

func buildWalker(t *testing.T, d *scaling.Dispatcher, groupCount [3]uint32, eventAddress uint64) *commands.ComputeWalker {
	heaps := encode.DispatchHeaps{
		DynamicState:   stream.NewIndirectHeap(stream.HeapTypeDynamicState, make([]byte, 4096), 0x2000_0000),
		IndirectObject: stream.NewIndirectHeap(stream.HeapTypeIndirectObject, make([]byte, 4096), 0x3000_0000),
	}
	walker, err := d.Walker(heaps, &encode.DispatchArgs{
		GroupCount:      groupCount,
		LocalSize:       [3]uint32{16, 1, 1},
		SimdSize:        commands.SimdSize16,
		CrossThreadData: make([]byte, 32),
		EventAddress:    eventAddress,
	})
	require.NoError(t, err)
	return walker
}

func parse(t *testing.T, s *stream.LinearStream) []commands.ParsedCommand {
	parsed, err := commands.Parse(s.Bytes())
	require.NoError(t, err)
	return parsed
}

var flagVariants = map[string]func(flags *config.Flags){
	"Default":            func(flags *config.Flags) {},
	"ForceStatic":        func(flags *config.Flags) { flags.EnableStaticPartitioning = 1 },
	"ForceDynamic":       func(flags *config.Flags) { flags.EnableStaticPartitioning = 0 },
	"SynchronizeBefore":  func(flags *config.Flags) { flags.SynchronizeWalkerInWparidMode = 1 },
	"NoCrossTileAtomic":  func(flags *config.Flags) { flags.UseCrossAtomicSynchronization = 0 },
	"ForceSelfCleanup":   func(flags *config.Flags) { flags.ProgramWalkerPartitionSelfCleanup = 1 },
	"DisableSelfCleanup": func(flags *config.Flags) { flags.ProgramWalkerPartitionSelfCleanup = 0 },
	"AtomicSelfCleanup": func(flags *config.Flags) {
		flags.ProgramWalkerPartitionSelfCleanup = 1
		flags.UseAtomicsForSelfCleanupSection = 1
	},
	"NoWparidProgramming": func(flags *config.Flags) { flags.WparidRegisterProgramming = 0 },
	"NoPipeControl":       func(flags *config.Flags) { flags.UsePipeControlAfterPartitionedWalker = 0 },
	"ForcePipeControl":    func(flags *config.Flags) { flags.UsePipeControlAfterPartitionedWalker = 1 },
	"Semaphores":          func(flags *config.Flags) { flags.ExperimentalSynchronizeWithSemaphores = 1 },
}

var scalingFamilies = []hw.Family{hw.FamilyXeHP, hw.FamilyXeHPG, hw.FamilyXeHPC}

func TestGetSizeMatchesDispatch(t *testing.T) {
	groupCounts := [][3]uint32{{7, 1, 1}, {1, 9, 2}, {2, 2, 5}, {64, 1, 1}, {1, 1, 1}}

	for name, variant := range flagVariants {
		for _, family := range scalingFamilies {
			t.Run(fmt.Sprintf("%s/%s", name, family), func(t *testing.T) {
				d := newDispatcher(t, family, configtest.Override(t, variant))

				for _, tiles := range []uint32{1, 2, 4} {
					devices := hw.NewDeviceBitfield(tiles)
					for _, groupCount := range groupCounts {
						for _, apiSelfCleanup := range []bool{false, true} {
							for _, workPartition := range []uint64{0, 0x8000} {
								walker := buildWalker(t, d, groupCount, 0xa000)
								s := newStream()
								partitions := d.DispatchCommands(s, walker, devices, false, apiSelfCleanup, true, workPartition)

								require.Equal(t, d.GetSize(apiSelfCleanup, workPartition != 0, devices, groupCount), s.Used(),
									"tiles=%d groups=%v selfCleanup=%t workPartition=%#x", tiles, groupCount, apiSelfCleanup, workPartition)
								require.NotZero(t, partitions)
								require.Equal(t, 0, s.Used()%commands.DwordSize)
								parse(t, s)
							}
						}
					}
				}
			})
		}
	}
}

func TestSingleTileAppendsWalker(t *testing.T) {
	d := newDispatcher(t, hw.FamilyXeHP, config.Default())
	walker := buildWalker(t, d, [3]uint32{8, 1, 1}, 0)

	s := newStream()
	require.Equal(t, uint32(1), d.DispatchCommands(s, walker, hw.NewDeviceBitfield(1), false, true, false, 0x8000))

	parsed := parse(t, s)
	require.Equal(t, []commands.Kind{commands.KindComputeWalker}, commands.Kinds(parsed))
	require.False(t, parsed[0].Command.(*commands.ComputeWalker).WorkloadPartitionEnable)
}

func TestStaticPartitioning(t *testing.T) {
	d := newDispatcher(t, hw.FamilyXeHP, config.Default())
	walker := buildWalker(t, d, [3]uint32{7, 1, 1}, 0)

	s := newStream()
	partitions := d.DispatchCommands(s, walker, hw.NewDeviceBitfield(2), false, false, false, 0x8000)
	require.Equal(t, uint32(2), partitions)

	parsed := parse(t, s)
	require.Equal(t, []commands.Kind{
		commands.KindMiLoadRegisterMem,
		commands.KindComputeWalker,
		commands.KindPipeControl,
		commands.KindMiAtomic,
		commands.KindMiSemaphoreWait,
		commands.KindMiBatchBufferStart,
		commands.KindMiNoop, commands.KindMiNoop, commands.KindMiNoop, commands.KindMiNoop,
	}, commands.Kinds(parsed))

	lrm := parsed[0].Command.(*commands.MiLoadRegisterMem)
	require.Equal(t, scaling.WparidCCSOffset, lrm.RegisterAddress)
	require.Equal(t, uint64(0x8000), lrm.MemoryAddress)

	partitioned := parsed[1].Command.(*commands.ComputeWalker)
	require.True(t, partitioned.WorkloadPartitionEnable)
	require.Equal(t, commands.PartitionTypeX, partitioned.PartitionType)
	require.Equal(t, uint32(4), partitioned.PartitionSize)

	end := uint64(gpuBase + s.Used())
	control := end - scaling.ControlSectionSize
	wait := parsed[4].Command.(*commands.MiSemaphoreWait)
	require.Equal(t, control+8, wait.Address)
	require.Equal(t, uint32(2), wait.SemaphoreData)
	require.Equal(t, commands.CompareSadGreaterThanOrEqualSdd, wait.CompareOperation)
	require.Equal(t, end, parsed[5].Command.(*commands.MiBatchBufferStart).StartAddress)
}

func TestPartitionTypeFollowsLargestDimension(t *testing.T) {
	require.Equal(t, commands.PartitionTypeX, scaling.PartitionTypeFor([3]uint32{4, 4, 4}))
	require.Equal(t, commands.PartitionTypeY, scaling.PartitionTypeFor([3]uint32{1, 9, 2}))
	require.Equal(t, commands.PartitionTypeZ, scaling.PartitionTypeFor([3]uint32{2, 2, 5}))

	d := newDispatcher(t, hw.FamilyXeHPC, config.Default())
	walker := buildWalker(t, d, [3]uint32{1, 1, 9}, 0)
	s := newStream()
	d.DispatchCommands(s, walker, hw.NewDeviceBitfield(4), false, false, false, 0x8000)

	partitioned := commands.Filter[*commands.ComputeWalker](parse(t, s))
	require.Len(t, partitioned, 1)
	require.Equal(t, commands.PartitionTypeZ, partitioned[0].PartitionType)
	require.Equal(t, uint32(3), partitioned[0].PartitionSize)
}

func TestDynamicPartitioning(t *testing.T) {
	d := newDispatcher(t, hw.FamilyXeHP, config.Default())
	walker := buildWalker(t, d, [3]uint32{64, 1, 1}, 0)

	s := newStream()
	partitions := d.DispatchCommands(s, walker, hw.NewDeviceBitfield(2), false, true, false, 0)
	require.Equal(t, uint32(8), partitions)

	parsed := parse(t, s)
	counts := commands.Count(parsed)
	require.Equal(t, 4, counts[commands.KindComputeWalker])
	require.Equal(t, 4, counts[commands.KindMiLoadRegisterReg])
	require.Equal(t, 7, counts[commands.KindMiAtomic])
	require.Equal(t, 4, counts[commands.KindMiStoreDataImm])
	require.Equal(t, 3, counts[commands.KindMiSemaphoreWait])
	require.Zero(t, counts[commands.KindMiLoadRegisterMem])

	control := uint64(gpuBase+s.Used()) - scaling.ControlSectionSize
	claims := 0
	for _, atomic := range commands.Filter[*commands.MiAtomic](parsed) {
		if atomic.ReturnDataControl {
			require.Equal(t, control, atomic.Address)
			claims++
		}
	}
	require.Equal(t, 4, claims)

	for _, lrr := range commands.Filter[*commands.MiLoadRegisterReg](parsed) {
		require.Equal(t, commands.CSGprR0, lrr.SourceRegisterAddress)
		require.Equal(t, scaling.WparidCCSOffset, lrr.DestinationRegisterAddress)
	}
	for _, partitioned := range commands.Filter[*commands.ComputeWalker](parsed) {
		require.Equal(t, uint32(8), partitioned.PartitionSize)
	}
}

func TestSelfCleanupLeavesControlSectionZeroed(t *testing.T) {
	flags := configtest.Override(t, func(flags *config.Flags) {
		flags.UseAtomicsForSelfCleanupSection = 1
	})
	d := newDispatcher(t, hw.FamilyXeHPC, flags)
	walker := buildWalker(t, d, [3]uint32{16, 1, 1}, 0)

	s := newStream()
	d.DispatchCommands(s, walker, hw.NewDeviceBitfield(2), false, true, false, 0)

	data := s.Bytes()
	require.Equal(t, make([]byte, scaling.ControlSectionSize), data[len(data)-scaling.ControlSectionSize:])

	parsed := parse(t, s)
	control := uint64(gpuBase+s.Used()) - scaling.ControlSectionSize
	var moved []uint64
	for _, atomic := range commands.Filter[*commands.MiAtomic](parsed) {
		if atomic.Opcode == commands.AtomicOpcode4BMove {
			moved = append(moved, atomic.Address-control)
		}
	}
	require.ElementsMatch(t, []uint64{0, 4, 8}, moved)

	waits := commands.Filter[*commands.MiSemaphoreWait](parsed)
	last := waits[len(waits)-1]
	require.Equal(t, control+12, last.Address)
	require.Equal(t, uint32(4), last.SemaphoreData)
}

func TestPipeControlStallPerFamily(t *testing.T) {
	for _, family := range scalingFamilies {
		t.Run(family.String(), func(t *testing.T) {
			d := newDispatcher(t, family, config.Default())
			require.Equal(t, family != hw.FamilyXeHPC, d.PipeControlStallRequired())

			s := newStream()
			d.DispatchCommands(s, buildWalker(t, d, [3]uint32{8, 1, 1}, 0), hw.NewDeviceBitfield(2), false, false, false, 0x8000)

			counts := commands.Count(parse(t, s))
			if d.PipeControlStallRequired() {
				require.Equal(t, 1, counts[commands.KindPipeControl])
			} else {
				require.Zero(t, counts[commands.KindPipeControl])
			}
		})
	}

	forced := newDispatcher(t, hw.FamilyXeHPC, configtest.Override(t, func(flags *config.Flags) {
		flags.UsePipeControlAfterPartitionedWalker = 1
	}))
	s := newStream()
	forced.DispatchCommands(s, buildWalker(t, forced, [3]uint32{8, 1, 1}, 0), hw.NewDeviceBitfield(2), false, false, true, 0x8000)
	pipeControls := commands.Filter[*commands.PipeControl](parse(t, s))
	require.Len(t, pipeControls, 1)
	require.True(t, pipeControls[0].DcFlushEnable)
	require.True(t, pipeControls[0].TextureCacheInvalidationEnable)
}

func TestSemaphoreProgrammingWaitsOnEveryPartition(t *testing.T) {
	d := newDispatcher(t, hw.FamilyXeHP, configtest.Override(t, func(flags *config.Flags) {
		flags.ExperimentalSynchronizeWithSemaphores = 1
		flags.UseCrossAtomicSynchronization = 0
	}))
	walker := buildWalker(t, d, [3]uint32{8, 1, 1}, 0xa000)

	s := newStream()
	d.DispatchCommands(s, walker, hw.NewDeviceBitfield(2), false, false, false, 0x8000)

	waits := commands.Filter[*commands.MiSemaphoreWait](parse(t, s))
	require.Len(t, waits, 2)
	for i, wait := range waits {
		require.Equal(t, uint64(0xa000+i*int(scaling.PostSyncOffset)), wait.Address)
		require.Equal(t, uint32(1), wait.SemaphoreData)
		require.Equal(t, commands.CompareSadNotEqualSdd, wait.CompareOperation)
	}
}

func TestBarrierSizeMatchesDispatch(t *testing.T) {
	for name, variant := range flagVariants {
		for _, family := range scalingFamilies {
			t.Run(fmt.Sprintf("%s/%s", name, family), func(t *testing.T) {
				d := newDispatcher(t, family, configtest.Override(t, variant))
				for _, apiSelfCleanup := range []bool{false, true} {
					for _, postSync := range []uint64{0, 0xb000} {
						s := newStream()
						d.DispatchBarrierCommands(s, hw.NewDeviceBitfield(2), encode.PipeControlArgs{DcFlushEnable: true}, postSync, 5, apiSelfCleanup, true)
						require.Equal(t, d.GetBarrierSize(apiSelfCleanup, postSync != 0), s.Used())
						parse(t, s)
					}
				}
			})
		}
	}
}

func TestBarrierCommands(t *testing.T) {
	d := newDispatcher(t, hw.FamilyXeHPC, config.Default())

	s := newStream()
	d.DispatchBarrierCommands(s, hw.NewDeviceBitfield(2), encode.PipeControlArgs{}, 0, 0, false, false)
	require.Equal(t, []commands.Kind{
		commands.KindMiAtomic,
		commands.KindMiSemaphoreWait,
		commands.KindMiBatchBufferStart,
		commands.KindMiNoop, commands.KindMiNoop, commands.KindMiNoop, commands.KindMiNoop,
	}, commands.Kinds(parse(t, s)))

	s = newStream()
	d.DispatchBarrierCommands(s, hw.NewDeviceBitfield(2), encode.PipeControlArgs{DcFlushEnable: true}, 0xb000, 5, true, false)
	parsed := parse(t, s)
	pipeControls := commands.Filter[*commands.PipeControl](parsed)
	require.Len(t, pipeControls, 1)
	require.Equal(t, commands.PostSyncOperationWriteImmediateData, pipeControls[0].PostSyncOperation)
	require.Equal(t, uint64(0xb000), pipeControls[0].Address)
	require.Equal(t, uint64(5), pipeControls[0].ImmediateData)

	counts := commands.Count(parsed)
	require.Equal(t, 2, counts[commands.KindMiStoreDataImm])
	require.Equal(t, 3, counts[commands.KindMiAtomic])
}

func TestRegisterConfiguration(t *testing.T) {
	d := newDispatcher(t, hw.FamilyXeHP, config.Default())

	s := newStream()
	d.DispatchRegisterConfiguration(s, 0x8000, scaling.PostSyncOffset)
	require.Equal(t, d.GetRegisterConfigurationSize(), s.Used())

	parsed := parse(t, s)
	lrm := parsed[0].Command.(*commands.MiLoadRegisterMem)
	require.Equal(t, scaling.WparidCCSOffset, lrm.RegisterAddress)
	lri := parsed[1].Command.(*commands.MiLoadRegisterImm)
	require.Equal(t, scaling.AddressOffsetCCSOffset, lri.RegisterOffset)
	require.Equal(t, scaling.PostSyncOffset, lri.DataDword)
}

func TestWalkerRequiresComputeWalkerFamily(t *testing.T) {
	d := newDispatcher(t, hw.FamilyGen12LP, config.Default())
	_, err := d.Walker(encode.DispatchHeaps{}, &encode.DispatchArgs{})
	require.Error(t, err)
}

func TestImplicitScalingEnabled(t *testing.T) {
	helper := scaling.NewHelper(config.Default())
	require.True(t, helper.IsImplicitScalingEnabled(hw.NewDeviceBitfield(2), true))
	require.False(t, helper.IsImplicitScalingEnabled(hw.NewDeviceBitfield(2), false))
	require.False(t, helper.IsImplicitScalingEnabled(hw.NewDeviceBitfield(1), true))

	disabled := scaling.NewHelper(configtest.Override(t, func(flags *config.Flags) {
		flags.EnableWalkerPartition = 0
	}))
	require.False(t, disabled.IsImplicitScalingEnabled(hw.NewDeviceBitfield(4), true))

	forced := scaling.NewHelper(configtest.Override(t, func(flags *config.Flags) {
		flags.EnableWalkerPartition = 1
	}))
	require.True(t, forced.IsImplicitScalingEnabled(hw.NewDeviceBitfield(1), false))
}

func TestHelperDefaults(t *testing.T) {
	helper := scaling.NewHelper(config.Default())
	require.False(t, helper.IsSemaphoreProgrammingRequired())
	require.True(t, helper.IsCrossTileAtomicRequired(true))
	require.False(t, helper.IsCrossTileAtomicRequired(false))
	require.False(t, helper.IsSynchronizeBeforeExecutionRequired())
	require.False(t, helper.IsAtomicsUsedForSelfCleanup())
	require.True(t, helper.IsWparidRegisterInitializationRequired())
	require.True(t, helper.IsPipeControlStallRequired(true))
	require.False(t, helper.IsPipeControlStallRequired(false))
}

func TestSelfCleanupRequired(t *testing.T) {
	helper := scaling.NewHelper(config.Default())

	static := &scaling.PartitionArgs{StaticPartitioning: true}
	require.False(t, helper.IsSelfCleanupRequired(static, true))

	static.CrossTileAtomicSynchronization = true
	require.True(t, helper.IsSelfCleanupRequired(static, true))
	require.False(t, helper.IsSelfCleanupRequired(static, false))

	dynamic := &scaling.PartitionArgs{}
	require.True(t, helper.IsSelfCleanupRequired(dynamic, true))

	forced := scaling.NewHelper(configtest.Override(t, func(flags *config.Flags) {
		flags.ProgramWalkerPartitionSelfCleanup = 1
	}))
	require.True(t, forced.IsSelfCleanupRequired(&scaling.PartitionArgs{StaticPartitioning: true}, false))
}
