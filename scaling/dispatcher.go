package scaling

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/stream"
	"golang.org/x/exp/slog"
)

// eventStateCleared is the value of an event's post-sync slot before its walker completes
const eventStateCleared uint32 = 1

// Dispatcher wraps single-tile walkers and barriers so that every tile in a device bitfield takes part.
// GetSize and GetBarrierSize return exactly the number of bytes their dispatch counterparts write.
type Dispatcher struct {
	encoder encode.Encoder
	helper  *Helper
	logger  *slog.Logger

	pipeControlStallRequired bool
}

func NewDispatcher(encoder encode.Encoder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = config.DiscardLogger(nil)
	}

	return &Dispatcher{
		encoder:                  encoder,
		helper:                   NewHelper(encoder.Flags()),
		logger:                   logger,
		pipeControlStallRequired: pipeControlStallRequired(encoder.Family()),
	}
}

// pipeControlStallRequired reports whether a family must stall and flush before tiles synchronize
// on shared memory. XeHPC keeps its caches coherent across tiles.
func pipeControlStallRequired(family hw.Family) bool {
	return family != hw.FamilyXeHPC
}

func (d *Dispatcher) Helper() *Helper {
	return d.helper
}

func (d *Dispatcher) PipeControlStallRequired() bool {
	return d.pipeControlStallRequired
}

// Walker builds the walker for a dispatch so it can be partitioned. Only compute walker encoders
// can build one.
func (d *Dispatcher) Walker(heaps encode.DispatchHeaps, args *encode.DispatchArgs) (*commands.ComputeWalker, error) {
	builder, ok := d.encoder.(encode.WalkerBuilder)
	if !ok {
		return nil, errors.Newf("family %s does not dispatch with COMPUTE_WALKER", d.encoder.Family())
	}
	return builder.Walker(heaps, args), nil
}

func (d *Dispatcher) resolveArgs(devices hw.DeviceBitfield, preferStatic bool, apiSelfCleanup bool, groupCount [3]uint32) PartitionArgs {
	h := d.helper
	args := PartitionArgs{
		TileCount:                      devices.Count(),
		StaticPartitioning:             config.Resolve(h.flags.EnableStaticPartitioning, preferStatic),
		SynchronizeBeforeExecution:     h.IsSynchronizeBeforeExecutionRequired(),
		CrossTileAtomicSynchronization: h.IsCrossTileAtomicRequired(true),
		SemaphoreProgrammingRequired:   h.IsSemaphoreProgrammingRequired(),
		UseAtomicsForSelfCleanup:       h.IsAtomicsUsedForSelfCleanup(),
		InitializeWparidRegister:       h.IsWparidRegisterInitializationRequired(),
		EmitPipeControlStall:           h.IsPipeControlStallRequired(d.pipeControlStallRequired),
	}
	args.EmitSelfCleanup = h.IsSelfCleanupRequired(&args, apiSelfCleanup)
	computePartitions(&args, groupCount)
	return args
}

func (d *Dispatcher) cleanupFields(args *PartitionArgs) []uint64 {
	fields := []uint64{controlTileCount, controlInTileCount}
	if !args.StaticPartitioning {
		fields = append(fields, controlWorkPartitionCounter)
	}
	return fields
}

func (d *Dispatcher) sizeTileBarrier() int {
	return d.encoder.SizeAtomic() + d.encoder.SizeSemaphoreWait()
}

func (d *Dispatcher) sizeZero(atomics bool) int {
	if atomics {
		return d.encoder.SizeAtomic()
	}
	return d.encoder.SizeStoreDataImm()
}

func (d *Dispatcher) partitionedSize(args *PartitionArgs) int {
	e := d.encoder
	walkerSize := (&commands.ComputeWalker{}).Size()

	size := 0
	if args.StaticPartitioning {
		if args.InitializeWparidRegister {
			size += e.SizeLoadRegisterMem()
		}
	}
	if args.SynchronizeBeforeExecution {
		size += d.sizeTileBarrier()
	}

	if args.StaticPartitioning {
		size += walkerSize
	} else {
		size += int(args.Iterations()) * (e.SizeAtomic() + e.SizeLoadRegisterReg() + walkerSize)
	}

	if args.EmitSelfCleanup {
		size += e.SizeStoreDataImm()
	}
	if args.CrossTileAtomicSynchronization || args.EmitSelfCleanup {
		if args.EmitPipeControlStall {
			size += e.SizePipeControl()
		}
		size += d.sizeTileBarrier()
	}
	if args.SemaphoreProgrammingRequired {
		size += int(args.PartitionCount) * e.SizeSemaphoreWait()
	}
	if args.EmitSelfCleanup {
		size += 2*d.sizeTileBarrier() + len(d.cleanupFields(args))*d.sizeZero(args.UseAtomicsForSelfCleanup)
	}

	return size + e.SizeBatchBufferStart() + ControlSectionSize
}

// GetSize returns the bytes DispatchCommands writes for a walker over groupCount thread groups.
// preferStatic must match whether DispatchCommands receives a work partition allocation.
func (d *Dispatcher) GetSize(apiSelfCleanup bool, preferStatic bool, devices hw.DeviceBitfield, groupCount [3]uint32) int {
	if devices.Count() < 2 {
		return (&commands.ComputeWalker{}).Size()
	}

	args := d.resolveArgs(devices, preferStatic, apiSelfCleanup, groupCount)
	return d.partitionedSize(&args)
}

func walkerGroupCount(walker *commands.ComputeWalker) [3]uint32 {
	return [3]uint32{
		walker.ThreadGroupIDXDimension - walker.ThreadGroupIDStartingX,
		walker.ThreadGroupIDYDimension - walker.ThreadGroupIDStartingY,
		walker.ThreadGroupIDZDimension - walker.ThreadGroupIDStartingZ,
	}
}

func (d *Dispatcher) tileBarrier(s *stream.LinearStream, address uint64, target uint32) {
	d.encoder.Atomic(s, address, commands.AtomicOpcode4BIncrement, commands.AtomicDataSizeDword, false, false)
	d.encoder.SemaphoreWait(s, address, target, commands.CompareSadGreaterThanOrEqualSdd)
}

func (d *Dispatcher) zero(s *stream.LinearStream, address uint64, atomics bool) {
	if atomics {
		// With no inline operand the move stores zero
		d.encoder.Atomic(s, address, commands.AtomicOpcode4BMove, commands.AtomicDataSizeDword, false, false)
		return
	}
	d.encoder.StoreDataImm(s, address, 0, false, false)
}

// DispatchCommands writes walker partitioned across devices and returns the partition count.
// A non-zero workPartitionAllocationGpuVa selects static partitioning, where every tile reads its
// partition ID from that allocation. Otherwise tiles claim partitions through an atomic counter in
// the control section that trails the commands.
func (d *Dispatcher) DispatchCommands(s *stream.LinearStream, walker *commands.ComputeWalker, devices hw.DeviceBitfield,
	useSecondaryBatchBuffer bool, apiSelfCleanup bool, usesImages bool, workPartitionAllocationGpuVa uint64) uint32 {
	if devices.Count() < 2 {
		s.Append(walker)
		return 1
	}

	e := d.encoder
	args := d.resolveArgs(devices, workPartitionAllocationGpuVa != 0, apiSelfCleanup, walkerGroupCount(walker))
	args.WorkPartitionAllocationGpuVa = workPartitionAllocationGpuVa
	args.SecondaryBatchBuffer = useSecondaryBatchBuffer
	args.UsesImages = usesImages

	total := d.partitionedSize(&args)
	end := s.CurrentGpuAddress() + uint64(total)
	control := end - ControlSectionSize

	if args.StaticPartitioning && args.InitializeWparidRegister {
		e.LoadRegisterMem(s, WparidCCSOffset, args.WorkPartitionAllocationGpuVa)
	}
	if args.SynchronizeBeforeExecution {
		d.tileBarrier(s, control+controlTileCount, args.TileCount)
	}

	partitioned := *walker
	partitioned.WorkloadPartitionEnable = true
	partitioned.PartitionType = args.PartitionType
	partitioned.PartitionSize = args.PartitionSize

	if args.StaticPartitioning {
		s.Append(&partitioned)
	} else {
		for i := uint32(0); i < args.Iterations(); i++ {
			// The previous counter value lands in R0 and becomes this tile's partition
			e.Atomic(s, control+controlWorkPartitionCounter, commands.AtomicOpcode4BIncrement, commands.AtomicDataSizeDword, true, true)
			e.LoadRegisterReg(s, commands.CSGprR0, WparidCCSOffset)
			s.Append(&partitioned)
		}
	}

	if args.EmitSelfCleanup {
		e.StoreDataImm(s, control+controlFinalSyncTileCount, 0, false, false)
	}
	if args.CrossTileAtomicSynchronization || args.EmitSelfCleanup {
		if args.EmitPipeControlStall {
			e.PipeControl(s, encode.PipeControlArgs{DcFlushEnable: true, TextureCacheInvalidationEnable: args.UsesImages})
		}
		d.tileBarrier(s, control+controlInTileCount, args.TileCount)
	}
	if args.SemaphoreProgrammingRequired {
		address := walker.PostSync.DestinationAddress
		for i := uint32(0); i < args.PartitionCount; i++ {
			e.SemaphoreWait(s, address+uint64(i*PostSyncOffset), eventStateCleared, commands.CompareSadNotEqualSdd)
		}
	}
	if args.EmitSelfCleanup {
		d.tileBarrier(s, control+controlFinalSyncTileCount, args.TileCount)
		for _, field := range d.cleanupFields(&args) {
			d.zero(s, control+field, args.UseAtomicsForSelfCleanup)
		}
		d.tileBarrier(s, control+controlFinalSyncTileCount, 2*args.TileCount)
	}

	e.BatchBufferStart(s, end, args.SecondaryBatchBuffer)
	clear(s.GetSpace(ControlSectionSize))

	d.logger.LogAttrs(context.Background(), slog.LevelDebug, "partitioned walker",
		slog.Int("tiles", int(args.TileCount)),
		slog.Int("partitions", int(args.PartitionCount)),
		slog.String("partitionType", args.PartitionType.String()),
		slog.Bool("static", args.StaticPartitioning),
		slog.Bool("selfCleanup", args.EmitSelfCleanup),
	)

	return args.PartitionCount
}

// GetRegisterConfigurationSize returns the bytes DispatchRegisterConfiguration writes
func (d *Dispatcher) GetRegisterConfigurationSize() int {
	return d.encoder.SizeLoadRegisterMem() + d.encoder.SizeLoadRegisterImm()
}

// DispatchRegisterConfiguration loads every tile's partition ID from the work partition allocation
// and sets the distance partition-offset writes are spread by
func (d *Dispatcher) DispatchRegisterConfiguration(s *stream.LinearStream, workPartitionSurfaceAddress uint64, addressOffset uint32) {
	d.encoder.LoadRegisterMem(s, WparidCCSOffset, workPartitionSurfaceAddress)
	d.encoder.LoadRegisterImm(s, AddressOffsetCCSOffset, addressOffset, true)
}

func (d *Dispatcher) barrierArgs(apiSelfCleanup bool) PartitionArgs {
	args := PartitionArgs{CrossTileAtomicSynchronization: true, StaticPartitioning: true}
	args.EmitSelfCleanup = d.helper.IsSelfCleanupRequired(&args, apiSelfCleanup)
	args.EmitPipeControlStall = d.helper.IsPipeControlStallRequired(d.pipeControlStallRequired)
	return args
}

// GetBarrierSize returns the bytes DispatchBarrierCommands writes. usePostSync must match whether
// DispatchBarrierCommands receives a post-sync address.
func (d *Dispatcher) GetBarrierSize(apiSelfCleanup bool, usePostSync bool) int {
	e := d.encoder
	args := d.barrierArgs(apiSelfCleanup)

	size := 0
	if args.EmitSelfCleanup {
		size += e.SizeStoreDataImm()
	}
	if usePostSync {
		size += e.SizePipeControlWithPostSync()
	} else if args.EmitPipeControlStall {
		size += e.SizePipeControl()
	}
	size += d.sizeTileBarrier()
	if args.EmitSelfCleanup {
		size += 2*d.sizeTileBarrier() + d.sizeZero(d.helper.IsAtomicsUsedForSelfCleanup())
	}

	return size + e.SizeBatchBufferStart() + BarrierControlSectionSize
}

// DispatchBarrierCommands makes every tile in devices wait for all of them to finish prior work.
// A non-zero postSyncAddress has the flush write immediate to it once the tile's work completes.
func (d *Dispatcher) DispatchBarrierCommands(s *stream.LinearStream, devices hw.DeviceBitfield, flush encode.PipeControlArgs,
	postSyncAddress uint64, immediate uint64, apiSelfCleanup bool, useSecondaryBatchBuffer bool) {
	e := d.encoder
	args := d.barrierArgs(apiSelfCleanup)
	tileCount := devices.Count()
	atomics := d.helper.IsAtomicsUsedForSelfCleanup()

	end := s.CurrentGpuAddress() + uint64(d.GetBarrierSize(apiSelfCleanup, postSyncAddress != 0))
	control := end - BarrierControlSectionSize

	if args.EmitSelfCleanup {
		e.StoreDataImm(s, control+barrierFinalSyncTileCount, 0, false, false)
	}
	if postSyncAddress != 0 {
		e.PipeControlWithPostSync(s, commands.PostSyncOperationWriteImmediateData, postSyncAddress, immediate, flush)
	} else if args.EmitPipeControlStall {
		e.PipeControl(s, flush)
	}
	d.tileBarrier(s, control+barrierCrossTileSyncCount, tileCount)
	if args.EmitSelfCleanup {
		d.tileBarrier(s, control+barrierFinalSyncTileCount, tileCount)
		d.zero(s, control+barrierCrossTileSyncCount, atomics)
		d.tileBarrier(s, control+barrierFinalSyncTileCount, 2*tileCount)
	}

	e.BatchBufferStart(s, end, useSecondaryBatchBuffer)
	clear(s.GetSpace(BarrierControlSectionSize))
}
