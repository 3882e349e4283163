package encode

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/stream"
)

// Encoder appends hardware commands for one GPU family. Every emitting method has a Size method
// that returns exactly the number of bytes it appends for the same arguments, so callers can size
// a stream before writing into it.
type Encoder interface {
	Family() hw.Family
	HardwareInfo() *hw.HardwareInfo
	Flags() config.Flags

	LoadRegisterImm(s *stream.LinearStream, register uint32, value uint32, remap bool)
	SizeLoadRegisterImm() int
	LoadRegisterReg(s *stream.LinearStream, source uint32, destination uint32)
	SizeLoadRegisterReg() int
	LoadRegisterMem(s *stream.LinearStream, register uint32, address uint64)
	SizeLoadRegisterMem() int
	StoreRegisterMem(s *stream.LinearStream, register uint32, address uint64)
	SizeStoreRegisterMem() int
	StoreDataImm(s *stream.LinearStream, address uint64, data uint64, storeQword bool, partitionOffset bool)
	SizeStoreDataImm() int
	Atomic(s *stream.LinearStream, address uint64, opcode commands.AtomicOpcode, dataSize commands.AtomicDataSize, returnData bool, csStall bool)
	SizeAtomic() int
	SemaphoreWait(s *stream.LinearStream, address uint64, value uint32, compare commands.CompareOperation)
	SizeSemaphoreWait() int
	MathReadModifyWrite(s *stream.LinearStream, register uint32, opcode commands.AluOpcode, operand uint32)
	SizeMathReadModifyWrite() int
	BatchBufferStart(s *stream.LinearStream, address uint64, secondLevel bool)
	SizeBatchBufferStart() int
	BatchBufferEnd(s *stream.LinearStream)
	SizeBatchBufferEnd() int
	Noop(s *stream.LinearStream, size int)

	PipeControl(s *stream.LinearStream, args PipeControlArgs)
	SizePipeControl() int
	PipeControlWithPostSync(s *stream.LinearStream, operation commands.PostSyncOperation, address uint64, immediate uint64, args PipeControlArgs)
	SizePipeControlWithPostSync() int
	FullCacheFlush(s *stream.LinearStream)
	SizeFullCacheFlush() int

	ComputeMode(s *stream.LinearStream, request ComputeModeRequest)
	SizeComputeMode(request ComputeModeRequest) int

	DispatchKernel(s *stream.LinearStream, heaps DispatchHeaps, args *DispatchArgs)
	SizeDispatchKernel(args *DispatchArgs) int
	ProgramBarrierEnable(idd *commands.InterfaceDescriptorData, barrierCount uint32)
	PreferredSlmAllocationSize(slmTotalSize uint32) uint32

	DebugModeRegisters(s *stream.LinearStream)
	SizeDebugModeRegisters() int
}

type factory func(base baseEncoder) Encoder

var registry = map[hw.Family]factory{
	hw.FamilyGen9: func(base baseEncoder) Encoder {
		return &mediaEncoder{baseEncoder: base}
	},
	hw.FamilyGen11: func(base baseEncoder) Encoder {
		return &mediaEncoder{baseEncoder: base}
	},
	hw.FamilyGen12LP: func(base baseEncoder) Encoder {
		return &mediaEncoder{baseEncoder: base, stateComputeMode: true}
	},
	hw.FamilyXeHP: func(base baseEncoder) Encoder {
		return &computeEncoder{baseEncoder: base}
	},
	hw.FamilyXeHPG: func(base baseEncoder) Encoder {
		return &computeEncoder{baseEncoder: base, xeHPGAndLater: true}
	},
	hw.FamilyXeHPC: func(base baseEncoder) Encoder {
		return &computeEncoder{baseEncoder: base, xeHPGAndLater: true, computeModePipeControl: true}
	},
}

// New resolves the encoder for the family of hwInfo. It is called once when a device is created;
// the returned encoder holds no per-stream state and may be shared between goroutines.
func New(hwInfo hw.HardwareInfo, flags config.Flags) (Encoder, error) {
	create, ok := registry[hwInfo.Family]
	if !ok {
		return nil, errors.Newf("no command encoder registered for family %s", hwInfo.Family)
	}

	return create(baseEncoder{hwInfo: hwInfo, flags: flags}), nil
}

// ForFamily resolves the encoder for the default configuration of the first product in a family
func ForFamily(family hw.Family, flags config.Flags) (Encoder, error) {
	for _, product := range hw.Products() {
		if product.Family() != family {
			continue
		}
		hwInfo, ok := hw.DefaultHardwareInfo(product)
		if ok {
			return New(hwInfo, flags)
		}
	}

	return nil, errors.Newf("no known product in family %s", family)
}
