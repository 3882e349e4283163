package encode

import (
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/stream"
)

// PipeControlArgs selects the cache operations performed by a PIPE_CONTROL. The command streamer
// stall is always set.
type PipeControlArgs struct {
	DcFlushEnable                    bool
	RenderTargetCacheFlushEnable     bool
	InstructionCacheInvalidateEnable bool
	TextureCacheInvalidationEnable   bool
	ConstantCacheInvalidationEnable  bool
	StateCacheInvalidationEnable     bool
	VfCacheInvalidationEnable        bool
	PipeControlFlushEnable           bool
	GenericMediaStateClear           bool
	TlbInvalidation                  bool
	HdcPipelineFlush                 bool
	NotifyEnable                     bool
	WorkloadPartitionOffset          bool
}

func (e *baseEncoder) pipeControl(args PipeControlArgs) *commands.PipeControl {
	return &commands.PipeControl{
		CommandStreamerStallEnable:       true,
		DcFlushEnable:                    args.DcFlushEnable,
		RenderTargetCacheFlushEnable:     args.RenderTargetCacheFlushEnable,
		InstructionCacheInvalidateEnable: args.InstructionCacheInvalidateEnable,
		TextureCacheInvalidationEnable:   args.TextureCacheInvalidationEnable,
		ConstantCacheInvalidationEnable:  args.ConstantCacheInvalidationEnable,
		StateCacheInvalidationEnable:     args.StateCacheInvalidationEnable,
		VfCacheInvalidationEnable:        args.VfCacheInvalidationEnable,
		PipeControlFlushEnable:           args.PipeControlFlushEnable,
		GenericMediaStateClear:           args.GenericMediaStateClear,
		TlbInvalidate:                    args.TlbInvalidation,
		HdcPipelineFlush:                 args.HdcPipelineFlush && e.hwInfo.Family.IsXeHPAndLater(),
		NotifyEnable:                     args.NotifyEnable,
		WorkloadPartitionIDOffsetEnable:  args.WorkloadPartitionOffset,
	}
}

func (e *baseEncoder) PipeControl(s *stream.LinearStream, args PipeControlArgs) {
	s.Append(e.pipeControl(args))
}

func (e *baseEncoder) SizePipeControl() int {
	return (&commands.PipeControl{}).Size()
}

// PipeControlWithPostSync emits a PIPE_CONTROL that writes to address once prior work has completed.
// Parts with WaPipeControlBeforePostSync get a plain stalling PIPE_CONTROL first.
func (e *baseEncoder) PipeControlWithPostSync(s *stream.LinearStream, operation commands.PostSyncOperation, address uint64, immediate uint64, args PipeControlArgs) {
	if e.hwInfo.Workarounds.WaPipeControlBeforePostSync {
		s.Append(&commands.PipeControl{CommandStreamerStallEnable: true})
	}

	cmd := e.pipeControl(args)
	cmd.PostSyncOperation = operation
	cmd.Address = address
	if operation == commands.PostSyncOperationWriteImmediateData {
		cmd.ImmediateData = immediate
	}
	s.Append(cmd)
}

func (e *baseEncoder) SizePipeControlWithPostSync() int {
	size := e.SizePipeControl()
	if e.hwInfo.Workarounds.WaPipeControlBeforePostSync {
		size += e.SizePipeControl()
	}
	return size
}

// FullCacheFlush flushes render and data caches and invalidates every read-only cache
func (e *baseEncoder) FullCacheFlush(s *stream.LinearStream) {
	e.PipeControl(s, PipeControlArgs{
		DcFlushEnable:                    true,
		RenderTargetCacheFlushEnable:     true,
		InstructionCacheInvalidateEnable: true,
		TextureCacheInvalidationEnable:   true,
		ConstantCacheInvalidationEnable:  true,
		StateCacheInvalidationEnable:     true,
		VfCacheInvalidationEnable:        true,
		PipeControlFlushEnable:           true,
		TlbInvalidation:                  true,
		HdcPipelineFlush:                 true,
	})
}

func (e *baseEncoder) SizeFullCacheFlush() int {
	return e.SizePipeControl()
}

// Registers enabling the kernel debugger's breakpoint and exception reporting
const (
	DebugModeRegister      uint32 = 0x20ec
	DebugModeRegisterXeHPG uint32 = 0x20d8
	TdCtlRegister          uint32 = 0xe400

	DebugModeRegisterValue uint32 = (1 << 5) | (1 << 21)
	TdCtlRegisterValue     uint32 = (1 << 7) | (1 << 4) | (1 << 2) | (1 << 0)
)

func (e *baseEncoder) DebugModeRegisters(s *stream.LinearStream) {
	register := DebugModeRegister
	if e.hwInfo.Family == hw.FamilyXeHPG {
		register = DebugModeRegisterXeHPG
	}
	e.LoadRegisterImm(s, register, DebugModeRegisterValue, false)
	e.LoadRegisterImm(s, TdCtlRegister, TdCtlRegisterValue, false)
}

func (e *baseEncoder) SizeDebugModeRegisters() int {
	return 2 * e.SizeLoadRegisterImm()
}
