package encode_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/config/configtest"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/stream"
)

func newStream() *stream.LinearStream {
	return stream.New(make([]byte, 4096), 0x1000_0000)
}

func newHeaps() encode.DispatchHeaps {
	return encode.DispatchHeaps{
		DynamicState:   stream.NewIndirectHeap(stream.HeapTypeDynamicState, make([]byte, 4096), 0x2000_0000),
		IndirectObject: stream.NewIndirectHeap(stream.HeapTypeIndirectObject, make([]byte, 4096), 0x3000_0000),
	}
}

// encoders returns an encoder for every product, with and without the post-sync workaround
func encoders(t *testing.T, flags config.Flags) []encode.Encoder {
	var out []encode.Encoder
	for _, product := range hw.Products() {
		hwInfo, ok := hw.DefaultHardwareInfo(product)
		require.True(t, ok)

		for _, wa := range []bool{false, true} {
			hwInfo.Workarounds.WaPipeControlBeforePostSync = wa
			encoder, err := encode.New(hwInfo, flags)
			require.NoError(t, err)
			out = append(out, encoder)
		}
	}
	return out
}

func parse(t *testing.T, s *stream.LinearStream) []commands.ParsedCommand {
	parsed, err := commands.Parse(s.Bytes())
	require.NoError(t, err)
	return parsed
}

func TestSizeMatchesEncode(t *testing.T) {
	dispatchArgs := []*encode.DispatchArgs{
		{GroupCount: [3]uint32{4, 1, 1}, LocalSize: [3]uint32{16, 1, 1}, SimdSize: commands.SimdSize16},
		{
			GroupCount:      [3]uint32{2, 2, 1},
			LocalSize:       [3]uint32{8, 8, 1},
			SimdSize:        commands.SimdSize32,
			CrossThreadData: make([]byte, 40),
			EventAddress:    0xabc0,
			ImmediateData:   7,
		},
		{GroupCount: [3]uint32{1, 1, 1}, EventAddress: 0x1000, EventTimestamp: true, L3FlushAfterPostSync: true},
	}
	computeModes := []encode.ComputeModeRequest{
		{},
		{CoherencyRequired: true, CoherencyChanged: true},
		{LargeGrfMode: true, LargeGrfChanged: true},
	}

	for _, encoder := range encoders(t, config.Default()) {
		name := encoder.HardwareInfo().Product.String()
		if encoder.HardwareInfo().Workarounds.WaPipeControlBeforePostSync {
			name += "/WaPipeControlBeforePostSync"
		}

		t.Run(name, func(t *testing.T) {
			check := func(size int, emit func(s *stream.LinearStream)) {
				s := newStream()
				emit(s)
				require.Equal(t, size, s.Used())
			}

			check(encoder.SizeLoadRegisterImm(), func(s *stream.LinearStream) { encoder.LoadRegisterImm(s, 0x2248, 1, false) })
			check(encoder.SizeLoadRegisterReg(), func(s *stream.LinearStream) { encoder.LoadRegisterReg(s, 0x2600, 0x2608) })
			check(encoder.SizeLoadRegisterMem(), func(s *stream.LinearStream) { encoder.LoadRegisterMem(s, 0x2600, 0x1000) })
			check(encoder.SizeStoreRegisterMem(), func(s *stream.LinearStream) { encoder.StoreRegisterMem(s, 0x2600, 0x1000) })
			check(encoder.SizeStoreDataImm(), func(s *stream.LinearStream) { encoder.StoreDataImm(s, 0x1000, 5, true, false) })
			check(encoder.SizeAtomic(), func(s *stream.LinearStream) {
				encoder.Atomic(s, 0x1000, commands.AtomicOpcode4BIncrement, commands.AtomicDataSizeDword, false, true)
			})
			check(encoder.SizeSemaphoreWait(), func(s *stream.LinearStream) {
				encoder.SemaphoreWait(s, 0x1000, 2, commands.CompareSadGreaterThanOrEqualSdd)
			})
			check(encoder.SizeMathReadModifyWrite(), func(s *stream.LinearStream) {
				encoder.MathReadModifyWrite(s, 0xb118, commands.AluOpcodeOr, 1<<27)
			})
			check(encoder.SizeBatchBufferStart(), func(s *stream.LinearStream) { encoder.BatchBufferStart(s, 0x4000, true) })
			check(encoder.SizeBatchBufferEnd(), func(s *stream.LinearStream) { encoder.BatchBufferEnd(s) })
			check(encoder.SizePipeControl(), func(s *stream.LinearStream) { encoder.PipeControl(s, encode.PipeControlArgs{DcFlushEnable: true}) })
			check(encoder.SizePipeControlWithPostSync(), func(s *stream.LinearStream) {
				encoder.PipeControlWithPostSync(s, commands.PostSyncOperationWriteImmediateData, 0x1000, 3, encode.PipeControlArgs{})
			})
			check(encoder.SizeFullCacheFlush(), func(s *stream.LinearStream) { encoder.FullCacheFlush(s) })
			check(encoder.SizeDebugModeRegisters(), func(s *stream.LinearStream) { encoder.DebugModeRegisters(s) })

			for _, request := range computeModes {
				check(encoder.SizeComputeMode(request), func(s *stream.LinearStream) { encoder.ComputeMode(s, request) })
			}
			for _, args := range dispatchArgs {
				check(encoder.SizeDispatchKernel(args), func(s *stream.LinearStream) { encoder.DispatchKernel(s, newHeaps(), args) })
			}
		})
	}
}

func TestPipeControlWithPostSyncWorkaround(t *testing.T) {
	hwInfo, _ := hw.DefaultHardwareInfo(hw.ProductTGLLP)
	hwInfo.Workarounds.WaPipeControlBeforePostSync = true
	encoder, err := encode.New(hwInfo, config.Default())
	require.NoError(t, err)

	s := newStream()
	encoder.PipeControlWithPostSync(s, commands.PostSyncOperationWriteImmediateData, 0x5000, 0x1234, encode.PipeControlArgs{})

	pipeControls := commands.Filter[*commands.PipeControl](parse(t, s))
	require.Len(t, pipeControls, 2)
	require.Equal(t, commands.PostSyncOperationNoWrite, pipeControls[0].PostSyncOperation)
	require.True(t, pipeControls[0].CommandStreamerStallEnable)
	require.Equal(t, commands.PostSyncOperationWriteImmediateData, pipeControls[1].PostSyncOperation)
	require.Equal(t, uint64(0x5000), pipeControls[1].Address)
	require.Equal(t, uint64(0x1234), pipeControls[1].ImmediateData)
}

func TestFullCacheFlushInvalidatesConstantCache(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyGen11, config.Default())
	require.NoError(t, err)

	s := newStream()
	encoder.FullCacheFlush(s)

	var pipeControl commands.PipeControl
	require.NoError(t, pipeControl.Decode(s.Bytes()))
	require.True(t, pipeControl.ConstantCacheInvalidationEnable)
	require.True(t, pipeControl.DcFlushEnable)
}

func TestComputeModeSizeXeHPC(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyXeHPC, config.Default())
	require.NoError(t, err)

	expected := (&commands.StateComputeMode{}).Size() + (&commands.PipeControl{}).Size()

	require.Equal(t, 0, encoder.SizeComputeMode(encode.ComputeModeRequest{}))
	require.Equal(t, expected, encoder.SizeComputeMode(encode.ComputeModeRequest{LargeGrfMode: true, LargeGrfChanged: true}))
	require.Equal(t, expected, encoder.SizeComputeMode(encode.ComputeModeRequest{
		CoherencyRequired: true,
		LargeGrfMode:      true,
		LargeGrfChanged:   true,
	}))

	s := newStream()
	encoder.ComputeMode(s, encode.ComputeModeRequest{LargeGrfMode: true, LargeGrfChanged: true})
	modes := commands.Filter[*commands.StateComputeMode](parse(t, s))
	require.Len(t, modes, 1)
	require.True(t, modes[0].LargeGrfMode)
}

func TestComputeModeBeforeGen12LP(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyGen9, config.Default())
	require.NoError(t, err)
	require.Equal(t, 0, encoder.SizeComputeMode(encode.ComputeModeRequest{CoherencyChanged: true}))

	encoder, err = encode.ForFamily(hw.FamilyGen12LP, config.Default())
	require.NoError(t, err)
	require.Equal(t, (&commands.StateComputeMode{}).Size(), encoder.SizeComputeMode(encode.ComputeModeRequest{CoherencyChanged: true}))
	require.Equal(t, 0, encoder.SizeComputeMode(encode.ComputeModeRequest{LargeGrfChanged: true}))
}

func dispatchWalker(t *testing.T, encoder encode.Encoder, args *encode.DispatchArgs) *commands.ComputeWalker {
	s := newStream()
	encoder.DispatchKernel(s, newHeaps(), args)

	walkers := commands.Filter[*commands.ComputeWalker](parse(t, s))
	require.Len(t, walkers, 1)
	return walkers[0]
}

func TestPostSyncDataportSubsliceCacheFlush(t *testing.T) {
	args := &encode.DispatchArgs{
		GroupCount:           [3]uint32{2, 1, 1},
		EventAddress:         64 * 123,
		L3FlushAfterPostSync: true,
	}

	for _, family := range []hw.Family{hw.FamilyXeHPG, hw.FamilyXeHPC} {
		encoder, err := encode.ForFamily(family, config.Default())
		require.NoError(t, err)
		walker := dispatchWalker(t, encoder, args)
		require.True(t, walker.PostSync.DataportSubsliceCacheFlush, family.String())
		require.Equal(t, uint64(64*123), walker.PostSync.DestinationAddress)
	}

	encoder, err := encode.ForFamily(hw.FamilyXeHP, config.Default())
	require.NoError(t, err)
	require.False(t, dispatchWalker(t, encoder, args).PostSync.DataportSubsliceCacheFlush)
}

func TestPostSyncMocsOnDG2(t *testing.T) {
	hwInfo, _ := hw.DefaultHardwareInfo(hw.ProductDG2)
	encoder, err := encode.New(hwInfo, config.Default())
	require.NoError(t, err)

	walker := dispatchWalker(t, encoder, &encode.DispatchArgs{GroupCount: [3]uint32{2, 1, 1}, EventAddress: 64 * 123})
	require.Equal(t, encode.MocsIndexCachelineMisaligned<<1, walker.PostSync.Mocs)

	hwInfo, _ = hw.DefaultHardwareInfo(hw.ProductPVC)
	encoder, err = encode.New(hwInfo, config.Default())
	require.NoError(t, err)

	walker = dispatchWalker(t, encoder, &encode.DispatchArgs{GroupCount: [3]uint32{2, 1, 1}, EventAddress: 64 * 123})
	require.Equal(t, uint32(0), walker.PostSync.Mocs)
}

func TestPreferredSlmAllocationSize(t *testing.T) {
	const kb = 1024
	values := map[uint32]uint32{
		0:       encode.PreferredSlmSize0K,
		16 * kb: encode.PreferredSlmSize16K,
		32 * kb: encode.PreferredSlmSize32K,
		64 * kb: encode.PreferredSlmSize64K,
	}

	hwInfo, _ := hw.DefaultHardwareInfo(hw.ProductDG2)
	for _, revision := range []uint16{0, 1, 2, 3} {
		hwInfo.RevisionID = revision
		encoder, err := encode.New(hwInfo, config.Default())
		require.NoError(t, err)

		for slm, expected := range values {
			if revision == 0 {
				expected = encode.PreferredSlmSize128K
			}
			require.Equal(t, expected, encoder.PreferredSlmAllocationSize(slm), "revision %d slm %d", revision, slm)
		}
	}
}

func TestPreferredSlmAllocationSizeOverride(t *testing.T) {
	hwInfo, _ := hw.DefaultHardwareInfo(hw.ProductDG2)
	hwInfo.RevisionID = 3

	for _, override := range []uint32{encode.PreferredSlmSize0K, encode.PreferredSlmSize32K, encode.PreferredSlmSize128K} {
		flags := configtest.Override(t, func(flags *config.Flags) {
			flags.OverridePreferredSlmAllocationSizePerDss = int32(override)
		})
		encoder, err := encode.New(hwInfo, flags)
		require.NoError(t, err)

		for _, slm := range []uint32{0, 32 * 1024, 64 * 1024} {
			require.Equal(t, override, encoder.PreferredSlmAllocationSize(slm))
		}
	}

	flags := configtest.Override(t, func(flags *config.Flags) {
		flags.OverridePreferredSlmAllocationSizePerDss = 5
	})
	encoder, err := encode.New(hwInfo, flags)
	require.NoError(t, err)

	walker := dispatchWalker(t, encoder, &encode.DispatchArgs{GroupCount: [3]uint32{2, 1, 1}, SlmTotalSize: 1})
	require.Equal(t, encode.PreferredSlmSize128K, walker.InterfaceDescriptor.PreferredSlmAllocationSize)
}

func TestProgramBarrierEnable(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyXeHPG, config.Default())
	require.NoError(t, err)

	for _, count := range []uint32{0, 1, 2, 7} {
		var idd commands.InterfaceDescriptorData
		encoder.ProgramBarrierEnable(&idd, count)
		require.Equal(t, count, idd.NumberOfBarriers)
	}

	encoder, err = encode.ForFamily(hw.FamilyGen9, config.Default())
	require.NoError(t, err)

	var idd commands.InterfaceDescriptorData
	encoder.ProgramBarrierEnable(&idd, 3)
	require.True(t, idd.BarrierEnable)
	require.Equal(t, uint32(0), idd.NumberOfBarriers)
}

func TestMediaDispatchSequence(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyGen9, config.Default())
	require.NoError(t, err)

	heaps := newHeaps()
	s := newStream()
	encoder.DispatchKernel(s, heaps, &encode.DispatchArgs{
		GroupCount:      [3]uint32{3, 1, 1},
		LocalSize:       [3]uint32{12, 1, 1},
		SimdSize:        commands.SimdSize8,
		CrossThreadData: []byte{1, 2, 3, 4},
		EventAddress:    0x8000,
	})

	parsed := parse(t, s)
	require.Equal(t, []commands.Kind{
		commands.KindMediaStateFlush,
		commands.KindMediaInterfaceDescriptorLoad,
		commands.KindGpgpuWalker,
		commands.KindMediaStateFlush,
		commands.KindPipeControl,
	}, commands.Kinds(parsed))

	walker := commands.Filter[*commands.GpgpuWalker](parsed)[0]
	require.Equal(t, uint32(3), walker.ThreadGroupIDXDimension)
	require.Equal(t, uint32(1), walker.ThreadWidthCounterMaximum)
	require.Equal(t, uint32(0xf), walker.RightExecutionMask)
	require.Equal(t, commands.InterfaceDescriptorDataSize, heaps.DynamicState.Used())
	require.Equal(t, 32, heaps.IndirectObject.Used())

	var idd commands.InterfaceDescriptorData
	idd.Decode(heaps.DynamicState.Bytes())
	require.Equal(t, uint32(2), idd.NumberOfThreadsInGpgpuThreadGroup)
	require.Equal(t, uint32(1), idd.CrossThreadConstantDataReadLength)
}

func TestMathReadModifyWrite(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyGen9, config.Default())
	require.NoError(t, err)

	s := newStream()
	encoder.MathReadModifyWrite(s, 0xb118, commands.AluOpcodeAnd, ^uint32(1<<27))

	parsed := parse(t, s)
	require.Equal(t, []commands.Kind{
		commands.KindMiLoadRegisterReg,
		commands.KindMiLoadRegisterImm,
		commands.KindMiMath,
		commands.KindMiLoadRegisterReg,
	}, commands.Kinds(parsed))

	math := commands.Filter[*commands.MiMath](parsed)[0]
	require.Len(t, math.Instructions, commands.NumAluInstForReadModifyWrite)
	require.Equal(t, commands.AluOpcodeAnd, math.Instructions[2].Opcode)

	registers := commands.Filter[*commands.MiLoadRegisterReg](parsed)
	require.Equal(t, uint32(0xb118), registers[0].SourceRegisterAddress)
	require.Equal(t, commands.CSGprR0, registers[1].SourceRegisterAddress)
	require.Equal(t, uint32(0xb118), registers[1].DestinationRegisterAddress)
}

func TestDebugModeRegisters(t *testing.T) {
	encoder, err := encode.ForFamily(hw.FamilyXeHPG, config.Default())
	require.NoError(t, err)

	s := newStream()
	encoder.DebugModeRegisters(s)

	lris := commands.Filter[*commands.MiLoadRegisterImm](parse(t, s))
	require.Len(t, lris, 2)
	require.Equal(t, encode.DebugModeRegisterXeHPG, lris[0].RegisterOffset)
	require.Equal(t, encode.DebugModeRegisterValue, lris[0].DataDword)
	require.Equal(t, encode.TdCtlRegister, lris[1].RegisterOffset)
}

func TestUnknownFamily(t *testing.T) {
	_, err := encode.New(hw.HardwareInfo{}, config.Default())
	require.Error(t, err)

	_, err = encode.ForFamily(hw.FamilyUnknown, config.Default())
	require.Error(t, err)
}

func TestSlmSizeEncoding(t *testing.T) {
	require.Equal(t, uint32(0), encode.SlmSizeEncoding(0))
	require.Equal(t, uint32(1), encode.SlmSizeEncoding(1))
	require.Equal(t, uint32(1), encode.SlmSizeEncoding(1024))
	require.Equal(t, uint32(2), encode.SlmSizeEncoding(1025))
	require.Equal(t, uint32(7), encode.SlmSizeEncoding(64*1024))
	require.Equal(t, uint32(7), encode.SlmSizeEncoding(128*1024))
}
