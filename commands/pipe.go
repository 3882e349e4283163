package commands

type PostSyncOperation uint32

const (
	PostSyncOperationNoWrite PostSyncOperation = iota
	PostSyncOperationWriteImmediateData
	PostSyncOperationWritePsDepthCount
	PostSyncOperationWriteTimestamp
)

var postSyncOperationMapping = map[PostSyncOperation]string{
	PostSyncOperationNoWrite:            "NoWrite",
	PostSyncOperationWriteImmediateData: "WriteImmediateData",
	PostSyncOperationWritePsDepthCount:  "WritePsDepthCount",
	PostSyncOperationWriteTimestamp:     "WriteTimestamp",
}

func (o PostSyncOperation) String() string {
	return postSyncOperationMapping[o]
}

// PipeControl synchronizes the pipeline, flushes or invalidates caches, and optionally writes to
// Address once prior work completes
type PipeControl struct {
	HdcPipelineFlush bool

	DepthCacheFlushEnable            bool
	StallAtPixelScoreboard           bool
	StateCacheInvalidationEnable     bool
	ConstantCacheInvalidationEnable  bool
	VfCacheInvalidationEnable        bool
	DcFlushEnable                    bool
	PipeControlFlushEnable           bool
	NotifyEnable                     bool
	TextureCacheInvalidationEnable   bool
	InstructionCacheInvalidateEnable bool
	RenderTargetCacheFlushEnable     bool
	DepthStallEnable                 bool
	PostSyncOperation                PostSyncOperation
	GenericMediaStateClear           bool
	TlbInvalidate                    bool
	CommandStreamerStallEnable       bool
	WorkloadPartitionIDOffsetEnable  bool

	Address       uint64
	ImmediateData uint64
}

func (c *PipeControl) Kind() Kind { return KindPipeControl }
func (c *PipeControl) Size() int  { return 6 * DwordSize }

func (c *PipeControl) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodePipeControl, 6)|flag(c.HdcPipelineFlush, 9))
	putDword(dst, 1, flag(c.DepthCacheFlushEnable, 0)|
		flag(c.StallAtPixelScoreboard, 1)|
		flag(c.StateCacheInvalidationEnable, 2)|
		flag(c.ConstantCacheInvalidationEnable, 3)|
		flag(c.VfCacheInvalidationEnable, 4)|
		flag(c.DcFlushEnable, 5)|
		flag(c.PipeControlFlushEnable, 7)|
		flag(c.NotifyEnable, 8)|
		flag(c.TextureCacheInvalidationEnable, 10)|
		flag(c.InstructionCacheInvalidateEnable, 11)|
		flag(c.RenderTargetCacheFlushEnable, 12)|
		flag(c.DepthStallEnable, 13)|
		bits(uint32(c.PostSyncOperation), 14, 2)|
		flag(c.GenericMediaStateClear, 16)|
		flag(c.TlbInvalidate, 18)|
		flag(c.CommandStreamerStallEnable, 20)|
		flag(c.WorkloadPartitionIDOffsetEnable, 27))
	putQword(dst, 2, c.Address&^0x3)
	putQword(dst, 4, c.ImmediateData)
}

func (c *PipeControl) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.HdcPipelineFlush = isSet(getDword(src, 0), 9)
	flags := getDword(src, 1)
	c.DepthCacheFlushEnable = isSet(flags, 0)
	c.StallAtPixelScoreboard = isSet(flags, 1)
	c.StateCacheInvalidationEnable = isSet(flags, 2)
	c.ConstantCacheInvalidationEnable = isSet(flags, 3)
	c.VfCacheInvalidationEnable = isSet(flags, 4)
	c.DcFlushEnable = isSet(flags, 5)
	c.PipeControlFlushEnable = isSet(flags, 7)
	c.NotifyEnable = isSet(flags, 8)
	c.TextureCacheInvalidationEnable = isSet(flags, 10)
	c.InstructionCacheInvalidateEnable = isSet(flags, 11)
	c.RenderTargetCacheFlushEnable = isSet(flags, 12)
	c.DepthStallEnable = isSet(flags, 13)
	c.PostSyncOperation = PostSyncOperation(field(flags, 14, 2))
	c.GenericMediaStateClear = isSet(flags, 16)
	c.TlbInvalidate = isSet(flags, 18)
	c.CommandStreamerStallEnable = isSet(flags, 20)
	c.WorkloadPartitionIDOffsetEnable = isSet(flags, 27)
	c.Address = getQword(src, 2)
	c.ImmediateData = getQword(src, 4)
	return nil
}

// StateComputeMode selects compute pipeline modes. Only fields whose mask bit is set are applied
// by the hardware, so Encode sets the mask for every field it writes.
type StateComputeMode struct {
	ForceNonCoherent                            uint32
	LargeGrfMode                                bool
	ForceDisableSupportForMultiGpuPartialWrites bool
	ForceDisableSupportForMultiGpuAtomics       bool

	MaskBits uint32
}

const (
	StateComputeModeMaskForceNonCoherent uint32 = 0x3 << 3
	StateComputeModeMaskLargeGrfMode     uint32 = 1 << 15
	StateComputeModeMaskMultiGpu         uint32 = 0x3 << 1
)

func (c *StateComputeMode) Kind() Kind { return KindStateComputeMode }
func (c *StateComputeMode) Size() int  { return 2 * DwordSize }

func (c *StateComputeMode) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodeStateComputeMode, 2))
	putDword(dst, 1, flag(c.ForceDisableSupportForMultiGpuAtomics, 1)|
		flag(c.ForceDisableSupportForMultiGpuPartialWrites, 2)|
		bits(c.ForceNonCoherent, 3, 2)|
		flag(c.LargeGrfMode, 15)|
		bits(c.MaskBits, 16, 16))
}

func (c *StateComputeMode) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	value := getDword(src, 1)
	c.ForceDisableSupportForMultiGpuAtomics = isSet(value, 1)
	c.ForceDisableSupportForMultiGpuPartialWrites = isSet(value, 2)
	c.ForceNonCoherent = field(value, 3, 2)
	c.LargeGrfMode = isSet(value, 15)
	c.MaskBits = field(value, 16, 16)
	return nil
}
