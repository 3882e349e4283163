package commands

type PartitionType uint32

const (
	PartitionTypeDisabled PartitionType = iota
	PartitionTypeX
	PartitionTypeY
	PartitionTypeZ
)

var partitionTypeMapping = map[PartitionType]string{
	PartitionTypeDisabled: "Disabled",
	PartitionTypeX:        "X",
	PartitionTypeY:        "Y",
	PartitionTypeZ:        "Z",
}

func (p PartitionType) String() string {
	return partitionTypeMapping[p]
}

// PostSyncData is the five-dword post-sync block embedded in COMPUTE_WALKER
type PostSyncData struct {
	Operation                  PostSyncOperation
	DataportPipelineFlush      bool
	DataportSubsliceCacheFlush bool
	Mocs                       uint32
	DestinationAddress         uint64
	ImmediateData              uint64
}

const postSyncDataDwords = 5

func (p *PostSyncData) encode(dst []byte, index int) {
	putDword(dst, index, bits(uint32(p.Operation), 0, 2)|
		flag(p.DataportPipelineFlush, 3)|
		flag(p.DataportSubsliceCacheFlush, 4)|
		bits(p.Mocs, 5, 7))
	putQword(dst, index+1, p.DestinationAddress&^0x7)
	putQword(dst, index+3, p.ImmediateData)
}

func (p *PostSyncData) decode(src []byte, index int) {
	value := getDword(src, index)
	p.Operation = PostSyncOperation(field(value, 0, 2))
	p.DataportPipelineFlush = isSet(value, 3)
	p.DataportSubsliceCacheFlush = isSet(value, 4)
	p.Mocs = field(value, 5, 7)
	p.DestinationAddress = getQword(src, index+1)
	p.ImmediateData = getQword(src, index+3)
}

const ComputeWalkerInlineDataDwords = 8

// ComputeWalker dispatches a grid of thread groups with its interface descriptor and post-sync
// operation carried inline. Layout in dwords: header, 1..16 dispatch, 17..21 post-sync,
// 22..29 interface descriptor, 30..37 inline data.
type ComputeWalker struct {
	IndirectDataLength       uint32
	IndirectDataStartAddress uint32
	EmitLocalID              uint32
	GenerateLocalID          bool
	SimdSize                 SimdSize
	ExecutionMask            uint32

	LocalXMaximum uint32
	LocalYMaximum uint32
	LocalZMaximum uint32

	ThreadGroupIDXDimension uint32
	ThreadGroupIDYDimension uint32
	ThreadGroupIDZDimension uint32
	ThreadGroupIDStartingX  uint32
	ThreadGroupIDStartingY  uint32
	ThreadGroupIDStartingZ  uint32

	PartitionType           PartitionType
	PartitionID             uint32
	PartitionSize           uint32
	WorkloadPartitionEnable bool

	PostSync            PostSyncData
	InterfaceDescriptor InterfaceDescriptorData
	InlineData          [ComputeWalkerInlineDataDwords]uint32
}

const computeWalkerDwords = 38

func (c *ComputeWalker) Kind() Kind { return KindComputeWalker }
func (c *ComputeWalker) Size() int  { return computeWalkerDwords * DwordSize }

func (c *ComputeWalker) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodeComputeWalker, computeWalkerDwords)|flag(c.WorkloadPartitionEnable, 8))
	putDword(dst, 1, 0)
	putDword(dst, 2, bits(c.IndirectDataLength, 0, 17)|bits(c.EmitLocalID, 19, 3)|flag(c.GenerateLocalID, 25))
	putDword(dst, 3, c.IndirectDataStartAddress&^0x3f)
	putDword(dst, 4, bits(uint32(c.SimdSize), 30, 2))
	putDword(dst, 5, c.ExecutionMask)
	putDword(dst, 6, bits(c.LocalXMaximum, 0, 10)|bits(c.LocalYMaximum, 10, 10)|bits(c.LocalZMaximum, 20, 10))
	putDword(dst, 7, c.ThreadGroupIDXDimension)
	putDword(dst, 8, c.ThreadGroupIDYDimension)
	putDword(dst, 9, c.ThreadGroupIDZDimension)
	putDword(dst, 10, c.ThreadGroupIDStartingX)
	putDword(dst, 11, c.ThreadGroupIDStartingY)
	putDword(dst, 12, c.ThreadGroupIDStartingZ)
	putDword(dst, 13, bits(c.PartitionID, 0, 16)|bits(uint32(c.PartitionType), 30, 2))
	putDword(dst, 14, c.PartitionSize)
	putDword(dst, 15, 0)
	putDword(dst, 16, 0)
	c.PostSync.encode(dst, 17)
	c.InterfaceDescriptor.Encode(dst[(17+postSyncDataDwords)*DwordSize:])
	for i, value := range c.InlineData {
		putDword(dst, 30+i, value)
	}
}

func (c *ComputeWalker) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.WorkloadPartitionEnable = isSet(getDword(src, 0), 8)
	value := getDword(src, 2)
	c.IndirectDataLength = field(value, 0, 17)
	c.EmitLocalID = field(value, 19, 3)
	c.GenerateLocalID = isSet(value, 25)
	c.IndirectDataStartAddress = getDword(src, 3)
	c.SimdSize = SimdSize(field(getDword(src, 4), 30, 2))
	c.ExecutionMask = getDword(src, 5)
	value = getDword(src, 6)
	c.LocalXMaximum = field(value, 0, 10)
	c.LocalYMaximum = field(value, 10, 10)
	c.LocalZMaximum = field(value, 20, 10)
	c.ThreadGroupIDXDimension = getDword(src, 7)
	c.ThreadGroupIDYDimension = getDword(src, 8)
	c.ThreadGroupIDZDimension = getDword(src, 9)
	c.ThreadGroupIDStartingX = getDword(src, 10)
	c.ThreadGroupIDStartingY = getDword(src, 11)
	c.ThreadGroupIDStartingZ = getDword(src, 12)
	value = getDword(src, 13)
	c.PartitionID = field(value, 0, 16)
	c.PartitionType = PartitionType(field(value, 30, 2))
	c.PartitionSize = getDword(src, 14)
	c.PostSync.decode(src, 17)
	c.InterfaceDescriptor.Decode(src[(17+postSyncDataDwords)*DwordSize:])
	for i := range c.InlineData {
		c.InlineData[i] = getDword(src, 30+i)
	}
	return nil
}
