package commands

type MediaStateFlush struct {
	InterfaceDescriptorOffset uint32
	FlushToGo                 bool
}

func (c *MediaStateFlush) Kind() Kind { return KindMediaStateFlush }
func (c *MediaStateFlush) Size() int  { return 2 * DwordSize }

func (c *MediaStateFlush) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodeMediaStateFlush, 2))
	putDword(dst, 1, bits(c.InterfaceDescriptorOffset, 0, 6)|flag(c.FlushToGo, 7))
}

func (c *MediaStateFlush) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	value := getDword(src, 1)
	c.InterfaceDescriptorOffset = field(value, 0, 6)
	c.FlushToGo = isSet(value, 7)
	return nil
}

// MediaInterfaceDescriptorLoad points the media pipeline at a table of InterfaceDescriptorData
// entries starting DataStartAddress bytes into the dynamic state heap
type MediaInterfaceDescriptorLoad struct {
	InterfaceDescriptorTotalLength      uint32
	InterfaceDescriptorDataStartAddress uint32
}

func (c *MediaInterfaceDescriptorLoad) Kind() Kind { return KindMediaInterfaceDescriptorLoad }
func (c *MediaInterfaceDescriptorLoad) Size() int  { return 4 * DwordSize }

func (c *MediaInterfaceDescriptorLoad) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodeMediaInterfaceDescriptorLoad, 4))
	putDword(dst, 1, 0)
	putDword(dst, 2, bits(c.InterfaceDescriptorTotalLength, 0, 17))
	putDword(dst, 3, c.InterfaceDescriptorDataStartAddress)
}

func (c *MediaInterfaceDescriptorLoad) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.InterfaceDescriptorTotalLength = field(getDword(src, 2), 0, 17)
	c.InterfaceDescriptorDataStartAddress = getDword(src, 3)
	return nil
}

type MediaVfeState struct {
	ScratchSpaceBasePointer uint64
	PerThreadScratchSpace   uint32
	MaximumNumberOfThreads  uint32
	NumberOfUrbEntries      uint32
	UrbEntryAllocationSize  uint32
	CurbeAllocationSize     uint32
}

func (c *MediaVfeState) Kind() Kind { return KindMediaVfeState }
func (c *MediaVfeState) Size() int  { return 9 * DwordSize }

func (c *MediaVfeState) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodeMediaVfeState, 9))
	putQword(dst, 1, (c.ScratchSpaceBasePointer&^0x3ff)|uint64(bits(c.PerThreadScratchSpace, 0, 4)))
	putDword(dst, 3, bits(c.NumberOfUrbEntries, 8, 8)|bits(c.MaximumNumberOfThreads, 16, 16))
	putDword(dst, 4, 0)
	putDword(dst, 5, bits(c.CurbeAllocationSize, 0, 16)|bits(c.UrbEntryAllocationSize, 16, 16))
	putDword(dst, 6, 0)
	putDword(dst, 7, 0)
	putDword(dst, 8, 0)
}

func (c *MediaVfeState) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	scratch := getQword(src, 1)
	c.ScratchSpaceBasePointer = scratch &^ 0x3ff
	c.PerThreadScratchSpace = uint32(scratch & 0xf)
	value := getDword(src, 3)
	c.NumberOfUrbEntries = field(value, 8, 8)
	c.MaximumNumberOfThreads = field(value, 16, 16)
	value = getDword(src, 5)
	c.CurbeAllocationSize = field(value, 0, 16)
	c.UrbEntryAllocationSize = field(value, 16, 16)
	return nil
}

type SimdSize uint32

const (
	SimdSize8 SimdSize = iota
	SimdSize16
	SimdSize32
)

// GpgpuWalker dispatches a grid of thread groups through the media pipeline
type GpgpuWalker struct {
	InterfaceDescriptorOffset uint32
	IndirectDataLength        uint32
	IndirectDataStartAddress  uint32
	SimdSize                  SimdSize
	ThreadWidthCounterMaximum uint32

	ThreadGroupIDStartingX       uint32
	ThreadGroupIDXDimension      uint32
	ThreadGroupIDStartingY       uint32
	ThreadGroupIDYDimension      uint32
	ThreadGroupIDStartingResumeZ uint32
	ThreadGroupIDZDimension      uint32

	RightExecutionMask  uint32
	BottomExecutionMask uint32
}

func (c *GpgpuWalker) Kind() Kind { return KindGpgpuWalker }
func (c *GpgpuWalker) Size() int  { return 15 * DwordSize }

func (c *GpgpuWalker) Encode(dst []byte) {
	putDword(dst, 0, gfxHeader(gfxOpcodeGpgpuWalker, 15))
	putDword(dst, 1, bits(c.InterfaceDescriptorOffset, 0, 6))
	putDword(dst, 2, bits(c.IndirectDataLength, 0, 17))
	putDword(dst, 3, c.IndirectDataStartAddress&^0x3f)
	putDword(dst, 4, bits(c.ThreadWidthCounterMaximum, 0, 6)|bits(uint32(c.SimdSize), 30, 2))
	putDword(dst, 5, c.ThreadGroupIDStartingX)
	putDword(dst, 6, 0)
	putDword(dst, 7, c.ThreadGroupIDXDimension)
	putDword(dst, 8, c.ThreadGroupIDStartingY)
	putDword(dst, 9, 0)
	putDword(dst, 10, c.ThreadGroupIDYDimension)
	putDword(dst, 11, c.ThreadGroupIDStartingResumeZ)
	putDword(dst, 12, c.ThreadGroupIDZDimension)
	putDword(dst, 13, c.RightExecutionMask)
	putDword(dst, 14, c.BottomExecutionMask)
}

func (c *GpgpuWalker) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.InterfaceDescriptorOffset = field(getDword(src, 1), 0, 6)
	c.IndirectDataLength = field(getDword(src, 2), 0, 17)
	c.IndirectDataStartAddress = getDword(src, 3)
	value := getDword(src, 4)
	c.ThreadWidthCounterMaximum = field(value, 0, 6)
	c.SimdSize = SimdSize(field(value, 30, 2))
	c.ThreadGroupIDStartingX = getDword(src, 5)
	c.ThreadGroupIDXDimension = getDword(src, 7)
	c.ThreadGroupIDStartingY = getDword(src, 8)
	c.ThreadGroupIDYDimension = getDword(src, 10)
	c.ThreadGroupIDStartingResumeZ = getDword(src, 11)
	c.ThreadGroupIDZDimension = getDword(src, 12)
	c.RightExecutionMask = getDword(src, 13)
	c.BottomExecutionMask = getDword(src, 14)
	return nil
}

// InterfaceDescriptorData is an eight-dword state entry, not a command. It lives in the dynamic state
// heap on media-pipeline families and inline in COMPUTE_WALKER on later ones.
type InterfaceDescriptorData struct {
	KernelStartPointer                 uint64
	DenormMode                         bool
	SamplerStatePointer                uint32
	SamplerCount                       uint32
	BindingTablePointer                uint32
	BindingTableEntryCount             uint32
	ConstantIndirectUrbEntryReadLength uint32

	NumberOfThreadsInGpgpuThreadGroup uint32
	SharedLocalMemorySize             uint32
	BarrierEnable                     bool
	NumberOfBarriers                  uint32

	CrossThreadConstantDataReadLength uint32
	PreferredSlmAllocationSize        uint32
}

const InterfaceDescriptorDataSize = 8 * DwordSize

func (d *InterfaceDescriptorData) Encode(dst []byte) {
	putQword(dst, 0, d.KernelStartPointer&^0x3f)
	putDword(dst, 2, flag(d.DenormMode, 19))
	putDword(dst, 3, (d.SamplerStatePointer&^0x1f)|bits(d.SamplerCount, 2, 3))
	putDword(dst, 4, (d.BindingTablePointer&^0x1f)|bits(d.BindingTableEntryCount, 0, 5))
	putDword(dst, 5, bits(d.ConstantIndirectUrbEntryReadLength, 16, 16))
	putDword(dst, 6, bits(d.NumberOfThreadsInGpgpuThreadGroup, 0, 10)|
		bits(d.SharedLocalMemorySize, 16, 5)|
		flag(d.BarrierEnable, 21)|
		bits(d.NumberOfBarriers, 28, 3))
	putDword(dst, 7, bits(d.CrossThreadConstantDataReadLength, 0, 8)|bits(d.PreferredSlmAllocationSize, 16, 4))
}

func (d *InterfaceDescriptorData) Decode(src []byte) {
	d.KernelStartPointer = getQword(src, 0)
	d.DenormMode = isSet(getDword(src, 2), 19)
	value := getDword(src, 3)
	d.SamplerStatePointer = value &^ 0x1f
	d.SamplerCount = field(value, 2, 3)
	value = getDword(src, 4)
	d.BindingTablePointer = value &^ 0x1f
	d.BindingTableEntryCount = field(value, 0, 5)
	d.ConstantIndirectUrbEntryReadLength = field(getDword(src, 5), 16, 16)
	value = getDword(src, 6)
	d.NumberOfThreadsInGpgpuThreadGroup = field(value, 0, 10)
	d.SharedLocalMemorySize = field(value, 16, 5)
	d.BarrierEnable = isSet(value, 21)
	d.NumberOfBarriers = field(value, 28, 3)
	value = getDword(src, 7)
	d.CrossThreadConstantDataReadLength = field(value, 0, 8)
	d.PreferredSlmAllocationSize = field(value, 16, 4)
}
