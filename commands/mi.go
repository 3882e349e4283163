package commands

// MiNoop is a single-dword no-op. Identification is carried in bits 21:0 when nonzero.
type MiNoop struct {
	IdentificationNumber uint32
}

func (c *MiNoop) Kind() Kind { return KindMiNoop }
func (c *MiNoop) Size() int  { return 1 * DwordSize }

func (c *MiNoop) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeNoop, 1)|bits(c.IdentificationNumber, 0, 22))
}

func (c *MiNoop) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.IdentificationNumber = field(getDword(src, 0), 0, 22)
	return nil
}

type MiArbCheck struct{}

func (c *MiArbCheck) Kind() Kind { return KindMiArbCheck }
func (c *MiArbCheck) Size() int  { return 1 * DwordSize }

func (c *MiArbCheck) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeArbCheck, 1))
}

func (c *MiArbCheck) Decode(src []byte) error {
	return checkHeader(src, c.Kind(), c.Size())
}

type MiBatchBufferEnd struct{}

func (c *MiBatchBufferEnd) Kind() Kind { return KindMiBatchBufferEnd }
func (c *MiBatchBufferEnd) Size() int  { return 1 * DwordSize }

func (c *MiBatchBufferEnd) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeBatchBufferEnd, 1))
}

func (c *MiBatchBufferEnd) Decode(src []byte) error {
	return checkHeader(src, c.Kind(), c.Size())
}

// MiBatchBufferStart jumps the command streamer to StartAddress
type MiBatchBufferStart struct {
	StartAddress      uint64
	SecondLevelBatch  bool
	AddressSpacePPGTT bool
}

func (c *MiBatchBufferStart) Kind() Kind { return KindMiBatchBufferStart }
func (c *MiBatchBufferStart) Size() int  { return 3 * DwordSize }

func (c *MiBatchBufferStart) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeBatchBufferStart, 3)|flag(c.SecondLevelBatch, 22)|flag(c.AddressSpacePPGTT, 8))
	putQword(dst, 1, c.StartAddress&^0x3)
}

func (c *MiBatchBufferStart) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	header := getDword(src, 0)
	c.SecondLevelBatch = isSet(header, 22)
	c.AddressSpacePPGTT = isSet(header, 8)
	c.StartAddress = getQword(src, 1)
	return nil
}

// MiLoadRegisterImm writes DataDword to the MMIO register at RegisterOffset
type MiLoadRegisterImm struct {
	RegisterOffset  uint32
	DataDword       uint32
	MmioRemapEnable bool
}

func (c *MiLoadRegisterImm) Kind() Kind { return KindMiLoadRegisterImm }
func (c *MiLoadRegisterImm) Size() int  { return 3 * DwordSize }

func (c *MiLoadRegisterImm) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeLoadRegisterImm, 3)|flag(c.MmioRemapEnable, 17))
	putDword(dst, 1, c.RegisterOffset&^0x3)
	putDword(dst, 2, c.DataDword)
}

func (c *MiLoadRegisterImm) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.MmioRemapEnable = isSet(getDword(src, 0), 17)
	c.RegisterOffset = getDword(src, 1)
	c.DataDword = getDword(src, 2)
	return nil
}

type MiLoadRegisterReg struct {
	SourceRegisterAddress      uint32
	DestinationRegisterAddress uint32
	MmioRemapEnableSource      bool
	MmioRemapEnableDestination bool
}

func (c *MiLoadRegisterReg) Kind() Kind { return KindMiLoadRegisterReg }
func (c *MiLoadRegisterReg) Size() int  { return 3 * DwordSize }

func (c *MiLoadRegisterReg) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeLoadRegisterReg, 3)|flag(c.MmioRemapEnableSource, 16)|flag(c.MmioRemapEnableDestination, 17))
	putDword(dst, 1, c.SourceRegisterAddress&^0x3)
	putDword(dst, 2, c.DestinationRegisterAddress&^0x3)
}

func (c *MiLoadRegisterReg) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	header := getDword(src, 0)
	c.MmioRemapEnableSource = isSet(header, 16)
	c.MmioRemapEnableDestination = isSet(header, 17)
	c.SourceRegisterAddress = getDword(src, 1)
	c.DestinationRegisterAddress = getDword(src, 2)
	return nil
}

type MiLoadRegisterMem struct {
	RegisterAddress uint32
	MemoryAddress   uint64
	AsyncModeEnable bool
	MmioRemapEnable bool
}

func (c *MiLoadRegisterMem) Kind() Kind { return KindMiLoadRegisterMem }
func (c *MiLoadRegisterMem) Size() int  { return 4 * DwordSize }

func (c *MiLoadRegisterMem) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeLoadRegisterMem, 4)|flag(c.AsyncModeEnable, 21)|flag(c.MmioRemapEnable, 17))
	putDword(dst, 1, c.RegisterAddress&^0x3)
	putQword(dst, 2, c.MemoryAddress&^0x3)
}

func (c *MiLoadRegisterMem) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	header := getDword(src, 0)
	c.AsyncModeEnable = isSet(header, 21)
	c.MmioRemapEnable = isSet(header, 17)
	c.RegisterAddress = getDword(src, 1)
	c.MemoryAddress = getQword(src, 2)
	return nil
}

// MiStoreRegisterMem copies the MMIO register at RegisterAddress into memory
type MiStoreRegisterMem struct {
	RegisterAddress uint32
	MemoryAddress   uint64
	MmioRemapEnable bool
}

func (c *MiStoreRegisterMem) Kind() Kind { return KindMiStoreRegisterMem }
func (c *MiStoreRegisterMem) Size() int  { return 4 * DwordSize }

func (c *MiStoreRegisterMem) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeStoreRegisterMem, 4)|flag(c.MmioRemapEnable, 17))
	putDword(dst, 1, c.RegisterAddress&^0x3)
	putQword(dst, 2, c.MemoryAddress&^0x3)
}

func (c *MiStoreRegisterMem) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	c.MmioRemapEnable = isSet(getDword(src, 0), 17)
	c.RegisterAddress = getDword(src, 1)
	c.MemoryAddress = getQword(src, 2)
	return nil
}

type MiStoreDataImm struct {
	Address                         uint64
	DataDword0                      uint32
	DataDword1                      uint32
	StoreQword                      bool
	WorkloadPartitionIDOffsetEnable bool
}

func (c *MiStoreDataImm) Kind() Kind { return KindMiStoreDataImm }
func (c *MiStoreDataImm) Size() int  { return 5 * DwordSize }

func (c *MiStoreDataImm) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeStoreDataImm, 5)|flag(c.StoreQword, 21)|flag(c.WorkloadPartitionIDOffsetEnable, 20))
	putQword(dst, 1, c.Address&^0x3)
	putDword(dst, 3, c.DataDword0)
	putDword(dst, 4, c.DataDword1)
}

func (c *MiStoreDataImm) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	header := getDword(src, 0)
	c.StoreQword = isSet(header, 21)
	c.WorkloadPartitionIDOffsetEnable = isSet(header, 20)
	c.Address = getQword(src, 1)
	c.DataDword0 = getDword(src, 3)
	c.DataDword1 = getDword(src, 4)
	return nil
}

type AtomicOpcode uint32

const (
	AtomicOpcode4BMove      AtomicOpcode = 0x04
	AtomicOpcode4BIncrement AtomicOpcode = 0x05
	AtomicOpcode4BDecrement AtomicOpcode = 0x06
	AtomicOpcode8BIncrement AtomicOpcode = 0x25
	AtomicOpcode8BDecrement AtomicOpcode = 0x26
	AtomicOpcode8BAdd       AtomicOpcode = 0x27
)

type AtomicDataSize uint32

const (
	AtomicDataSizeDword AtomicDataSize = iota
	AtomicDataSizeQword
	AtomicDataSizeOctword
)

// MiAtomic performs an atomic read-modify-write on memory. Operands are used when InlineData is set.
type MiAtomic struct {
	Address           uint64
	Opcode            AtomicOpcode
	DataSize          AtomicDataSize
	ReturnDataControl bool
	CSStall           bool
	InlineData        bool
	Operands          [8]uint32
}

func (c *MiAtomic) Kind() Kind { return KindMiAtomic }
func (c *MiAtomic) Size() int  { return 11 * DwordSize }

func (c *MiAtomic) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeAtomic, 11)|
		bits(uint32(c.Opcode), 8, 8)|
		flag(c.ReturnDataControl, 16)|
		flag(c.CSStall, 17)|
		flag(c.InlineData, 18)|
		bits(uint32(c.DataSize), 19, 2))
	putQword(dst, 1, c.Address&^0x3)
	for i, operand := range c.Operands {
		putDword(dst, 3+i, operand)
	}
}

func (c *MiAtomic) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	header := getDword(src, 0)
	c.Opcode = AtomicOpcode(field(header, 8, 8))
	c.ReturnDataControl = isSet(header, 16)
	c.CSStall = isSet(header, 17)
	c.InlineData = isSet(header, 18)
	c.DataSize = AtomicDataSize(field(header, 19, 2))
	c.Address = getQword(src, 1)
	for i := range c.Operands {
		c.Operands[i] = getDword(src, 3+i)
	}
	return nil
}

type CompareOperation uint32

const (
	CompareSadGreaterThanSdd CompareOperation = iota
	CompareSadGreaterThanOrEqualSdd
	CompareSadLessThanSdd
	CompareSadLessThanOrEqualSdd
	CompareSadEqualSdd
	CompareSadNotEqualSdd
)

// MiSemaphoreWait stalls the command streamer until the dword at Address compares true against SemaphoreData
type MiSemaphoreWait struct {
	Address          uint64
	SemaphoreData    uint32
	CompareOperation CompareOperation
	PollingMode      bool
}

func (c *MiSemaphoreWait) Kind() Kind { return KindMiSemaphoreWait }
func (c *MiSemaphoreWait) Size() int  { return 5 * DwordSize }

func (c *MiSemaphoreWait) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeSemaphoreWait, 5)|bits(uint32(c.CompareOperation), 12, 3)|flag(c.PollingMode, 15))
	putDword(dst, 1, c.SemaphoreData)
	putQword(dst, 2, c.Address&^0x3)
	putDword(dst, 4, 0)
}

func (c *MiSemaphoreWait) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), c.Size()); err != nil {
		return err
	}
	header := getDword(src, 0)
	c.CompareOperation = CompareOperation(field(header, 12, 3))
	c.PollingMode = isSet(header, 15)
	c.SemaphoreData = getDword(src, 1)
	c.Address = getQword(src, 2)
	return nil
}
