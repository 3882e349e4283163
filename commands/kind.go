package commands

// Kind identifies a command from its header dword
type Kind uint32

const (
	KindUnknown Kind = iota
	KindMiNoop
	KindMiArbCheck
	KindMiBatchBufferEnd
	KindMiBatchBufferStart
	KindMiLoadRegisterImm
	KindMiLoadRegisterReg
	KindMiLoadRegisterMem
	KindMiStoreRegisterMem
	KindMiStoreDataImm
	KindMiAtomic
	KindMiSemaphoreWait
	KindMiMath
	KindPipeControl
	KindStateComputeMode
	KindMediaStateFlush
	KindMediaInterfaceDescriptorLoad
	KindMediaVfeState
	KindGpgpuWalker
	KindComputeWalker
)

var kindMapping = map[Kind]string{
	KindUnknown:                      "UNKNOWN",
	KindMiNoop:                       "MI_NOOP",
	KindMiArbCheck:                   "MI_ARB_CHECK",
	KindMiBatchBufferEnd:             "MI_BATCH_BUFFER_END",
	KindMiBatchBufferStart:           "MI_BATCH_BUFFER_START",
	KindMiLoadRegisterImm:            "MI_LOAD_REGISTER_IMM",
	KindMiLoadRegisterReg:            "MI_LOAD_REGISTER_REG",
	KindMiLoadRegisterMem:            "MI_LOAD_REGISTER_MEM",
	KindMiStoreRegisterMem:           "MI_STORE_REGISTER_MEM",
	KindMiStoreDataImm:               "MI_STORE_DATA_IMM",
	KindMiAtomic:                     "MI_ATOMIC",
	KindMiSemaphoreWait:              "MI_SEMAPHORE_WAIT",
	KindMiMath:                       "MI_MATH",
	KindPipeControl:                  "PIPE_CONTROL",
	KindStateComputeMode:             "STATE_COMPUTE_MODE",
	KindMediaStateFlush:              "MEDIA_STATE_FLUSH",
	KindMediaInterfaceDescriptorLoad: "MEDIA_INTERFACE_DESCRIPTOR_LOAD",
	KindMediaVfeState:                "MEDIA_VFE_STATE",
	KindGpgpuWalker:                  "GPGPU_WALKER",
	KindComputeWalker:                "COMPUTE_WALKER",
}

func (k Kind) String() string {
	return kindMapping[k]
}

const (
	commandTypeMi  = 0
	commandTypeGfx = 3
)

type miOpcode uint32

const (
	miOpcodeNoop             miOpcode = 0x00
	miOpcodeArbCheck         miOpcode = 0x05
	miOpcodeBatchBufferEnd   miOpcode = 0x0A
	miOpcodeMath             miOpcode = 0x1A
	miOpcodeSemaphoreWait    miOpcode = 0x1C
	miOpcodeStoreDataImm     miOpcode = 0x20
	miOpcodeLoadRegisterImm  miOpcode = 0x22
	miOpcodeStoreRegisterMem miOpcode = 0x24
	miOpcodeLoadRegisterMem  miOpcode = 0x29
	miOpcodeLoadRegisterReg  miOpcode = 0x2A
	miOpcodeAtomic           miOpcode = 0x2F
	miOpcodeBatchBufferStart miOpcode = 0x31
	miOpcodeFirstWithLength  miOpcode = 0x10
)

var miKinds = map[miOpcode]Kind{
	miOpcodeNoop:             KindMiNoop,
	miOpcodeArbCheck:         KindMiArbCheck,
	miOpcodeBatchBufferEnd:   KindMiBatchBufferEnd,
	miOpcodeMath:             KindMiMath,
	miOpcodeSemaphoreWait:    KindMiSemaphoreWait,
	miOpcodeStoreDataImm:     KindMiStoreDataImm,
	miOpcodeLoadRegisterImm:  KindMiLoadRegisterImm,
	miOpcodeStoreRegisterMem: KindMiStoreRegisterMem,
	miOpcodeLoadRegisterMem:  KindMiLoadRegisterMem,
	miOpcodeLoadRegisterReg:  KindMiLoadRegisterReg,
	miOpcodeAtomic:           KindMiAtomic,
	miOpcodeBatchBufferStart: KindMiBatchBufferStart,
}

// gfxOpcode packs pipeline, opcode and subopcode the way they sit in bits 28:16 of the header
type gfxOpcode uint32

func makeGfxOpcode(pipeline, opcode, subOpcode uint32) gfxOpcode {
	return gfxOpcode(pipeline<<11 | opcode<<8 | subOpcode)
}

var (
	gfxOpcodePipeControl                  = makeGfxOpcode(3, 2, 0)
	gfxOpcodeStateComputeMode             = makeGfxOpcode(0, 1, 5)
	gfxOpcodeMediaVfeState                = makeGfxOpcode(2, 0, 0)
	gfxOpcodeMediaInterfaceDescriptorLoad = makeGfxOpcode(2, 0, 2)
	gfxOpcodeMediaStateFlush              = makeGfxOpcode(2, 0, 4)
	gfxOpcodeGpgpuWalker                  = makeGfxOpcode(2, 1, 5)
	gfxOpcodeComputeWalker                = makeGfxOpcode(2, 2, 2)
)

var gfxKinds = map[gfxOpcode]Kind{
	gfxOpcodePipeControl:                  KindPipeControl,
	gfxOpcodeStateComputeMode:             KindStateComputeMode,
	gfxOpcodeMediaVfeState:                KindMediaVfeState,
	gfxOpcodeMediaInterfaceDescriptorLoad: KindMediaInterfaceDescriptorLoad,
	gfxOpcodeMediaStateFlush:              KindMediaStateFlush,
	gfxOpcodeGpgpuWalker:                  KindGpgpuWalker,
	gfxOpcodeComputeWalker:                KindComputeWalker,
}

func miHeader(opcode miOpcode, dwordCount int) uint32 {
	header := uint32(commandTypeMi)<<29 | uint32(opcode)<<23
	if opcode >= miOpcodeFirstWithLength {
		header |= uint32(dwordCount - 2)
	}
	return header
}

func gfxHeader(opcode gfxOpcode, dwordCount int) uint32 {
	return uint32(commandTypeGfx)<<29 | uint32(opcode)<<16 | uint32(dwordCount-2)
}

// Identify decodes a header dword into the command kind and its total length in dwords.
// Unknown headers return KindUnknown and a length of 1.
func Identify(header uint32) (Kind, int) {
	switch header >> 29 {
	case commandTypeMi:
		opcode := miOpcode(field(header, 23, 6))
		kind, ok := miKinds[opcode]
		if !ok {
			return KindUnknown, 1
		}
		if opcode < miOpcodeFirstWithLength {
			return kind, 1
		}
		return kind, int(field(header, 0, 8)) + 2
	case commandTypeGfx:
		opcode := gfxOpcode(field(header, 16, 13))
		kind, ok := gfxKinds[opcode]
		if !ok {
			return KindUnknown, 1
		}
		return kind, int(field(header, 0, 8)) + 2
	}

	return KindUnknown, 1
}
