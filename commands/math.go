package commands

type AluOpcode uint32

const (
	AluOpcodeNoop    AluOpcode = 0x000
	AluOpcodeLoad    AluOpcode = 0x080
	AluOpcodeLoadInv AluOpcode = 0x480
	AluOpcodeLoad0   AluOpcode = 0x081
	AluOpcodeAdd     AluOpcode = 0x100
	AluOpcodeSub     AluOpcode = 0x101
	AluOpcodeAnd     AluOpcode = 0x102
	AluOpcodeOr      AluOpcode = 0x103
	AluOpcodeStore   AluOpcode = 0x180
)

type AluRegister uint32

const (
	AluRegisterR0   AluRegister = 0x00
	AluRegisterR1   AluRegister = 0x01
	AluRegisterR2   AluRegister = 0x02
	AluRegisterSrcA AluRegister = 0x20
	AluRegisterSrcB AluRegister = 0x21
	AluRegisterAccu AluRegister = 0x31
	AluRegisterZF   AluRegister = 0x32
	AluRegisterCF   AluRegister = 0x33
)

// General purpose registers backing the ALU operands, two dwords each
const (
	CSGprR0 uint32 = 0x2600
	CSGprR1 uint32 = 0x2608
	CSGprR2 uint32 = 0x2610
)

// NumAluInstForReadModifyWrite is the number of ALU instructions in a load/load/op/store sequence
const NumAluInstForReadModifyWrite = 4

type MiMathAluInst struct {
	Opcode   AluOpcode
	Operand1 AluRegister
	Operand2 AluRegister
}

func (a MiMathAluInst) encode() uint32 {
	return bits(uint32(a.Opcode), 20, 12) | bits(uint32(a.Operand1), 10, 10) | bits(uint32(a.Operand2), 0, 10)
}

func decodeAluInst(value uint32) MiMathAluInst {
	return MiMathAluInst{
		Opcode:   AluOpcode(field(value, 20, 12)),
		Operand1: AluRegister(field(value, 10, 10)),
		Operand2: AluRegister(field(value, 0, 10)),
	}
}

// MiMath is a header followed by one dword per ALU instruction
type MiMath struct {
	Instructions []MiMathAluInst
}

func (c *MiMath) Kind() Kind { return KindMiMath }
func (c *MiMath) Size() int  { return (1 + len(c.Instructions)) * DwordSize }

func (c *MiMath) Encode(dst []byte) {
	putDword(dst, 0, miHeader(miOpcodeMath, 1+len(c.Instructions)))
	for i, inst := range c.Instructions {
		putDword(dst, 1+i, inst.encode())
	}
}

func (c *MiMath) Decode(src []byte) error {
	if err := checkHeader(src, c.Kind(), DwordSize); err != nil {
		return err
	}
	_, dwords := Identify(getDword(src, 0))
	if err := checkHeader(src, c.Kind(), dwords*DwordSize); err != nil {
		return err
	}
	c.Instructions = make([]MiMathAluInst, dwords-1)
	for i := range c.Instructions {
		c.Instructions[i] = decodeAluInst(getDword(src, 1+i))
	}
	return nil
}
