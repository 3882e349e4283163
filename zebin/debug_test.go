package zebin_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gfxcore/zebin"
)

const (
	machineIntelGT = 205
	kernelAddress  = 0xffff_8000_1000_0000
	constAddress   = 0x1_2345_0000
)

type stringTable struct {
	data []byte
}

func (s *stringTable) add(name string) uint32 {
	offset := uint32(len(s.data))
	s.data = append(s.data, name...)
	s.data = append(s.data, 0)
	return offset
}

type relocationEntry struct {
	offset    uint64
	symbol    uint32
	relocType zebin.RelocType
	addend    int64
}

func encode(t *testing.T, values any) []byte {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, values))
	return buf.Bytes()
}

// buildZebin produces a module with one kernel, constant data, and a debug section relocated against
// both of them and against itself
func buildZebin(t *testing.T, relocations []relocationEntry) []byte {
	names := &stringTable{data: []byte{0}}
	shstrtabName := names.add(".shstrtab")
	textName := names.add(".text.kernel")
	constName := names.add(zebin.DataConst)
	debugName := names.add(".debug_info")
	symtabName := names.add(".symtab")
	relaName := names.add(".rela.debug_info")
	bssName := names.add(".bss")
	kernelSymbol := names.add("kernel")
	constSymbol := names.add("const")
	debugSymbol := names.add("debug")

	symbols := []elf.Sym64{
		{},
		{Name: kernelSymbol, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: 2, Value: 0x10},
		{Name: constSymbol, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_OBJECT), Shndx: 3, Value: 0x4},
		{Name: debugSymbol, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: 4, Value: 0x8},
	}

	relas := make([]elf.Rela64, len(relocations))
	for i, reloc := range relocations {
		relas[i] = elf.Rela64{
			Off:    reloc.offset,
			Info:   elf.R_INFO(reloc.symbol, uint32(reloc.relocType)),
			Addend: reloc.addend,
		}
	}

	encoder := zebin.NewEncoder()
	encoder.Header.Machine = machineIntelGT
	encoder.Header.Type = uint16(elf.ET_REL)
	encoder.Header.Flags = 0x12
	encoder.Header.Shstrndx = 1

	encoder.AppendSection(elf.Section64{Type: uint32(elf.SHT_NULL)}, nil)
	encoder.AppendSection(elf.Section64{Name: shstrtabName, Type: uint32(elf.SHT_STRTAB)}, names.data)
	encoder.AppendSection(elf.Section64{Name: textName, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR)}, bytes.Repeat([]byte{0x11}, 16))
	encoder.AppendSection(elf.Section64{Name: constName, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC)}, bytes.Repeat([]byte{0x22}, 8))
	encoder.AppendSection(elf.Section64{Name: debugName, Type: uint32(elf.SHT_PROGBITS)}, make([]byte, 32))
	encoder.AppendSection(elf.Section64{Name: symtabName, Type: uint32(elf.SHT_SYMTAB), Link: 1, Info: 1, Entsize: 24}, encode(t, symbols))
	encoder.AppendSection(elf.Section64{Name: relaName, Type: uint32(elf.SHT_RELA), Link: 5, Info: 4, Entsize: 24}, encode(t, relas))
	encoder.AppendSection(elf.Section64{Name: bssName, Type: uint32(elf.SHT_NOBITS), Size: 64}, nil)
	return encoder.Encode()
}

func testSegments() zebin.Segments {
	return zebin.Segments{
		ConstData: zebin.Segment{Address: constAddress, Data: bytes.Repeat([]byte{0x33}, 8)},
		Kernels: map[string]zebin.Segment{
			"kernel": {Address: kernelAddress, Data: bytes.Repeat([]byte{0x44}, 32)},
		},
	}
}

func sectionData(t *testing.T, file *elf.File, name string) []byte {
	section := file.Section(name)
	require.NotNil(t, section, name)
	data, err := section.Data()
	require.NoError(t, err)
	return data
}

func TestCreateDebugZebinLoadsSegments(t *testing.T) {
	debugZebin := zebin.CreateDebugZebin(buildZebin(t, nil), testSegments())
	require.NotNil(t, debugZebin)

	file, err := elf.NewFile(bytes.NewReader(debugZebin))
	require.NoError(t, err)
	require.Equal(t, elf.ELFCLASS64, file.Class)
	require.Equal(t, elf.ET_REL, file.Type)
	require.Equal(t, elf.Machine(machineIntelGT), file.Machine)
	require.Len(t, file.Sections, 8)

	var header elf.Header64
	require.NoError(t, binary.Read(bytes.NewReader(debugZebin), binary.LittleEndian, &header))
	require.Equal(t, uint32(0x12), header.Flags)
	require.Equal(t, uint16(1), header.Shstrndx)

	require.Equal(t, bytes.Repeat([]byte{0x44}, 32), sectionData(t, file, ".text.kernel"))
	require.Equal(t, bytes.Repeat([]byte{0x33}, 8), sectionData(t, file, zebin.DataConst))
	require.Equal(t, elf.SHF_ALLOC|elf.SHF_EXECINSTR, file.Section(".text.kernel").Flags)
	require.Equal(t, uint64(64), file.Section(".bss").Size)

	require.Len(t, file.Progs, 2)
	require.Equal(t, elf.PT_LOAD, file.Progs[0].Type)
	require.Equal(t, uint64(kernelAddress), file.Progs[0].Vaddr)
	require.Equal(t, uint64(32), file.Progs[0].Filesz)
	require.Equal(t, file.Section(".text.kernel").Offset, file.Progs[0].Off)
	require.Equal(t, uint64(constAddress), file.Progs[1].Vaddr)
	require.Equal(t, uint64(8), file.Progs[1].Memsz)
}

func TestCreateDebugZebinAppliesDebugRelocations(t *testing.T) {
	bin := buildZebin(t, []relocationEntry{
		{offset: 0, symbol: 1, relocType: zebin.RelocSymAddr, addend: 2},
		{offset: 8, symbol: 2, relocType: zebin.RelocSymAddr32},
		{offset: 12, symbol: 1, relocType: zebin.RelocSymAddr32Hi},
		{offset: 16, symbol: 3, relocType: zebin.RelocSymAddr, addend: 1},
	})

	debugZebin := zebin.CreateDebugZebin(bin, testSegments())
	require.NotNil(t, debugZebin)

	file, err := elf.NewFile(bytes.NewReader(debugZebin))
	require.NoError(t, err)
	debugInfo := sectionData(t, file, ".debug_info")

	require.Equal(t, uint64(kernelAddress+0x10+2), binary.LittleEndian.Uint64(debugInfo[0:]))
	require.Equal(t, uint32((constAddress+0x4)&0xffffffff), binary.LittleEndian.Uint32(debugInfo[8:]))
	require.Equal(t, uint32((kernelAddress+0x10)>>32), binary.LittleEndian.Uint32(debugInfo[12:]))
	require.Equal(t, uint64(0x8+1), binary.LittleEndian.Uint64(debugInfo[16:]))
	require.Equal(t, make([]byte, 8), debugInfo[24:])

	// The input is left untouched
	original, err := elf.NewFile(bytes.NewReader(bin))
	require.NoError(t, err)
	require.Equal(t, make([]byte, 32), sectionData(t, original, ".debug_info"))
}

func TestCreateDebugZebinUnknownRelocationPanics(t *testing.T) {
	bin := buildZebin(t, []relocationEntry{{offset: 0, symbol: 1, relocType: 7}})

	require.Panics(t, func() {
		zebin.CreateDebugZebin(bin, testSegments())
	})
}

func TestCreateDebugZebinMissingKernelSegmentPanics(t *testing.T) {
	segments := testSegments()
	segments.Kernels = nil

	require.Panics(t, func() {
		zebin.CreateDebugZebin(buildZebin(t, nil), segments)
	})
}

func TestCreateDebugZebinInvalidInput(t *testing.T) {
	require.Nil(t, zebin.CreateDebugZebin(nil, testSegments()))
	require.Nil(t, zebin.CreateDebugZebin([]byte("not an elf file at all"), testSegments()))

	bin := buildZebin(t, nil)
	require.Nil(t, zebin.CreateDebugZebin(bin[:40], testSegments()))
}

func TestRelocTypeString(t *testing.T) {
	require.Equal(t, "R_ZE_SYM_ADDR_32_HI", zebin.RelocSymAddr32Hi.String())
}
