package zebin

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Section names with a fixed meaning in a zebin
const (
	TextPrefix      = ".text."
	DataConst       = ".data.const"
	DataGlobal      = ".data.global"
	DataConstString = ".data.const.string"
	DebugPrefix     = ".debug_"
)

// RelocType is a zebin relocation type
type RelocType uint32

const (
	RelocSymAddr     RelocType = 1
	RelocSymAddr32   RelocType = 2
	RelocSymAddr32Hi RelocType = 3
)

var relocTypeMapping = map[RelocType]string{
	RelocSymAddr:     "R_ZE_SYM_ADDR",
	RelocSymAddr32:   "R_ZE_SYM_ADDR_32",
	RelocSymAddr32Hi: "R_ZE_SYM_ADDR_32_HI",
}

func (t RelocType) String() string {
	return relocTypeMapping[t]
}

// Segment is the GPU placement of one program section
type Segment struct {
	Address uint64
	Data    []byte
}

// Segments describes where a module's kernels and global data were loaded
type Segments struct {
	ConstData  Segment
	VarData    Segment
	StringData Segment
	Kernels    map[string]Segment
}

func (s *Segments) segmentByName(sectionName string) (Segment, bool) {
	switch {
	case strings.HasPrefix(sectionName, TextPrefix):
		kernelName := strings.TrimPrefix(sectionName, TextPrefix)
		segment, ok := s.Kernels[kernelName]
		if !ok {
			panic(errors.AssertionFailedf("no segment for kernel %s", kernelName))
		}
		return segment, true
	case sectionName == DataConst:
		return s.ConstData, true
	case sectionName == DataGlobal:
		return s.VarData, true
	case sectionName == DataConstString:
		return s.StringData, true
	}
	return Segment{}, false
}

type relocation struct {
	offset             uint64
	addend             int64
	relocType          RelocType
	symbolValue        uint64
	symbolSectionIndex int
	targetSectionIndex int
}

// CreateDebugZebin rebuilds bin for a debugger: every loaded section takes the contents of its segment
// and is described by a PT_LOAD program header at the segment address, and relocations of the debug
// sections are resolved against those addresses. It returns nil when bin is not a valid ELF64.
func CreateDebugZebin(bin []byte, segments Segments) []byte {
	file, err := elf.NewFile(bytes.NewReader(bin))
	if err != nil || file.Class != elf.ELFCLASS64 || file.Data != elf.ELFDATA2LSB {
		return nil
	}

	var header elf.Header64
	err = binary.Read(bytes.NewReader(bin), binary.LittleEndian, &header)
	if err != nil {
		return nil
	}

	rawSections := make([]elf.Section64, len(file.Sections))
	if len(rawSections) > 0 {
		reader := io.NewSectionReader(bytes.NewReader(bin), int64(header.Shoff), int64(len(rawSections))*int64(section64Size))
		err = binary.Read(reader, binary.LittleEndian, rawSections)
		if err != nil {
			return nil
		}
	}

	relocations, err := debugRelocations(file)
	if err != nil {
		return nil
	}

	encoder := NewEncoder()
	encoder.Header.Machine = header.Machine
	encoder.Header.Flags = header.Flags
	encoder.Header.Type = header.Type
	encoder.Header.Version = header.Version
	encoder.Header.Shstrndx = header.Shstrndx

	for i, section := range file.Sections {
		var data []byte
		segment, isSegment := segments.segmentByName(section.Name)
		if isSegment {
			data = segment.Data
		} else if section.Type != elf.SHT_NOBITS {
			data, err = section.Data()
			if err != nil {
				return nil
			}
		}

		sectionHeader := rawSections[i]
		sectionHeader.Addr = 0
		sectionHeader.Off = 0
		index := encoder.AppendSection(sectionHeader, data)
		if isSegment {
			encoder.AppendProgramHeaderLoad(index, segment.Address, uint64(len(data)))
		}
	}

	debugZebin := encoder.Encode()

	for _, reloc := range relocations {
		symbolSection := file.Sections[reloc.symbolSectionIndex]

		var sectionAddress uint64
		segment, isSegment := segments.segmentByName(symbolSection.Name)
		if isSegment {
			sectionAddress = segment.Address
		} else if !strings.HasPrefix(symbolSection.Name, DebugPrefix) {
			continue
		}

		value := sectionAddress + reloc.symbolValue + uint64(reloc.addend)
		address := encoder.SectionOffset(reloc.targetSectionIndex) + reloc.offset
		applyRelocation(debugZebin, address, value, reloc.relocType)
	}

	return debugZebin
}

func applyRelocation(image []byte, address uint64, value uint64, relocType RelocType) {
	switch relocType {
	case RelocSymAddr:
		if address+8 <= uint64(len(image)) {
			binary.LittleEndian.PutUint64(image[address:], value)
		}
	case RelocSymAddr32:
		if address+4 <= uint64(len(image)) {
			binary.LittleEndian.PutUint32(image[address:], uint32(value))
		}
	case RelocSymAddr32Hi:
		if address+4 <= uint64(len(image)) {
			binary.LittleEndian.PutUint32(image[address:], uint32(value>>32))
		}
	default:
		panic(errors.AssertionFailedf("unsupported zebin relocation type %d", relocType))
	}
}

// debugRelocations collects the relocations of every .rela.debug_* and .rel.debug_* section
func debugRelocations(file *elf.File) ([]relocation, error) {
	var symbols []elf.Symbol
	var relocations []relocation

	for _, section := range file.Sections {
		isRela := section.Type == elf.SHT_RELA && strings.HasPrefix(section.Name, ".rela"+DebugPrefix)
		isRel := section.Type == elf.SHT_REL && strings.HasPrefix(section.Name, ".rel"+DebugPrefix)
		if !isRela && !isRel {
			continue
		}

		if symbols == nil {
			var err error
			symbols, err = file.Symbols()
			if err != nil {
				return nil, errors.Wrap(err, "debug relocations without a symbol table")
			}
		}

		data, err := section.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", section.Name)
		}

		entries, err := decodeRelocations(data, isRela)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed %s", section.Name)
		}

		for _, entry := range entries {
			// elf.File.Symbols drops the null symbol at index 0
			symbolIndex := int(elf.R_SYM64(entry.Info))
			if symbolIndex == 0 || symbolIndex > len(symbols) {
				continue
			}
			symbol := symbols[symbolIndex-1]
			if int(symbol.Section) >= len(file.Sections) || int(section.Info) >= len(file.Sections) {
				continue
			}

			relocations = append(relocations, relocation{
				offset:             entry.Off,
				addend:             entry.Addend,
				relocType:          RelocType(elf.R_TYPE64(entry.Info)),
				symbolValue:        symbol.Value,
				symbolSectionIndex: int(symbol.Section),
				targetSectionIndex: int(section.Info),
			})
		}
	}
	return relocations, nil
}

func decodeRelocations(data []byte, withAddend bool) ([]elf.Rela64, error) {
	reader := bytes.NewReader(data)
	if withAddend {
		entries := make([]elf.Rela64, len(data)/binary.Size(elf.Rela64{}))
		err := binary.Read(reader, binary.LittleEndian, entries)
		return entries, err
	}

	rels := make([]elf.Rel64, len(data)/binary.Size(elf.Rel64{}))
	err := binary.Read(reader, binary.LittleEndian, rels)
	if err != nil {
		return nil, err
	}
	entries := make([]elf.Rela64, len(rels))
	for i, rel := range rels {
		entries[i] = elf.Rela64{Off: rel.Off, Info: rel.Info}
	}
	return entries, nil
}
