package zebin

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"unsafe"

	"github.com/vkngwrapper/gfxcore/memutils"
)

const defaultDataAlignment = 8

var (
	header64Size  = uint64(unsafe.Sizeof(elf.Header64{}))
	prog64Size    = uint64(unsafe.Sizeof(elf.Prog64{}))
	section64Size = uint64(unsafe.Sizeof(elf.Section64{}))
)

type encodedSection struct {
	header elf.Section64
	data   []byte
}

type programLoad struct {
	sectionIndex int
	header       elf.Prog64
}

// Encoder lays out a little-endian ELF64 image: file header, program headers, section data and
// finally the section header table.
type Encoder struct {
	Header elf.Header64

	sections []encodedSection
	programs []programLoad
}

func NewEncoder() *Encoder {
	encoder := &Encoder{}
	copy(encoder.Header.Ident[:], elf.ELFMAG)
	encoder.Header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	encoder.Header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	encoder.Header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	encoder.Header.Version = uint32(elf.EV_CURRENT)
	encoder.Header.Ehsize = uint16(header64Size)
	return encoder
}

// AppendSection adds a section and returns its index. Size is taken from data except for sections
// that occupy no file space.
func (e *Encoder) AppendSection(header elf.Section64, data []byte) int {
	if elf.SectionType(header.Type) != elf.SHT_NOBITS {
		header.Size = uint64(len(data))
	} else {
		data = nil
	}
	e.sections = append(e.sections, encodedSection{header: header, data: data})
	return len(e.sections) - 1
}

// AppendProgramHeaderLoad adds a PT_LOAD entry mapping the data of section sectionIndex at address
func (e *Encoder) AppendProgramHeaderLoad(sectionIndex int, address uint64, size uint64) {
	e.programs = append(e.programs, programLoad{
		sectionIndex: sectionIndex,
		header: elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Vaddr:  address,
			Filesz: size,
			Memsz:  size,
			Align:  defaultDataAlignment,
		},
	})
}

// SectionOffset returns the file offset Encode placed section index at
func (e *Encoder) SectionOffset(index int) uint64 {
	return e.sections[index].header.Off
}

func (e *Encoder) Encode() []byte {
	header := e.Header

	offset := header64Size
	if len(e.programs) > 0 {
		header.Phoff = offset
		header.Phentsize = uint16(prog64Size)
		header.Phnum = uint16(len(e.programs))
		offset += prog64Size * uint64(len(e.programs))
	}

	for i := range e.sections {
		section := &e.sections[i]
		if len(section.data) == 0 {
			continue
		}
		offset = memutils.AlignUp(offset, defaultDataAlignment)
		section.header.Off = offset
		offset += uint64(len(section.data))
	}

	if len(e.sections) > 0 {
		offset = memutils.AlignUp(offset, defaultDataAlignment)
		header.Shoff = offset
		header.Shentsize = uint16(section64Size)
		header.Shnum = uint16(len(e.sections))
		offset += section64Size * uint64(len(e.sections))
	}

	programs := make([]elf.Prog64, len(e.programs))
	for i, program := range e.programs {
		programs[i] = program.header
		programs[i].Off = e.sections[program.sectionIndex].header.Off
	}

	out := bytes.NewBuffer(make([]byte, 0, offset))
	// Writes of fixed-size values to a bytes.Buffer cannot fail
	_ = binary.Write(out, binary.LittleEndian, &header)
	_ = binary.Write(out, binary.LittleEndian, programs)
	for _, section := range e.sections {
		if len(section.data) == 0 {
			continue
		}
		out.Write(make([]byte, section.header.Off-uint64(out.Len())))
		out.Write(section.data)
	}
	if len(e.sections) > 0 {
		out.Write(make([]byte, header.Shoff-uint64(out.Len())))
		for _, section := range e.sections {
			_ = binary.Write(out, binary.LittleEndian, &section.header)
		}
	}
	return out.Bytes()
}
