package commands

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const DwordSize = 4

// Command is a fixed-layout hardware instruction. Encode writes exactly Size bytes; Decode reads
// exactly Size bytes and fails if the header does not identify this command.
type Command interface {
	Kind() Kind
	Size() int
	Encode(dst []byte)
	Decode(src []byte) error
}

func putDword(dst []byte, index int, value uint32) {
	binary.LittleEndian.PutUint32(dst[index*DwordSize:], value)
}

func getDword(src []byte, index int) uint32 {
	return binary.LittleEndian.Uint32(src[index*DwordSize:])
}

func putQword(dst []byte, index int, value uint64) {
	binary.LittleEndian.PutUint64(dst[index*DwordSize:], value)
}

func getQword(src []byte, index int) uint64 {
	return binary.LittleEndian.Uint64(src[index*DwordSize:])
}

func field(value uint32, shift, width uint) uint32 {
	return (value >> shift) & (1<<width - 1)
}

func bits(value uint32, shift, width uint) uint32 {
	return (value & (1<<width - 1)) << shift
}

func flag(set bool, shift uint) uint32 {
	if set {
		return 1 << shift
	}
	return 0
}

func isSet(value uint32, shift uint) bool {
	return value&(1<<shift) != 0
}

func checkHeader(src []byte, kind Kind, size int) error {
	if len(src) < size {
		return errors.Newf("%s requires %d bytes, have %d", kind, size, len(src))
	}

	header := getDword(src, 0)
	found, _ := Identify(header)
	if found != kind {
		return errors.Newf("header %#08x is %s, expected %s", header, found, kind)
	}

	return nil
}
