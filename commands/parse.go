package commands

import (
	"github.com/cockroachdb/errors"
)

func newCommand(kind Kind) Command {
	switch kind {
	case KindMiNoop:
		return &MiNoop{}
	case KindMiArbCheck:
		return &MiArbCheck{}
	case KindMiBatchBufferEnd:
		return &MiBatchBufferEnd{}
	case KindMiBatchBufferStart:
		return &MiBatchBufferStart{}
	case KindMiLoadRegisterImm:
		return &MiLoadRegisterImm{}
	case KindMiLoadRegisterReg:
		return &MiLoadRegisterReg{}
	case KindMiLoadRegisterMem:
		return &MiLoadRegisterMem{}
	case KindMiStoreRegisterMem:
		return &MiStoreRegisterMem{}
	case KindMiStoreDataImm:
		return &MiStoreDataImm{}
	case KindMiAtomic:
		return &MiAtomic{}
	case KindMiSemaphoreWait:
		return &MiSemaphoreWait{}
	case KindMiMath:
		return &MiMath{}
	case KindPipeControl:
		return &PipeControl{}
	case KindStateComputeMode:
		return &StateComputeMode{}
	case KindMediaStateFlush:
		return &MediaStateFlush{}
	case KindMediaInterfaceDescriptorLoad:
		return &MediaInterfaceDescriptorLoad{}
	case KindMediaVfeState:
		return &MediaVfeState{}
	case KindGpgpuWalker:
		return &GpgpuWalker{}
	case KindComputeWalker:
		return &ComputeWalker{}
	}

	return nil
}

// ParsedCommand is a decoded command and the byte offset it was found at
type ParsedCommand struct {
	Offset  int
	Command Command
}

// Parse decodes every command in buf. It fails on the first header it does not recognize or
// on a command that runs past the end of the buffer.
func Parse(buf []byte) ([]ParsedCommand, error) {
	var parsed []ParsedCommand

	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < DwordSize {
			return parsed, errors.Newf("trailing %d bytes at offset %d", len(buf)-offset, offset)
		}

		header := getDword(buf[offset:], 0)
		kind, dwords := Identify(header)
		command := newCommand(kind)
		if command == nil {
			return parsed, errors.Newf("unknown command header %#08x at offset %d", header, offset)
		}

		size := dwords * DwordSize
		if offset+size > len(buf) {
			return parsed, errors.Newf("%s at offset %d needs %d bytes, %d remain", kind, offset, size, len(buf)-offset)
		}

		err := command.Decode(buf[offset : offset+size])
		if err != nil {
			return parsed, errors.Wrapf(err, "failed to decode %s at offset %d", kind, offset)
		}

		parsed = append(parsed, ParsedCommand{Offset: offset, Command: command})
		offset += size
	}

	return parsed, nil
}

// Filter returns every parsed command of type T in order
func Filter[T Command](parsed []ParsedCommand) []T {
	var out []T
	for _, p := range parsed {
		if command, ok := p.Command.(T); ok {
			out = append(out, command)
		}
	}
	return out
}

// Kinds returns the kind of every parsed command in order
func Kinds(parsed []ParsedCommand) []Kind {
	kinds := make([]Kind, 0, len(parsed))
	for _, p := range parsed {
		kinds = append(kinds, p.Command.Kind())
	}
	return kinds
}

// Count tallies parsed commands by kind
func Count(parsed []ParsedCommand) map[Kind]int {
	counts := make(map[Kind]int)
	for _, p := range parsed {
		counts[p.Command.Kind()]++
	}
	return counts
}
