package ioctl

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Memory classes reported in region queries
const (
	MemoryClassSystem uint16 = 0
	MemoryClassDevice uint16 = 1
)

// Engine classes reported in engine queries
const (
	EngineClassRender       uint16 = 0
	EngineClassCopy         uint16 = 1
	EngineClassVideo        uint16 = 2
	EngineClassVideoEnhance uint16 = 3
	EngineClassCompute      uint16 = 4
	EngineClassInvalid      uint16 = 0xffff
)

type MemoryClassInstance struct {
	MemoryClass    uint16
	MemoryInstance uint16
}

type EngineClassInstance struct {
	EngineClass    uint16
	EngineInstance uint16
}

type MemoryRegion struct {
	Region          MemoryClassInstance
	ProbedSize      uint64
	UnallocatedSize uint64
}

type EngineCapabilities struct {
	Engine       EngineClassInstance
	Capabilities uint64
}

// DistanceInfo is the distance between a memory region and an engine. Zero means the engine sits on the
// same tile as the region. -1 means the kernel could not answer for this pair.
type DistanceInfo struct {
	Region   MemoryClassInstance
	Engine   EngineClassInstance
	Distance int32
}

// The structs below are exchanged with the kernel by pointer and must keep the C layout, including
// explicit padding. Fields holding user pointers are uint64.

type UserExtension struct {
	NextExtension uint64
	Name          uint32
	Flags         uint32
	Rsvd          [4]uint32
}

type GemCreateExt struct {
	Size       uint64
	Handle     uint32
	Flags      uint32
	Extensions uint64
}

type GemCreateExtMemoryRegions struct {
	Base       UserExtension
	Pad        uint32
	NumRegions uint32
	Regions    uint64
}

type PrelimGemObjectParam struct {
	Handle uint32
	Size   uint32
	Param  uint64
	Data   uint64
}

type PrelimGemCreateExtSetparam struct {
	Base  UserExtension
	Param PrelimGemObjectParam
}

type ContextCreateExt struct {
	CtxID      uint32
	Flags      uint32
	Extensions uint64
}

type QueryItem struct {
	QueryID uint64
	// Length is set by the kernel to the size of the answer, or to a negative errno
	Length  int32
	Flags   uint32
	DataPtr uint64
}

type Query struct {
	NumItems uint32
	Flags    uint32
	ItemsPtr uint64
}

type GetParam struct {
	Param int32
	Pad   uint32
	Value uint64
}

type PrelimClosReserve struct {
	ClosIndex uint16
	Pad       uint16
}

type PrelimCacheReserve struct {
	ClosIndex  uint16
	CacheLevel uint16
	NumWays    uint16
	Pad        uint16
}

type PrelimClosFree struct {
	ClosIndex uint16
	Pad       uint16
}

type PrelimWaitUserFence struct {
	Extensions uint64
	Addr       uint64
	CtxID      uint32
	Op         uint16
	Flags      uint16
	Value      uint64
	Mask       uint64
	Timeout    int64
}

type PrelimVmAdvise struct {
	VmID      uint32
	Handle    uint32
	Start     uint64
	Length    uint64
	Attribute uint32
	Pad       uint32
	Region    MemoryClassInstance
	Rsvd      [2]uint32
}

type PrelimQueryDistanceInfo struct {
	Engine   EngineClassInstance
	Region   MemoryClassInstance
	Distance int32
	Rsvd     [3]uint32
}

// AddressOf returns the user pointer the kernel expects for value. The caller keeps value alive until
// the ioctl reading it has returned.
func AddressOf[T any](value *T) uint64 {
	return uint64(uintptr(unsafe.Pointer(value)))
}

// SliceAddress is AddressOf for the first element of a slice, or 0 for an empty slice
func SliceAddress[T any](values []T) uint64 {
	if len(values) == 0 {
		return 0
	}
	return AddressOf(&values[0])
}

// UserPointer resolves a user pointer written by AddressOf
func UserPointer[T any](address uint64) *T {
	return (*T)(unsafe.Pointer(uintptr(address)))
}

// UserSlice resolves a user pointer to count consecutive values
func UserSlice[T any](address uint64, count int) []T {
	if address == 0 || count == 0 {
		return nil
	}
	return unsafe.Slice(UserPointer[T](address), count)
}

// Items returns the query items q points at
func (q *Query) Items() []QueryItem {
	return UserSlice[QueryItem](q.ItemsPtr, int(q.NumItems))
}

// Data returns the buffer the item points at, sized by its Length
func (i *QueryItem) Data() []byte {
	if i.Length <= 0 {
		return nil
	}
	return UserSlice[byte](i.DataPtr, int(i.Length))
}

type queryHeader struct {
	Count uint32
	Rsvd  [3]uint32
}

type memoryRegionInfo struct {
	Region          MemoryClassInstance
	Rsvd0           uint32
	ProbedSize      uint64
	UnallocatedSize uint64
	Rsvd1           [8]uint64
}

type engineInfo struct {
	Engine       EngineClassInstance
	Rsvd0        uint32
	Flags        uint64
	Capabilities uint64
	Rsvd1        [4]uint64
}

func decodeBlob[T any](data []byte) ([]T, error) {
	reader := bytes.NewReader(data)

	var header queryHeader
	err := binary.Read(reader, binary.LittleEndian, &header)
	if err != nil {
		return nil, errors.Wrap(err, "query answer is shorter than its header")
	}

	entries := make([]T, header.Count)
	err = binary.Read(reader, binary.LittleEndian, entries)
	if err != nil {
		return nil, errors.Wrapf(err, "query answer is too short for %d entries", header.Count)
	}
	return entries, nil
}

func encodeBlob[T any](entries []T) []byte {
	var buf bytes.Buffer
	header := queryHeader{Count: uint32(len(entries))}
	// Writes to a bytes.Buffer of fixed-size values cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, &header)
	_ = binary.Write(&buf, binary.LittleEndian, entries)
	return buf.Bytes()
}

// MemoryRegionsBlob encodes regions the way the kernel answers a memory region query
func MemoryRegionsBlob(regions []MemoryRegion) []byte {
	infos := make([]memoryRegionInfo, len(regions))
	for i, region := range regions {
		infos[i] = memoryRegionInfo{
			Region:          region.Region,
			ProbedSize:      region.ProbedSize,
			UnallocatedSize: region.UnallocatedSize,
		}
	}
	return encodeBlob(infos)
}

func decodeMemoryRegions(data []byte) ([]MemoryRegion, error) {
	infos, err := decodeBlob[memoryRegionInfo](data)
	if err != nil {
		return nil, err
	}

	regions := make([]MemoryRegion, len(infos))
	for i, info := range infos {
		regions[i] = MemoryRegion{
			Region:          info.Region,
			ProbedSize:      info.ProbedSize,
			UnallocatedSize: info.UnallocatedSize,
		}
	}
	return regions, nil
}

// EngineInfoBlob encodes engines the way the kernel answers an engine info query
func EngineInfoBlob(engines []EngineCapabilities) []byte {
	infos := make([]engineInfo, len(engines))
	for i, engine := range engines {
		infos[i] = engineInfo{
			Engine:       engine.Engine,
			Capabilities: engine.Capabilities,
		}
	}
	return encodeBlob(infos)
}

func decodeEngineInfo(data []byte) ([]EngineCapabilities, error) {
	infos, err := decodeBlob[engineInfo](data)
	if err != nil {
		return nil, err
	}

	engines := make([]EngineCapabilities, len(infos))
	for i, info := range infos {
		engines[i] = EngineCapabilities{
			Engine:       info.Engine,
			Capabilities: info.Capabilities,
		}
	}
	return engines, nil
}
