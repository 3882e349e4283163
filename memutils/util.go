package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

const (
	PageSize      = 4096
	PageSize64K   = 65536
	CacheLineSize = 64
)

type Number interface {
	~int | ~uint | ~uint32 | ~uint64
}

// SelfChecker is a structure that can verify its own bookkeeping, such as the GPU virtual address heap
// or a residency trim candidate list
type SelfChecker interface {
	Validate() error
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp[T Number](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

func AlignDown[T Number](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// IsAligned reports whether value is a multiple of alignment, which must be a power of two
func IsAligned[T Number](value T, alignment T) bool {
	return value&(alignment-1) == 0
}

// AlignToPage rounds size up to the next multiple of PageSize
func AlignToPage(size int) int {
	return AlignUp(size, PageSize)
}

// LowPart returns the low 32 bits of a 64-bit GPU address
func LowPart(value uint64) uint32 {
	return uint32(value)
}

// HighPart returns the high 32 bits of a 64-bit GPU address
func HighPart(value uint64) uint32 {
	return uint32(value >> 32)
}
