package residency

import "github.com/vkngwrapper/gfxcore/memory"

//go:generate mockgen -source os_interface.go -destination ./mocks/os_interface.go

// OsInterface performs the kernel calls that page allocations in and out of GPU-visible memory
type OsInterface interface {
	MakeResident(allocations []*memory.GraphicsAllocation) error
	Evict(allocations []*memory.GraphicsAllocation) error
}
