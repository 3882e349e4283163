package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/memutils"
)

const memoryBankCount = 2

// budget tracks live allocation counts and bytes per memory bank. Updates are lock-free so that
// the statistics can be read while allocations are in flight.
type budget struct {
	allocationCount [memoryBankCount]uint32
	allocationBytes [memoryBankCount]uint64
	limit           [memoryBankCount]uint64
}

func (b *budget) AddAllocationWithBudget(bank MemoryBank, allocationSize int) error {
	for {
		currentVal := atomic.LoadUint64(&b.allocationBytes[bank])
		targetVal := currentVal + uint64(allocationSize)

		if b.limit[bank] != 0 && targetVal > b.limit[bank] {
			return errors.Wrapf(memutils.OutOfSpaceError, "%s memory budget of %d bytes exceeded", bank, b.limit[bank])
		}

		if atomic.CompareAndSwapUint64(&b.allocationBytes[bank], currentVal, targetVal) {
			break
		}
	}

	atomic.AddUint32(&b.allocationCount[bank], 1)
	return nil
}

func (b *budget) RemoveAllocation(bank MemoryBank, allocationSize int) {
	if atomic.LoadUint64(&b.allocationBytes[bank]) < uint64(allocationSize) {
		panic(fmt.Sprintf("allocation bytes budget for %s memory went negative", bank))
	}
	atomic.AddUint64(&b.allocationBytes[bank], ^uint64(allocationSize-1))

	if atomic.LoadUint32(&b.allocationCount[bank]) == 0 {
		panic(fmt.Sprintf("allocation count budget for %s memory went negative", bank))
	}
	atomic.AddUint32(&b.allocationCount[bank], ^uint32(0))
}

func (b *budget) Usage(bank MemoryBank) (count int, bytes int) {
	return int(atomic.LoadUint32(&b.allocationCount[bank])), int(atomic.LoadUint64(&b.allocationBytes[bank]))
}
