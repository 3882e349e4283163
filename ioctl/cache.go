package ioctl

import (
	"sync"

	"github.com/dolthub/swiss"
)

const cacheLevel3 uint16 = 3

// CacheInfo hands out last-level cache regions reserved through the helper's class of service ioctls.
// A region is only recorded once both the class and its ways have been granted.
type CacheInfo struct {
	drm    Drm
	helper Helper

	maxReservationCacheSize       uint64
	maxReservationNumCacheRegions uint32
	maxReservationNumWays         uint16

	lock            sync.Mutex
	reservedRegions *swiss.Map[CacheRegion, uint64]
}

func NewCacheInfo(drm Drm, helper Helper, maxReservationCacheSize uint64, maxReservationNumCacheRegions uint32, maxReservationNumWays uint16) *CacheInfo {
	return &CacheInfo{
		drm:                           drm,
		helper:                        helper,
		maxReservationCacheSize:       maxReservationCacheSize,
		maxReservationNumCacheRegions: maxReservationNumCacheRegions,
		maxReservationNumWays:         maxReservationNumWays,
		reservedRegions:               swiss.NewMap[CacheRegion, uint64](uint32(CacheRegionCount)),
	}
}

func (c *CacheInfo) MaxReservationCacheSize() uint64       { return c.maxReservationCacheSize }
func (c *CacheInfo) MaxReservationNumCacheRegions() uint32 { return c.maxReservationNumCacheRegions }
func (c *CacheInfo) MaxReservationNumWays() uint16         { return c.maxReservationNumWays }

// ReservedCount returns how many regions are currently reserved
func (c *CacheInfo) ReservedCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.reservedRegions.Count()
}

// ReservedSize returns the size reserved for region, or false when region is not reserved
func (c *CacheInfo) ReservedSize(region CacheRegion) (uint64, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.reservedRegions.Get(region)
}

// ReserveCacheRegion reserves a region large enough for cacheReservationSize bytes of the cache. It
// returns CacheRegionNone when the kernel grants no class or fewer ways than requested.
func (c *CacheInfo) ReserveCacheRegion(cacheReservationSize uint64) CacheRegion {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.reserveRegion(cacheReservationSize)
}

func (c *CacheInfo) reserveRegion(cacheReservationSize uint64) CacheRegion {
	if c.maxReservationCacheSize == 0 || uint32(c.reservedRegions.Count()) >= c.maxReservationNumCacheRegions {
		return CacheRegionNone
	}

	numWays := uint16(uint64(c.maxReservationNumWays) * cacheReservationSize / c.maxReservationCacheSize)
	if numWays == 0 {
		return CacheRegionNone
	}

	region := c.helper.ClosAlloc(c.drm)
	if region == CacheRegionNone {
		return CacheRegionNone
	}

	granted := c.helper.ClosAllocWays(c.drm, region, cacheLevel3, numWays)
	if granted != numWays {
		c.helper.ClosFree(c.drm, region)
		return CacheRegionNone
	}

	c.reservedRegions.Put(region, cacheReservationSize)
	return region
}

// FreeCacheRegion releases a region reserved by ReserveCacheRegion. Regions this CacheInfo did not
// reserve yield CacheRegionNone.
func (c *CacheInfo) FreeCacheRegion(region CacheRegion) CacheRegion {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.freeRegion(region)
}

func (c *CacheInfo) freeRegion(region CacheRegion) CacheRegion {
	if !c.reservedRegions.Has(region) {
		return CacheRegionNone
	}

	c.reservedRegions.Delete(region)
	c.helper.ClosAllocWays(c.drm, region, cacheLevel3, 0)
	return c.helper.ClosFree(c.drm, region)
}

// GetCacheRegion reports whether region can be used for an allocation, reserving it for
// regionSize bytes when it is not reserved yet. The default region is always usable.
func (c *CacheInfo) GetCacheRegion(regionSize uint64, region CacheRegion) bool {
	if region == CacheRegionDefault {
		return true
	}
	if region >= CacheRegionCount {
		return false
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.reservedRegions.Has(region) {
		return true
	}
	return c.reserveRegion(regionSize) == region
}

// Close frees every reserved region
func (c *CacheInfo) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	var regions []CacheRegion
	c.reservedRegions.Iter(func(region CacheRegion, _ uint64) bool {
		regions = append(regions, region)
		return false
	})
	for _, region := range regions {
		c.freeRegion(region)
	}
}
