package ioctl

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/hw"
)

// MemoryInfo splits the regions a kernel reports into the system region and one local region per tile
type MemoryInfo struct {
	regions            []MemoryRegion
	systemMemoryRegion MemoryRegion
	localMemoryRegions []MemoryRegion
}

func NewMemoryInfo(regions []MemoryRegion) *MemoryInfo {
	info := &MemoryInfo{regions: regions}
	for _, region := range regions {
		switch region.Region.MemoryClass {
		case MemoryClassSystem:
			info.systemMemoryRegion = region
		case MemoryClassDevice:
			info.localMemoryRegions = append(info.localMemoryRegions, region)
		}
	}
	return info
}

func (m *MemoryInfo) Regions() []MemoryRegion            { return m.regions }
func (m *MemoryInfo) SystemMemoryRegion() MemoryRegion   { return m.systemMemoryRegion }
func (m *MemoryInfo) LocalMemoryRegions() []MemoryRegion { return m.localMemoryRegions }

// DeviceRegions lists the class and instance of every local region, ordered by tile
func (m *MemoryInfo) DeviceRegions() []MemoryClassInstance {
	regions := make([]MemoryClassInstance, len(m.localMemoryRegions))
	for i, region := range m.localMemoryRegions {
		regions[i] = region.Region
	}
	return regions
}

// MemoryRegionSize returns the probed size of the system region for bank 0 and of the local region of
// the tile selected by a single-bit bank. Any other bank has no region.
func (m *MemoryInfo) MemoryRegionSize(memoryBank hw.DeviceBitfield) uint64 {
	if memoryBank == 0 {
		return m.systemMemoryRegion.ProbedSize
	}
	if memoryBank.Count() != 1 {
		return 0
	}

	for tile := range m.localMemoryRegions {
		if memoryBank.Test(uint32(tile)) {
			return m.localMemoryRegions[tile].ProbedSize
		}
	}
	return 0
}

// AssignRegionsFromDistances reorders the local regions so that local region i is the one engines of
// tile i reach at distance zero. distances must be grouped by region.
func (m *MemoryInfo) AssignRegionsFromDistances(distances []DistanceInfo) error {
	byInstance := make(map[uint16]MemoryRegion, len(m.localMemoryRegions))
	for _, region := range m.localMemoryRegions {
		byInstance[region.Region.MemoryInstance] = region
	}

	var assigned []MemoryRegion
	tile := 0
	for i, distance := range distances {
		if i > 0 && distance.Region.MemoryInstance != distances[i-1].Region.MemoryInstance {
			tile++
		}
		if distance.Distance != 0 || len(assigned) == tile+1 {
			continue
		}

		region, ok := byInstance[distance.Region.MemoryInstance]
		if !ok || distance.Region.MemoryClass != MemoryClassDevice {
			return errors.Newf("engine %d:%d is local to unknown region %d:%d",
				distance.Engine.EngineClass, distance.Engine.EngineInstance,
				distance.Region.MemoryClass, distance.Region.MemoryInstance)
		}
		assigned = append(assigned, region)
	}

	m.localMemoryRegions = assigned
	return nil
}

// EngineInfo groups the engines of a device by the tile they sit on
type EngineInfo struct {
	engines      []EngineCapabilities
	tileEngines  [][]EngineClassInstance
	numberOfCCS  uint32
	ccsMask      uint32
	computeClass uint16
}

// NewEngineInfo places every engine on tile 0
func NewEngineInfo(engines []EngineCapabilities, computeClass uint16) *EngineInfo {
	info := &EngineInfo{
		engines:      engines,
		tileEngines:  make([][]EngineClassInstance, 1),
		computeClass: computeClass,
	}
	for _, engine := range engines {
		info.addEngine(0, engine.Engine)
	}
	return info
}

// NewMultiTileEngineInfo places each engine on the tile whose local region it reaches at distance
// zero. queryItems carries the per-distance answer status from QueryDistances.
func NewMultiTileEngineInfo(engines []EngineCapabilities, tileCount uint32, distances []DistanceInfo, queryItems []QueryItem, computeClass uint16) *EngineInfo {
	info := &EngineInfo{
		engines:      engines,
		tileEngines:  make([][]EngineClassInstance, tileCount),
		computeClass: computeClass,
	}
	for i, distance := range distances {
		if distance.Distance != 0 || queryItems[i].Length < 0 {
			continue
		}
		tile := uint32(distance.Region.MemoryInstance)
		if tile >= tileCount {
			continue
		}
		info.addEngine(tile, distance.Engine)
	}
	return info
}

func (e *EngineInfo) addEngine(tile uint32, engine EngineClassInstance) {
	e.tileEngines[tile] = append(e.tileEngines[tile], engine)
	if tile == 0 && engine.EngineClass == e.computeClass {
		e.numberOfCCS++
		e.ccsMask |= 1 << engine.EngineInstance
	}
}

func (e *EngineInfo) Engines() []EngineCapabilities { return e.engines }
func (e *EngineInfo) TileCount() uint32             { return uint32(len(e.tileEngines)) }
func (e *EngineInfo) NumberOfCCS() uint32           { return e.numberOfCCS }
func (e *EngineInfo) CCSMask() uint32               { return e.ccsMask }

// ListOfEnginesOnATile returns the engines of tile, or nil for a tile the device does not have
func (e *EngineInfo) ListOfEnginesOnATile(tile uint32) []EngineClassInstance {
	if tile >= uint32(len(e.tileEngines)) {
		return nil
	}
	return e.tileEngines[tile]
}

// EngineInstance returns the first engine of class on tile
func (e *EngineInfo) EngineInstance(tile uint32, engineClass uint16) (EngineClassInstance, bool) {
	for _, engine := range e.ListOfEnginesOnATile(tile) {
		if engine.EngineClass == engineClass {
			return engine, true
		}
	}
	return EngineClassInstance{}, false
}
