package hw

// WorkaroundTable holds the hardware workarounds consulted while encoding command streams.
// Every size function takes the same table as its paired encode function.
type WorkaroundTable struct {
	WaSendMIFLUSHBeforeVFE       bool
	WaArbCheckInDeviceEnqueue    bool
	WaMiAtomicInDeviceEnqueue    bool
	WaLriInDeviceEnqueue         bool
	WaPipeControlInDeviceEnqueue bool
	WaPipeControlBeforePostSync  bool
}

// FeatureTable holds capabilities that change what commands the core emits
type FeatureTable struct {
	SupportsDeviceEnqueue   bool
	SupportsImplicitScaling bool
	SupportsLargeGrf        bool
	SupportsCoherency       bool
	LocalMemory             bool
}

type HardwareInfo struct {
	Product    Product
	Family     Family
	RevisionID uint16
	DeviceID   uint16

	// TileCount is the number of tiles in the package, 1 on single-die parts
	TileCount uint32
	// SliceCount, SubSliceCount and EUCount describe the system topology
	SliceCount    uint32
	SubSliceCount uint32
	EUCount       uint32

	Workarounds WorkaroundTable
	Features    FeatureTable

	// ProfilingTimerResolution is the duration in nanoseconds of a single timestamp tick
	ProfilingTimerResolution float64
	// CSPrefetchSize is the number of bytes the command streamer prefetches past the current instruction
	CSPrefetchSize int
}

// IsA0 reports whether the part is the first silicon stepping
func (h *HardwareInfo) IsA0() bool {
	return h.RevisionID == 0
}

var defaultHardwareInfo = map[Product]HardwareInfo{
	ProductSKL: {
		Product: ProductSKL, Family: FamilyGen9, DeviceID: 0x1912,
		TileCount: 1, SliceCount: 1, SubSliceCount: 3, EUCount: 24,
		Workarounds: WorkaroundTable{
			WaSendMIFLUSHBeforeVFE: true,
		},
		Features:                 FeatureTable{SupportsDeviceEnqueue: true},
		ProfilingTimerResolution: 83.333,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductEHL: {
		Product: ProductEHL, Family: FamilyGen11, DeviceID: 0x4500,
		TileCount: 1, SliceCount: 1, SubSliceCount: 4, EUCount: 32,
		Workarounds: WorkaroundTable{
			WaSendMIFLUSHBeforeVFE: true,
		},
		Features:                 FeatureTable{SupportsDeviceEnqueue: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductLKF: {
		Product: ProductLKF, Family: FamilyGen11, DeviceID: 0x9840,
		TileCount: 1, SliceCount: 1, SubSliceCount: 8, EUCount: 64,
		Workarounds: WorkaroundTable{
			WaSendMIFLUSHBeforeVFE: true,
		},
		Features:                 FeatureTable{SupportsDeviceEnqueue: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductTGLLP: {
		Product: ProductTGLLP, Family: FamilyGen12LP, DeviceID: 0x9a49,
		TileCount: 1, SliceCount: 1, SubSliceCount: 6, EUCount: 96,
		Workarounds: WorkaroundTable{
			WaSendMIFLUSHBeforeVFE:      true,
			WaPipeControlBeforePostSync: true,
		},
		Features:                 FeatureTable{SupportsCoherency: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductDG1: {
		Product: ProductDG1, Family: FamilyGen12LP, DeviceID: 0x4905,
		TileCount: 1, SliceCount: 1, SubSliceCount: 6, EUCount: 96,
		Features:                 FeatureTable{LocalMemory: true, SupportsCoherency: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductXeHPSDV: {
		Product: ProductXeHPSDV, Family: FamilyXeHP, DeviceID: 0x0201,
		TileCount: 4, SliceCount: 4, SubSliceCount: 32, EUCount: 512,
		Features:                 FeatureTable{LocalMemory: true, SupportsImplicitScaling: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductDG2: {
		Product: ProductDG2, Family: FamilyXeHPG, DeviceID: 0x4f80,
		TileCount: 1, SliceCount: 8, SubSliceCount: 32, EUCount: 512,
		Features:                 FeatureTable{LocalMemory: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
	ProductPVC: {
		Product: ProductPVC, Family: FamilyXeHPC, DeviceID: 0x0bd5,
		TileCount: 2, SliceCount: 8, SubSliceCount: 64, EUCount: 1024,
		Features:                 FeatureTable{LocalMemory: true, SupportsImplicitScaling: true, SupportsLargeGrf: true},
		ProfilingTimerResolution: 52.083,
		CSPrefetchSize:           8 * CacheLineSizeBytes,
	},
}

// CacheLineSizeBytes mirrors memutils.CacheLineSize without importing it into the tag package
const CacheLineSizeBytes = 64

// DefaultHardwareInfo returns the default configuration for a product. The second return is false for
// products with no known configuration.
func DefaultHardwareInfo(product Product) (HardwareInfo, bool) {
	info, ok := defaultHardwareInfo[product]
	return info, ok
}

// ProductForDeviceID returns the product whose default configuration carries deviceID
func ProductForDeviceID(deviceID uint16) (Product, bool) {
	for product, info := range defaultHardwareInfo {
		if info.DeviceID == deviceID {
			return product, true
		}
	}
	return ProductUnknown, false
}

// DeviceBitfield is a mask of the tiles participating in an operation
type DeviceBitfield uint32

func NewDeviceBitfield(tileCount uint32) DeviceBitfield {
	return DeviceBitfield((uint64(1) << tileCount) - 1)
}

func (d DeviceBitfield) Count() uint32 {
	count := uint32(0)
	for v := uint32(d); v != 0; v &= v - 1 {
		count++
	}
	return count
}

func (d DeviceBitfield) Test(index uint32) bool {
	return d&(1<<index) != 0
}

func (d DeviceBitfield) Set(index uint32) DeviceBitfield {
	return d | (1 << index)
}
