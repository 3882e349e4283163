package hw

// Family identifies a GPU core generation. Command layouts and workaround sets are keyed on it.
type Family uint32

const (
	FamilyUnknown Family = iota
	FamilyGen9
	FamilyGen11
	FamilyGen12LP
	FamilyXeHP
	FamilyXeHPG
	FamilyXeHPC
)

var familyMapping = map[Family]string{
	FamilyUnknown: "Unknown",
	FamilyGen9:    "Gen9",
	FamilyGen11:   "Gen11",
	FamilyGen12LP: "Gen12LP",
	FamilyXeHP:    "XeHP",
	FamilyXeHPG:   "XeHPG",
	FamilyXeHPC:   "XeHPC",
}

func (f Family) String() string {
	return familyMapping[f]
}

// IsXeHPAndLater reports whether the family dispatches through COMPUTE_WALKER rather than GPGPU_WALKER
func (f Family) IsXeHPAndLater() bool {
	return f >= FamilyXeHP
}

// ParseFamily returns the family with the given name, or FamilyUnknown
func ParseFamily(name string) Family {
	for family, familyName := range familyMapping {
		if familyName == name {
			return family
		}
	}
	return FamilyUnknown
}

// Families lists every known family in generation order
func Families() []Family {
	return []Family{FamilyGen9, FamilyGen11, FamilyGen12LP, FamilyXeHP, FamilyXeHPG, FamilyXeHPC}
}

// Product identifies a specific GPU product within a family
type Product uint32

const (
	ProductUnknown Product = iota
	ProductSKL
	ProductEHL
	ProductLKF
	ProductTGLLP
	ProductDG1
	ProductXeHPSDV
	ProductDG2
	ProductPVC
)

var productMapping = map[Product]string{
	ProductUnknown: "Unknown",
	ProductSKL:     "SKL",
	ProductEHL:     "EHL",
	ProductLKF:     "LKF",
	ProductTGLLP:   "TGLLP",
	ProductDG1:     "DG1",
	ProductXeHPSDV: "XE_HP_SDV",
	ProductDG2:     "DG2",
	ProductPVC:     "PVC",
}

func (p Product) String() string {
	return productMapping[p]
}

var productFamilies = map[Product]Family{
	ProductSKL:     FamilyGen9,
	ProductEHL:     FamilyGen11,
	ProductLKF:     FamilyGen11,
	ProductTGLLP:   FamilyGen12LP,
	ProductDG1:     FamilyGen12LP,
	ProductXeHPSDV: FamilyXeHP,
	ProductDG2:     FamilyXeHPG,
	ProductPVC:     FamilyXeHPC,
}

func (p Product) Family() Family {
	return productFamilies[p]
}

func ParseProduct(name string) Product {
	for product, productName := range productMapping {
		if productName == name {
			return product
		}
	}
	return ProductUnknown
}

// Products lists every known product in release order
func Products() []Product {
	return []Product{ProductSKL, ProductEHL, ProductLKF, ProductTGLLP, ProductDG1, ProductXeHPSDV, ProductDG2, ProductPVC}
}
