package enums

import "fmt"

// ProductCategory represents the catalog families a product can belong to.
type ProductCategory string

const (
	ProductCategorySmartphone ProductCategory = "Smartphone"
	ProductCategoryLaptop     ProductCategory = "Laptop"
	ProductCategoryAppliance  ProductCategory = "Appliance"
)

var validProductCategories = []ProductCategory{
	ProductCategorySmartphone,
	ProductCategoryLaptop,
	ProductCategoryAppliance,
}

// String implements fmt.Stringer.
func (p ProductCategory) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductCategory.
func (p ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}
