package enums

import "fmt"

// ProductGrouping selects how catalog listings are filtered.
type ProductGrouping string

const (
	ProductGroupingNone     ProductGrouping = ""
	ProductGroupingCategory ProductGrouping = "category"
	ProductGroupingModel    ProductGrouping = "model"
)

var validProductGroupings = []ProductGrouping{
	ProductGroupingNone,
	ProductGroupingCategory,
	ProductGroupingModel,
}

// String implements fmt.Stringer.
func (g ProductGrouping) String() string {
	return string(g)
}

// IsValid reports whether the value is a known ProductGrouping.
func (g ProductGrouping) IsValid() bool {
	for _, candidate := range validProductGroupings {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseProductGrouping converts raw input into a ProductGrouping.
func ParseProductGrouping(value string) (ProductGrouping, error) {
	for _, candidate := range validProductGroupings {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product grouping %q", value)
}
