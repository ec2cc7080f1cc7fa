package routing

import (
	"strconv"
	"strings"
)

// Category is a routing category derived from a merchant category code.
type Category string

const (
	CategoryDining    Category = "dining"
	CategoryTravel    Category = "travel"
	CategoryFuel      Category = "fuel"
	CategoryGrocery   Category = "grocery"
	CategoryOnline    Category = "online"
	CategoryStreaming Category = "streaming"
	CategoryDefault   Category = "default"
)

// Categories returns all routing categories, default last.
func Categories() []Category {
	return []Category{
		CategoryDining,
		CategoryTravel,
		CategoryFuel,
		CategoryGrocery,
		CategoryOnline,
		CategoryStreaming,
		CategoryDefault,
	}
}

// exactCodes take precedence over the travel range.
var exactCodes = map[int]Category{
	5812: CategoryDining,
	5813: CategoryDining,
	5814: CategoryDining,
	5541: CategoryFuel,
	5542: CategoryFuel,
	5411: CategoryGrocery,
	5732: CategoryOnline,
	5734: CategoryOnline,
	4899: CategoryStreaming,
	5815: CategoryStreaming,
}

// Classify maps a merchant category code to a routing category. The MCC is
// compared numerically, not lexicographically; an absent or malformed code
// classifies as default and never fails.
func Classify(mcc string) Category {
	code, err := strconv.Atoi(strings.TrimSpace(mcc))
	if err != nil || code < 0 {
		return CategoryDefault
	}
	if category, ok := exactCodes[code]; ok {
		return category
	}
	if code >= 3000 && code <= 3999 {
		return CategoryTravel
	}
	return CategoryDefault
}
