// Package serving converts free-text serving descriptions ("1 cup",
// "2 slices", "100g") into gram quantities for nutrient scaling.
package serving

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultGrams is the fallback quantity when the description carries no
// usable amount or unit. It encodes a "typical serving" policy, not a
// parse error.
const DefaultGrams = 150

var amountPattern = regexp.MustCompile(`^(\d*\.?\d+)\s*(.*)$`)

// gramsPerUnit maps a unit token to its gram weight per single unit.
// Size adjectives stand in for whole items.
var gramsPerUnit = map[string]float64{
	"g":           1,
	"gram":        1,
	"grams":       1,
	"oz":          28.35,
	"ounce":       28.35,
	"ounces":      28.35,
	"cup":         240,
	"cups":        240,
	"tbsp":        15,
	"tablespoon":  15,
	"tablespoons": 15,
	"tsp":         5,
	"teaspoon":    5,
	"teaspoons":   5,
	"lb":          453.6,
	"lbs":         453.6,
	"pound":       453.6,
	"pounds":      453.6,
	"kg":          1000,
	"ml":          1,
	"l":           1000,
	"liter":       1000,
	"liters":      1000,
	"slice":       30,
	"slices":      30,
	"piece":       50,
	"pieces":      50,
	"serving":     150,
	"servings":    150,
	"small":       100,
	"medium":      150,
	"large":       200,
}

// Grams converts a serving description to whole grams. It is total:
// anything unparseable yields DefaultGrams.
func Grams(text string) int {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return DefaultGrams
	}

	match := amountPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return DefaultGrams
	}
	amount, err := strconv.ParseFloat(match[1], 64)
	if err != nil || amount <= 0 {
		return DefaultGrams
	}

	unit := firstToken(match[2])
	factor, ok := gramsPerUnit[unit]
	if !ok {
		return DefaultGrams
	}
	return int(math.Round(amount * factor))
}

func firstToken(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,()")
}
