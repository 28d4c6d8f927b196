// Package nutrition defines the canonical nutrient profile and the
// adapters that convert the two upstream representations (FoodData
// Central per-100g breakdowns, model-estimated JSON) into it. The
// rounding and clamping policy lives here and nowhere else, so both
// producers emit exactly the same shape.
package nutrition

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Profile is the single nutrient currency of the pipeline. Calories,
// Protein, Carbs and Fat are always present (0 when unknown) because
// meal-logging consumers require them; the remaining fields are nil
// when the source carried no value.
type Profile struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`

	Fiber        *float64 `json:"fiber"`
	Sugar        *float64 `json:"sugar"`
	SaturatedFat *float64 `json:"saturatedFat"`
	Cholesterol  *float64 `json:"cholesterol"`
	Sodium       *float64 `json:"sodium"`
	Potassium    *float64 `json:"potassium"`
	Calcium      *float64 `json:"calcium"`
	Iron         *float64 `json:"iron"`
	Magnesium    *float64 `json:"magnesium"`
	Zinc         *float64 `json:"zinc"`
	VitaminA     *float64 `json:"vitaminA"`
	VitaminC     *float64 `json:"vitaminC"`
	VitaminD     *float64 `json:"vitaminD"`
	VitaminE     *float64 `json:"vitaminE"`
	VitaminK     *float64 `json:"vitaminK"`
	VitaminB6    *float64 `json:"vitaminB6"`
	VitaminB12   *float64 `json:"vitaminB12"`
	Folate       *float64 `json:"folate"`
	Thiamin      *float64 `json:"thiamin"`
	Riboflavin   *float64 `json:"riboflavin"`
}

// fieldPrecision fixes the decimal places each field is rounded to.
// Energy and the bulk minerals report whole units; trace nutrients keep
// up to two decimals.
var fieldPrecision = map[string]int{
	"calories":     0,
	"protein":      1,
	"carbs":        1,
	"fat":          1,
	"fiber":        1,
	"sugar":        1,
	"saturatedFat": 1,
	"cholesterol":  0,
	"sodium":       0,
	"potassium":    0,
	"calcium":      0,
	"iron":         2,
	"magnesium":    0,
	"zinc":         2,
	"vitaminA":     0,
	"vitaminC":     1,
	"vitaminD":     2,
	"vitaminE":     2,
	"vitaminK":     1,
	"vitaminB6":    2,
	"vitaminB12":   2,
	"folate":       0,
	"thiamin":      2,
	"riboflavin":   2,
}

// fieldAliases maps lowercase incoming names to canonical field names.
// Estimation models sometimes spell carbs out in full.
var fieldAliases = buildAliases()

func buildAliases() map[string]string {
	out := make(map[string]string, len(fieldPrecision)+1)
	for name := range fieldPrecision {
		out[strings.ToLower(name)] = name
	}
	out["carbohydrates"] = "carbs"
	return out
}

// FromValues normalizes a map of canonical-field → raw value into a
// Profile: per-field rounding, negative and non-finite values dropped,
// the four core macros defaulted to 0. Unknown keys are ignored.
func FromValues(values map[string]float64) *Profile {
	norm := make(map[string]float64, len(values))
	for name, raw := range values {
		prec, ok := fieldPrecision[name]
		if !ok {
			continue
		}
		if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
			continue
		}
		norm[name] = roundTo(raw, prec)
	}

	p := &Profile{
		Calories: norm["calories"],
		Protein:  norm["protein"],
		Carbs:    norm["carbs"],
		Fat:      norm["fat"],
	}
	p.Fiber = optional(norm, "fiber")
	p.Sugar = optional(norm, "sugar")
	p.SaturatedFat = optional(norm, "saturatedFat")
	p.Cholesterol = optional(norm, "cholesterol")
	p.Sodium = optional(norm, "sodium")
	p.Potassium = optional(norm, "potassium")
	p.Calcium = optional(norm, "calcium")
	p.Iron = optional(norm, "iron")
	p.Magnesium = optional(norm, "magnesium")
	p.Zinc = optional(norm, "zinc")
	p.VitaminA = optional(norm, "vitaminA")
	p.VitaminC = optional(norm, "vitaminC")
	p.VitaminD = optional(norm, "vitaminD")
	p.VitaminE = optional(norm, "vitaminE")
	p.VitaminK = optional(norm, "vitaminK")
	p.VitaminB6 = optional(norm, "vitaminB6")
	p.VitaminB12 = optional(norm, "vitaminB12")
	p.Folate = optional(norm, "folate")
	p.Thiamin = optional(norm, "thiamin")
	p.Riboflavin = optional(norm, "riboflavin")
	return p
}

// FromModelJSON converts a model-produced JSON object using the shared
// normalization policy. Returns nil when the object carries no
// recognizable nutrient value.
func FromModelJSON(object string) *Profile {
	parsed := gjson.Parse(object)
	if !parsed.IsObject() {
		return nil
	}

	values := make(map[string]float64)
	parsed.ForEach(func(key, value gjson.Result) bool {
		field, ok := fieldAliases[strings.ToLower(key.String())]
		if !ok {
			return true
		}
		num, ok := numeric(value)
		if !ok {
			return true
		}
		values[field] = num
		return true
	})
	if len(values) == 0 {
		return nil
	}
	return FromValues(values)
}

func numeric(value gjson.Result) (float64, bool) {
	switch value.Type {
	case gjson.Number:
		return value.Num, true
	case gjson.String:
		trimmed := strings.TrimSpace(value.Str)
		if trimmed == "" {
			return 0, false
		}
		parsed := gjson.Parse(trimmed)
		if parsed.Type == gjson.Number {
			return parsed.Num, true
		}
	}
	return 0, false
}

func optional(m map[string]float64, key string) *float64 {
	if v, ok := m[key]; ok {
		return &v
	}
	return nil
}

func roundTo(value float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(value*shift) / shift
}
