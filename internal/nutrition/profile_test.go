package nutrition

import (
	"math"
	"testing"
)

func TestFromValues_CoreMacrosAlwaysPresent(t *testing.T) {
	p := FromValues(map[string]float64{})
	if p.Calories != 0 || p.Protein != 0 || p.Carbs != 0 || p.Fat != 0 {
		t.Errorf("core macros should default to 0: %+v", p)
	}
	if p.Fiber != nil || p.VitaminC != nil {
		t.Error("optional fields should stay nil when absent")
	}
}

func TestFromValues_Rounding(t *testing.T) {
	p := FromValues(map[string]float64{
		"calories":   151.6,
		"protein":    12.34,
		"sodium":     88.7,
		"iron":       1.234,
		"vitaminB12": 0.456,
	})
	if p.Calories != 152 {
		t.Errorf("calories = %v, want 152 (whole units)", p.Calories)
	}
	if p.Protein != 12.3 {
		t.Errorf("protein = %v, want 12.3", p.Protein)
	}
	if p.Sodium == nil || *p.Sodium != 89 {
		t.Errorf("sodium = %v, want 89", p.Sodium)
	}
	if p.Iron == nil || *p.Iron != 1.23 {
		t.Errorf("iron = %v, want 1.23", p.Iron)
	}
	if p.VitaminB12 == nil || *p.VitaminB12 != 0.46 {
		t.Errorf("vitaminB12 = %v, want 0.46", p.VitaminB12)
	}
}

func TestFromValues_DropsBadValues(t *testing.T) {
	p := FromValues(map[string]float64{
		"fiber":    -2,
		"sugar":    math.NaN(),
		"zinc":     math.Inf(1),
		"calories": -50,
	})
	if p.Fiber != nil || p.Sugar != nil || p.Zinc != nil {
		t.Errorf("negative/non-finite optional values must be dropped: %+v", p)
	}
	if p.Calories != 0 {
		t.Errorf("negative calories should clamp to 0, got %v", p.Calories)
	}
}

func TestFromValues_IgnoresUnknownKeys(t *testing.T) {
	p := FromValues(map[string]float64{"caffeine": 95, "calories": 10})
	if p.Calories != 10 {
		t.Errorf("calories = %v, want 10", p.Calories)
	}
}

func TestFromModelJSON(t *testing.T) {
	p := FromModelJSON(`{"calories": 210, "protein": 8.05, "carbohydrates": 33, "fat": 5, "fiber": 4.2, "brand": "n/a"}`)
	if p == nil {
		t.Fatal("expected a profile")
	}
	if p.Calories != 210 {
		t.Errorf("calories = %v, want 210", p.Calories)
	}
	if p.Carbs != 33 {
		t.Errorf("carbohydrates alias not applied: carbs = %v", p.Carbs)
	}
	if p.Protein != 8.1 {
		t.Errorf("protein = %v, want 8.1", p.Protein)
	}
	if p.Fiber == nil || *p.Fiber != 4.2 {
		t.Errorf("fiber = %v, want 4.2", p.Fiber)
	}
}

func TestFromModelJSON_CaseInsensitiveKeys(t *testing.T) {
	p := FromModelJSON(`{"Calories": 100, "VITAMINC": 12}`)
	if p == nil {
		t.Fatal("expected a profile")
	}
	if p.Calories != 100 {
		t.Errorf("calories = %v, want 100", p.Calories)
	}
	if p.VitaminC == nil || *p.VitaminC != 12 {
		t.Errorf("vitaminC = %v, want 12", p.VitaminC)
	}
}

func TestFromModelJSON_NumericStrings(t *testing.T) {
	p := FromModelJSON(`{"calories": "180", "protein": "not a number"}`)
	if p == nil {
		t.Fatal("expected a profile")
	}
	if p.Calories != 180 {
		t.Errorf("calories = %v, want 180", p.Calories)
	}
	if p.Protein != 0 {
		t.Errorf("unparseable protein should default to 0, got %v", p.Protein)
	}
}

func TestFromModelJSON_Unusable(t *testing.T) {
	for _, input := range []string{
		`[1,2,3]`,
		`"calories"`,
		`{}`,
		`{"brand":"acme","note":"tasty"}`,
	} {
		if p := FromModelJSON(input); p != nil {
			t.Errorf("FromModelJSON(%q) = %+v, want nil", input, p)
		}
	}
}
