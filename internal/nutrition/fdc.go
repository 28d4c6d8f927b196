package nutrition

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// Restrict matches to the two curated FoodData Central tiers;
	// branded and survey entries are too noisy for rank-0 trust.
	fdcDataTypes  = "Foundation,SR Legacy"
	fdcPageSize   = 3
	fdcSearchPath = "/v1/foods/search"

	defaultFDCTimeout = 15 * time.Second
)

// fdcNutrientFields maps FoodData Central nutrient IDs to canonical
// profile fields. Everything outside this table is discarded.
var fdcNutrientFields = map[int64]string{
	1008: "calories",
	1003: "protein",
	1005: "carbs",
	1004: "fat",
	1079: "fiber",
	2000: "sugar",
	1258: "saturatedFat",
	1253: "cholesterol",
	1093: "sodium",
	1092: "potassium",
	1087: "calcium",
	1089: "iron",
	1090: "magnesium",
	1095: "zinc",
	1106: "vitaminA",
	1162: "vitaminC",
	1114: "vitaminD",
	1109: "vitaminE",
	1185: "vitaminK",
	1175: "vitaminB6",
	1178: "vitaminB12",
	1177: "folate",
	1165: "thiamin",
	1166: "riboflavin",
}

// Resolver looks foods up in the FoodData Central search endpoint and
// scales the per-100g breakdown to a serving.
type Resolver struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFDCTimeout
	}
	return &Resolver{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// Resolve queries the database by free-text name and returns the scaled
// profile plus the matched entry's description. A nil profile with a
// nil error means "no usable match"; the caller falls forward to the
// estimator. The database's own relevance ranking is trusted as-is: the
// first candidate wins, no re-scoring.
func (r *Resolver) Resolve(ctx context.Context, foodName string, servingGrams int) (*Profile, string, error) {
	query := url.Values{}
	query.Set("query", foodName)
	query.Set("dataType", fdcDataTypes)
	query.Set("pageSize", strconv.Itoa(fdcPageSize))
	query.Set("api_key", r.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+fdcSearchPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fdc: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fdc: search request: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("fdc: close response body: %v", errClose)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("fdc: search status %d: %s", resp.StatusCode, string(body))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fdc: read response: %w", err)
	}

	first := gjson.GetBytes(payload, "foods.0")
	if !first.Exists() {
		return nil, "", nil
	}
	nutrients := first.Get("foodNutrients")
	if !nutrients.IsArray() || len(nutrients.Array()) == 0 {
		return nil, "", nil
	}

	scale := float64(servingGrams) / 100
	values := make(map[string]float64)
	nutrients.ForEach(func(_, entry gjson.Result) bool {
		field, ok := fdcNutrientFields[entry.Get("nutrientId").Int()]
		if !ok {
			return true
		}
		value := entry.Get("value")
		if value.Type != gjson.Number {
			return true
		}
		values[field] = value.Num * scale
		return true
	})

	profile := FromValues(values)
	if profile.Calories == 0 {
		// A zero-calorie "match" is a mismatched entry, not food.
		return nil, "", nil
	}
	return profile, first.Get("description").String(), nil
}
