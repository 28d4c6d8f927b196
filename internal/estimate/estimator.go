// Package estimate produces model-estimated nutrition when the
// canonical database yields no usable match. Estimates are best-effort
// and always attributed as such; any failure here is terminal for the
// food being resolved.
package estimate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mealsnap/mealsnap-api/internal/jsonextract"
	"github.com/mealsnap/mealsnap-api/internal/nutrition"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	defaultTimeout      = 25 * time.Second
)

const systemPrompt = `You are a nutrition estimation engine. Given a food description with a serving size, estimate its nutrition facts.
Respond with ONLY a JSON object, no other text. Use these keys (omit any you cannot estimate):
calories, protein, carbs, fat, fiber, sugar, saturatedFat, cholesterol, sodium, potassium, calcium, iron, magnesium, zinc, vitaminA, vitaminC, vitaminD, vitaminE, vitaminK, vitaminB6, vitaminB12, folate, thiamin, riboflavin.
All values are numbers for the stated serving: calories in kcal, macros in grams, sodium/potassium/calcium/magnesium/cholesterol in mg, vitamins in their customary units.`

// Estimator calls a text-completion model for nutrition estimates.
type Estimator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	referer    string
	title      string
}

// Config configures an Estimator.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// New constructs an Estimator.
func New(cfg Config) *Estimator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Estimator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		referer:    cfg.Referer,
		title:      cfg.Title,
	}
}

// Estimate asks the model for nutrition facts for description. A nil
// profile means the estimate is unusable; the caller marks the food as
// failed. There are no retries.
func (e *Estimator) Estimate(ctx context.Context, description string) (*nutrition.Profile, error) {
	payload, err := e.buildPayload(description)
	if err != nil {
		return nil, fmt.Errorf("estimate: build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("estimate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	if e.referer != "" {
		req.Header.Set("HTTP-Referer", e.referer)
	}
	if e.title != "" {
		req.Header.Set("X-Title", e.title)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("estimate: request: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("estimate: close response body: %v", errClose)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("estimate: status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("estimate: read response: %w", err)
	}

	content := gjson.GetBytes(body, "choices.0.message.content").String()
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("estimate: empty model reply")
	}
	object, ok := jsonextract.FirstObject(content)
	if !ok {
		return nil, fmt.Errorf("estimate: no JSON object in model reply")
	}
	profile := nutrition.FromModelJSON(object)
	if profile == nil {
		return nil, fmt.Errorf("estimate: reply carried no nutrient values")
	}
	return profile, nil
}

func (e *Estimator) buildPayload(description string) ([]byte, error) {
	payload, err := sjson.Set("{}", "model", e.model)
	if err != nil {
		return nil, err
	}
	payload, _ = sjson.Set(payload, "max_tokens", 512)
	payload, _ = sjson.Set(payload, "messages.0.role", "system")
	payload, _ = sjson.Set(payload, "messages.0.content", systemPrompt)
	payload, _ = sjson.Set(payload, "messages.1.role", "user")
	payload, err = sjson.Set(payload, "messages.1.content", "Estimate the nutrition facts for: "+description)
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}
