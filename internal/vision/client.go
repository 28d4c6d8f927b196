// Package vision identifies foods in a photo through a vision-capable
// chat-completion model.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mealsnap/mealsnap-api/internal/apperrors"
	"github.com/mealsnap/mealsnap-api/internal/jsonextract"
)

const (
	// MaxFoods caps downstream fan-out per photo. It is a cost and
	// latency ceiling, not a quality filter.
	MaxFoods = 8

	// DefaultTimeout bounds the vision call independently of the
	// caller's overall deadline.
	DefaultTimeout = 22 * time.Second

	chatCompletionsPath = "/v1/chat/completions"
	defaultNoFoodReply  = "No food detected in the photo. Try a clearer shot with the food in frame."
)

const identifyPrompt = `Look at this photo and identify every distinct food or drink item visible.
For each item estimate the serving size you can see (for example "1 cup", "2 slices", "150 g", "1 medium").
Respond with ONLY a JSON object in exactly this shape, no other text:
{"foods":[{"name":"<food name>","estimatedServing":"<serving estimate>"}]}
If the photo contains no food or drink, respond with {"foods":[]}.`

// IdentifiedFood is one item the model found in the photo.
type IdentifiedFood struct {
	Name             string `json:"name"`
	EstimatedServing string `json:"estimatedServing"`
}

// Client calls the vision model over an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	referer    string
	title      string
	timeout    time.Duration
}

// Config configures a vision Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// New constructs a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		referer:    cfg.Referer,
		title:      cfg.Title,
		timeout:    cfg.Timeout,
	}
}

// Identify sends the photo to the model and parses the identified food
// list. When the model reports no food, it returns an empty list plus a
// user-facing message and no error; hard failures return a coded error.
func (c *Client) Identify(ctx context.Context, imageB64 string) ([]IdentifiedFood, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := c.buildPayload(imageB64)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeUnexpected, "failed to build vision request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeUnexpected, "failed to build vision request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			return nil, "", apperrors.Wrap(apperrors.CodeTimeout, "vision model timed out", err)
		}
		return nil, "", apperrors.Wrap(apperrors.CodeUpstreamMalformed, "vision model unreachable", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("vision: close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeUpstreamMalformed, "failed to read vision response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", apperrors.New(apperrors.CodeUpstreamRateLimited, "vision model is rate limited, try again shortly")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", apperrors.New(apperrors.CodeUpstreamAuth, "vision model rejected the API key")
	case resp.StatusCode != http.StatusOK:
		return nil, "", apperrors.New(apperrors.CodeUpstreamMalformed,
			fmt.Sprintf("vision model returned status %d", resp.StatusCode))
	}

	content := gjson.GetBytes(body, "choices.0.message.content").String()
	if strings.TrimSpace(content) == "" {
		return nil, "", apperrors.New(apperrors.CodeUpstreamEmpty, "vision model returned an empty reply")
	}

	foods, ok := parseFoods(content)
	if !ok || len(foods) == 0 {
		// Not a hard error: the common case is a photo with no food.
		return nil, defaultNoFoodReply, nil
	}
	if len(foods) > MaxFoods {
		log.Warnf("vision: truncating %d identified foods to %d", len(foods), MaxFoods)
		foods = foods[:MaxFoods]
	}
	return foods, "", nil
}

func (c *Client) buildPayload(imageB64 string) ([]byte, error) {
	payload, err := sjson.Set("{}", "model", c.model)
	if err != nil {
		return nil, err
	}
	payload, _ = sjson.Set(payload, "max_tokens", 1024)
	payload, _ = sjson.Set(payload, "messages.0.role", "user")
	payload, _ = sjson.Set(payload, "messages.0.content.0.type", "text")
	payload, _ = sjson.Set(payload, "messages.0.content.0.text", identifyPrompt)
	payload, _ = sjson.Set(payload, "messages.0.content.1.type", "image_url")
	payload, err = sjson.Set(payload, "messages.0.content.1.image_url.url", "data:image/jpeg;base64,"+imageB64)
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func parseFoods(content string) ([]IdentifiedFood, bool) {
	object, ok := jsonextract.FirstObject(content)
	if !ok {
		return nil, false
	}
	list := gjson.Get(object, "foods")
	if !list.IsArray() {
		return nil, false
	}
	var foods []IdentifiedFood
	list.ForEach(func(_, entry gjson.Result) bool {
		name := strings.TrimSpace(entry.Get("name").String())
		if name == "" {
			return true
		}
		foods = append(foods, IdentifiedFood{
			Name:             name,
			EstimatedServing: strings.TrimSpace(entry.Get("estimatedServing").String()),
		})
		return true
	})
	return foods, true
}
