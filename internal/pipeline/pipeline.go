// Package pipeline orchestrates per-food nutrition resolution: serving
// normalization, canonical database lookup, and model-estimated
// fallback, fanned out concurrently across all identified foods.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mealsnap/mealsnap-api/internal/nutrition"
	"github.com/mealsnap/mealsnap-api/internal/serving"
	"github.com/mealsnap/mealsnap-api/internal/vision"
)

// Source attribution values for FoodResult.
const (
	SourceDatabase  = "database"
	SourceEstimated = "estimated"
	SourceFailed    = "failed"
)

// Each food's resolution gets its own deadline carved from the request
// context so one slow upstream call cannot pin its siblings.
const defaultItemTimeout = 30 * time.Second

// Resolver is the canonical nutrition lookup. A nil profile with a nil
// error means no usable match.
type Resolver interface {
	Resolve(ctx context.Context, foodName string, servingGrams int) (*nutrition.Profile, string, error)
}

// Estimator is the text-model fallback.
type Estimator interface {
	Estimate(ctx context.Context, description string) (*nutrition.Profile, error)
}

// FoodResult is the resolved outcome for one identified food.
type FoodResult struct {
	Name         string             `json:"name"`
	Serving      string             `json:"serving"`
	Nutrition    *nutrition.Profile `json:"nutrition"`
	Source       string             `json:"source"`
	MatchedLabel string             `json:"matchedLabel,omitempty"`
}

// Batch is the ordered aggregate of one photo's resolutions.
type Batch struct {
	Foods           []FoodResult
	TotalIdentified int
	SuccessCount    int
}

// Pipeline fans per-food resolution out and joins the results in
// identification order.
type Pipeline struct {
	resolver    Resolver
	estimator   Estimator
	itemTimeout time.Duration
}

// New constructs a Pipeline.
func New(resolver Resolver, estimator Estimator) *Pipeline {
	return &Pipeline{
		resolver:    resolver,
		estimator:   estimator,
		itemTimeout: defaultItemTimeout,
	}
}

// Resolve settles every identified food concurrently and returns the
// batch. Output order equals input order regardless of completion
// order, and a failure on one item never affects its siblings.
func (p *Pipeline) Resolve(ctx context.Context, foods []vision.IdentifiedFood) Batch {
	results := make([]FoodResult, len(foods))

	var wg sync.WaitGroup
	for i, food := range foods {
		wg.Add(1)
		go func(i int, food vision.IdentifiedFood) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("pipeline: panic resolving %q: %v", food.Name, r)
					results[i] = failedResult(food)
				}
			}()
			results[i] = p.resolveOne(ctx, food)
		}(i, food)
	}
	wg.Wait()

	batch := Batch{Foods: results, TotalIdentified: len(foods)}
	for _, r := range results {
		if r.Nutrition != nil {
			batch.SuccessCount++
		}
	}
	return batch
}

func (p *Pipeline) resolveOne(ctx context.Context, food vision.IdentifiedFood) FoodResult {
	itemCtx, cancel := context.WithTimeout(ctx, p.itemTimeout)
	defer cancel()

	grams := serving.Grams(food.EstimatedServing)

	profile, label, err := p.resolver.Resolve(itemCtx, food.Name, grams)
	if err != nil {
		log.WithError(err).Warnf("pipeline: database lookup failed for %q", food.Name)
	}
	if profile != nil {
		return FoodResult{
			Name:         food.Name,
			Serving:      food.EstimatedServing,
			Nutrition:    profile,
			Source:       SourceDatabase,
			MatchedLabel: label,
		}
	}

	// Fall forward to the estimator exactly once; its failure is
	// terminal for this food.
	estimated, err := p.estimator.Estimate(itemCtx, describeFood(food))
	if err != nil {
		log.WithError(err).Warnf("pipeline: estimate failed for %q", food.Name)
	}
	if estimated != nil {
		return FoodResult{
			Name:      food.Name,
			Serving:   food.EstimatedServing,
			Nutrition: estimated,
			Source:    SourceEstimated,
		}
	}
	return failedResult(food)
}

func failedResult(food vision.IdentifiedFood) FoodResult {
	return FoodResult{
		Name:    food.Name,
		Serving: food.EstimatedServing,
		Source:  SourceFailed,
	}
}

func describeFood(food vision.IdentifiedFood) string {
	if food.EstimatedServing == "" {
		return food.Name
	}
	return fmt.Sprintf("%s (%s)", food.Name, food.EstimatedServing)
}
