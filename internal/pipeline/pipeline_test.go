package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mealsnap/mealsnap-api/internal/nutrition"
	"github.com/mealsnap/mealsnap-api/internal/vision"
)

type stubResolver struct {
	fn func(ctx context.Context, name string, grams int) (*nutrition.Profile, string, error)
}

func (s *stubResolver) Resolve(ctx context.Context, name string, grams int) (*nutrition.Profile, string, error) {
	return s.fn(ctx, name, grams)
}

type stubEstimator struct {
	fn func(ctx context.Context, description string) (*nutrition.Profile, error)
}

func (s *stubEstimator) Estimate(ctx context.Context, description string) (*nutrition.Profile, error) {
	return s.fn(ctx, description)
}

func profileWithCalories(cal float64) *nutrition.Profile {
	return nutrition.FromValues(map[string]float64{"calories": cal})
}

func foods(names ...string) []vision.IdentifiedFood {
	out := make([]vision.IdentifiedFood, len(names))
	for i, n := range names {
		out[i] = vision.IdentifiedFood{Name: n, EstimatedServing: "100 g"}
	}
	return out
}

func TestResolve_OrderPreserved(t *testing.T) {
	// Later items finish first; positions must still match input.
	resolver := &stubResolver{fn: func(ctx context.Context, name string, _ int) (*nutrition.Profile, string, error) {
		var delay time.Duration
		switch name {
		case "first":
			delay = 60 * time.Millisecond
		case "second":
			delay = 30 * time.Millisecond
		}
		time.Sleep(delay)
		return profileWithCalories(100), "match: " + name, nil
	}}
	p := New(resolver, &stubEstimator{fn: func(context.Context, string) (*nutrition.Profile, error) {
		return nil, errors.New("unused")
	}})

	batch := p.Resolve(context.Background(), foods("first", "second", "third"))
	if len(batch.Foods) != 3 {
		t.Fatalf("got %d results, want 3", len(batch.Foods))
	}
	for i, want := range []string{"first", "second", "third"} {
		if batch.Foods[i].Name != want {
			t.Errorf("position %d: got %q, want %q", i, batch.Foods[i].Name, want)
		}
		if batch.Foods[i].MatchedLabel != "match: "+want {
			t.Errorf("position %d: matched label %q", i, batch.Foods[i].MatchedLabel)
		}
	}
}

func TestResolve_DatabaseHit(t *testing.T) {
	resolver := &stubResolver{fn: func(_ context.Context, name string, grams int) (*nutrition.Profile, string, error) {
		if grams != 100 {
			t.Errorf("grams = %d, want 100", grams)
		}
		return profileWithCalories(52), "Apples, raw, with skin", nil
	}}
	estimatorCalled := false
	p := New(resolver, &stubEstimator{fn: func(context.Context, string) (*nutrition.Profile, error) {
		estimatorCalled = true
		return nil, nil
	}})

	batch := p.Resolve(context.Background(), foods("apple"))
	r := batch.Foods[0]
	if r.Source != SourceDatabase {
		t.Errorf("source = %q, want %q", r.Source, SourceDatabase)
	}
	if r.MatchedLabel == "" {
		t.Error("database results must carry a matched label")
	}
	if estimatorCalled {
		t.Error("estimator must not run when the database resolves")
	}
	if batch.SuccessCount != 1 {
		t.Errorf("success count = %d, want 1", batch.SuccessCount)
	}
}

func TestResolve_FallsForwardToEstimator(t *testing.T) {
	resolver := &stubResolver{fn: func(context.Context, string, int) (*nutrition.Profile, string, error) {
		return nil, "", nil // no usable match
	}}
	var gotDescription string
	p := New(resolver, &stubEstimator{fn: func(_ context.Context, description string) (*nutrition.Profile, error) {
		gotDescription = description
		return profileWithCalories(300), nil
	}})

	batch := p.Resolve(context.Background(), []vision.IdentifiedFood{
		{Name: "homemade curry", EstimatedServing: "1 cup"},
	})
	r := batch.Foods[0]
	if r.Source != SourceEstimated {
		t.Errorf("source = %q, want %q", r.Source, SourceEstimated)
	}
	if r.MatchedLabel != "" {
		t.Errorf("estimated results must not carry a matched label, got %q", r.MatchedLabel)
	}
	if !strings.Contains(gotDescription, "homemade curry") || !strings.Contains(gotDescription, "1 cup") {
		t.Errorf("estimator description %q should carry name and serving", gotDescription)
	}
}

func TestResolve_TerminalFailure(t *testing.T) {
	p := New(
		&stubResolver{fn: func(context.Context, string, int) (*nutrition.Profile, string, error) {
			return nil, "", errors.New("database down")
		}},
		&stubEstimator{fn: func(context.Context, string) (*nutrition.Profile, error) {
			return nil, errors.New("model down")
		}},
	)

	batch := p.Resolve(context.Background(), foods("anything"))
	r := batch.Foods[0]
	if r.Source != SourceFailed {
		t.Errorf("source = %q, want %q", r.Source, SourceFailed)
	}
	if r.Nutrition != nil {
		t.Errorf("failed result must have nil nutrition, got %+v", r.Nutrition)
	}
	if batch.SuccessCount != 0 {
		t.Errorf("success count = %d, want 0", batch.SuccessCount)
	}
}

func TestResolve_IsolatesPanics(t *testing.T) {
	resolver := &stubResolver{fn: func(_ context.Context, name string, _ int) (*nutrition.Profile, string, error) {
		if name == "bad" {
			panic("resolver exploded")
		}
		return profileWithCalories(100), name, nil
	}}
	p := New(resolver, &stubEstimator{fn: func(context.Context, string) (*nutrition.Profile, error) {
		return nil, errors.New("unused")
	}})

	batch := p.Resolve(context.Background(), foods("ok-1", "bad", "ok-2"))
	if len(batch.Foods) != 3 {
		t.Fatalf("got %d results, want 3 (one item must never fail the batch)", len(batch.Foods))
	}
	if batch.Foods[1].Source != SourceFailed {
		t.Errorf("panicked item source = %q, want %q", batch.Foods[1].Source, SourceFailed)
	}
	if batch.Foods[0].Source != SourceDatabase || batch.Foods[2].Source != SourceDatabase {
		t.Error("sibling items must be unaffected by the panic")
	}
	if batch.SuccessCount != 2 {
		t.Errorf("success count = %d, want 2", batch.SuccessCount)
	}
}

func TestResolve_FanOutRunsConcurrently(t *testing.T) {
	const perItem = 50 * time.Millisecond
	resolver := &stubResolver{fn: func(context.Context, string, int) (*nutrition.Profile, string, error) {
		time.Sleep(perItem)
		return profileWithCalories(10), "x", nil
	}}
	p := New(resolver, &stubEstimator{fn: func(context.Context, string) (*nutrition.Profile, error) {
		return nil, nil
	}})

	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("food-%d", i)
	}
	start := time.Now()
	p.Resolve(context.Background(), foods(names...))
	if elapsed := time.Since(start); elapsed > 4*perItem {
		t.Errorf("8 items took %v; fan-out does not appear concurrent", elapsed)
	}
}

func TestResolve_EmptyInput(t *testing.T) {
	p := New(
		&stubResolver{fn: func(context.Context, string, int) (*nutrition.Profile, string, error) {
			t.Fatal("resolver must not be called")
			return nil, "", nil
		}},
		&stubEstimator{fn: func(context.Context, string) (*nutrition.Profile, error) {
			t.Fatal("estimator must not be called")
			return nil, nil
		}},
	)
	batch := p.Resolve(context.Background(), nil)
	if len(batch.Foods) != 0 || batch.TotalIdentified != 0 {
		t.Errorf("empty input should produce an empty batch, got %+v", batch)
	}
}
