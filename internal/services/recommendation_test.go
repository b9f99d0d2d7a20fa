package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/recommender"
)

func fittedArtifact(t *testing.T) *ModelArtifact {
	t.Helper()
	m := recommender.Matrices{
		UserKeys:      []string{"tag:hot", "user:7"},
		ItemIDs:       []int64{101, 102, 103},
		FeatureTokens: []string{"tag:hot", "tag:other", "user:7:self"},
		UserFeatures:  [][]int{{0}, {2}},
		ItemFeatures:  [][]int{{0}, {1}, {0, 1}},
		Interactions: []recommender.Interaction{
			{UserIdx: 1, ItemIdx: 0, Weight: 2},
			{UserIdx: 0, ItemIdx: 2, Weight: 3},
		},
	}
	model := recommender.Fit(m, recommender.FitOptions{Seed: 11})
	return &ModelArtifact{Model: model, Version: 1, BuiltAt: time.Now().UTC()}
}

func TestPersonalRequiresUserID(t *testing.T) {
	log := newTestLogger(t)
	svc := NewRecommendationService(log, &fakeTrainer{}, &fakeBuilder{}, BuildOptions{})

	_, err := svc.Personal(context.Background(), 0, []int64{101})
	if !errors.Is(err, faults.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestPersonalEmptyCandidatesShortCircuits(t *testing.T) {
	log := newTestLogger(t)
	trainer := &fakeTrainer{}
	svc := NewRecommendationService(log, trainer, &fakeBuilder{}, BuildOptions{})

	got, err := svc.Personal(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("Personal: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty slice, got %v", got)
	}
}

func TestPersonalReturnsPermutationOfCandidates(t *testing.T) {
	log := newTestLogger(t)
	trainer := &fakeTrainer{artifact: fittedArtifact(t)}
	svc := NewRecommendationService(log, trainer, &fakeBuilder{}, BuildOptions{})

	candidates := []int64{103, 101, 102}
	got, err := svc.Personal(context.Background(), 7, candidates)
	if err != nil {
		t.Fatalf("Personal: %v", err)
	}
	if len(got) != len(candidates) {
		t.Fatalf("result length: want=%d got=%d", len(candidates), len(got))
	}
	seen := map[int64]struct{}{}
	for _, id := range got {
		seen[id] = struct{}{}
	}
	for _, id := range candidates {
		if _, ok := seen[id]; !ok {
			t.Fatalf("candidate %d missing from result %v", id, got)
		}
	}
}

func TestPersonalBootstrapsModelWhenNonePromoted(t *testing.T) {
	log := newTestLogger(t)
	artifact := fittedArtifact(t)
	trainCalls := 0
	trainer := &fakeTrainer{trainNowFn: func() (*ModelArtifact, error) {
		trainCalls++
		return artifact, nil
	}}
	svc := NewRecommendationService(log, trainer, &fakeBuilder{}, BuildOptions{})

	if _, err := svc.Personal(context.Background(), 7, []int64{101, 102}); err != nil {
		t.Fatalf("Personal: %v", err)
	}
	if trainCalls != 1 {
		t.Fatalf("bootstrap train calls: want=1 got=%d", trainCalls)
	}
}

func TestPersonalBootstrapFailurePropagates(t *testing.T) {
	log := newTestLogger(t)
	trainer := &fakeTrainer{trainNowFn: func() (*ModelArtifact, error) {
		return nil, errors.New("no interactions yet")
	}}
	svc := NewRecommendationService(log, trainer, &fakeBuilder{}, BuildOptions{})

	if _, err := svc.Personal(context.Background(), 7, []int64{101}); err == nil {
		t.Fatalf("expected bootstrap failure to propagate")
	}
}

func TestPopularRanksCandidatesPerTrendingTag(t *testing.T) {
	log := newTestLogger(t)
	trainer := &fakeTrainer{artifact: fittedArtifact(t)}
	builder := &fakeBuilder{trending: []TrendingTag{
		{TagID: "hot", Text: "cozy vibes", Count: 5},
		{TagID: "cold", Text: "latte art", Count: 2},
	}}
	svc := NewRecommendationService(log, trainer, builder, BuildOptions{})

	candidates := []int64{101, 102, 103}
	results, err := svc.Popular(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("result count: want=2 got=%d", len(results))
	}
	if results[0].TagID != "hot" || results[0].Tag != "cozy vibes" {
		t.Fatalf("results must follow trending order: %+v", results[0])
	}
	if results[1].TagID != "cold" || results[1].Tag != "latte art" {
		t.Fatalf("second result mismatch: %+v", results[1])
	}
	for _, res := range results {
		if len(res.PlaceIDs) != len(candidates) {
			t.Fatalf("tag %s: place count want=%d got=%d", res.TagID, len(candidates), len(res.PlaceIDs))
		}
	}
}

func TestPopularEmptyCandidatesShortCircuits(t *testing.T) {
	log := newTestLogger(t)
	svc := NewRecommendationService(log, &fakeTrainer{}, &fakeBuilder{}, BuildOptions{})

	results, err := svc.Popular(context.Background(), nil)
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("want empty slice, got %v", results)
	}
}
