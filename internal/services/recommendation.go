package services

import (
	"context"
	"fmt"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
)

type PopularResult struct {
	TagID    string  `json:"tag_id"`
	Tag      string  `json:"tag"`
	PlaceIDs []int64 `json:"place_ids"`
}

// RecommendationService scores candidate places against the current model
// artifact. The first request after startup fits a model synchronously;
// everything after that serves whatever the trainer last promoted.
type RecommendationService interface {
	Personal(ctx context.Context, userID int64, placeIDs []int64) ([]int64, error)
	Popular(ctx context.Context, placeIDs []int64) ([]PopularResult, error)
}

type recommendationService struct {
	log     *logger.Logger
	trainer Trainer
	builder FeatureMatrixBuilder
	opts    BuildOptions
}

func NewRecommendationService(
	baseLog *logger.Logger,
	trainer Trainer,
	builder FeatureMatrixBuilder,
	opts BuildOptions,
) RecommendationService {
	serviceLog := baseLog.With("service", "RecommendationService")
	return &recommendationService{
		log:     serviceLog,
		trainer: trainer,
		builder: builder,
		opts:    opts,
	}
}

func (s *recommendationService) Personal(ctx context.Context, userID int64, placeIDs []int64) ([]int64, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("user_id required: %w", faults.ErrInvalidArgument)
	}
	if len(placeIDs) == 0 {
		return []int64{}, nil
	}

	artifact, err := s.currentArtifact(ctx)
	if err != nil {
		return nil, err
	}

	ranked := artifact.Model.Rank(UserKey(userID), placeIDs)
	out := make([]int64, 0, len(ranked))
	scored := 0
	for _, r := range ranked {
		out = append(out, r.PlaceID)
		if r.Scored {
			scored++
		}
	}
	s.log.Debug("personal recommendation served",
		"user_id", userID,
		"candidates", len(placeIDs),
		"scored", scored,
		"model_version", artifact.Version,
	)
	return out, nil
}

func (s *recommendationService) Popular(ctx context.Context, placeIDs []int64) ([]PopularResult, error) {
	if len(placeIDs) == 0 {
		return []PopularResult{}, nil
	}

	artifact, err := s.currentArtifact(ctx)
	if err != nil {
		return nil, err
	}

	trending, err := s.builder.TrendingTags(ctx, s.opts)
	if err != nil {
		return nil, err
	}

	out := make([]PopularResult, 0, len(trending))
	for _, tag := range trending {
		ranked := artifact.Model.Rank(TagUserKey(tag.TagID), placeIDs)
		ids := make([]int64, 0, len(ranked))
		for _, r := range ranked {
			ids = append(ids, r.PlaceID)
		}
		out = append(out, PopularResult{
			TagID:    tag.TagID,
			Tag:      tag.Text,
			PlaceIDs: ids,
		})
	}
	s.log.Debug("popularity recommendation served",
		"candidates", len(placeIDs),
		"trending_tags", len(trending),
		"model_version", artifact.Version,
	)
	return out, nil
}

func (s *recommendationService) currentArtifact(ctx context.Context) (*ModelArtifact, error) {
	if artifact := s.trainer.Current(); artifact != nil {
		return artifact, nil
	}
	artifact, err := s.trainer.TrainNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap model fit: %w", err)
	}
	return artifact, nil
}
