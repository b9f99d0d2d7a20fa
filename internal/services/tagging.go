package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pinpung/pinpung-ai/internal/clients/gcp"
	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
)

const maxReviewImageBytes = 10 << 20

type GenerateTagsInput struct {
	PlaceID    int64
	UserID     int64
	ReviewText string
	ImageKey   string
}

// TaggingService runs the full write pipeline for one review: extract raw
// tags from text and photo, canonicalize them, and feed the association
// aggregates. Upstream provider failures degrade to "nothing generated"
// instead of failing the request.
type TaggingService interface {
	GenerateTags(ctx context.Context, in GenerateTagsInput) (generated bool, err error)
}

type taggingService struct {
	log           *logger.Logger
	extractor     TagExtractor
	canonicalizer TagCanonicalizer
	aggregator    AssociationAggregator
	trainer       Trainer
	bucket        gcp.BucketService // nil when photo reviews are disabled
}

func NewTaggingService(
	baseLog *logger.Logger,
	extractor TagExtractor,
	canonicalizer TagCanonicalizer,
	aggregator AssociationAggregator,
	trainer Trainer,
	bucket gcp.BucketService,
) TaggingService {
	serviceLog := baseLog.With("service", "TaggingService")
	return &taggingService{
		log:           serviceLog,
		extractor:     extractor,
		canonicalizer: canonicalizer,
		aggregator:    aggregator,
		trainer:       trainer,
		bucket:        bucket,
	}
}

func (s *taggingService) GenerateTags(ctx context.Context, in GenerateTagsInput) (bool, error) {
	if in.PlaceID <= 0 || in.UserID <= 0 {
		return false, fmt.Errorf("place_id and user_id required: %w", faults.ErrInvalidArgument)
	}
	reviewText := strings.TrimSpace(in.ReviewText)
	imageKey := strings.TrimSpace(in.ImageKey)
	if reviewText == "" && imageKey == "" {
		return false, fmt.Errorf("review_text or image_key required: %w", faults.ErrInvalidArgument)
	}

	var textTags, imageTags ExtractedTags
	g, gctx := errgroup.WithContext(ctx)
	if reviewText != "" {
		g.Go(func() error {
			tags, err := s.extractor.ExtractReview(gctx, reviewText)
			if err != nil {
				if faults.IsExternal(err) {
					s.log.Warn("review tag extraction degraded", "place_id", in.PlaceID, "error", err)
					return nil
				}
				return err
			}
			textTags = tags
			return nil
		})
	}
	if imageKey != "" && s.bucket != nil {
		g.Go(func() error {
			imageBytes, err := s.fetchImage(gctx, imageKey)
			if err != nil {
				s.log.Warn("review image fetch degraded", "place_id", in.PlaceID, "error", err)
				return nil
			}
			tags, err := s.extractor.ExtractImage(gctx, imageBytes, "")
			if err != nil {
				if faults.IsExternal(err) {
					s.log.Warn("image tag extraction degraded", "place_id", in.PlaceID, "error", err)
					return nil
				}
				return err
			}
			imageTags = tags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	recorded := 0
	record := func(texts []string, sentiment int) error {
		for _, text := range texts {
			tagID, _, err := s.canonicalizer.Canonicalize(ctx, text, sentiment)
			if err != nil {
				if faults.IsExternal(err) {
					s.log.Warn("tag canonicalization degraded", "place_id", in.PlaceID, "error", err)
					return nil
				}
				return err
			}
			if err := s.aggregator.RecordPlaceTag(ctx, in.PlaceID, tagID); err != nil {
				return err
			}
			if err := s.aggregator.RecordUserPlaceTag(ctx, in.UserID, in.PlaceID, tagID); err != nil {
				return err
			}
			recorded++
		}
		return nil
	}
	if err := record(textTags.Positive, 1); err != nil {
		return recorded > 0, err
	}
	if err := record(textTags.Negative, -1); err != nil {
		return recorded > 0, err
	}
	if err := record(imageTags.Positive, 1); err != nil {
		return recorded > 0, err
	}
	if err := record(imageTags.Negative, -1); err != nil {
		return recorded > 0, err
	}

	if err := s.aggregator.RecordVisit(ctx, in.PlaceID, in.UserID); err != nil {
		return recorded > 0, err
	}

	if recorded > 0 {
		s.trainer.MarkStale(ctx, "review tags recorded")
	}
	return recorded > 0, nil
}

func (s *taggingService) fetchImage(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.DownloadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download review image: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, maxReviewImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read review image: %w", err)
	}
	return raw, nil
}
