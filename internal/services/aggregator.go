package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/repos"
	"github.com/pinpung/pinpung-ai/internal/types"
)

const maxRepresentativeTags = 5

// AssociationAggregator maintains the relational association tables that sit
// behind the feature builder: per-place tag counts with representative flags,
// per-user tag history, and per-place visit statistics.
type AssociationAggregator interface {
	RecordPlaceTag(ctx context.Context, placeID int64, tagID string) error
	RecordUserPlaceTag(ctx context.Context, userID, placeID int64, tagID string) error
	RecordVisit(ctx context.Context, placeID, userID int64) error
}

type associationAggregator struct {
	db               *gorm.DB
	log              *logger.Logger
	placeTagRepo     repos.PlaceTagRepo
	userPlaceTagRepo repos.UserPlaceTagRepo
	placeVisitRepo   repos.PlaceVisitRepo
	userRepo         repos.UserRepo

	// inTx wraps multi-statement writes in one transaction. Injected so the
	// recompute path is drivable without a live database.
	inTx func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

func NewAssociationAggregator(
	db *gorm.DB,
	baseLog *logger.Logger,
	placeTagRepo repos.PlaceTagRepo,
	userPlaceTagRepo repos.UserPlaceTagRepo,
	placeVisitRepo repos.PlaceVisitRepo,
	userRepo repos.UserRepo,
) AssociationAggregator {
	serviceLog := baseLog.With("service", "AssociationAggregator")
	a := &associationAggregator{
		db:               db,
		log:              serviceLog,
		placeTagRepo:     placeTagRepo,
		userPlaceTagRepo: userPlaceTagRepo,
		placeVisitRepo:   placeVisitRepo,
		userRepo:         userRepo,
	}
	a.inTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return a.db.WithContext(ctx).Transaction(fn)
	}
	return a
}

// RecordPlaceTag increments the (place, tag) count and recomputes the
// representative set from scratch: top min(5, N) by count desc, ties broken
// by tag id asc. The whole write runs in one transaction so readers never
// observe a partially updated flag set.
func (a *associationAggregator) RecordPlaceTag(ctx context.Context, placeID int64, tagID string) error {
	return a.inTx(ctx, func(tx *gorm.DB) error {
		if err := a.placeTagRepo.IncrementOrCreate(ctx, tx, placeID, tagID); err != nil {
			return fmt.Errorf("increment place tag: %w", err)
		}

		tags, err := a.placeTagRepo.ListByPlace(ctx, tx, placeID)
		if err != nil {
			return fmt.Errorf("list place tags: %w", err)
		}

		if err := a.placeTagRepo.SetRepresentative(ctx, tx, placeID, representativeTagIDs(tags)); err != nil {
			return fmt.Errorf("set representative tags: %w", err)
		}
		return nil
	})
}

// representativeTagIDs picks the representative set from rows already ordered
// by count desc, tag id asc: the first min(5, N).
func representativeTagIDs(tags []*types.PlaceTag) []string {
	limit := maxRepresentativeTags
	if len(tags) < limit {
		limit = len(tags)
	}
	out := make([]string, 0, limit)
	for _, t := range tags[:limit] {
		out = append(out, t.TagID)
	}
	return out
}

func (a *associationAggregator) RecordUserPlaceTag(ctx context.Context, userID, placeID int64, tagID string) error {
	if err := a.userPlaceTagRepo.CreateIfAbsent(ctx, nil, userID, placeID, tagID); err != nil {
		return fmt.Errorf("record user place tag: %w", err)
	}
	return nil
}

// RecordVisit folds the visitor's age into the place's running average.
// Unknown users still count as a visit, with age 0; the main service owns
// user rows and backfills ages.
func (a *associationAggregator) RecordVisit(ctx context.Context, placeID, userID int64) error {
	age := 0
	user, err := a.userRepo.GetByID(ctx, nil, userID)
	if err != nil && !errors.Is(err, faults.ErrNotFound) {
		return fmt.Errorf("load visitor: %w", err)
	}
	if user != nil {
		age = user.Age
	}
	if err := a.placeVisitRepo.RecordVisit(ctx, nil, placeID, age); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}
