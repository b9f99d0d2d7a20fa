package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/types"
)

type PlaceTagRepo interface {
	IncrementOrCreate(ctx context.Context, tx *gorm.DB, placeID int64, tagID string) error
	ListByPlace(ctx context.Context, tx *gorm.DB, placeID int64) ([]*types.PlaceTag, error)
	ListByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]*types.PlaceTag, error)
	ListRepresentativeByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]*types.PlaceTag, error)
	SetRepresentative(ctx context.Context, tx *gorm.DB, placeID int64, tagIDs []string) error
	ListPlacesByTags(ctx context.Context, tx *gorm.DB, tagIDs []string) ([]*types.PlaceTag, error)
}

type placeTagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlaceTagRepo(db *gorm.DB, baseLog *logger.Logger) PlaceTagRepo {
	repoLog := baseLog.With("repo", "PlaceTagRepo")
	return &placeTagRepo{db: db, log: repoLog}
}

func (r *placeTagRepo) IncrementOrCreate(ctx context.Context, tx *gorm.DB, placeID int64, tagID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.PlaceTag{
		PlaceID: placeID,
		TagID:   tagID,
		Count:   1,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "place_id"}, {Name: "tag_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":      gorm.Expr(`"place_tag"."count" + 1`),
				"updated_at": gorm.Expr("now()"),
			}),
		}).
		Create(row).Error
}

func (r *placeTagRepo) ListByPlace(ctx context.Context, tx *gorm.DB, placeID int64) ([]*types.PlaceTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PlaceTag
	if err := transaction.WithContext(ctx).
		Where("place_id = ?", placeID).
		Order("count DESC, tag_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *placeTagRepo) ListByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]*types.PlaceTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PlaceTag
	if len(placeIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("place_id IN ?", placeIDs).
		Order("place_id, count DESC, tag_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *placeTagRepo) ListRepresentativeByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]*types.PlaceTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PlaceTag
	if len(placeIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("place_id IN ? AND is_representative = ?", placeIDs, true).
		Order("place_id, count DESC, tag_id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// SetRepresentative resets flags for the place and marks exactly the given
// tag ids. Callers run the full recompute inside a transaction.
func (r *placeTagRepo) SetRepresentative(ctx context.Context, tx *gorm.DB, placeID int64, tagIDs []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).
		Model(&types.PlaceTag{}).
		Where("place_id = ?", placeID).
		Update("is_representative", false).Error; err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.PlaceTag{}).
		Where("place_id = ? AND tag_id IN ?", placeID, tagIDs).
		Update("is_representative", true).Error
}

func (r *placeTagRepo) ListPlacesByTags(ctx context.Context, tx *gorm.DB, tagIDs []string) ([]*types.PlaceTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PlaceTag
	if len(tagIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("tag_id IN ?", tagIDs).
		Order("tag_id, place_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
