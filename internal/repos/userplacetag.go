package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/types"
)

type UserPlaceTagRepo interface {
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, userID, placeID int64, tagID string) error
	ListByUsers(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*types.UserPlaceTag, error)
	ListUserIDsByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]int64, error)
	ListAllUserIDs(ctx context.Context, tx *gorm.DB) ([]int64, error)
	CountAll(ctx context.Context, tx *gorm.DB) (int64, error)
}

type userPlaceTagRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserPlaceTagRepo(db *gorm.DB, baseLog *logger.Logger) UserPlaceTagRepo {
	repoLog := baseLog.With("repo", "UserPlaceTagRepo")
	return &userPlaceTagRepo{db: db, log: repoLog}
}

func (r *userPlaceTagRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, userID, placeID int64, tagID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	row := &types.UserPlaceTag{
		UserID:  userID,
		PlaceID: placeID,
		TagID:   tagID,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "place_id"}, {Name: "tag_id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *userPlaceTagRepo) ListByUsers(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*types.UserPlaceTag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.UserPlaceTag
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id, place_id, tag_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userPlaceTagRepo) ListUserIDsByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []int64
	if len(placeIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&types.UserPlaceTag{}).
		Distinct("user_id").
		Where("place_id IN ?", placeIDs).
		Order("user_id").
		Pluck("user_id", &results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userPlaceTagRepo) ListAllUserIDs(ctx context.Context, tx *gorm.DB) ([]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []int64
	if err := transaction.WithContext(ctx).
		Model(&types.UserPlaceTag{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userPlaceTagRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.UserPlaceTag{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
