package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/types"
)

type UserRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.User, error)
	ListMenusByUsers(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*types.UserMenu, error)
	ListActivitiesByUsers(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*types.UserActivity, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (r *userRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.User
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.User
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userRepo) ListMenusByUsers(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*types.UserMenu, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.UserMenu
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id, menu").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *userRepo) ListActivitiesByUsers(ctx context.Context, tx *gorm.DB, userIDs []int64) ([]*types.UserActivity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.UserActivity
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id, activity").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
