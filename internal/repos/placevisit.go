package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/pinpung/pinpung-ai/internal/platform/logger"
	"github.com/pinpung/pinpung-ai/internal/types"
)

type PlaceVisitRepo interface {
	RecordVisit(ctx context.Context, tx *gorm.DB, placeID int64, visitorAge int) error
	GetByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]*types.PlaceVisit, error)
}

type placeVisitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlaceVisitRepo(db *gorm.DB, baseLog *logger.Logger) PlaceVisitRepo {
	repoLog := baseLog.With("repo", "PlaceVisitRepo")
	return &placeVisitRepo{db: db, log: repoLog}
}

// RecordVisit folds one visitor age into the running average in a single
// statement, so concurrent visits cannot lose increments.
func (r *placeVisitRepo) RecordVisit(ctx context.Context, tx *gorm.DB, placeID int64, visitorAge int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Exec(`
		INSERT INTO "place_visit" ("place_id", "visit_count", "avg_age", "created_at", "updated_at")
		VALUES (?, 1, ?, now(), now())
		ON CONFLICT ("place_id") DO UPDATE SET
			"avg_age" = ("place_visit"."avg_age" * "place_visit"."visit_count" + EXCLUDED."avg_age") / ("place_visit"."visit_count" + 1),
			"visit_count" = "place_visit"."visit_count" + 1,
			"updated_at" = now()
	`, placeID, float64(visitorAge)).Error
}

func (r *placeVisitRepo) GetByPlaces(ctx context.Context, tx *gorm.DB, placeIDs []int64) ([]*types.PlaceVisit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.PlaceVisit
	if len(placeIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("place_id IN ?", placeIDs).
		Order("place_id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
