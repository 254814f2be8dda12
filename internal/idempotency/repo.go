package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/newsletter-backend/pkg/db"
	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// InsertPlaceholder claims (actorID, key) for the caller's transaction. It
// reports false when another request already owns the row.
func (r *Repository) InsertPlaceholder(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, key string, now time.Time) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	row := models.Idempotency{
		ActorID:        actorID,
		IdempotencyKey: key,
		Status:         enums.IdempotencyStatusInProgress,
		CreatedAt:      now,
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) Find(ctx context.Context, actorID uuid.UUID, key string) (*models.Idempotency, error) {
	var row models.Idempotency
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND idempotency_key = ?", actorID, key).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Complete stores resp on the in-progress row and flips it to completed.
func (r *Repository) Complete(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, key string, resp Response) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Model(&models.Idempotency{}).
		Where("actor_id = ? AND idempotency_key = ? AND status = ?", actorID, key, enums.IdempotencyStatusInProgress).
		Updates(map[string]any{
			"status":               enums.IdempotencyStatusCompleted,
			"response_status_code": int16(resp.StatusCode),
			"response_headers":     resp.Headers,
			"response_body":        resp.Body,
		})
	return res.RowsAffected, res.Error
}

// DeleteCompletedBefore prunes completed rows created before cutoff.
func (r *Repository) DeleteCompletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.IdempotencyStatusCompleted, cutoff).
		Delete(&models.Idempotency{})
	return res.RowsAffected, res.Error
}
