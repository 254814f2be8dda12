package newsletters

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateIssue(ctx context.Context, tx *gorm.DB, issue *models.NewsletterIssue) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.WithContext(ctx).Create(issue).Error
}

// GetIssue loads an issue through tx, or through the pool when tx is nil.
func (r *Repository) GetIssue(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.NewsletterIssue, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	var issue models.NewsletterIssue
	if err := conn.WithContext(ctx).Where("id = ?", id).Take(&issue).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}
