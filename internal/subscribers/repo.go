package subscribers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/pkg/db/models"
	"github.com/angelmondragon/newsletter-backend/pkg/enums"
)

// Directory lists the recipients of a newsletter issue.
type Directory interface {
	ConfirmedEmails(ctx context.Context, tx *gorm.DB) ([]string, error)
}

// Repository reads subscriptions. Writes belong to the confirmation workflow.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// ConfirmedEmails returns every confirmed subscriber address, read through tx
// so the snapshot matches the caller's transaction.
func (r *Repository) ConfirmedEmails(ctx context.Context, tx *gorm.DB) ([]string, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var emails []string
	err := tx.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status = ?", enums.SubscriptionStatusConfirmed).
		Order("email ASC").
		Pluck("email", &emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}
