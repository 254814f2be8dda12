package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/newsletter-backend/pkg/enums"
)

// Subscription is a newsletter subscriber. The confirmation workflow owns writes.
type Subscription struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Email        string                   `gorm:"column:email;not null;unique"`
	Name         string                   `gorm:"column:name;not null"`
	SubscribedAt time.Time                `gorm:"column:subscribed_at;not null"`
	Status       enums.SubscriptionStatus `gorm:"column:status;not null"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
