package models

import (
	"time"

	"github.com/google/uuid"
)

// NewsletterIssue is an immutable published newsletter.
type NewsletterIssue struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title       string    `gorm:"column:title;not null"`
	TextContent string    `gorm:"column:text_content;not null"`
	HTMLContent string    `gorm:"column:html_content;not null"`
	PublishedAt time.Time `gorm:"column:published_at;not null"`
}

func (NewsletterIssue) TableName() string {
	return "newsletter_issues"
}
