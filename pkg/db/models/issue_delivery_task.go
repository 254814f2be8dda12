package models

import "github.com/google/uuid"

// IssueDeliveryTask is one pending (issue, recipient) send in the delivery queue.
type IssueDeliveryTask struct {
	NewsletterIssueID uuid.UUID `gorm:"column:newsletter_issue_id;type:uuid;primaryKey"`
	SubscriberEmail   string    `gorm:"column:subscriber_email;primaryKey"`
}

func (IssueDeliveryTask) TableName() string {
	return "issue_delivery_queue"
}
